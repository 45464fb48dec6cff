package handler

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/VasantLong/cgms2025/internal/model"
)

var errMissingColumns = errors.New("header must contain stu_no and grade columns")

// maxImportRows caps the rows accepted from one upload.
const maxImportRows = 5000

// decodeImportCSV reads a grade sheet with a header row. Recognised columns
// are stu_no, name (or stu_name), grade and remark in any order; unknown
// columns are ignored. Grades stay strings so malformed values are reported
// per row rather than failing the upload.
func decodeImportCSV(r io.Reader) ([]model.ImportRow, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errMissingColumns
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{"stu_no": -1, "name": -1, "grade": -1, "remark": -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "stu_name" {
			key = "name"
		}
		if idx, ok := cols[key]; ok && idx < 0 {
			cols[key] = i
		}
	}
	if cols["stu_no"] < 0 || cols["grade"] < 0 {
		return nil, errMissingColumns
	}

	var rows []model.ImportRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		if len(rows) == maxImportRows {
			return nil, fmt.Errorf("more than %d rows", maxImportRows)
		}
		field := func(name string) string {
			idx := cols[name]
			if idx < 0 || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}
		row := model.ImportRow{
			StuNo:  field("stu_no"),
			Name:   field("name"),
			Remark: field("remark"),
		}
		if g := field("grade"); g != "" {
			row.Grade = g
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isCSVUpload(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	ct, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(ct) {
	case "text/csv", "application/csv", "application/vnd.ms-excel":
		return true
	}
	return false
}
