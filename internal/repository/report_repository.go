package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
)

// ReportRepository serves the read-only aggregate queries behind reports.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// TranscriptLines returns every section a student is enrolled in with its grade.
func (r *ReportRepository) TranscriptLines(ctx context.Context, stuSN int) ([]model.TranscriptLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.sn, c.class_no, co.name, c.semester, g.grade, co.credit
		 FROM class_student AS cs
		 JOIN class AS c ON c.sn = cs.class_sn
		 JOIN course AS co ON co.sn = c.cou_sn
		 LEFT JOIN class_grade AS g ON g.class_sn = cs.class_sn AND g.stu_sn = cs.stu_sn
		 WHERE cs.stu_sn = $1
		 ORDER BY c.semester, c.class_no`,
		stuSN,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TranscriptLine, error) {
		var l model.TranscriptLine
		err := row.Scan(&l.ClassSN, &l.ClassNo, &l.CourseName, &l.Semester, &l.Grade, &l.Credit)
		return l, err
	})
}

// SectionSummary aggregates the grades of a section in one query.
func (r *ReportRepository) SectionSummary(ctx context.Context, classSN int, passMark float64) (*model.SectionSummary, error) {
	s := &model.SectionSummary{ClassSN: classSN}
	err := r.pool.QueryRow(ctx,
		`SELECT c.class_no,
		        COUNT(cs.stu_sn),
		        COUNT(g.grade),
		        AVG(g.grade)::float8,
		        MAX(g.grade)::float8,
		        MIN(g.grade)::float8,
		        (AVG(CASE WHEN g.grade >= $2 THEN 1.0 ELSE 0.0 END) FILTER (WHERE g.grade IS NOT NULL))::float8
		 FROM class AS c
		 LEFT JOIN class_student AS cs ON cs.class_sn = c.sn
		 LEFT JOIN class_grade AS g ON g.class_sn = cs.class_sn AND g.stu_sn = cs.stu_sn
		 WHERE c.sn = $1
		 GROUP BY c.class_no`,
		classSN, passMark,
	).Scan(&s.ClassNo, &s.Enrolled, &s.Graded, &s.Mean, &s.Max, &s.Min, &s.PassRate)
	if err != nil {
		return nil, mapError(err)
	}
	return s, nil
}
