package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
)

// GradeRepository serves grade listings and the audit trail.
type GradeRepository struct {
	pool *pgxpool.Pool
}

// NewGradeRepository creates a new GradeRepository.
func NewGradeRepository(pool *pgxpool.Pool) *GradeRepository {
	return &GradeRepository{pool: pool}
}

// ListAll returns every grade joined with student, section and course names.
func (r *GradeRepository) ListAll(ctx context.Context) ([]model.GradeListRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.sn, s.no, s.name, c.sn, c.class_no, co.sn, co.name, g.grade
		 FROM class_grade AS g
		 JOIN student AS s ON s.sn = g.stu_sn
		 JOIN class AS c ON c.sn = g.class_sn
		 JOIN course AS co ON co.sn = c.cou_sn
		 ORDER BY s.no, c.class_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.GradeListRow{}
	for rows.Next() {
		var g model.GradeListRow
		if err := rows.Scan(&g.StuSN, &g.StuNo, &g.StuName, &g.ClassSN, &g.ClassNo, &g.CouSN, &g.CouName, &g.Grade); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// AuditTrail returns the change history of one grade, oldest first.
func (r *GradeRepository) AuditTrail(ctx context.Context, classSN, stuSN int) ([]model.GradeAuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, grade_id, class_sn, stu_sn, old_grade, new_grade, source, operator_sn, operator_name, remark, created_at
		 FROM grade_audit_log
		 WHERE class_sn = $1 AND stu_sn = $2
		 ORDER BY id`,
		classSN, stuSN,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.GradeAuditEntry{}
	for rows.Next() {
		var e model.GradeAuditEntry
		var source string
		if err := rows.Scan(&e.ID, &e.GradeID, &e.ClassSN, &e.StuSN, &e.OldGrade, &e.NewGrade,
			&source, &e.OperatorSN, &e.OperatorName, &e.Remark, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Source = model.GradeSource(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
