package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

const classSelect = `SELECT c.sn, c.class_no, c.name, c.semester, c.location, c.cou_sn, co.no, co.name, c.updated_at
	FROM class AS c JOIN course AS co ON co.sn = c.cou_sn`

// ClassRepository handles section data access.
type ClassRepository struct {
	pool *pgxpool.Pool
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

func scanClass(row pgx.Row, c *model.Class) error {
	return row.Scan(&c.SN, &c.No, &c.Name, &c.Semester, &c.Location, &c.CouSN, &c.CourseNo, &c.CourseName, &c.UpdatedAt)
}

// GetByID retrieves a section with its course number and name.
func (r *ClassRepository) GetByID(ctx context.Context, sn int) (*model.Class, error) {
	c := &model.Class{}
	if err := scanClass(r.pool.QueryRow(ctx, classSelect+` WHERE c.sn = $1`, sn), c); err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// List retrieves all sections, optionally restricted to one course.
func (r *ClassRepository) List(ctx context.Context, couSN *int) ([]model.Class, error) {
	query := classSelect
	var args []interface{}
	if couSN != nil {
		query += ` WHERE c.cou_sn = $1`
		args = append(args, *couSN)
	}
	query += ` ORDER BY c.class_no`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := []model.Class{}
	for rows.Next() {
		var c model.Class
		if err := scanClass(rows, &c); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// Create inserts a new section.
func (r *ClassRepository) Create(ctx context.Context, c *model.Class) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO class (class_no, name, semester, location, cou_sn)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING sn, updated_at`,
		c.No, c.Name, c.Semester, c.Location, c.CouSN,
	).Scan(&c.SN, &c.UpdatedAt)
	return mapError(err)
}

// Update modifies a section. Moving a section to another course is refused
// while it has enrolled students, since each enrollment records the course.
// The section row is locked first so a concurrent roster change cannot
// enroll students between the check and the write.
func (r *ClassRepository) Update(ctx context.Context, c *model.Class) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var couSN int
	if err := tx.QueryRow(ctx, `SELECT cou_sn FROM class WHERE sn = $1 FOR UPDATE`, c.SN).Scan(&couSN); err != nil {
		return mapError(err)
	}
	if couSN != c.CouSN {
		var enrolled bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM class_student WHERE class_sn = $1)`, c.SN,
		).Scan(&enrolled); err != nil {
			return err
		}
		if enrolled {
			return ports.ErrInUse
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE class SET class_no = $1, name = $2, semester = $3, location = $4, cou_sn = $5
		 WHERE sn = $6`,
		c.No, c.Name, c.Semester, c.Location, c.CouSN, c.SN,
	); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// Delete removes a section. Enrollments and grades cascade.
func (r *ClassRepository) Delete(ctx context.Context, sn int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM class WHERE sn = $1`, sn)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
