package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
)

// CourseRepository handles course data access.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// GetByID retrieves a course by serial number.
func (r *CourseRepository) GetByID(ctx context.Context, sn int) (*model.Course, error) {
	c := &model.Course{}
	err := r.pool.QueryRow(ctx,
		`SELECT sn, no, name, credit, hours FROM course WHERE sn = $1`, sn,
	).Scan(&c.SN, &c.No, &c.Name, &c.Credit, &c.Hours)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// ListPaginated retrieves courses ordered by course number.
func (r *CourseRepository) ListPaginated(ctx context.Context, limit, offset int) ([]model.Course, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM course`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT sn, no, name, credit, hours FROM course ORDER BY no LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}

	courses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Course, error) {
		var c model.Course
		err := row.Scan(&c.SN, &c.No, &c.Name, &c.Credit, &c.Hours)
		return c, err
	})
	if err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO course (no, name, credit, hours) VALUES ($1, $2, $3, $4) RETURNING sn`,
		c.No, c.Name, c.Credit, c.Hours,
	).Scan(&c.SN)
	return mapError(err)
}

// Update modifies an existing course.
func (r *CourseRepository) Update(ctx context.Context, c *model.Course) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE course SET no = $1, name = $2, credit = $3, hours = $4 WHERE sn = $5`,
		c.No, c.Name, c.Credit, c.Hours, c.SN,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

// Delete removes a course. Fails with ErrInUse while sections reference it.
func (r *CourseRepository) Delete(ctx context.Context, sn int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM course WHERE sn = $1`, sn)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}
