package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
)

const studentColumns = `sn, no, name, gender, enrolled, created_at, updated_at`

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

func scanStudent(row pgx.Row, s *model.Student) error {
	return row.Scan(&s.SN, &s.No, &s.Name, &s.Gender, &s.Enrolled, &s.CreatedAt, &s.UpdatedAt)
}

func collectStudents(rows pgx.Rows) ([]model.Student, error) {
	defer rows.Close()
	students := []model.Student{}
	for rows.Next() {
		var s model.Student
		if err := scanStudent(rows, &s); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// GetByID retrieves a student by serial number.
func (r *StudentRepository) GetByID(ctx context.Context, sn int) (*model.Student, error) {
	s := &model.Student{}
	row := r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM student WHERE sn = $1`, sn)
	if err := scanStudent(row, s); err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// GetByNo retrieves a student by their unique student number.
func (r *StudentRepository) GetByNo(ctx context.Context, no string) (*model.Student, error) {
	s := &model.Student{}
	row := r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM student WHERE no = $1`, no)
	if err := scanStudent(row, s); err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// ListPaginated retrieves students ordered by number, optionally filtered by a
// number or name substring.
func (r *StudentRepository) ListPaginated(ctx context.Context, search string, limit, offset int) ([]model.Student, int, error) {
	where := ""
	var args []interface{}
	if search != "" {
		where = ` WHERE no LIKE $1 OR name ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM student`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argIdx := len(args) + 1
	query := `SELECT ` + studentColumns + ` FROM student` + where +
		` ORDER BY no LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	students, err := collectStudents(rows)
	return students, total, err
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO student (no, name, gender, enrolled)
		 VALUES ($1, $2, $3, $4)
		 RETURNING sn, created_at, updated_at`,
		s.No, s.Name, s.Gender, s.Enrolled,
	).Scan(&s.SN, &s.CreatedAt, &s.UpdatedAt)
	return mapError(err)
}

// Update modifies a student's details.
func (r *StudentRepository) Update(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE student SET no = $1, name = $2, gender = $3, enrolled = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE sn = $5
		 RETURNING created_at, updated_at`,
		s.No, s.Name, s.Gender, s.Enrolled, s.SN,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return mapError(err)
}

// Delete removes a student. Enrollments and grades cascade.
func (r *StudentRepository) Delete(ctx context.Context, sn int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM student WHERE sn = $1`, sn)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}
