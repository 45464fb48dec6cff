package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/VasantLong/cgms2025/internal/ports"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintStudentCourse = "class_student_stu_course_key"
)

// mapError translates pgx and PostgreSQL errors into the port sentinels.
// Errors it does not recognise are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == constraintStudentCourse {
				return fmt.Errorf("%w: %s", ports.ErrEnrollmentConflict, pgErr.Detail)
			}
			return fmt.Errorf("%w: %s", ports.ErrDuplicate, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ports.ErrInUse, pgErr.ConstraintName)
		}
	}
	return err
}
