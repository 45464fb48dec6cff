package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

// RosterRepository owns enrollment and grade writes for a section. All
// writes go through RunInTx so that the section row lock covers them.
type RosterRepository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewRosterRepository creates a new RosterRepository. txTimeout bounds a
// transaction whose context has no deadline of its own.
func NewRosterRepository(pool *pgxpool.Pool, txTimeout time.Duration) *RosterRepository {
	return &RosterRepository{pool: pool, txTimeout: txTimeout}
}

// RunInTx runs fn inside a single transaction.
func (r *RosterRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.SectionTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &sectionTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// ListEnrolled returns one page of a section's roster ordered by student number.
func (r *RosterRepository) ListEnrolled(ctx context.Context, classSN, limit, offset int) ([]model.Student, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM class_student WHERE class_sn = $1`, classSN,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixed("s", studentColumns)+`
		 FROM student AS s
		 JOIN class_student AS cs ON cs.stu_sn = s.sn
		 WHERE cs.class_sn = $1
		 ORDER BY s.no
		 LIMIT $2 OFFSET $3`,
		classSN, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	students, err := collectStudents(rows)
	return students, total, err
}

// ListAvailable returns the students that may still be added to a section.
func (r *RosterRepository) ListAvailable(ctx context.Context, classSN int, scope model.AvailableScope) ([]model.Student, error) {
	exclude := `SELECT stu_sn FROM class_student WHERE class_sn = $1`
	if scope == model.ScopeCourse {
		exclude = `SELECT stu_sn FROM class_student WHERE cou_sn = (SELECT cou_sn FROM class WHERE sn = $1)`
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+studentColumns+` FROM student WHERE sn NOT IN (`+exclude+`) ORDER BY no`,
		classSN,
	)
	if err != nil {
		return nil, err
	}
	return collectStudents(rows)
}

// FindConflicts reports which of stuSNs are enrolled in another section of
// the same course as classSN. It takes no locks.
func (r *RosterRepository) FindConflicts(ctx context.Context, classSN int, stuSNs []int) ([]model.Conflict, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.sn, s.no, s.name, c.sn, c.class_no
		 FROM class_student AS cs
		 JOIN class AS c ON c.sn = cs.class_sn
		 JOIN student AS s ON s.sn = cs.stu_sn
		 WHERE cs.stu_sn = ANY($2::int[])
		   AND c.cou_sn = (SELECT cou_sn FROM class WHERE sn = $1)
		   AND c.sn <> $1
		 ORDER BY s.sn`,
		classSN, stuSNs,
	)
	if err != nil {
		return nil, err
	}
	return collectConflicts(rows)
}

// ListWithGrades returns the roster together with each student's grade.
func (r *RosterRepository) ListWithGrades(ctx context.Context, classSN int) ([]model.RosterEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixed("s", studentColumns)+`, g.grade, g.updated_at
		 FROM class_student AS cs
		 JOIN student AS s ON s.sn = cs.stu_sn
		 LEFT JOIN class_grade AS g ON g.class_sn = cs.class_sn AND g.stu_sn = cs.stu_sn
		 WHERE cs.class_sn = $1
		 ORDER BY s.no`,
		classSN,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.RosterEntry{}
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.SN, &e.No, &e.Name, &e.Gender, &e.Enrolled, &e.CreatedAt, &e.UpdatedAt,
			&e.Grade, &e.GradeUpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sectionTx implements ports.SectionTx over a pgx transaction.
type sectionTx struct {
	tx pgx.Tx
}

func (t *sectionTx) LockSection(ctx context.Context, classSN int) (*model.Class, error) {
	c := &model.Class{}
	row := t.tx.QueryRow(ctx, classSelect+` WHERE c.sn = $1 FOR UPDATE OF c`, classSN)
	if err := scanClass(row, c); err != nil {
		return nil, fmt.Errorf("lock section %d: %w", classSN, mapError(err))
	}
	return c, nil
}

func (t *sectionTx) EnrolledStudentSNs(ctx context.Context, classSN int) ([]int, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT stu_sn FROM class_student WHERE class_sn = $1 ORDER BY stu_sn`, classSN)
	if err != nil {
		return nil, fmt.Errorf("read enrolled set: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (t *sectionTx) RosterStudents(ctx context.Context, classSN int) ([]model.Student, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+prefixed("s", studentColumns)+`
		 FROM student AS s
		 JOIN class_student AS cs ON cs.stu_sn = s.sn
		 WHERE cs.class_sn = $1
		 ORDER BY s.no`,
		classSN,
	)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return collectStudents(rows)
}

func (t *sectionTx) MissingStudentSNs(ctx context.Context, stuSNs []int) ([]int, error) {
	if len(stuSNs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT t.id FROM unnest($1::int[]) AS t(id)
		 WHERE NOT EXISTS (SELECT 1 FROM student WHERE sn = t.id)
		 ORDER BY t.id`,
		stuSNs,
	)
	if err != nil {
		return nil, fmt.Errorf("check students exist: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (t *sectionTx) CrossSectionConflicts(ctx context.Context, classSN, couSN int, stuSNs []int) ([]model.Conflict, error) {
	if len(stuSNs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT s.sn, s.no, s.name, c.sn, c.class_no
		 FROM class_student AS cs
		 JOIN class AS c ON c.sn = cs.class_sn
		 JOIN student AS s ON s.sn = cs.stu_sn
		 WHERE cs.stu_sn = ANY($1::int[])
		   AND c.cou_sn = $2
		   AND c.sn <> $3
		 ORDER BY s.sn`,
		stuSNs, couSN, classSN,
	)
	if err != nil {
		return nil, fmt.Errorf("find conflicts: %w", err)
	}
	return collectConflicts(rows)
}

func (t *sectionTx) DeleteGrades(ctx context.Context, classSN int, stuSNs []int) (int64, error) {
	if len(stuSNs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM class_grade WHERE class_sn = $1 AND stu_sn = ANY($2::int[])`, classSN, stuSNs)
	if err != nil {
		return 0, fmt.Errorf("delete grades: %w", mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (t *sectionTx) DeleteEnrollments(ctx context.Context, classSN int, stuSNs []int) (int64, error) {
	if len(stuSNs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM class_student WHERE class_sn = $1 AND stu_sn = ANY($2::int[])`, classSN, stuSNs)
	if err != nil {
		return 0, fmt.Errorf("delete enrollments: %w", mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (t *sectionTx) InsertEnrollments(ctx context.Context, classSN, couSN int, stuSNs []int) (int64, error) {
	if len(stuSNs) == 0 {
		return 0, nil
	}
	// Only the primary key is an arbiter; a (stu_sn, cou_sn) collision must fail.
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO class_student (class_sn, stu_sn, cou_sn)
		 SELECT $1, unnest($2::int[]), $3
		 ON CONFLICT (class_sn, stu_sn) DO NOTHING`,
		classSN, stuSNs, couSN,
	)
	if err != nil {
		return 0, fmt.Errorf("insert enrollments: %w", mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (t *sectionTx) GradesFor(ctx context.Context, classSN int) (map[int]model.Grade, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, class_sn, stu_sn, grade, updated_at FROM class_grade WHERE class_sn = $1`, classSN)
	if err != nil {
		return nil, fmt.Errorf("read grades: %w", err)
	}
	defer rows.Close()

	grades := make(map[int]model.Grade)
	for rows.Next() {
		var g model.Grade
		if err := rows.Scan(&g.ID, &g.ClassSN, &g.StuSN, &g.Value, &g.UpdatedAt); err != nil {
			return nil, err
		}
		grades[g.StuSN] = g
	}
	return grades, rows.Err()
}

func (t *sectionTx) StudentsByNo(ctx context.Context, nos []string) (map[string]model.Student, error) {
	out := make(map[string]model.Student)
	if len(nos) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+studentColumns+` FROM student WHERE no = ANY($1::text[])`, nos)
	if err != nil {
		return nil, fmt.Errorf("resolve student numbers: %w", err)
	}
	students, err := collectStudents(rows)
	if err != nil {
		return nil, err
	}
	for _, s := range students {
		out[s.No] = s
	}
	return out, nil
}

func (t *sectionTx) UpsertGrade(ctx context.Context, classSN, stuSN int, value *float64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO class_grade (class_sn, stu_sn, grade)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (class_sn, stu_sn)
		 DO UPDATE SET grade = EXCLUDED.grade, updated_at = CURRENT_TIMESTAMP
		 RETURNING id`,
		classSN, stuSN, value,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert grade (%d, %d): %w", classSN, stuSN, mapError(err))
	}
	return id, nil
}

func (t *sectionTx) AppendAudit(ctx context.Context, entries []model.GradeAuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"grade_audit_log"},
		[]string{"grade_id", "class_sn", "stu_sn", "old_grade", "new_grade", "source", "operator_sn", "operator_name", "remark"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]interface{}, error) {
			e := entries[i]
			return []interface{}{e.GradeID, e.ClassSN, e.StuSN, e.OldGrade, e.NewGrade,
				string(e.Source), e.OperatorSN, e.OperatorName, e.Remark}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (t *sectionTx) BumpVersion(ctx context.Context, classSN int) (time.Time, error) {
	var v time.Time
	err := t.tx.QueryRow(ctx,
		`UPDATE class
		 SET updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
		 WHERE sn = $1
		 RETURNING updated_at`,
		classSN,
	).Scan(&v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bump version: %w", mapError(err))
	}
	return v, nil
}

func collectConflicts(rows pgx.Rows) ([]model.Conflict, error) {
	defer rows.Close()
	conflicts := []model.Conflict{}
	for rows.Next() {
		var c model.Conflict
		if err := rows.Scan(&c.StuSN, &c.StuNo, &c.StuName, &c.ClassSN, &c.ClassNo); err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// prefixed qualifies each column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
