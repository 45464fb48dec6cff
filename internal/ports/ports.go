// Package ports defines the store and infrastructure interfaces consumed by
// the service layer. The pgx repositories and the in-memory store both
// implement them.
package ports

import (
	"context"
	"time"

	"github.com/VasantLong/cgms2025/internal/model"
)

// StudentStore persists student records.
type StudentStore interface {
	GetByID(ctx context.Context, sn int) (*model.Student, error)
	GetByNo(ctx context.Context, no string) (*model.Student, error)
	ListPaginated(ctx context.Context, search string, limit, offset int) ([]model.Student, int, error)

	// Create returns ErrDuplicate when the student number is taken.
	Create(ctx context.Context, s *model.Student) error
	Update(ctx context.Context, s *model.Student) error
	Delete(ctx context.Context, sn int) error
}

// CourseStore persists course records.
type CourseStore interface {
	GetByID(ctx context.Context, sn int) (*model.Course, error)
	ListPaginated(ctx context.Context, limit, offset int) ([]model.Course, int, error)
	Create(ctx context.Context, c *model.Course) error
	Update(ctx context.Context, c *model.Course) error

	// Delete returns ErrInUse when sections still reference the course.
	Delete(ctx context.Context, sn int) error
}

// ClassStore persists section records.
type ClassStore interface {
	GetByID(ctx context.Context, sn int) (*model.Class, error)
	List(ctx context.Context, couSN *int) ([]model.Class, error)
	Create(ctx context.Context, c *model.Class) error

	// Update returns ErrInUse when the course changes while students are enrolled.
	Update(ctx context.Context, c *model.Class) error
	Delete(ctx context.Context, sn int) error
}

// SectionTx is the set of reads and writes performed while a section row is locked.
// Every method runs inside the transaction opened by Transactor.RunInTx.
type SectionTx interface {
	// LockSection locks the section row for the rest of the transaction.
	LockSection(ctx context.Context, classSN int) (*model.Class, error)

	EnrolledStudentSNs(ctx context.Context, classSN int) ([]int, error)
	RosterStudents(ctx context.Context, classSN int) ([]model.Student, error)

	// MissingStudentSNs returns the ids in stuSNs that have no student record.
	MissingStudentSNs(ctx context.Context, stuSNs []int) ([]int, error)

	// CrossSectionConflicts returns enrollments of stuSNs in sections of couSN other than classSN.
	CrossSectionConflicts(ctx context.Context, classSN, couSN int, stuSNs []int) ([]model.Conflict, error)

	DeleteGrades(ctx context.Context, classSN int, stuSNs []int) (int64, error)
	DeleteEnrollments(ctx context.Context, classSN int, stuSNs []int) (int64, error)

	// InsertEnrollments is idempotent per (classSN, stuSN). It returns
	// ErrEnrollmentConflict when a student is already in another section of couSN.
	InsertEnrollments(ctx context.Context, classSN, couSN int, stuSNs []int) (int64, error)

	GradesFor(ctx context.Context, classSN int) (map[int]model.Grade, error)
	StudentsByNo(ctx context.Context, nos []string) (map[string]model.Student, error)
	UpsertGrade(ctx context.Context, classSN, stuSN int, value *float64) (int64, error)
	AppendAudit(ctx context.Context, entries []model.GradeAuditEntry) error

	// BumpVersion advances the section's updated_at and returns the new value.
	// The result is strictly greater than the previous stamp.
	BumpVersion(ctx context.Context, classSN int) (time.Time, error)
}

// Transactor runs fn in a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise. fn must use the context it is given,
// which carries the transaction deadline.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx SectionTx) error) error
}

// RosterReader serves read-only roster queries.
type RosterReader interface {
	ListEnrolled(ctx context.Context, classSN, limit, offset int) ([]model.Student, int, error)
	ListAvailable(ctx context.Context, classSN int, scope model.AvailableScope) ([]model.Student, error)
	FindConflicts(ctx context.Context, classSN int, stuSNs []int) ([]model.Conflict, error)
	ListWithGrades(ctx context.Context, classSN int) ([]model.RosterEntry, error)
}

// GradeReader serves read-only grade queries.
type GradeReader interface {
	ListAll(ctx context.Context) ([]model.GradeListRow, error)
	AuditTrail(ctx context.Context, classSN, stuSN int) ([]model.GradeAuditEntry, error)
}

// ReportReader serves transcript and section summary queries.
type ReportReader interface {
	TranscriptLines(ctx context.Context, stuSN int) ([]model.TranscriptLine, error)

	// SectionSummary aggregates grades of one section. passMark separates passed from failed.
	SectionSummary(ctx context.Context, classSN int, passMark float64) (*model.SectionSummary, error)
}

// UserStore persists operator accounts.
type UserStore interface {
	GetByID(ctx context.Context, sn int) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

// Cache is a byte-oriented key/value cache with counters.
type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// Incr increments a counter. A positive ttl is applied when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// EventPublisher broadcasts committed section changes.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.ClassEvent) error
}

// EventSubscriber streams a section's change events as JSON payloads.
type EventSubscriber interface {
	// Subscribe delivers events until ctx ends or stop is called.
	// The channel is closed once the subscription ends.
	Subscribe(ctx context.Context, classSN int) (events <-chan []byte, stop func(), err error)
}

// Authorizer decides whether an authenticated principal may perform an action.
type Authorizer interface {
	Can(principal *model.User, p model.Permission) bool
}
