package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/metrics"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

const maxRosterPageSize = 200

// RosterService keeps section rosters in sync with a caller-supplied target set.
type RosterService struct {
	tx      ports.Transactor
	roster  ports.RosterReader
	classes ports.ClassStore
	metrics *metrics.Metrics
	events  notifier
	log     zerolog.Logger
	now     func() time.Time
}

// NewRosterService creates a new RosterService. pub and m may be nil.
func NewRosterService(
	tx ports.Transactor,
	roster ports.RosterReader,
	classes ports.ClassStore,
	pub ports.EventPublisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *RosterService {
	l := log.With().Str("component", "roster_service").Logger()
	return &RosterService{
		tx:      tx,
		roster:  roster,
		classes: classes,
		metrics: m,
		events:  notifier{pub: pub, log: l},
		log:     l,
		now:     time.Now,
	}
}

// Reconcile makes the roster of classSN equal to targetSNs. Either every
// addition and removal is applied or none is. When a student to be added is
// already enrolled in another section of the same course, the call fails with a
// KindConflict *Error whose Data is the unchanged roster and the conflict list.
func (s *RosterService) Reconcile(ctx context.Context, classSN int, targetSNs []int) (*model.ReconcileResult, error) {
	start := time.Now()
	defer s.metrics.ObserveTx("reconcile", start)

	target := uniqueSorted(targetSNs)
	var (
		result  *model.ReconcileResult
		section *model.Class
		toAdd   []int
	)

	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx ports.SectionTx) error {
		cls, err := tx.LockSection(ctx, classSN)
		if err != nil {
			return storeErr("section", err)
		}
		section = cls

		current, err := tx.EnrolledStudentSNs(ctx, classSN)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}

		add, remove := setDiff(current, target)
		toAdd = add

		if len(add) == 0 && len(remove) == 0 {
			students, err := tx.RosterStudents(ctx, classSN)
			if err != nil {
				return fmt.Errorf("load roster students: %w", err)
			}
			result = s.result(students, nil, nil, nil)
			return nil
		}

		if len(add) > 0 {
			missing, err := tx.MissingStudentSNs(ctx, add)
			if err != nil {
				return fmt.Errorf("check students: %w", err)
			}
			if len(missing) > 0 {
				return invalid("unknown students in target roster", map[string]string{
					"student_sns": "unknown student ids: " + joinInts(missing),
				})
			}

			conflicts, err := tx.CrossSectionConflicts(ctx, classSN, cls.CouSN, add)
			if err != nil {
				return fmt.Errorf("check conflicts: %w", err)
			}
			if len(conflicts) > 0 {
				students, err := tx.RosterStudents(ctx, classSN)
				if err != nil {
					return fmt.Errorf("load roster students: %w", err)
				}
				return enrollmentConflict(s.result(students, nil, nil, conflicts), ports.ErrEnrollmentConflict)
			}
		}

		if len(remove) > 0 {
			if _, err := tx.DeleteGrades(ctx, classSN, remove); err != nil {
				return fmt.Errorf("delete grades: %w", err)
			}
			if _, err := tx.DeleteEnrollments(ctx, classSN, remove); err != nil {
				return fmt.Errorf("delete enrollments: %w", err)
			}
		}
		if len(add) > 0 {
			if _, err := tx.InsertEnrollments(ctx, classSN, cls.CouSN, add); err != nil {
				return fmt.Errorf("insert enrollments: %w", err)
			}
		}

		students, err := tx.RosterStudents(ctx, classSN)
		if err != nil {
			return fmt.Errorf("load roster students: %w", err)
		}
		result = s.result(students, add, remove, nil)
		return nil
	})

	var se *Error
	if !errors.As(err, &se) && errors.Is(err, ports.ErrEnrollmentConflict) {
		// A concurrent enrollment slipped past the conflict check; the unique
		// constraint caught it and the transaction rolled back. Report it the
		// same way from a fresh read.
		err = s.raceConflict(ctx, classSN, toAdd, err)
	}
	if err != nil {
		if KindOf(err) == KindConflict {
			s.metrics.ObserveReconcile(metrics.OutcomeConflict, 0, 0)
			s.log.Info().Int("class_sn", classSN).Msg("Roster reconcile refused: enrollment conflict")
		} else if KindOf(err) == KindInternal {
			s.metrics.ObserveReconcile(metrics.OutcomeError, 0, 0)
		}
		return nil, err
	}

	if len(result.Added) == 0 && len(result.Removed) == 0 {
		s.metrics.ObserveReconcile(metrics.OutcomeNoop, 0, 0)
		return result, nil
	}

	s.metrics.ObserveReconcile(metrics.OutcomeApplied, len(result.Added), len(result.Removed))
	s.log.Info().
		Int("class_sn", classSN).
		Ints("added", result.Added).
		Ints("removed", result.Removed).
		Msg("Roster reconciled")
	s.events.publish(ctx, model.ClassEvent{
		Type:    model.EventRosterChanged,
		ClassSN: classSN,
		Version: section.UpdatedAt,
		Added:   result.Added,
		Removed: result.Removed,
		At:      result.Timestamp,
	})
	return result, nil
}

func (s *RosterService) raceConflict(ctx context.Context, classSN int, toAdd []int, cause error) error {
	conflicts, err := s.roster.FindConflicts(ctx, classSN, toAdd)
	if err != nil {
		return fmt.Errorf("reload conflicts: %w", err)
	}
	entries, err := s.roster.ListWithGrades(ctx, classSN)
	if err != nil {
		return fmt.Errorf("reload roster: %w", err)
	}
	students := make([]model.Student, 0, len(entries))
	for _, e := range entries {
		students = append(students, e.Student)
	}
	return enrollmentConflict(s.result(students, nil, nil, conflicts), cause)
}

func (s *RosterService) result(students []model.Student, added, removed []int, conflicts []model.Conflict) *model.ReconcileResult {
	if students == nil {
		students = []model.Student{}
	}
	if added == nil {
		added = []int{}
	}
	if removed == nil {
		removed = []int{}
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	return &model.ReconcileResult{
		TotalCount: len(students),
		Added:      added,
		Removed:    removed,
		Conflicts:  conflicts,
		Students:   students,
		Timestamp:  s.now().UTC(),
	}
}

func enrollmentConflict(res *model.ReconcileResult, cause error) *Error {
	msg := "students already enrolled in another section of this course"
	if len(res.Conflicts) > 0 {
		names := make([]string, 0, len(res.Conflicts))
		for _, c := range res.Conflicts {
			names = append(names, fmt.Sprintf("%s (%s)", c.StuName, c.ClassNo))
		}
		msg += ": " + strings.Join(names, ", ")
	}
	return &Error{
		Kind:    KindConflict,
		Code:    response.ErrEnrollmentConflict,
		Message: msg,
		Data:    res,
		Err:     cause,
	}
}

// Unenroll removes one student from a section together with their grade.
func (s *RosterService) Unenroll(ctx context.Context, classSN, stuSN int) error {
	start := time.Now()
	defer s.metrics.ObserveTx("unenroll", start)

	var section *model.Class
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx ports.SectionTx) error {
		cls, err := tx.LockSection(ctx, classSN)
		if err != nil {
			return storeErr("section", err)
		}
		section = cls

		pair := []int{stuSN}
		if _, err := tx.DeleteGrades(ctx, classSN, pair); err != nil {
			return fmt.Errorf("delete grade: %w", err)
		}
		n, err := tx.DeleteEnrollments(ctx, classSN, pair)
		if err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
		if n == 0 {
			return notFound("enrollment", ports.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveUnenroll()
	s.log.Info().Int("class_sn", classSN).Int("stu_sn", stuSN).Msg("Student unenrolled")
	s.events.publish(ctx, model.ClassEvent{
		Type:    model.EventRosterChanged,
		ClassSN: classSN,
		Version: section.UpdatedAt,
		Removed: []int{stuSN},
		At:      s.now().UTC(),
	})
	return nil
}

// ListEnrolled returns one page of the roster ordered by student number.
func (s *RosterService) ListEnrolled(ctx context.Context, classSN, page, perPage int) ([]model.Student, *response.Pagination, error) {
	if err := s.ensureSection(ctx, classSN); err != nil {
		return nil, nil, err
	}

	pg, offset := response.NewPagination(page, perPage, maxRosterPageSize, 0)
	students, total, err := s.roster.ListEnrolled(ctx, classSN, pg.PerPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if students == nil {
		students = []model.Student{}
	}

	pg, _ = response.NewPagination(pg.Page, pg.PerPage, maxRosterPageSize, total)
	return students, pg, nil
}

// ListAvailable returns students that can still be added to the section.
// An empty scope means model.ScopeSection.
func (s *RosterService) ListAvailable(ctx context.Context, classSN int, scope model.AvailableScope) ([]model.Student, error) {
	switch scope {
	case "":
		scope = model.ScopeSection
	case model.ScopeSection, model.ScopeCourse:
	default:
		return nil, invalid("unknown scope", map[string]string{"scope": "must be section or course"})
	}
	if err := s.ensureSection(ctx, classSN); err != nil {
		return nil, err
	}

	students, err := s.roster.ListAvailable(ctx, classSN, scope)
	if err != nil {
		return nil, err
	}
	if students == nil {
		students = []model.Student{}
	}
	return students, nil
}

// CheckConflicts previews which candidates are already enrolled in another
// section of the same course. Nothing is written.
func (s *RosterService) CheckConflicts(ctx context.Context, classSN int, candidateSNs []int) ([]model.Conflict, error) {
	if err := s.ensureSection(ctx, classSN); err != nil {
		return nil, err
	}
	candidates := uniqueSorted(candidateSNs)
	if len(candidates) == 0 {
		return []model.Conflict{}, nil
	}

	conflicts, err := s.roster.FindConflicts(ctx, classSN, candidates)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	return conflicts, nil
}

func (s *RosterService) ensureSection(ctx context.Context, classSN int) error {
	_, err := s.classes.GetByID(ctx, classSN)
	return storeErr("section", err)
}

// setDiff returns target minus current and current minus target, both ascending.
func setDiff(current, target []int) (add, remove []int) {
	cur := make(map[int]struct{}, len(current))
	for _, sn := range current {
		cur[sn] = struct{}{}
	}
	tgt := make(map[int]struct{}, len(target))
	for _, sn := range target {
		tgt[sn] = struct{}{}
		if _, ok := cur[sn]; !ok {
			add = append(add, sn)
		}
	}
	for _, sn := range current {
		if _, ok := tgt[sn]; !ok {
			remove = append(remove, sn)
		}
	}
	sort.Ints(add)
	sort.Ints(remove)
	return add, remove
}

func uniqueSorted(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, v := range in {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
