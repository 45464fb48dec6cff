package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

const maxStudentPageSize = 100

// StudentService handles student business logic.
type StudentService struct {
	students ports.StudentStore
	policy   *policy.Policy
	log      zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(students ports.StudentStore, p *policy.Policy, log zerolog.Logger) *StudentService {
	return &StudentService{
		students: students,
		policy:   p,
		log:      log.With().Str("component", "student_service").Logger(),
	}
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, sn int) (*model.Student, error) {
	stu, err := s.students.GetByID(ctx, sn)
	if err != nil {
		return nil, storeErr("student", err)
	}
	return stu, nil
}

// GetByNo retrieves a student by student number.
func (s *StudentService) GetByNo(ctx context.Context, no string) (*model.Student, error) {
	stu, err := s.students.GetByNo(ctx, strings.TrimSpace(no))
	if err != nil {
		return nil, storeErr("student", err)
	}
	return stu, nil
}

// List retrieves students with pagination. search matches number or name.
func (s *StudentService) List(ctx context.Context, search string, page, perPage int) ([]model.Student, *response.Pagination, error) {
	pg, offset := response.NewPagination(page, perPage, maxStudentPageSize, 0)
	students, total, err := s.students.ListPaginated(ctx, strings.TrimSpace(search), pg.PerPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if students == nil {
		students = []model.Student{}
	}
	pg, _ = response.NewPagination(pg.Page, pg.PerPage, maxStudentPageSize, total)
	return students, pg, nil
}

// Create inserts a new student.
func (s *StudentService) Create(ctx context.Context, req model.StudentRequest) (*model.Student, error) {
	stu, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.students.Create(ctx, stu); err != nil {
		return nil, s.writeErr(ctx, stu.No, err)
	}
	s.log.Info().Int("stu_sn", stu.SN).Str("stu_no", stu.No).Msg("Student created")
	return stu, nil
}

// Update replaces a student's details.
func (s *StudentService) Update(ctx context.Context, sn int, req model.StudentRequest) (*model.Student, error) {
	stu, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	stu.SN = sn
	if err := s.students.Update(ctx, stu); err != nil {
		return nil, s.writeErr(ctx, stu.No, err)
	}
	return stu, nil
}

// Delete removes a student. Their enrollments and grades go with them.
func (s *StudentService) Delete(ctx context.Context, sn int) error {
	if err := s.students.Delete(ctx, sn); err != nil {
		return storeErr("student", err)
	}
	s.log.Info().Int("stu_sn", sn).Msg("Student deleted")
	return nil
}

func (s *StudentService) fromRequest(req model.StudentRequest) (*model.Student, error) {
	no := strings.TrimSpace(req.No)
	if !s.policy.ValidStudentNo(no) {
		return nil, invalid("invalid student number", map[string]string{
			"stu_no": fmt.Sprintf("must be %d digits", s.policy.StudentNoLength),
		})
	}
	stu := &model.Student{No: no, Name: strings.TrimSpace(req.Name), Gender: req.Gender}
	if req.Enrolled != "" {
		t, err := time.Parse(time.DateOnly, req.Enrolled)
		if err != nil {
			return nil, invalid("invalid enrollment date", map[string]string{"enrolled": "must be YYYY-MM-DD"})
		}
		if !s.policy.ValidEnrolled(t) {
			return nil, invalid("invalid enrollment date", map[string]string{
				"enrolled": "must not be before " + s.policy.EnrollmentEpoch.Format(time.DateOnly),
			})
		}
		stu.Enrolled = &t
	}
	return stu, nil
}

// writeErr names the current owner of a taken student number.
func (s *StudentService) writeErr(ctx context.Context, no string, err error) error {
	if !errors.Is(err, ports.ErrDuplicate) {
		return storeErr("student", err)
	}
	msg := fmt.Sprintf("student number %s is already taken", no)
	if owner, lookupErr := s.students.GetByNo(ctx, no); lookupErr == nil {
		msg = fmt.Sprintf("student number %s already belongs to %s", no, owner.Name)
	}
	return conflict(response.ErrDuplicate, msg, err)
}
