package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// ClassService handles section business logic.
type ClassService struct {
	classes ports.ClassStore
	courses ports.CourseStore
	policy  *policy.Policy
	log     zerolog.Logger
}

// NewClassService creates a new ClassService.
func NewClassService(classes ports.ClassStore, courses ports.CourseStore, p *policy.Policy, log zerolog.Logger) *ClassService {
	return &ClassService{
		classes: classes,
		courses: courses,
		policy:  p,
		log:     log.With().Str("component", "class_service").Logger(),
	}
}

// GetByID retrieves a section by ID.
func (s *ClassService) GetByID(ctx context.Context, sn int) (*model.Class, error) {
	c, err := s.classes.GetByID(ctx, sn)
	if err != nil {
		return nil, storeErr("section", err)
	}
	return c, nil
}

// List retrieves all sections, optionally only those of one course.
func (s *ClassService) List(ctx context.Context, couSN *int) ([]model.Class, error) {
	classes, err := s.classes.List(ctx, couSN)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes = []model.Class{}
	}
	return classes, nil
}

// Create inserts a new section.
func (s *ClassService) Create(ctx context.Context, req model.ClassRequest) (*model.Class, error) {
	c, err := s.fromRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.classes.Create(ctx, c); err != nil {
		return nil, storeErr("section", err)
	}
	s.log.Info().Int("class_sn", c.SN).Str("class_no", c.No).Msg("Section created")
	return s.GetByID(ctx, c.SN)
}

// Update replaces a section's details. The course cannot change while the
// section has enrolled students.
func (s *ClassService) Update(ctx context.Context, sn int, req model.ClassRequest) (*model.Class, error) {
	c, err := s.fromRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.SN = sn
	if err := s.classes.Update(ctx, c); err != nil {
		if errors.Is(err, ports.ErrInUse) {
			return nil, conflict(response.ErrRosterNotEmpty, "section course cannot change while students are enrolled", err)
		}
		return nil, storeErr("section", err)
	}
	return s.GetByID(ctx, sn)
}

// Delete removes a section with its roster and grades.
func (s *ClassService) Delete(ctx context.Context, sn int) error {
	if err := s.classes.Delete(ctx, sn); err != nil {
		return storeErr("section", err)
	}
	s.log.Info().Int("class_sn", sn).Msg("Section deleted")
	return nil
}

// fromRequest checks the section number format and that its course
// component names the referenced course.
func (s *ClassService) fromRequest(ctx context.Context, req model.ClassRequest) (*model.Class, error) {
	no := strings.TrimSpace(req.No)
	courseNo, ok := s.policy.CourseNoOf(no)
	if !ok {
		return nil, invalid("invalid section number", map[string]string{
			"class_no": "must match " + s.policy.ClassNo.String(),
		})
	}

	course, err := s.courses.GetByID(ctx, req.CouSN)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, invalid("unknown course", map[string]string{"cou_sn": "course does not exist"})
		}
		return nil, err
	}
	if course.No != courseNo {
		return nil, &Error{
			Kind:    KindInvalid,
			Code:    response.ErrCourseMismatch,
			Message: fmt.Sprintf("section number %s does not belong to course %s", no, course.No),
			Fields:  map[string]string{"class_no": "course component must be " + course.No},
		}
	}

	return &model.Class{
		No:       no,
		Name:     strings.TrimSpace(req.Name),
		Semester: strings.TrimSpace(req.Semester),
		Location: strings.TrimSpace(req.Location),
		CouSN:    course.SN,
	}, nil
}
