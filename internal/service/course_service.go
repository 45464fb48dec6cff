package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

const maxCoursePageSize = 100

// CoursePage is one cached page of the course list.
type CoursePage struct {
	Courses    []model.Course       `json:"courses"`
	Pagination *response.Pagination `json:"pagination"`
}

// CourseService handles course business logic. List pages are cached and
// invalidated by bumping a generation counter on every write.
type CourseService struct {
	courses ports.CourseStore
	cache   ports.Cache
	policy  *policy.Policy
	ttl     time.Duration
	log     zerolog.Logger
}

// NewCourseService creates a new CourseService. cache may be nil.
func NewCourseService(courses ports.CourseStore, cache ports.Cache, p *policy.Policy, ttl time.Duration, log zerolog.Logger) *CourseService {
	return &CourseService{
		courses: courses,
		cache:   cache,
		policy:  p,
		ttl:     ttl,
		log:     log.With().Str("component", "course_service").Logger(),
	}
}

// GetByID retrieves a course by ID.
func (s *CourseService) GetByID(ctx context.Context, sn int) (*model.Course, error) {
	c, err := s.courses.GetByID(ctx, sn)
	if err != nil {
		return nil, storeErr("course", err)
	}
	return c, nil
}

// List returns one page of courses ordered by course number.
func (s *CourseService) List(ctx context.Context, page, perPage int) (*CoursePage, error) {
	pg, offset := response.NewPagination(page, perPage, maxCoursePageSize, 0)

	key := ""
	if s.cache != nil {
		gen, err := s.generation(ctx)
		if err == nil {
			key = config.CacheKey.CourseListKey(gen, pg.Page, pg.PerPage)
			if cached, ok := s.cached(ctx, key); ok {
				return cached, nil
			}
		} else {
			s.log.Warn().Err(err).Msg("Course cache unavailable")
		}
	}

	courses, total, err := s.courses.ListPaginated(ctx, pg.PerPage, offset)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	pg, _ = response.NewPagination(pg.Page, pg.PerPage, maxCoursePageSize, total)
	out := &CoursePage{Courses: courses, Pagination: pg}

	if key != "" {
		if payload, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache course page")
			}
		}
	}
	return out, nil
}

func (s *CourseService) generation(ctx context.Context) (int64, error) {
	raw, ok, err := s.cache.Get(ctx, config.CacheKey.CourseListGenerationKey())
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func (s *CourseService) cached(ctx context.Context, key string) (*CoursePage, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var page CoursePage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (s *CourseService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, config.CacheKey.CourseListGenerationKey(), 0); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate course cache")
	}
}

// Create inserts a new course.
func (s *CourseService) Create(ctx context.Context, req model.CourseRequest) (*model.Course, error) {
	c, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.courses.Create(ctx, c); err != nil {
		return nil, storeErr("course", err)
	}
	s.invalidate(ctx)
	s.log.Info().Int("cou_sn", c.SN).Str("cou_no", c.No).Msg("Course created")
	return c, nil
}

// Update replaces a course's details.
func (s *CourseService) Update(ctx context.Context, sn int, req model.CourseRequest) (*model.Course, error) {
	c, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	c.SN = sn
	if err := s.courses.Update(ctx, c); err != nil {
		return nil, storeErr("course", err)
	}
	s.invalidate(ctx)
	return c, nil
}

// Delete removes a course. Courses with sections cannot be deleted.
func (s *CourseService) Delete(ctx context.Context, sn int) error {
	if err := s.courses.Delete(ctx, sn); err != nil {
		return storeErr("course", err)
	}
	s.invalidate(ctx)
	s.log.Info().Int("cou_sn", sn).Msg("Course deleted")
	return nil
}

func (s *CourseService) fromRequest(req model.CourseRequest) (*model.Course, error) {
	no := strings.TrimSpace(req.No)
	if !s.policy.ValidCourseNo(no) {
		return nil, invalid("invalid course number", map[string]string{
			"cou_no": fmt.Sprintf("must be %d digits", s.policy.CourseNoLength),
		})
	}
	fields := map[string]string{}
	if req.Credit != nil && *req.Credit <= 0 {
		fields["credit"] = "must be greater than 0"
	}
	if req.Hours != nil && *req.Hours <= 0 {
		fields["hours"] = "must be greater than 0"
	}
	if len(fields) > 0 {
		return nil, invalid("invalid course", fields)
	}
	return &model.Course{No: no, Name: strings.TrimSpace(req.Name), Credit: req.Credit, Hours: req.Hours}, nil
}
