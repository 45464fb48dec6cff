// Package memory is an in-process implementation of the store ports. It keeps
// the same constraints as the PostgreSQL schema so services can be exercised
// without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

type pair struct {
	classSN int
	stuSN   int
}

type enrollment struct {
	couSN     int
	createdAt time.Time
}

type state struct {
	students    map[int]model.Student
	courses     map[int]model.Course
	classes     map[int]model.Class
	enrollments map[pair]enrollment
	grades      map[pair]model.Grade
	audit       []model.GradeAuditEntry
	users       map[int]model.User

	nextStudent, nextCourse, nextClass, nextUser int
	nextGrade, nextAudit                         int64
}

func newState() *state {
	return &state{
		students:    make(map[int]model.Student),
		courses:     make(map[int]model.Course),
		classes:     make(map[int]model.Class),
		enrollments: make(map[pair]enrollment),
		grades:      make(map[pair]model.Grade),
		users:       make(map[int]model.User),
	}
}

func (s *state) clone() *state {
	c := &state{
		students:    make(map[int]model.Student, len(s.students)),
		courses:     make(map[int]model.Course, len(s.courses)),
		classes:     make(map[int]model.Class, len(s.classes)),
		enrollments: make(map[pair]enrollment, len(s.enrollments)),
		grades:      make(map[pair]model.Grade, len(s.grades)),
		audit:       append([]model.GradeAuditEntry(nil), s.audit...),
		users:       make(map[int]model.User, len(s.users)),
		nextStudent: s.nextStudent,
		nextCourse:  s.nextCourse,
		nextClass:   s.nextClass,
		nextUser:    s.nextUser,
		nextGrade:   s.nextGrade,
		nextAudit:   s.nextAudit,
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.classes {
		c.classes[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.grades {
		c.grades[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Store implements every store port in memory. A single mutex serialises
// transactions, which is at least as strict as the section row lock.
type Store struct {
	mu    sync.Mutex
	data  *state
	now   func() time.Time
	fails map[string]error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data:  newState(),
		now:   time.Now,
		fails: make(map[string]error),
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named transaction method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) injected(method string) error {
	if err, ok := s.fails[method]; ok {
		delete(s.fails, method)
		return err
	}
	return nil
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ─── Students ──────────────────────────────────────────────────────────

// Students exposes the student port.
func (s *Store) Students() ports.StudentStore { return studentStore{s} }

type studentStore struct{ s *Store }

func (st studentStore) GetByID(_ context.Context, sn int) (*model.Student, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	stu, ok := st.s.data.students[sn]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &stu, nil
}

func (st studentStore) GetByNo(_ context.Context, no string) (*model.Student, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, stu := range st.s.data.students {
		if stu.No == no {
			out := stu
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (st studentStore) ListPaginated(_ context.Context, search string, limit, offset int) ([]model.Student, int, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var all []model.Student
	for _, stu := range st.s.data.students {
		if search == "" || strings.Contains(stu.No, search) ||
			strings.Contains(strings.ToLower(stu.Name), strings.ToLower(search)) {
			all = append(all, stu)
		}
	}
	sortStudents(all)
	return page(all, limit, offset), len(all), nil
}

func (st studentStore) Create(_ context.Context, stu *model.Student) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, other := range st.s.data.students {
		if other.No == stu.No {
			return ports.ErrDuplicate
		}
	}
	st.s.data.nextStudent++
	stu.SN = st.s.data.nextStudent
	stu.CreatedAt = st.s.stamp()
	stu.UpdatedAt = stu.CreatedAt
	st.s.data.students[stu.SN] = *stu
	return nil
}

func (st studentStore) Update(_ context.Context, stu *model.Student) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	cur, ok := st.s.data.students[stu.SN]
	if !ok {
		return ports.ErrNotFound
	}
	for _, other := range st.s.data.students {
		if other.No == stu.No && other.SN != stu.SN {
			return ports.ErrDuplicate
		}
	}
	stu.CreatedAt = cur.CreatedAt
	stu.UpdatedAt = st.s.stamp()
	st.s.data.students[stu.SN] = *stu
	return nil
}

func (st studentStore) Delete(_ context.Context, sn int) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.data.students[sn]; !ok {
		return ports.ErrNotFound
	}
	delete(st.s.data.students, sn)
	for p := range st.s.data.enrollments {
		if p.stuSN == sn {
			delete(st.s.data.enrollments, p)
			delete(st.s.data.grades, p)
		}
	}
	return nil
}

// ─── Courses ───────────────────────────────────────────────────────────

// Courses exposes the course port.
func (s *Store) Courses() ports.CourseStore { return courseStore{s} }

type courseStore struct{ s *Store }

func (cs courseStore) GetByID(_ context.Context, sn int) (*model.Course, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	c, ok := cs.s.data.courses[sn]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &c, nil
}

func (cs courseStore) ListPaginated(_ context.Context, limit, offset int) ([]model.Course, int, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	all := make([]model.Course, 0, len(cs.s.data.courses))
	for _, c := range cs.s.data.courses {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].No < all[j].No })
	return page(all, limit, offset), len(all), nil
}

func (cs courseStore) Create(_ context.Context, c *model.Course) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	for _, other := range cs.s.data.courses {
		if other.No == c.No {
			return ports.ErrDuplicate
		}
	}
	cs.s.data.nextCourse++
	c.SN = cs.s.data.nextCourse
	cs.s.data.courses[c.SN] = *c
	return nil
}

func (cs courseStore) Update(_ context.Context, c *model.Course) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.data.courses[c.SN]; !ok {
		return ports.ErrNotFound
	}
	for _, other := range cs.s.data.courses {
		if other.No == c.No && other.SN != c.SN {
			return ports.ErrDuplicate
		}
	}
	cs.s.data.courses[c.SN] = *c
	return nil
}

func (cs courseStore) Delete(_ context.Context, sn int) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.data.courses[sn]; !ok {
		return ports.ErrNotFound
	}
	for _, cls := range cs.s.data.classes {
		if cls.CouSN == sn {
			return ports.ErrInUse
		}
	}
	delete(cs.s.data.courses, sn)
	return nil
}

// ─── Sections ──────────────────────────────────────────────────────────

// Classes exposes the section port.
func (s *Store) Classes() ports.ClassStore { return classStore{s} }

type classStore struct{ s *Store }

func (s *Store) withCourse(c model.Class) model.Class {
	if co, ok := s.data.courses[c.CouSN]; ok {
		c.CourseNo = co.No
		c.CourseName = co.Name
	}
	return c
}

func (cs classStore) GetByID(_ context.Context, sn int) (*model.Class, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	c, ok := cs.s.data.classes[sn]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := cs.s.withCourse(c)
	return &out, nil
}

func (cs classStore) List(_ context.Context, couSN *int) ([]model.Class, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	out := []model.Class{}
	for _, c := range cs.s.data.classes {
		if couSN == nil || c.CouSN == *couSN {
			out = append(out, cs.s.withCourse(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out, nil
}

func (cs classStore) Create(_ context.Context, c *model.Class) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.data.courses[c.CouSN]; !ok {
		return ports.ErrInUse
	}
	for _, other := range cs.s.data.classes {
		if other.No == c.No {
			return ports.ErrDuplicate
		}
	}
	cs.s.data.nextClass++
	c.SN = cs.s.data.nextClass
	c.UpdatedAt = cs.s.stamp()
	cs.s.data.classes[c.SN] = model.Class{
		SN: c.SN, No: c.No, Name: c.Name, Semester: c.Semester,
		Location: c.Location, CouSN: c.CouSN, UpdatedAt: c.UpdatedAt,
	}
	return nil
}

func (cs classStore) Update(_ context.Context, c *model.Class) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cur, ok := cs.s.data.classes[c.SN]
	if !ok {
		return ports.ErrNotFound
	}
	for _, other := range cs.s.data.classes {
		if other.No == c.No && other.SN != c.SN {
			return ports.ErrDuplicate
		}
	}
	if cur.CouSN != c.CouSN {
		for p := range cs.s.data.enrollments {
			if p.classSN == c.SN {
				return ports.ErrInUse
			}
		}
	}
	cur.No, cur.Name, cur.Semester, cur.Location, cur.CouSN = c.No, c.Name, c.Semester, c.Location, c.CouSN
	cs.s.data.classes[c.SN] = cur
	return nil
}

func (cs classStore) Delete(_ context.Context, sn int) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.data.classes[sn]; !ok {
		return ports.ErrNotFound
	}
	delete(cs.s.data.classes, sn)
	for p := range cs.s.data.enrollments {
		if p.classSN == sn {
			delete(cs.s.data.enrollments, p)
			delete(cs.s.data.grades, p)
		}
	}
	return nil
}

// ─── Users ─────────────────────────────────────────────────────────────

// Users exposes the user port.
func (s *Store) Users() ports.UserStore { return userStore{s} }

type userStore struct{ s *Store }

func (us userStore) GetByID(_ context.Context, sn int) (*model.User, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	u, ok := us.s.data.users[sn]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &u, nil
}

func (us userStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	for _, u := range us.s.data.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (us userStore) Create(_ context.Context, u *model.User) error {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	for _, other := range us.s.data.users {
		if other.Username == u.Username {
			return ports.ErrDuplicate
		}
	}
	us.s.data.nextUser++
	u.SN = us.s.data.nextUser
	u.CreatedAt = us.s.stamp()
	us.s.data.users[u.SN] = *u
	return nil
}

// ─── Helpers ───────────────────────────────────────────────────────────

func sortStudents(s []model.Student) {
	sort.Slice(s, func(i, j int) bool { return s[i].No < s[j].No })
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]T{}, all[offset:end]...)
}
