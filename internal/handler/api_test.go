package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/handler"
	"github.com/VasantLong/cgms2025/internal/metrics"
	"github.com/VasantLong/cgms2025/internal/middleware"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/repository/memory"
	"github.com/VasantLong/cgms2025/internal/router"
	"github.com/VasantLong/cgms2025/internal/service"
	"github.com/VasantLong/cgms2025/internal/validator"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Pagination *struct {
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

// APISuite drives the full route tree over the in-memory store.
type APISuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	pub     *memory.Publisher
	auth    *service.AuthService
	roster  *service.RosterService
	engine  *gin.Engine
	admin   string
	teacher string
	viewer  string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.Require().NoError(validator.Setup(policy.Default()))
}

func (s *APISuite) SetupTest() {
	s.ctx = context.Background()
	log := zerolog.Nop()
	cfg := &config.Config{
		GinMode:        gin.TestMode,
		JWTSecret:      "api-test-secret",
		JWTExpiry:      time.Hour,
		BcryptCost:     4,
		UserCacheTTL:   time.Minute,
		CourseCacheTTL: time.Minute,
		MaxImportBytes: 1 << 20,
	}
	p := policy.Default()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s.store = memory.New()
	s.pub = &memory.Publisher{}
	cache := memory.NewCache()

	s.auth = service.NewAuthService(cfg, s.store.Users(), cache, log)
	s.roster = service.NewRosterService(s.store, s.store, s.store.Classes(), s.pub, m, log)
	grades := service.NewGradeService(s.store, s.store, s.store, s.store.Classes(), p, s.pub, m, log)
	classes := service.NewClassService(s.store.Classes(), s.store.Courses(), p, log)

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(s.auth, log),
		Student: handler.NewStudentHandler(service.NewStudentService(s.store.Students(), p, log), log),
		Course:  handler.NewCourseHandler(service.NewCourseService(s.store.Courses(), cache, p, cfg.CourseCacheTTL, log), log),
		Class:   handler.NewClassHandler(classes, log),
		Roster:  handler.NewRosterHandler(s.roster, log),
		Grade:   handler.NewGradeHandler(grades, cfg.MaxImportBytes, log),
		Report:  handler.NewReportHandler(service.NewReportService(s.store, s.store, s.store.Students(), s.store.Classes(), log), log),
		Event:   handler.NewEventHandler(s.pub, classes, log),
	}
	s.engine = router.SetupRouter(router.Deps{
		Config:       cfg,
		AuthService:  s.auth,
		Authorizer:   service.RoleAuthorizer{},
		LoginLimiter: middleware.NewRateLimiter(cache, 5, time.Minute, log),
		Gatherer:     reg,
		Log:          log,
	}, handlers)

	s.admin = s.tokenFor("admin", model.RoleAdmin)
	s.teacher = s.tokenFor("teacher", model.RoleTeacher)
	s.viewer = s.tokenFor("viewer", model.RoleViewer)
}

func (s *APISuite) tokenFor(username string, role model.Role) string {
	u, err := s.auth.CreateUser(s.ctx, username, username+"-password", role)
	s.Require().NoError(err)
	token, _, err := s.auth.GenerateToken(u)
	s.Require().NoError(err)
	return token
}

func (s *APISuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *APISuite) decode(w *httptest.ResponseRecorder, data any) envelope {
	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		s.Require().NoError(json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *APISuite) seedSection(courseNo string, seq int) *model.Class {
	c := &model.Course{No: courseNo, Name: "Course " + courseNo}
	if err := s.store.Courses().Create(s.ctx, c); err != nil {
		list, _, lerr := s.store.Courses().ListPaginated(s.ctx, 100, 0)
		s.Require().NoError(lerr)
		for i := range list {
			if list[i].No == courseNo {
				c = &list[i]
			}
		}
	}
	cls := &model.Class{No: fmt.Sprintf("%s-2025S1-%02d", courseNo, seq), Name: "Section", CouSN: c.SN}
	s.Require().NoError(s.store.Classes().Create(s.ctx, cls))
	return cls
}

func (s *APISuite) seedStudents(n int) {
	for i := 1; i <= n; i++ {
		stu := &model.Student{No: fmt.Sprintf("%04d", i), Name: fmt.Sprintf("Student %d", i)}
		s.Require().NoError(s.store.Students().Create(s.ctx, stu))
	}
}

// ─── Auth ──────────────────────────────────────────────────────────────

func (s *APISuite) TestLoginAndMe() {
	w := s.do(http.MethodPost, "/api/token", "", gin.H{"username": "teacher", "password": "teacher-password"})
	s.Equal(http.StatusOK, w.Code)
	var login model.LoginResponse
	s.decode(w, &login)
	s.Equal("bearer", login.TokenType)

	w = s.do(http.MethodGet, "/api/users/me", login.AccessToken, nil)
	s.Equal(http.StatusOK, w.Code)
	var me struct {
		User        model.User         `json:"user"`
		Permissions []model.Permission `json:"permissions"`
	}
	env := s.decode(w, &me)
	s.Equal("teacher", me.User.Username)
	s.Contains(me.Permissions, model.PermissionGradesWrite)
	s.NotEmpty(env.Metadata.RequestID)
}

func (s *APISuite) TestLoginRejectsWrongPassword() {
	w := s.do(http.MethodPost, "/api/token", "", gin.H{"username": "teacher", "password": "nope"})

	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("INVALID_CREDENTIALS", s.decode(w, nil).Error.Code)
}

func (s *APISuite) TestLoginIsRateLimited() {
	var last int
	for i := 0; i < 6; i++ {
		last = s.do(http.MethodPost, "/api/token", "", gin.H{"username": "x", "password": "y"}).Code
	}
	s.Equal(http.StatusTooManyRequests, last)
}

func (s *APISuite) TestUnauthenticatedAndForbidden() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/student/list", "", nil).Code)

	w := s.do(http.MethodPost, "/api/student", s.viewer, gin.H{"stu_no": "0001", "stu_name": "A"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/api/class/1/students", s.teacher, gin.H{"student_sns": []int{}})
	s.Equal(http.StatusForbidden, w.Code, "teachers grade but do not manage rosters")
}

// ─── Catalog ───────────────────────────────────────────────────────────

func (s *APISuite) TestCatalogCRUD() {
	w := s.do(http.MethodPost, "/api/course", s.admin, gin.H{"cou_no": "10001", "cou_name": "Calculus", "credit": 3})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var course struct {
		Course model.Course `json:"course"`
	}
	s.decode(w, &course)

	w = s.do(http.MethodPost, "/api/class", s.admin, gin.H{"class_no": "10001-2025S1-01", "name": "Morning", "cou_sn": course.Course.SN})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/class", s.admin, gin.H{"class_no": "10002-2025S1-01", "name": "Wrong", "cou_sn": course.Course.SN})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("COURSE_MISMATCH", s.decode(w, nil).Error.Code)

	w = s.do(http.MethodPost, "/api/student", s.admin, gin.H{"stu_no": "0042", "stu_name": "Li Wei"})
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/student", s.admin, gin.H{"stu_no": "0042", "stu_name": "Other"})
	s.Equal(http.StatusConflict, w.Code)
	env := s.decode(w, nil)
	s.Equal("DUPLICATE", env.Error.Code)
	s.Contains(env.Error.Message, "Li Wei")

	w = s.do(http.MethodGet, "/api/student/list?page=1&page_size=10", s.viewer, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(1, s.decode(w, nil).Pagination.TotalItems)

	w = s.do(http.MethodGet, "/api/course/list", s.viewer, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/course/"+fmt.Sprint(course.Course.SN), s.admin, nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("DEPENDENCY_EXISTS", s.decode(w, nil).Error.Code)
}

func (s *APISuite) TestValidationIs422WithFields() {
	w := s.do(http.MethodPost, "/api/student", s.admin, gin.H{"stu_no": "12", "stu_name": "A"})

	s.Equal(http.StatusUnprocessableEntity, w.Code)
	env := s.decode(w, nil)
	s.Equal("VALIDATION_ERROR", env.Error.Code)
	s.Contains(env.Error.Fields, "stu_no")
}

func (s *APISuite) TestMalformedPathID() {
	w := s.do(http.MethodGet, "/api/class/abc/students", s.admin, nil)

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("INVALID_ID", s.decode(w, nil).Error.Code)
}

// ─── Rosters ───────────────────────────────────────────────────────────

func (s *APISuite) TestReconcileConflictIs409WithReport() {
	a := s.seedSection("10001", 1)
	b := s.seedSection("10001", 2)
	s.seedStudents(3)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/class/%d/students", a.SN), s.admin, gin.H{"student_sns": []int{1, 2}})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var res model.ReconcileResult
	s.decode(w, &res)
	s.Equal(2, res.TotalCount)
	s.Equal([]int{1, 2}, res.Added)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/class/%d/students", b.SN), s.admin, gin.H{"student_sns": []int{2, 3}})
	s.Equal(http.StatusConflict, w.Code)
	var refused model.ReconcileResult
	env := s.decode(w, &refused)
	s.Equal("ENROLLMENT_CONFLICT", env.Error.Code)
	s.Require().Len(refused.Conflicts, 1)
	s.Equal(2, refused.Conflicts[0].StuSN)
	s.Equal(a.No, refused.Conflicts[0].ClassNo)
	s.Equal(0, refused.TotalCount)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/class/%d/students/conflicts?student_sns=2,3", b.SN), s.viewer, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"has_conflicts":true`)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/class/%d/students/available?scope=course", b.SN), s.viewer, nil)
	var avail struct {
		Students []model.Student `json:"students"`
	}
	s.decode(w, &avail)
	s.Require().Len(avail.Students, 1)
	s.Equal("0003", avail.Students[0].No)
}

func (s *APISuite) TestCatalogDeleteReturnsNoContent() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(1)

	for _, path := range []string{
		"/api/student/1",
		fmt.Sprintf("/api/class/%d", sec.SN),
		fmt.Sprintf("/api/course/%d", sec.CouSN),
	} {
		w := s.do(http.MethodDelete, path, s.admin, nil)
		s.Equal(http.StatusNoContent, w.Code, path)
		s.Zero(w.Body.Len(), path)
	}

	w := s.do(http.MethodDelete, "/api/student/1", s.admin, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestUnenroll() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(2)
	_, err := s.roster.Reconcile(s.ctx, sec.SN, []int{1, 2})
	s.Require().NoError(err)

	w := s.do(http.MethodDelete, fmt.Sprintf("/api/class/%d/students/1", sec.SN), s.admin, nil)
	s.Equal(http.StatusNoContent, w.Code)
	s.Zero(w.Body.Len())

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/class/%d/students/1", sec.SN), s.admin, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/class/%d/students", sec.SN), s.viewer, nil)
	s.Equal(1, s.decode(w, nil).Pagination.TotalItems)
}

// ─── Grades ────────────────────────────────────────────────────────────

func (s *APISuite) TestGradeBatchAndVersion() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(3)
	_, err := s.roster.Reconcile(s.ctx, sec.SN, []int{1, 2})
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/api/grade/batch", s.teacher, gin.H{
		"class_sn": sec.SN,
		"grades": []gin.H{
			{"stu_sn": 1, "grade": 88.25},
			{"stu_sn": 2, "grade": 101},
			{"stu_sn": 3, "grade": 70},
		},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var res model.BatchResult
	s.decode(w, &res)
	s.Equal(1, res.UpdatedCount)
	s.ElementsMatch([]model.GradeSkip{
		{StuSN: 2, Reason: model.SkipOutOfRange},
		{StuSN: 3, Reason: model.SkipNotEnrolled},
	}, res.Skipped)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/grade/check-conflict/%d", sec.SN), s.viewer, nil)
	var ver struct {
		Version time.Time `json:"version"`
	}
	s.decode(w, &ver)
	s.True(ver.Version.Equal(res.Version))

	w = s.do(http.MethodPost, "/api/grade/batch", s.teacher, gin.H{
		"class_sn":         sec.SN,
		"grades":           []gin.H{{"stu_sn": 1, "grade": 90}},
		"expected_version": "2001-01-01T00:00:00Z",
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("VERSION_MISMATCH", s.decode(w, nil).Error.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/grade/audit/%d/1", sec.SN), s.viewer, nil)
	var audit struct {
		Audit []model.GradeAuditEntry `json:"audit"`
	}
	s.decode(w, &audit)
	s.Require().Len(audit.Audit, 1)
	s.Equal("teacher", audit.Audit[0].OperatorName)
	s.InDelta(88.3, *audit.Audit[0].NewGrade, 1e-9)
}

func (s *APISuite) TestGradeImportJSON() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(2)
	_, err := s.roster.Reconcile(s.ctx, sec.SN, []int{1})
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/api/grade/import", s.teacher, gin.H{
		"class_sn": sec.SN,
		"rows": []gin.H{
			{"stu_no": "0001", "name": "Student 1", "grade": 75},
			{"stu_no": "0002", "grade": "60"},
			{"stu_no": "0001x", "grade": 1},
		},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var res model.ImportResult
	s.decode(w, &res)
	s.Equal(1, res.Success)
	s.Equal(1, res.Failed)
	s.Equal(1, res.Invalid)
}

func (s *APISuite) TestGradeImportCSV() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(2)
	_, err := s.roster.Reconcile(s.ctx, sec.SN, []int{1, 2})
	s.Require().NoError(err)

	sheet := "\xef\xbb\xbfStu_No,Name,Grade,Remark\n0001,Student 1,91,retake\n0002,Student 2,abc,\n0003,Nobody,50,\n"
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	s.Require().NoError(mw.WriteField("class_sn", fmt.Sprint(sec.SN)))
	part, err := mw.CreateFormFile("file", "grades.csv")
	s.Require().NoError(err)
	_, _ = part.Write([]byte(sheet))
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/grade/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.teacher)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var res model.ImportResult
	s.decode(w, &res)
	s.Equal(1, res.Success)
	s.Equal(1, res.Invalid)
	s.Equal(1, res.Failed)
	s.Equal(3, res.Logs[2].Row)
}

func (s *APISuite) TestGradeImportRejectsNonCSV() {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	s.Require().NoError(mw.WriteField("class_sn", "1"))
	part, err := mw.CreateFormFile("file", "grades.xlsx")
	s.Require().NoError(err)
	_, _ = part.Write([]byte("PK\x03\x04"))
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/grade/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.teacher)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("UNSUPPORTED_FILE_TYPE", s.decode(w, nil).Error.Code)
}

// ─── Reports ───────────────────────────────────────────────────────────

func (s *APISuite) TestReports() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(2)
	_, err := s.roster.Reconcile(s.ctx, sec.SN, []int{1, 2})
	s.Require().NoError(err)
	w := s.do(http.MethodPost, "/api/grade/batch", s.teacher, gin.H{"class_sn": sec.SN, "grades": []gin.H{{"stu_sn": 1, "grade": 80}}})
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/report/class/%d/grades.csv", sec.SN), s.viewer, nil)
	s.Equal(http.StatusOK, w.Code)
	s.True(strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	s.Contains(w.Header().Get("Content-Disposition"), sec.No)
	s.Equal("no-store, private", w.Header().Get("Cache-Control"))
	s.Equal("stu_no,stu_name,grade\n0001,Student 1,80.0\n0002,Student 2,\n", w.Body.String())

	w = s.do(http.MethodGet, fmt.Sprintf("/api/report/class/%d/summary", sec.SN), s.viewer, nil)
	var sum model.SectionSummary
	s.decode(w, &sum)
	s.Equal(2, sum.Enrolled)
	s.Equal(1, sum.Graded)

	w = s.do(http.MethodGet, "/api/student/1/report", s.viewer, nil)
	var tr model.Transcript
	s.decode(w, &tr)
	s.Require().Len(tr.Grades, 1)
	s.Equal(1, tr.Stats.Passed)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "cgms_roster_reconcile_total")
}

// ─── Events ────────────────────────────────────────────────────────────

func (s *APISuite) TestEventStreamDeliversRosterChange() {
	sec := s.seedSection("10001", 1)
	s.seedStudents(1)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/class/%d/events?token=%s", srv.URL, sec.SN, s.viewer), nil)
	s.Require().NoError(err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	s.Require().Eventually(func() bool { return s.pub.Subscribers(sec.SN) == 1 }, 2*time.Second, 10*time.Millisecond)

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(lines)
	}()

	_, err = s.roster.Reconcile(s.ctx, sec.SN, []int{1})
	s.Require().NoError(err)

	select {
	case line := <-lines:
		var evt model.ClassEvent
		s.Require().NoError(json.Unmarshal([]byte(line), &evt))
		s.Equal(model.EventRosterChanged, evt.Type)
		s.Equal([]int{1}, evt.Added)
	case <-time.After(2 * time.Second):
		s.Fail("no event received")
	}
}

func TestEventStreamUnknownSection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.New()
	h := handler.NewEventHandler(&memory.Publisher{}, service.NewClassService(store.Classes(), store.Courses(), policy.Default(), zerolog.Nop()), zerolog.Nop())
	r := gin.New()
	r.GET("/class/:sn/events", h.Stream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/class/9/events", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
}
