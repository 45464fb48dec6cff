package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/database"
	"github.com/VasantLong/cgms2025/internal/logger"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/repository"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

type seedCourse struct {
	no     string
	name   string
	credit float64
	hours  int
}

var courses = []seedCourse{
	{"10001", "Advanced Mathematics", 5, 80},
	{"10002", "Database Systems", 3.5, 56},
	{"10003", "Software Engineering", 3, 48},
}

var names = []string{
	"Li Wei", "Wang Fang", "Zhang Min", "Liu Yang", "Chen Jing",
	"Yang Lei", "Zhao Ting", "Huang Hao", "Zhou Xin", "Wu Qiang",
	"Xu Lin", "Sun Yue", "Ma Jun", "Zhu Hui", "Hu Bo",
	"Guo Ying", "He Tao", "Lin Na", "Luo Kai", "Gao Xue",
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "cgms-seed")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pol, err := policy.New(cfg.Policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid policy configuration")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	rosterRepo := repository.NewRosterRepository(pool, cfg.TxTimeout)

	studentService := service.NewStudentService(studentRepo, pol, log)
	courseService := service.NewCourseService(courseRepo, nil, pol, cfg.CourseCacheTTL, log)
	classService := service.NewClassService(classRepo, courseRepo, pol, log)
	rosterService := service.NewRosterService(rosterRepo, rosterRepo, classRepo, nil, nil, log)

	fmt.Printf("=== Seeding %d Students ===\n", len(names))

	studentSNs := make([]int, 0, len(names))
	for i, name := range names {
		no := fmt.Sprintf("%0*d", pol.StudentNoLength, i+1)
		stu, err := studentService.Create(ctx, model.StudentRequest{No: no, Name: name})
		if isDuplicate(err) {
			stu, err = studentService.GetByNo(ctx, no)
		}
		if err != nil {
			log.Fatal().Err(err).Str("stu_no", no).Msg("Failed to seed student")
		}
		studentSNs = append(studentSNs, stu.SN)
	}

	fmt.Printf("=== Seeding %d Courses ===\n", len(courses))

	for i, sc := range courses {
		credit, hours := sc.credit, sc.hours
		course, err := courseService.Create(ctx, model.CourseRequest{No: sc.no, Name: sc.name, Credit: &credit, Hours: &hours})
		if isDuplicate(err) {
			fmt.Printf("Course %s already exists, skipping\n", sc.no)
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("cou_no", sc.no).Msg("Failed to seed course")
		}

		cls, err := classService.Create(ctx, model.ClassRequest{
			No:       sc.no + "-2025S1-01",
			Name:     sc.name + " (01)",
			Semester: "2025S1",
			Location: fmt.Sprintf("Room %d", 101+i),
			CouSN:    course.SN,
		})
		if err != nil {
			log.Fatal().Err(err).Str("cou_no", sc.no).Msg("Failed to seed section")
		}

		// Sections get overlapping halves of the students.
		half := len(studentSNs) / 2
		start := (i * half / 2) % len(studentSNs)
		target := make([]int, 0, half)
		for j := 0; j < half; j++ {
			target = append(target, studentSNs[(start+j)%len(studentSNs)])
		}
		res, err := rosterService.Reconcile(ctx, cls.SN, target)
		if err != nil {
			log.Fatal().Err(err).Str("class_no", cls.No).Msg("Failed to seed roster")
		}
		fmt.Printf("Section %s: %d students enrolled\n", cls.No, len(res.Added))
	}

	fmt.Println("\nSeed completed!")
}

func isDuplicate(err error) bool {
	var svcErr *service.Error
	return errors.As(err, &svcErr) && svcErr.Code == response.ErrDuplicate
}
