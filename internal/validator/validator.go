package validator

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/VasantLong/cgms2025/internal/policy"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding engine,
// together with the natural-key tags stu_no, course_no and class_no checked against p.
// Call once during application startup.
func Setup(p *policy.Policy) error {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return err
	}

	for _, tag := range naturalKeyTags(p) {
		if err := v.RegisterValidation(tag.name, tag.fn); err != nil {
			return err
		}
		if err := v.RegisterTranslation(tag.name, trans, registerMessage(tag.name, tag.message), translateField); err != nil {
			return err
		}
	}
	return nil
}

type keyTag struct {
	name    string
	message string
	fn      govalidator.Func
}

func naturalKeyTags(p *policy.Policy) []keyTag {
	return []keyTag{
		{
			name:    "stu_no",
			message: "{0} must be a " + strconv.Itoa(p.StudentNoLength) + "-digit student number",
			fn:      func(fl govalidator.FieldLevel) bool { return p.ValidStudentNo(fl.Field().String()) },
		},
		{
			name:    "course_no",
			message: "{0} must be a " + strconv.Itoa(p.CourseNoLength) + "-digit course number",
			fn:      func(fl govalidator.FieldLevel) bool { return p.ValidCourseNo(fl.Field().String()) },
		},
		{
			name:    "class_no",
			message: "{0} must be a section code such as 10001-2025S1-01",
			fn:      func(fl govalidator.FieldLevel) bool { return p.ValidClassNo(fl.Field().String()) },
		},
	}
}

func registerMessage(tag, msg string) govalidator.RegisterTranslationsFunc {
	return func(t ut.Translator) error {
		return t.Add(tag, msg, true)
	}
}

func translateField(t ut.Translator, fe govalidator.FieldError) string {
	msg, err := t.T(fe.Tag(), fe.Field())
	if err != nil {
		return fe.Error()
	}
	return msg
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans == nil {
				fields[fe.Field()] = fe.Error()
				continue
			}
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
