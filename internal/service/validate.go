package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/bookclub/internal/apperror"
	"github.com/sakif/bookclub/internal/repository"
)

// Pagination limits shared by every listing endpoint.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

const birthDateLayout = "2006-01-02"

var (
	phoneNoise   = regexp.MustCompile(`[\s\-()]`)
	phoneRU      = regexp.MustCompile(`^(\+7|8)\d{10}$`)
	phoneGeneric = regexp.MustCompile(`^\+\d{10,15}$`)
	phoneTrunk   = regexp.MustCompile(`^8\d{10}$`)
)

// validate is shared by all services. validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return checkPhone(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
		return checkBirthDate(fl.Field().String(), time.Now()) == nil
	})
	return v
}

// checkPhone accepts +7XXXXXXXXXX, 8XXXXXXXXXX or any + followed by 10-15
// digits. Spaces, dashes and parentheses are ignored. Empty is allowed.
func checkPhone(phone string) error {
	if phone == "" {
		return nil
	}
	cleaned := phoneNoise.ReplaceAllString(phone, "")
	if phoneRU.MatchString(cleaned) || phoneGeneric.MatchString(cleaned) {
		return nil
	}
	return errors.New("invalid phone format, use +7XXXXXXXXXX or 8XXXXXXXXXX")
}

// normalizePhone strips spaces, dashes and parentheses and rewrites the
// domestic 8XXXXXXXXXX form as +7XXXXXXXXXX, so one number typed several
// ways is one identifier. Input that is not a phone comes back cleaned but
// otherwise unchanged and still fails checkPhone.
func normalizePhone(phone string) string {
	cleaned := phoneNoise.ReplaceAllString(phone, "")
	if phoneTrunk.MatchString(cleaned) {
		return "+7" + cleaned[1:]
	}
	return cleaned
}

// checkBirthDate accepts YYYY-MM-DD dates that are not in the future and
// give an age between 5 and 120 on today. Empty is allowed.
func checkBirthDate(value string, today time.Time) error {
	if value == "" {
		return nil
	}
	birth, err := time.Parse(birthDateLayout, value)
	if err != nil {
		return errors.New("invalid birth date format, use YYYY-MM-DD")
	}

	ty, tm, td := today.Date()
	todayDate := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	if birth.After(todayDate) {
		return errors.New("birth date cannot be in the future")
	}

	age := ty - birth.Year()
	if tm < birth.Month() || (tm == birth.Month() && td < birth.Day()) {
		age--
	}
	if age < 5 || age > 120 {
		return errors.New("age must be between 5 and 120 years")
	}
	return nil
}

// validateStruct runs the validate tags of v and converts the first
// failure into an apperror.ValidationFailed naming the JSON field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating input: %w", err)
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "phone":
		return checkPhone(stringValue(fe.Value())).Error()
	case "birthdate":
		if err := checkBirthDate(stringValue(fe.Value()), time.Now()); err != nil {
			return err.Error()
		}
		return "invalid birth date"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s characters or less", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return name + " is invalid"
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return ""
}

// maxOffset bounds (page-1)*limit so the offset stays far from int overflow.
const maxOffset = math.MaxInt32

// Pagination is a 1-based page request.
type Pagination struct {
	Page  int
	Limit int
}

// DefaultPagination is the first page with the default size.
func DefaultPagination() Pagination {
	return Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

// check rejects out-of-range values instead of clamping them.
func (p Pagination) check() error {
	if p.Page < 1 {
		return apperror.ValidationFailed("page", "page must be 1 or greater")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return apperror.ValidationFailed("limit", fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}
	if p.Page-1 > maxOffset/p.Limit {
		return apperror.ValidationFailed("page", "page is too large")
	}
	return nil
}

func (p Pagination) options() repository.ListOptions {
	return repository.ListOptions{Limit: p.Limit, Offset: (p.Page - 1) * p.Limit}
}

// requireID rejects blank path identifiers before they reach the store.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return id, nil
}

// normalizeEmail lowercases and trims an address so lookups match however
// the member typed it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
