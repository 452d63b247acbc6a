package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/david/campus-notice/internal/models"
)

// ErrInvalidRequest wraps every validation failure of an inbound request.
var ErrInvalidRequest = errors.New("invalid request")

var (
	vOnce sync.Once
	v     *validator.Validate
)

func getValidator() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		// report json names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
	})
	return v
}

// Validate checks the struct tags of s. Failures wrap ErrInvalidRequest and list the
// offending fields.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// Request is one pipeline run.
type Request struct {
	TargetURL string             `json:"targetUrl" validate:"required,url"`
	Profile   models.UserProfile `json:"userProfile"`
	// Boards overrides the source's board list by name or category.
	Boards []string `json:"boards,omitempty" validate:"dive,required"`
	// IntervalDays overrides the lookback window when positive.
	IntervalDays int `json:"intervalDays,omitempty" validate:"gte=0,lte=365"`
}

// lookbackDays picks the run's window: the request, then the profile, then a pinned
// deployment value, then the source, then the deployment default.
func (r Request) lookbackDays(sourceDays, fallback int, pinned bool) int {
	switch {
	case r.IntervalDays > 0:
		return r.IntervalDays
	case r.Profile.IntervalDays > 0:
		return r.Profile.IntervalDays
	case pinned && fallback > 0:
		return fallback
	case sourceDays > 0:
		return sourceDays
	case fallback > 0:
		return fallback
	}
	return 7
}
