package render

import (
	"errors"
	"fmt"
)

// Kind tells which pipeline stage failed.
type Kind int

// Failure kinds.
const (
	KindExtraction Kind = iota + 1
	KindSettingsFetch
	KindHelperRegistration
	KindRender
)

// Sentinels matching each Kind with errors.Is.
var (
	ErrExtraction         = errors.New("extension requirement extraction failed")
	ErrSettingsFetch      = errors.New("settings fetch failed")
	ErrHelperRegistration = errors.New("helper registration failed")
	ErrRender             = errors.New("template render failed")
)

func (k Kind) String() string {
	switch k {
	case KindExtraction:
		return "extraction"
	case KindSettingsFetch:
		return "settings fetch"
	case KindHelperRegistration:
		return "helper registration"
	case KindRender:
		return "render"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindExtraction:
		return ErrExtraction
	case KindSettingsFetch:
		return ErrSettingsFetch
	case KindHelperRegistration:
		return ErrHelperRegistration
	case KindRender:
		return ErrRender
	default:
		return nil
	}
}

// Error is a failed render. It matches the sentinel of its
// Kind and unwraps to the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rendering template: %s failed: %v", e.Kind, e.Err)
}

// Unwrap exposes the Kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// KindOf returns the Kind of a render failure, or 0 when
// err is not one.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}

	return 0
}

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
