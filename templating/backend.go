package templating

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Backend names accepted by NewBackend.
const (
	BackendPongo2 = "pongo2"
	BackendFast   = "fast"
)

// ErrUnknownBackend is returned by NewBackend for an
// unsupported name.
var ErrUnknownBackend = errors.New("unknown template backend")

// Backend renders a template body. data is the render
// context ({"settings": {...}}) and helpers the functions
// the body may call. Implementations must not retain data
// or helpers after Render returns.
type Backend interface {
	Name() string
	Render(body string, data map[string]any, helpers *Registry) (string, error)
}

// NewBackend returns the backend registered under name.
// An empty name selects pongo2.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendPongo2:
		return NewPongo2Backend(), nil
	case BackendFast:
		return NewFastBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Format renders a settings value as template text. nil
// renders empty, containers render as JSON.
func Format(val any) string {
	switch tv := val.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case int:
		return strconv.Itoa(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case fmt.Stringer:
		return tv.String()
	}

	by, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprint(val)
	}

	return string(by)
}
