package templating

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	// ErrDuplicateHelper is returned when a name is
	// registered twice in one Registry.
	ErrDuplicateHelper = errors.New("helper already registered")

	// ErrInvalidHelper is returned for an empty name or a
	// nil function.
	ErrInvalidHelper = errors.New("invalid helper")

	// ErrUnknownHelper is returned when a template calls a
	// helper that was not registered for the render.
	ErrUnknownHelper = errors.New("unknown helper")

	// ErrHelperArgs is wrapped by helpers rejecting their
	// arguments.
	ErrHelperArgs = errors.New("bad helper arguments")
)

// HelperFunc writes the result of a helper call to out.
type HelperFunc func(call *Call, out io.Writer) error

// Call is a single helper invocation.
type Call struct {
	// Name is the helper name as written in the template.
	Name string
	// Args are the evaluated arguments.
	Args []any
	// Context is the render context. Helpers must not
	// modify it.
	Context map[string]any
}

// Expect fails unless the call carries exactly n
// arguments.
func (c *Call) Expect(n int) error {
	if len(c.Args) != n {
		return fmt.Errorf(
			"%w: %s takes %d argument(s), got %d",
			ErrHelperArgs, c.Name, n, len(c.Args),
		)
	}

	return nil
}

// String returns argument idx, which must be a string.
func (c *Call) String(idx int) (string, error) {
	if idx >= len(c.Args) {
		return "", fmt.Errorf(
			"%w: %s: missing argument %d", ErrHelperArgs, c.Name, idx,
		)
	}

	str, ok := c.Args[idx].(string)
	if !ok {
		return "", fmt.Errorf(
			"%w: %s: argument %d must be a string, got %T",
			ErrHelperArgs, c.Name, idx, c.Args[idx],
		)
	}

	return str, nil
}

// Registry is the helper table of one render. It is not
// safe for concurrent mutation and must not be shared
// between renders.
type Registry struct {
	helpers map[string]HelperFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{helpers: make(map[string]HelperFunc)}
}

// Register adds a helper under name.
func (r *Registry) Register(name string, fn HelperFunc) error {
	const errCtx = "registering helper"

	if strings.TrimSpace(name) == "" || fn == nil {
		return fmt.Errorf("%s: %w: %q", errCtx, ErrInvalidHelper, name)
	}

	if _, ok := r.helpers[name]; ok {
		return fmt.Errorf("%s: %w: %q", errCtx, ErrDuplicateHelper, name)
	}

	r.helpers[name] = fn

	return nil
}

// Lookup returns the helper registered under name.
func (r *Registry) Lookup(name string) (HelperFunc, bool) {
	if r == nil {
		return nil, false
	}

	fn, ok := r.helpers[name]

	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	names := make([]string, 0, len(r.helpers))
	for name := range r.helpers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Len returns the number of registered helpers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.helpers)
}

// Invoke runs the named helper and returns what it wrote.
func (r *Registry) Invoke(
	name string,
	args []any,
	data map[string]any,
) (string, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownHelper, name)
	}

	var sb strings.Builder

	call := &Call{Name: name, Args: args, Context: data}
	if err := fn(call, &sb); err != nil {
		return "", fmt.Errorf("helper %s: %w", name, err)
	}

	return sb.String(), nil
}
