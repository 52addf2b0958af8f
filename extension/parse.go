package extension

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Delimiter is the line that closes the front matter.
const Delimiter = "+++"

const requiredKey = "required-extensions"

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("malformed extension declaration")

//nolint:gochecknoglobals // compiled once
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ParseError describes a malformed requirement
// declaration. It matches ErrMalformed with errors.Is.
type ParseError struct {
	// Extension is the offending entry, when known.
	Extension string
	// Reason is a human readable description.
	Reason string
	// Err is the underlying decoder error, if any.
	Err error
}

func (e *ParseError) Error() string {
	var sb strings.Builder

	sb.WriteString("parsing extension requirements")

	if e.Extension != "" {
		sb.WriteString(": extension ")
		sb.WriteString(strconv.Quote(e.Extension))
	}

	sb.WriteString(": ")
	sb.WriteString(e.Reason)

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap exposes ErrMalformed and the decoder error.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}

	return []error{ErrMalformed, e.Err}
}

// Template is a template split into its declared
// requirements and the body handed to the render backend.
type Template struct {
	// Requirements are sorted by name, one per extension.
	Requirements []Requirement
	// Body is the template text after the front matter.
	Body string
}

// All yields copies of the requirements in order.
func (t *Template) All() iter.Seq[Requirement] {
	return func(yield func(Requirement) bool) {
		for _, req := range t.Requirements {
			if !yield(req.clone()) {
				return
			}
		}
	}
}

// Names returns the extension names in order.
func (t *Template) Names() []string {
	names := make([]string, len(t.Requirements))
	for idx, req := range t.Requirements {
		names[idx] = req.Name
	}

	return names
}

func (t *Template) clone() *Template {
	reqs := make([]Requirement, len(t.Requirements))
	for idx, req := range t.Requirements {
		reqs[idx] = req.clone()
	}

	return &Template{Requirements: reqs, Body: t.Body}
}

// Parse extracts the requirements declared in text. A
// template without a Delimiter line declares nothing and
// its whole text is the body.
func Parse(text string) (*Template, error) {
	front, body, found := splitFrontMatter(text)
	if !found {
		return &Template{Body: text}, nil
	}

	reqs, err := parseFrontMatter(front)
	if err != nil {
		return nil, err
	}

	return &Template{Requirements: reqs, Body: body}, nil
}

// splitFrontMatter cuts text at the first line equal to
// Delimiter (a trailing "\r" is tolerated).
func splitFrontMatter(text string) (string, string, bool) {
	offset := 0

	for {
		rest := text[offset:]
		end := strings.IndexByte(rest, '\n')

		line := rest
		if end >= 0 {
			line = rest[:end]
		}

		if strings.TrimSuffix(line, "\r") == Delimiter {
			if end < 0 {
				return text[:offset], "", true
			}

			return text[:offset], text[offset+end+1:], true
		}

		if end < 0 {
			return "", text, false
		}

		offset += end + 1
	}
}

func parseFrontMatter(front string) ([]Requirement, error) {
	if isBlank(front) {
		return nil, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(front), &raw); err != nil {
		return nil, &ParseError{Reason: "invalid front matter", Err: err}
	}

	for _, key := range sortedKeys(raw) {
		if key != requiredKey {
			return nil, &ParseError{
				Reason: fmt.Sprintf("unknown front matter key %q", key),
			}
		}
	}

	declared := raw[requiredKey]
	if declared == nil {
		return nil, nil
	}

	entries, ok := declared.(map[string]any)
	if !ok {
		return nil, &ParseError{
			Reason: fmt.Sprintf(
				"%s must be a mapping, got %s",
				requiredKey, describe(declared),
			),
		}
	}

	reqs := make([]Requirement, 0, len(entries))

	for _, name := range sortedKeys(entries) {
		req, err := parseEntry(name, entries[name])
		if err != nil {
			return nil, err
		}

		reqs = append(reqs, req)
	}

	return reqs, nil
}

func parseEntry(name string, val any) (Requirement, error) {
	if !namePattern.MatchString(name) {
		return Requirement{}, &ParseError{
			Extension: name,
			Reason:    "invalid extension name",
		}
	}

	req := Requirement{Name: name}

	switch tv := val.(type) {
	case nil:
		return req, nil
	case string:
		req.Version = strings.TrimSpace(tv)

		return req, nil
	case map[string]any:
		return parseEntryFields(req, tv)
	default:
		return Requirement{}, &ParseError{
			Extension: name,
			Reason: fmt.Sprintf(
				"expected a version string or a mapping, got %s",
				describe(val),
			),
		}
	}
}

func parseEntryFields(
	req Requirement,
	fields map[string]any,
) (Requirement, error) {
	for _, key := range sortedKeys(fields) {
		val := fields[key]

		switch key {
		case "version":
			if val == nil {
				continue
			}

			version, ok := val.(string)
			if !ok {
				return Requirement{}, &ParseError{
					Extension: req.Name,
					Reason: fmt.Sprintf(
						"version must be a string, got %s",
						describe(val),
					),
				}
			}

			req.Version = strings.TrimSpace(version)
		case "helpers":
			helpers, err := parseHelpers(req.Name, val)
			if err != nil {
				return Requirement{}, err
			}

			req.Helpers = helpers
		default:
			return Requirement{}, &ParseError{
				Extension: req.Name,
				Reason:    fmt.Sprintf("unknown field %q", key),
			}
		}
	}

	return req, nil
}

func parseHelpers(name string, val any) ([]string, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, &ParseError{
			Extension: name,
			Reason: fmt.Sprintf(
				"helpers must be a list, got %s", describe(val),
			),
		}
	}

	helpers := make([]string, 0, len(list))

	for _, item := range list {
		helper, ok := item.(string)
		if !ok || strings.TrimSpace(helper) == "" {
			return nil, &ParseError{
				Extension: name,
				Reason:    "helper names must be non-empty strings",
			}
		}

		if slices.Contains(helpers, helper) {
			return nil, &ParseError{
				Extension: name,
				Reason:    fmt.Sprintf("helper %q listed twice", helper),
			}
		}

		helpers = append(helpers, helper)
	}

	return helpers, nil
}

// isBlank reports whether front holds nothing but
// whitespace and comment lines.
func isBlank(front string) bool {
	for _, line := range strings.Split(front, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return false
		}
	}

	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func describe(val any) string {
	switch val.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	case nil:
		return "null"
	default:
		return "number"
	}
}
