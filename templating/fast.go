package templating

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/valyala/fasttemplate"
)

// Default tags of FastBackend.
const (
	DefaultStartTag = "{{"
	DefaultEndTag   = "}}"
)

var (
	// ErrUnknownPath is returned when a tag names a path
	// missing from the render context.
	ErrUnknownPath = errors.New("unknown context path")

	// ErrBadTag is returned for a tag that cannot be
	// tokenized.
	ErrBadTag = errors.New("malformed tag")
)

// FastBackend substitutes {{ ... }} tags with
// fasttemplate. A tag is a dotted context path
// ({{ settings.motd }}), or a helper name followed by
// arguments that are paths, quoted strings or integers
// ({{ join_array "," settings.ntp.servers }}).
type FastBackend struct {
	StartTag string
	EndTag   string
}

// NewFastBackend returns a backend with double-brace tags.
func NewFastBackend() *FastBackend {
	return &FastBackend{}
}

// Name implements Backend.
func (*FastBackend) Name() string { return BackendFast }

// Render implements Backend.
func (b *FastBackend) Render(
	body string,
	data map[string]any,
	helpers *Registry,
) (string, error) {
	const errCtx = "rendering with fasttemplate"

	startTag, endTag := b.tags()

	tpl, err := fasttemplate.NewTemplate(body, startTag, endTag)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	out, err := tpl.ExecuteFuncStringWithErr(
		func(w io.Writer, tag string) (int, error) {
			text, err := evalTag(tag, data, helpers)
			if err != nil {
				return 0, err
			}

			return io.WriteString(w, text)
		},
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, nil
}

// tags returns the configured start/end tags, falling
// back to double-brace defaults.
func (b *FastBackend) tags() (string, string) {
	startTag := b.StartTag
	if startTag == "" {
		startTag = DefaultStartTag
	}

	endTag := b.EndTag
	if endTag == "" {
		endTag = DefaultEndTag
	}

	return startTag, endTag
}

type token struct {
	text   string
	quoted bool
}

func evalTag(
	tag string,
	data map[string]any,
	helpers *Registry,
) (string, error) {
	tokens, err := tokenize(tag)
	if err != nil {
		return "", err
	}

	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty tag", ErrBadTag)
	}

	head := tokens[0]
	if head.quoted {
		if len(tokens) > 1 {
			return "", fmt.Errorf("%w: %q", ErrBadTag, tag)
		}

		return head.text, nil
	}

	if _, ok := helpers.Lookup(head.text); ok {
		args := make([]any, 0, len(tokens)-1)

		for _, tok := range tokens[1:] {
			arg, err := evalArg(tok, data)
			if err != nil {
				return "", err
			}

			args = append(args, arg)
		}

		return helpers.Invoke(head.text, args, data)
	}

	if len(tokens) > 1 {
		return "", fmt.Errorf("%w: %q", ErrUnknownHelper, head.text)
	}

	val, err := lookupPath(data, head.text)
	if err != nil {
		return "", err
	}

	return Format(val), nil
}

func evalArg(tok token, data map[string]any) (any, error) {
	if tok.quoted {
		return tok.text, nil
	}

	if num, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
		return num, nil
	}

	switch tok.text {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}

	return lookupPath(data, tok.text)
}

func lookupPath(data map[string]any, path string) (any, error) {
	var cur any = data

	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
			}

			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
			}

			cur = node[idx]
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
	}

	return cur, nil
}

// tokenize splits a tag on whitespace. Double-quoted
// tokens follow Go string literal escaping.
func tokenize(tag string) ([]token, error) {
	var tokens []token

	rest := strings.TrimSpace(tag)

	for rest != "" {
		if rest[0] == '"' {
			end := closingQuote(rest)
			if end < 0 {
				return nil, fmt.Errorf(
					"%w: unterminated string in %q", ErrBadTag, tag,
				)
			}

			text, err := strconv.Unquote(rest[:end+1])
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrBadTag, tag, err)
			}

			tokens = append(tokens, token{text: text, quoted: true})
			rest = strings.TrimLeftFunc(rest[end+1:], unicode.IsSpace)

			continue
		}

		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}

		tokens = append(tokens, token{text: rest[:end]})
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}

	return tokens, nil
}

// closingQuote returns the index of the quote ending the
// literal that opens s, or -1.
func closingQuote(s string) int {
	for idx := 1; idx < len(s); idx++ {
		switch s[idx] {
		case '\\':
			idx++
		case '"':
			return idx
		}
	}

	return -1
}
