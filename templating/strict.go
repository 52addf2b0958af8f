package templating

import (
	"fmt"
	"strings"
)

// Strict checking of pongo2 bodies. pongo2 renders an
// undefined value, and a call to an undefined function, as
// empty text. Before executing a body, Pongo2Backend walks
// its tags and fails when:
//
//   - a {{ }} expression outputs a path missing from the
//     render context;
//   - any tag calls a function that is neither a registered
//     helper nor a macro.
//
// Values inside helper arguments, filter arguments, values
// guarded by the default filter and every value in a block
// tag ({% if %}, {% for %}, ...) may be missing: helpers and
// conditions decide what absence means.

type exprKind int

const (
	exprIdent exprKind = iota
	exprNumber
	exprString
	exprSymbol
)

type exprToken struct {
	kind exprKind
	text string
}

func (t exprToken) is(sym string) bool {
	return t.kind == exprSymbol && t.text == sym
}

type tagKind int

const (
	tagOutput tagKind = iota
	tagBlock
)

type rawTag struct {
	kind    tagKind
	content string
}

//nolint:gochecknoglobals // read-only lookup table
var exprKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"true": true, "false": true, "True": true, "False": true,
	"none": true, "None": true, "as": true, "reversed": true,
	"sorted": true, "only": true, "from": true, "export": true,
}

// checkStrict reports the first undefined output value or
// undefined function call of body.
func checkStrict(
	body string,
	data map[string]any,
	helpers *Registry,
) error {
	chk := &strictChecker{
		data:    data,
		helpers: helpers,
		global:  map[string]bool{},
	}

	for _, tag := range scanTags(body) {
		if err := chk.tag(tag); err != nil {
			return err
		}
	}

	return nil
}

// scope is a set of names bound until the end tag.
type scope struct {
	end   string
	names []string
}

type strictChecker struct {
	data      map[string]any
	helpers   *Registry
	global    map[string]bool
	scopes    []scope
	inComment bool
}

func (c *strictChecker) bound(name string) bool {
	if c.global[name] {
		return true
	}

	for _, sc := range c.scopes {
		for _, bound := range sc.names {
			if bound == name {
				return true
			}
		}
	}

	return false
}

func (c *strictChecker) tag(tag rawTag) error {
	toks := lexExpr(tag.content)

	if c.inComment {
		c.inComment = tag.kind == tagOutput ||
			len(toks) == 0 || toks[0].text != "endcomment"

		return nil
	}

	if tag.kind == tagOutput {
		return c.expr(toks, true)
	}

	if len(toks) == 0 || toks[0].kind != exprIdent {
		return nil
	}

	name := toks[0].text

	switch name {
	case "comment":
		c.inComment = true

		return nil
	case "for":
		return c.forTag(toks[1:])
	case "with":
		return c.withTag(toks[1:])
	case "macro":
		c.macroTag(toks[1:])

		return nil
	case "set":
		if len(toks) > 1 && toks[1].kind == exprIdent {
			c.global[toks[1].text] = true
		}
	case "cycle":
		for idx := 1; idx+1 < len(toks); idx++ {
			if toks[idx].kind == exprIdent && toks[idx].text == "as" &&
				toks[idx+1].kind == exprIdent {
				c.global[toks[idx+1].text] = true
			}
		}
	}

	if strings.HasPrefix(name, "end") {
		c.closeScope(name)

		return nil
	}

	return c.expr(toks[1:], false)
}

func (c *strictChecker) forTag(toks []exprToken) error {
	names := []string{"forloop"}

	for idx, tok := range toks {
		if tok.kind == exprIdent && tok.text == "in" {
			c.scopes = append(c.scopes, scope{end: "endfor", names: names})

			return c.expr(toks[idx+1:], false)
		}

		if tok.kind == exprIdent {
			names = append(names, tok.text)
		}
	}

	c.scopes = append(c.scopes, scope{end: "endfor", names: names})

	return nil
}

// withTag handles both {% with a=x b=y %} and
// {% with x as a %}.
func (c *strictChecker) withTag(toks []exprToken) error {
	var names []string

	for idx, tok := range toks {
		if tok.kind != exprIdent || idx+1 >= len(toks) {
			continue
		}

		switch {
		case toks[idx+1].is("="):
			names = append(names, tok.text)
		case tok.text == "as" && toks[idx+1].kind == exprIdent:
			names = append(names, toks[idx+1].text)
		}
	}

	if err := c.expr(toks, false); err != nil {
		return err
	}

	c.scopes = append(c.scopes, scope{end: "endwith", names: names})

	return nil
}

// macroTag binds the macro name globally and its
// parameters until endmacro.
func (c *strictChecker) macroTag(toks []exprToken) {
	if len(toks) == 0 || toks[0].kind != exprIdent {
		return
	}

	c.global[toks[0].text] = true

	var params []string

	for idx := 1; idx+1 < len(toks); idx++ {
		prev, tok, next := toks[idx-1], toks[idx], toks[idx+1]
		if tok.kind != exprIdent || !(prev.is("(") || prev.is(",")) {
			continue
		}

		if next.is(",") || next.is(")") || next.is("=") {
			params = append(params, tok.text)
		}
	}

	c.scopes = append(c.scopes, scope{end: "endmacro", names: params})
}

func (c *strictChecker) closeScope(end string) {
	for idx := len(c.scopes) - 1; idx >= 0; idx-- {
		if c.scopes[idx].end == end {
			c.scopes = c.scopes[:idx]

			return
		}
	}
}

// expr checks the tokens of one expression. With strict
// set, values outside call and filter arguments must exist.
//
//nolint:cyclop // one branch per token shape
func (c *strictChecker) expr(toks []exprToken, strict bool) error {
	// One entry per open parenthesis; true for call
	// arguments.
	var parens []bool

	filterArg := false

	for idx := 0; idx < len(toks); idx++ {
		tok := toks[idx]
		afterFilter := filterArg
		filterArg = false

		switch {
		case tok.is("("):
			parens = append(parens, false)
		case tok.is(")"):
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
		case tok.is("|"):
			// Filter name, then an optional ":" argument.
			if idx+1 < len(toks) && toks[idx+1].kind == exprIdent {
				idx++

				if idx+1 < len(toks) && toks[idx+1].is(":") {
					idx++
					filterArg = true
				}
			}
		case tok.kind == exprIdent && !exprKeywords[tok.text] &&
			(idx == 0 || !toks[idx-1].is(".")):
			end, parts := pathAt(toks, idx)

			if end+1 < len(toks) && toks[end+1].is("(") {
				if len(parts) == 1 {
					if err := c.callee(parts[0]); err != nil {
						return err
					}
				}

				parens = append(parens, true)
				idx = end + 1

				continue
			}

			lenient := !strict || afterFilter ||
				inCallArgs(parens) || guardedByDefault(toks, end+1)
			if !lenient {
				if err := c.path(parts); err != nil {
					return err
				}
			}

			idx = end
		}
	}

	return nil
}

func (c *strictChecker) callee(name string) error {
	if c.bound(name) {
		return nil
	}

	if _, ok := c.helpers.Lookup(name); ok {
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownHelper, name)
}

func (c *strictChecker) path(parts []string) error {
	root := parts[0]

	if c.bound(root) {
		return nil
	}

	if _, ok := c.data[root]; !ok {
		if _, isHelper := c.helpers.Lookup(root); isHelper {
			return nil
		}
	}

	_, err := lookupPath(c.data, strings.Join(parts, "."))

	return err
}

// pathAt reads the dotted path starting at toks[start] and
// returns the index of its last token. A subscript ends
// the statically known part of the path.
func pathAt(toks []exprToken, start int) (int, []string) {
	parts := []string{toks[start].text}
	end := start

	for end+2 < len(toks) && toks[end+1].is(".") &&
		(toks[end+2].kind == exprIdent || toks[end+2].kind == exprNumber) {
		parts = append(parts, toks[end+2].text)
		end += 2
	}

	return end, parts
}

func inCallArgs(parens []bool) bool {
	for _, call := range parens {
		if call {
			return true
		}
	}

	return false
}

func guardedByDefault(toks []exprToken, idx int) bool {
	return idx+1 < len(toks) && toks[idx].is("|") &&
		toks[idx+1].kind == exprIdent &&
		(toks[idx+1].text == "default" || toks[idx+1].text == "default_if_none")
}

// scanTags returns the {{ }} and {% %} tags of body in
// order. Comments are dropped.
func scanTags(body string) []rawTag {
	var tags []rawTag

	for {
		start := strings.IndexByte(body, '{')
		if start < 0 || start+1 >= len(body) {
			return tags
		}

		var (
			kind  tagKind
			delim string
		)

		switch body[start+1] {
		case '{':
			kind, delim = tagOutput, "}}"
		case '%':
			kind, delim = tagBlock, "%}"
		case '#':
			end := strings.Index(body[start+2:], "#}")
			if end < 0 {
				return tags
			}

			body = body[start+2+end+2:]

			continue
		default:
			body = body[start+1:]

			continue
		}

		end := closingDelimiter(body[start+2:], delim)
		if end < 0 {
			return tags
		}

		content := strings.TrimSpace(body[start+2 : start+2+end])
		content = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(content, "-"), "-"))

		tags = append(tags, rawTag{kind: kind, content: content})
		body = body[start+2+end+len(delim):]
	}
}

// closingDelimiter finds delim in s outside string
// literals.
func closingDelimiter(s, delim string) int {
	var quote byte

	for idx := 0; idx < len(s); idx++ {
		switch {
		case quote != 0 && s[idx] == '\\':
			idx++
		case quote != 0 && s[idx] == quote:
			quote = 0
		case quote != 0:
		case s[idx] == '"' || s[idx] == '\'':
			quote = s[idx]
		case strings.HasPrefix(s[idx:], delim):
			return idx
		}
	}

	return -1
}

// lexExpr splits a tag into identifiers, integers, string
// literals and symbols.
func lexExpr(src string) []exprToken {
	var toks []exprToken

	for idx := 0; idx < len(src); {
		ch := src[idx]

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			idx++
		case isIdentStart(ch):
			end := idx + 1
			for end < len(src) && (isIdentStart(src[end]) || isDigit(src[end])) {
				end++
			}

			toks = append(toks, exprToken{kind: exprIdent, text: src[idx:end]})
			idx = end
		case isDigit(ch):
			end := idx + 1
			for end < len(src) && isDigit(src[end]) {
				end++
			}

			toks = append(toks, exprToken{kind: exprNumber, text: src[idx:end]})
			idx = end
		case ch == '"' || ch == '\'':
			end := idx + 1
			for end < len(src) && src[end] != ch {
				if src[end] == '\\' {
					end++
				}

				end++
			}

			end = min(end+1, len(src))
			toks = append(toks, exprToken{kind: exprString, text: src[idx:end]})
			idx = end
		case strings.HasPrefix(src[idx:], "||") || strings.HasPrefix(src[idx:], "&&"):
			toks = append(toks, exprToken{kind: exprSymbol, text: src[idx : idx+2]})
			idx += 2
		default:
			toks = append(toks, exprToken{kind: exprSymbol, text: string(ch)})
			idx++
		}
	}

	return toks
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
