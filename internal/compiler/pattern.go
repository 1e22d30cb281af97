// Package compiler turns human-readable command templates into anchored,
// case-insensitive matchers, and loads template catalogs written in CUE.
package compiler

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/roach88/omnilink/internal/types"
)

// DefaultTokenPattern matches one separator-free word. Untyped tokens use it
// so a capture never swallows the literal segments around it.
const DefaultTokenPattern = `[^_]+`

var tokenRe = regexp.MustCompile(`\[([^\]]*)\]`)

// Capture is one capture slot of a compiled pattern.
type Capture struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"` // empty for untyped and literal-regex captures
}

// Pattern is a compiled template.
//
// Patterns are immutable. The matcher has exactly len(Captures) capturing
// groups, in the left-to-right order of the template's tokens.
type Pattern struct {
	Template   string    `json:"template"`
	Normalized string    `json:"normalized"`
	Captures   []Capture `json:"captures"`
	Expr       string    `json:"expr"`

	matcher *regexp.Regexp
}

// Match reports whether the normalized text fully matches the pattern and
// returns the raw captured strings in capture order.
func (p *Pattern) Match(normalized string) ([]string, bool) {
	m := p.matcher.FindStringSubmatch(normalized)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// Normalize trims text, collapses whitespace runs and joins the words with
// underscores. Case is preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), "_")
}

// token is a parsed [...] segment.
type token struct {
	name  string
	typ   string
	regex string // literal regex override
}

// parseToken parses the content between brackets.
//
//	/rx/        anonymous, literal regex
//	name:/rx/   named, literal regex
//	name:type   named, registered type
//	name        named, default regex
//	(empty)     anonymous, default regex
func parseToken(content string) token {
	content = strings.TrimSpace(content)
	if isRegexLiteral(content) {
		return token{regex: content[1 : len(content)-1]}
	}
	if left, right, ok := strings.Cut(content, ":"); ok {
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if isRegexLiteral(right) {
			return token{name: left, regex: right[1 : len(right)-1]}
		}
		return token{name: left, typ: right}
	}
	return token{name: content}
}

func isRegexLiteral(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/")
}

// Compile turns a template into an anchored, case-insensitive Pattern.
//
// Type names are resolved against reg at compile time; a later Register
// does not affect an already compiled pattern. A token naming an unknown
// type fails with *UnknownTypeError, an invalid regex with *CompileError.
func Compile(template string, reg *types.Registry) (*Pattern, error) {
	norm := Normalize(template)

	var (
		expr     strings.Builder
		captures []Capture
		last     int
	)
	expr.WriteString("(?i)^")

	for _, loc := range tokenRe.FindAllStringSubmatchIndex(norm, -1) {
		expr.WriteString(regexp.QuoteMeta(norm[last:loc[0]]))
		tok := parseToken(norm[loc[2]:loc[3]])

		sub := DefaultTokenPattern
		switch {
		case tok.regex != "":
			sub = tok.regex
		case tok.typ != "":
			spec, ok := reg.Get(tok.typ)
			if !ok {
				return nil, &UnknownTypeError{Type: tok.typ, Template: template}
			}
			sub = spec.Pattern
			tok.typ = spec.Name
		}

		group, err := captureGroup(sub)
		if err != nil {
			return nil, &CompileError{
				Field:   template,
				Message: fmt.Sprintf("token [%s]: %v", norm[loc[2]:loc[3]], err),
			}
		}

		name := tok.name
		if name == "" {
			name = fmt.Sprintf("var%d", len(captures)+1)
		}
		captures = append(captures, Capture{Name: name, Type: tok.typ})
		expr.WriteString(group)
		last = loc[1]
	}

	expr.WriteString(regexp.QuoteMeta(norm[last:]))
	expr.WriteString("$")

	matcher, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, &CompileError{Field: template, Message: err.Error()}
	}
	if matcher.NumSubexp() != len(captures) {
		return nil, &CompileError{
			Field:   template,
			Message: fmt.Sprintf("expected %d capture groups, got %d", len(captures), matcher.NumSubexp()),
		}
	}

	return &Pattern{
		Template:   template,
		Normalized: norm,
		Captures:   captures,
		Expr:       expr.String(),
		matcher:    matcher,
	}, nil
}

// captureGroup validates sub and wraps it in one capturing group.
// Capturing groups inside sub are rewritten as non-capturing so the
// group count of the whole pattern stays equal to the number of tokens.
func captureGroup(sub string) (string, error) {
	re, err := syntax.Parse(sub, syntax.Perl)
	if err != nil {
		return "", err
	}
	if hasCapture(re) {
		sub = stripCaptures(re).String()
	}
	return "(" + sub + ")", nil
}

func hasCapture(re *syntax.Regexp) bool {
	if re.Op == syntax.OpCapture {
		return true
	}
	for _, s := range re.Sub {
		if hasCapture(s) {
			return true
		}
	}
	return false
}

func stripCaptures(re *syntax.Regexp) *syntax.Regexp {
	for re.Op == syntax.OpCapture {
		re = re.Sub[0]
	}
	for i, s := range re.Sub {
		re.Sub[i] = stripCaptures(s)
	}
	return re
}
