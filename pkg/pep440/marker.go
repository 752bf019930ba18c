package pep440

import (
	"fmt"
	"strings"
)

// Environment holds marker variable values, keyed by PEP 508 variable name
// (python_version, sys_platform, extra, ...).
type Environment map[string]string

// DefaultEnvironment returns a CPython-on-Linux environment for the given
// "X.Y" Python version.
func DefaultEnvironment(python string) Environment {
	full := python
	if strings.Count(full, ".") == 1 {
		full += ".0"
	}
	return Environment{
		"python_version":                 python,
		"python_full_version":            full,
		"implementation_version":         full,
		"implementation_name":            "cpython",
		"platform_python_implementation": "CPython",
		"os_name":                        "posix",
		"sys_platform":                   "linux",
		"platform_system":                "Linux",
		"platform_machine":               "x86_64",
		"platform_release":               "",
		"platform_version":               "",
		"extra":                          "",
	}
}

// With returns a copy of env with key set to value.
func (env Environment) With(key, value string) Environment {
	out := make(Environment, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[key] = value
	return out
}

var versionVars = map[string]bool{
	"python_version":         true,
	"python_full_version":    true,
	"implementation_version": true,
}

// Marker is a parsed environment marker expression.
type Marker struct {
	root markerNode
	raw  string
}

type markerNode interface {
	eval(env Environment) bool
}

type markerAnd struct{ left, right markerNode }
type markerOr struct{ left, right markerNode }

type markerCmp struct {
	lhs, op, rhs string
	lhsVar       bool
	rhsVar       bool
}

func (n markerAnd) eval(env Environment) bool { return n.left.eval(env) && n.right.eval(env) }
func (n markerOr) eval(env Environment) bool  { return n.left.eval(env) || n.right.eval(env) }

func (n markerCmp) eval(env Environment) bool {
	lhs, rhs := n.lhs, n.rhs
	name := ""
	if n.lhsVar {
		lhs, name = env[n.lhs], n.lhs
	}
	if n.rhsVar {
		rhs, name = env[n.rhs], n.rhs
	}

	switch n.op {
	case "in":
		return strings.Contains(rhs, lhs)
	case "not in":
		return !strings.Contains(rhs, lhs)
	}

	if name == "extra" {
		lhs, rhs = normalizeExtra(lhs), normalizeExtra(rhs)
	}
	if versionVars[name] {
		if set, err := ParseSpecifierSet(n.op + rhs); err == nil && n.lhsVar {
			if v, err := Parse(lhs); err == nil {
				return set.Contains(v, true)
			}
		}
	}
	switch n.op {
	case "==", "===":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	}
	return false
}

func normalizeExtra(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(s), "_", "-"), ".", "-")
}

// ParseMarker parses a marker expression.
func ParseMarker(s string) (*Marker, error) {
	p := &markerParser{toks: tokenizeMarker(s)}
	if p.toks == nil {
		return nil, fmt.Errorf("invalid marker %q", s)
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid marker %q: %w", s, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("invalid marker %q: unexpected %q", s, p.toks[p.pos].text)
	}
	return &Marker{root: root, raw: strings.TrimSpace(s)}, nil
}

// Evaluate reports whether the marker holds in env.
func (m *Marker) Evaluate(env Environment) bool { return m.root.eval(env) }

func (m *Marker) String() string { return m.raw }

type markerTokKind int

const (
	tokIdent markerTokKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
)

type markerTok struct {
	kind markerTokKind
	text string
}

func tokenizeMarker(s string) []markerTok {
	toks := []markerTok{}
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, markerTok{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, markerTok{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil
			}
			toks = append(toks, markerTok{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>~", rune(c)):
			j := i
			for j < len(s) && strings.ContainsRune("=!<>~", rune(s[j])) {
				j++
			}
			toks = append(toks, markerTok{tokOp, s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && (isIdentByte(s[j])) {
				j++
			}
			if j == i {
				return nil
			}
			toks = append(toks, markerTok{tokIdent, s[i:j]})
			i = j
		}
	}
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type markerParser struct {
	toks []markerTok
	pos  int
}

func (p *markerParser) peek() (markerTok, bool) {
	if p.pos >= len(p.toks) {
		return markerTok{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokIdent && t.text == word {
		p.pos++
		return true
	}
	return false
}

func (p *markerParser) parseOr() (markerNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = markerOr{left, right}
	}
	return left, nil
}

func (p *markerParser) parseAnd() (markerNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = markerAnd{left, right}
	}
	return left, nil
}

func (p *markerParser) parseAtom() (markerNode, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if t.kind == tokLParen {
		p.pos++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return nil, fmt.Errorf("missing ')'")
		}
		p.pos++
		return n, nil
	}

	lhs, lhsVar, err := p.operand()
	if err != nil {
		return nil, err
	}
	op, err := p.operator()
	if err != nil {
		return nil, err
	}
	rhs, rhsVar, err := p.operand()
	if err != nil {
		return nil, err
	}
	return markerCmp{lhs: lhs, op: op, rhs: rhs, lhsVar: lhsVar, rhsVar: rhsVar}, nil
}

func (p *markerParser) operand() (string, bool, error) {
	t, ok := p.peek()
	if !ok {
		return "", false, fmt.Errorf("unexpected end of marker")
	}
	switch t.kind {
	case tokString:
		p.pos++
		return t.text, false, nil
	case tokIdent:
		p.pos++
		return t.text, true, nil
	}
	return "", false, fmt.Errorf("unexpected %q", t.text)
}

func (p *markerParser) operator() (string, error) {
	t, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("unexpected end of marker")
	}
	switch {
	case t.kind == tokOp:
		p.pos++
		return t.text, nil
	case t.kind == tokIdent && t.text == "in":
		p.pos++
		return "in", nil
	case t.kind == tokIdent && t.text == "not":
		p.pos++
		if !p.keyword("in") {
			return "", fmt.Errorf("expected 'in' after 'not'")
		}
		return "not in", nil
	}
	return "", fmt.Errorf("expected operator, got %q", t.text)
}
