package xpathsource

import (
	"fmt"
	"regexp"
	"strings"
)

// query is a parsed prolog plus body.
type query struct {
	namespaces map[string]string
	externals  []string
	internals  map[string]string
	body       string
}

var (
	versionDeclRe   = regexp.MustCompile(`^xquery\s+(version|encoding)\b`)
	prologStartRe   = regexp.MustCompile(`^(declare|import|module)\s+[A-Za-z-]+`)
	namespaceDecl   = regexp.MustCompile(`^declare\s+namespace\s+([A-Za-z_][\w.\-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')$`)
	externalVarDecl = regexp.MustCompile(`^declare\s+variable\s+\$([A-Za-z_][\w.\-]*)(?:\s+as\s+\S+)?\s+external$`)
	internalVarDecl = regexp.MustCompile(`(?s)^declare\s+variable\s+\$([A-Za-z_][\w.\-]*)(?:\s+as\s+\S+)?\s*:=\s*(.+)$`)
)

// parseQuery splits text into prolog declarations and the query body.
func parseQuery(text string) (*query, error) {
	stripped, err := stripComments(text)
	if err != nil {
		return nil, err
	}

	q := &query{
		namespaces: make(map[string]string),
		internals:  make(map[string]string),
	}
	declared := make(map[string]bool)

	rest := strings.TrimSpace(stripped)
	for {
		switch {
		case versionDeclRe.MatchString(rest):
			end := indexOutsideLiterals(rest, ';')
			if end < 0 {
				return nil, fmt.Errorf("version declaration is not terminated by ';'")
			}
			rest = strings.TrimSpace(rest[end+1:])
			continue

		case prologStartRe.MatchString(rest):
			end := indexOutsideLiterals(rest, ';')
			if end < 0 {
				return nil, fmt.Errorf("prolog declaration is not terminated by ';'")
			}
			decl := strings.TrimSpace(rest[:end])
			rest = strings.TrimSpace(rest[end+1:])
			if err := q.addDeclaration(decl, declared); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if rest == "" {
		return nil, fmt.Errorf("query has no body")
	}
	q.body = rest
	return q, nil
}

func (q *query) addDeclaration(decl string, declared map[string]bool) error {
	if m := namespaceDecl.FindStringSubmatch(decl); m != nil {
		uri := m[2]
		if uri == "" {
			uri = m[3]
		}
		q.namespaces[m[1]] = uri
		return nil
	}

	if m := externalVarDecl.FindStringSubmatch(decl); m != nil {
		if declared[m[1]] {
			return fmt.Errorf("variable $%s is declared more than once", m[1])
		}
		declared[m[1]] = true
		q.externals = append(q.externals, m[1])
		return nil
	}

	if m := internalVarDecl.FindStringSubmatch(decl); m != nil {
		if declared[m[1]] {
			return fmt.Errorf("variable $%s is declared more than once", m[1])
		}
		declared[m[1]] = true
		q.internals[m[1]] = strings.TrimSpace(m[2])
		return nil
	}

	return fmt.Errorf("unsupported prolog declaration %q", firstLine(decl))
}

// stripComments removes (: ... :) comments, which may nest. String literals
// are left untouched.
func stripComments(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	depth := 0
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]

		if depth == 0 && quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}

		if c == '(' && i+1 < len(text) && text[i+1] == ':' {
			depth++
			i++
			continue
		}
		if depth > 0 {
			if c == ':' && i+1 < len(text) && text[i+1] == ')' {
				depth--
				i++
				if depth == 0 {
					b.WriteByte(' ')
				}
			}
			continue
		}

		if c == '"' || c == '\'' {
			quote = c
		}
		b.WriteByte(c)
	}

	if depth > 0 {
		return "", fmt.Errorf("unterminated comment")
	}
	return b.String(), nil
}

// indexOutsideLiterals returns the index of the first sep that is not inside
// a string literal, or -1.
func indexOutsideLiterals(s string, sep byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == sep:
			return i
		}
	}
	return -1
}

// substituteVariables replaces each $name outside string literals with the
// text returned by resolve.
func substituteVariables(body string, resolve func(name string) (string, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(body))

	var quote byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c != '$' {
			b.WriteByte(c)
			continue
		}

		j := i + 1
		if j >= len(body) || !isNameStart(body[j]) {
			return "", fmt.Errorf("malformed variable reference at offset %d", i)
		}
		for j < len(body) && isNameChar(body[j]) {
			j++
		}
		replacement, err := resolve(body[i+1 : j])
		if err != nil {
			return "", err
		}
		b.WriteString(replacement)
		i = j - 1
	}
	return b.String(), nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
