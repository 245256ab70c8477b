package core

import (
	"fmt"
	"strings"
)

// Templates use {name} placeholders. {{ and }} render literal braces, and any
// brace that does not enclose a plain identifier is kept as text, so JSON or
// prose inside an instruction does not need escaping.

type tokenKind int

const (
	tokText tokenKind = iota
	tokPlaceholder
	tokOpenBrace
	tokCloseBrace
)

type token struct {
	kind tokenKind
	text string
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func scan(tmpl string, emit func(token)) {
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			emit(token{kind: tokText, text: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				flush()
				emit(token{kind: tokOpenBrace})
				i++
				continue
			}
			j := i + 1
			if j < len(tmpl) && isIdentStart(tmpl[j]) {
				for j < len(tmpl) && isIdentPart(tmpl[j]) {
					j++
				}
				if j < len(tmpl) && tmpl[j] == '}' {
					flush()
					emit(token{kind: tokPlaceholder, text: tmpl[i+1 : j]})
					i = j
					continue
				}
			}
			text.WriteByte(c)
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				flush()
				emit(token{kind: tokCloseBrace})
				i++
				continue
			}
			text.WriteByte(c)
		default:
			text.WriteByte(c)
		}
	}
	flush()
}

// Render substitutes every placeholder with the matching record field.
func Render(tmpl string, rec Record) (string, error) {
	var (
		out     strings.Builder
		missing string
	)
	scan(tmpl, func(t token) {
		if missing != "" {
			return
		}
		switch t.kind {
		case tokText:
			out.WriteString(t.text)
		case tokOpenBrace:
			out.WriteByte('{')
		case tokCloseBrace:
			out.WriteByte('}')
		case tokPlaceholder:
			v, ok := rec[t.text]
			if !ok {
				missing = t.text
				return
			}
			if v != nil {
				out.WriteString(fmt.Sprint(v))
			}
		}
	})
	if missing != "" {
		return "", &TemplateError{Template: tmpl, Field: missing}
	}
	return out.String(), nil
}

// Placeholders returns the distinct placeholder names in order of appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	scan(tmpl, func(t token) {
		if t.kind == tokPlaceholder && !seen[t.text] {
			seen[t.text] = true
			names = append(names, t.text)
		}
	})
	return names
}

// Escape turns arbitrary text into a template that renders back to itself.
func Escape(text string) string {
	text = strings.ReplaceAll(text, "{", "{{")
	return strings.ReplaceAll(text, "}", "}}")
}

// EscapeUnknown escapes every placeholder whose name is not in allowed.
func EscapeUnknown(tmpl string, allowed []string) string {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var out strings.Builder
	scan(tmpl, func(t token) {
		switch t.kind {
		case tokText:
			out.WriteString(t.text)
		case tokOpenBrace:
			out.WriteString("{{")
		case tokCloseBrace:
			out.WriteString("}}")
		case tokPlaceholder:
			if ok[t.text] {
				out.WriteString("{" + t.text + "}")
			} else {
				out.WriteString("{{" + t.text + "}}")
			}
		}
	})
	return out.String()
}

// RenderOutputLine renders an output template as "<description>:{<name>}" pairs
// joined by spaces, filled from rec. Absent fields render empty.
func RenderOutputLine(fields []Field, rec Record) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Description + ":" + rec.String(f.Name)
	}
	return strings.Join(parts, " ")
}
