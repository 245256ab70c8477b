package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snow-ghost/skillforge/core"
)

// FallbackField holds the raw completion when it cannot be decoded.
const FallbackField = "output"

const repairInstruction = "Your previous reply did not follow the required output format. " +
	"Rewrite it so that it does, keeping the same content. Reply only with the fields."

// Decoded is the tagged outcome of decoding one completion. Exactly one of
// three cases holds: parsed directly, parsed after repair, or fallback.
type Decoded struct {
	Fields   core.Record
	Raw      string
	Repaired bool
	Fallback bool
}

// Outcome names the decode case for logs and metrics.
func (d Decoded) Outcome() string {
	switch {
	case d.Fallback:
		return "fallback"
	case d.Repaired:
		return "repaired"
	default:
		return "ok"
	}
}

// Contract renders the output format block appended to every input message.
func Contract(fields []core.Field) string {
	var b strings.Builder
	b.WriteString(`Fill in the fields below. Reply only with lines of the form "<field_name>: <value>", one per field, in this order.`)
	for _, f := range fields {
		desc := f.Description
		if desc == "" {
			desc = f.Name
		}
		fmt.Fprintf(&b, "\n%s: {%s}", desc, f.Name)
	}
	return b.String()
}

func repairPrompt(instruction, prompt, raw string, derr error, fields []core.Field) string {
	var b strings.Builder
	b.WriteString("Original request:\n")
	if instruction != "" {
		b.WriteString(instruction)
		b.WriteString("\n\n")
	}
	b.WriteString(prompt)
	b.WriteString("\n\nYour reply:\n")
	b.WriteString(raw)
	b.WriteString("\n\nProblem: ")
	b.WriteString(derr.Error())
	b.WriteString("\n\n")
	b.WriteString(Contract(fields))
	return b.String()
}

// parse extracts the declared fields from a completion. It accepts either
// "name: value" lines or a single JSON object carrying every field.
func parse(raw string, fields []core.Field) (core.Record, error) {
	if len(fields) == 0 {
		return core.Record{}, nil
	}
	if rec, ok := parseJSON(raw, fields); ok {
		return rec, nil
	}

	values := make(map[string]*strings.Builder, len(fields))
	var current *strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if name, value, ok := openField(line, fields); ok {
			if _, seen := values[name]; seen {
				// repeated field: ignore until the next opener
				current = nil
				continue
			}
			current = &strings.Builder{}
			current.WriteString(value)
			values[name] = current
			continue
		}
		if current != nil {
			current.WriteByte('\n')
			current.WriteString(line)
		}
	}

	rec := make(core.Record, len(fields))
	var missing []string
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		rec[f.Name] = strings.TrimSpace(v.String())
	}
	if len(missing) > 0 {
		return nil, &core.DecodeError{Missing: missing, Raw: raw}
	}
	return rec, nil
}

// openField reports whether line starts a declared field. The label may be
// the field name or its description, matched case-insensitively, with an
// optional bullet or bold markers around it.
func openField(line string, fields []core.Field) (string, string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "- ")
	s = strings.TrimPrefix(s, "* ")
	s = strings.TrimPrefix(s, "**")

	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return "", "", false
	}
	label := strings.TrimSpace(strings.TrimSuffix(s[:colon], "**"))
	value := strings.TrimPrefix(s[colon+1:], "**")

	for _, f := range fields {
		if strings.EqualFold(label, f.Name) || (f.Description != "" && strings.EqualFold(label, f.Description)) {
			return f.Name, strings.TrimSpace(value), true
		}
	}
	return "", "", false
}

func parseJSON(raw string, fields []core.Field) (core.Record, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	rec := make(core.Record, len(fields))
	for _, f := range fields {
		v, ok := obj[f.Name]
		if !ok {
			return nil, false
		}
		if str, isStr := v.(string); isStr {
			rec[f.Name] = str
		} else {
			rec[f.Name] = fmt.Sprint(v)
		}
	}
	return rec, true
}
