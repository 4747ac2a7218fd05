package savepoint

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// frontmatter is the on-disk shape of every savepoint file's YAML header.
type frontmatter struct {
	Type string `yaml:"_type"`
	Data any    `yaml:"data,omitempty"`
}

// encode renders a Value as a markdown file: YAML frontmatter plus a human
// readable body. Structured values carry their payload in the frontmatter's
// `data` field; scalars are recoverable from the body's typed header alone,
// matching the spec's "scalars recoverable from body" invariant.
func encode(v Value) ([]byte, error) {
	var fm frontmatter
	var body strings.Builder

	switch v.Kind {
	case KindStructured:
		fm = frontmatter{Type: "structured", Data: v.Structured}
		body.WriteString("_(structured value; see frontmatter `data`)_\n")
	case KindString:
		fm = frontmatter{Type: "string"}
		fmt.Fprintf(&body, "**Value:** %s\n\n**Type:** string\n", v.Str)
	case KindInt:
		fm = frontmatter{Type: "int"}
		fmt.Fprintf(&body, "**Value:** %d\n\n**Type:** int\n", v.Int)
	case KindFloat:
		fm = frontmatter{Type: "float"}
		fmt.Fprintf(&body, "**Value:** %s\n\n**Type:** float\n", strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindBool:
		fm = frontmatter{Type: "bool"}
		fmt.Fprintf(&body, "**Value:** %t\n\n**Type:** bool\n", v.Bool)
	case KindNull:
		fm = frontmatter{Type: "null"}
		body.WriteString("**Value:** null\n\n**Type:** null\n")
	default:
		return nil, ErrUnsupportedType
	}

	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("savepoint: marshal frontmatter: %w", err)
	}

	var out strings.Builder
	out.WriteString(frontmatterDelim)
	out.WriteString("\n")
	out.Write(fmBytes)
	out.WriteString(frontmatterDelim)
	out.WriteString("\n")
	out.WriteString(body.String())

	return []byte(out.String()), nil
}

// decode parses a savepoint file back into a Value. Legacy files (no
// leading frontmatter delimiter) are treated as a raw string scalar whose
// content is the whole file, matching the "wrap legacy files" contract used
// by LoadWithMetadata for the metadata-aware path.
func decode(raw []byte) (Value, error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return String(strings.TrimRight(text, "\n")), nil
	}

	rest := strings.TrimPrefix(text, frontmatterDelim)
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return Value{}, fmt.Errorf("%w: missing closing frontmatter delimiter", ErrCorrupt)
	}

	fmText := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n"+frontmatterDelim):], "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	switch fm.Type {
	case "structured":
		return Struct(normalizeYAML(fm.Data)), nil
	case "string":
		return String(extractTypedValue(body)), nil
	case "int":
		n, err := strconv.ParseInt(extractTypedValue(body), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: bad int body: %v", ErrCorrupt, err)
		}
		return Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(extractTypedValue(body), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: bad float body: %v", ErrCorrupt, err)
		}
		return Float(f), nil
	case "bool":
		b, err := strconv.ParseBool(extractTypedValue(body))
		if err != nil {
			return Value{}, fmt.Errorf("%w: bad bool body: %v", ErrCorrupt, err)
		}
		return Bool(b), nil
	case "null":
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown _type %q", ErrCorrupt, fm.Type)
	}
}

// extractTypedValue pulls the text after "**Value:**" up to the blank line
// before the trailing "**Type:**" header out of a rendered scalar body.
func extractTypedValue(body string) string {
	const marker = "**Value:**"
	idx := strings.Index(body, marker)
	if idx < 0 {
		return ""
	}
	rest := body[idx+len(marker):]
	if end := strings.LastIndex(rest, "\n\n**Type:**"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// normalizeYAML converts yaml.v3's map[string]interface{} decoding (which
// yields map[string]any directly for mapping nodes) into plain
// map[string]any/[]any recursively, so downstream JSON consumers never see
// yaml-specific types.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
