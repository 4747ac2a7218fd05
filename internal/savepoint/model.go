// Package savepoint implements the content-addressed, idempotent artifact
// store that every pipeline stage reads and writes through. A Store is bound
// to one story directory at a time; step ids may contain "/" to create
// nested folders (e.g. "chapter_3/scene_2").
package savepoint

import (
	"encoding/json"
	"errors"
	"strconv"
)

// Common errors for savepoint operations.
var (
	ErrNotBound       = errors.New("savepoint: store is not bound to a story")
	ErrUnsupportedType = errors.New("savepoint: value is neither scalar nor mapping/sequence")
	ErrCorrupt        = errors.New("savepoint: stored value is corrupt")
)

// Kind tags the runtime shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Value is the tagged-variant type recommended by the spec's design notes:
// a savepoint is either a scalar (string/int/float/bool/null) or a
// structured JSON-like value (map[string]any or []any).
type Value struct {
	Kind       Kind
	Str        string
	Int        int64
	Float      float64
	Bool       bool
	Structured any
}

// String wraps a string scalar.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int wraps an integer scalar.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float wraps a float scalar.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Bool wraps a boolean scalar.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Null returns the null scalar.
func Null() Value { return Value{Kind: KindNull} }

// Struct wraps a mapping or sequence (map[string]any / []any, or any value
// json/yaml can marshal as one of those two shapes).
func Struct(v any) Value { return Value{Kind: KindStructured, Structured: v} }

// IsScalar reports whether the value is one of string/int/float/bool/null.
func (v Value) IsScalar() bool { return v.Kind != KindStructured }

// AsText renders any Value as a string: scalars render their natural text
// form, structured values marshal to JSON. Used by callers (the executor,
// prompt assembly) that want savepoint content as plain text regardless of
// how it was originally typed.
func (v Value) AsText() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNull:
		return ""
	case KindStructured:
		b, err := json.Marshal(v.Structured)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Metadata is returned by LoadWithMetadata: the raw frontmatter plus body
// text, or {legacy_data: true} for pre-frontmatter files.
type Metadata map[string]any

// Entry is one (step id, value) pair yielded by ListAll.
type Entry struct {
	StepID string
	Value  Value
}
