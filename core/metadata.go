package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// ScalarKind identifies the variant held by a Scalar.
type ScalarKind uint8

const (
	// KindString marks a string scalar.
	KindString ScalarKind = iota + 1
	// KindNumber marks a float64 scalar.
	KindNumber
	// KindBool marks a boolean scalar.
	KindBool
)

// String returns the lowercase name of the kind.
func (k ScalarKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Scalar is a tagged union of string, number and bool. The zero value is
// invalid and is rejected by MarshalJSON.
type Scalar struct {
	kind ScalarKind
	str  string
	num  float64
	b    bool
}

// String constructs a string scalar.
func String(s string) Scalar { return Scalar{kind: KindString, str: s} }

// Number constructs a numeric scalar.
func Number(n float64) Scalar { return Scalar{kind: KindNumber, num: n} }

// Bool constructs a boolean scalar.
func Bool(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

// Kind reports which variant the scalar holds.
func (s Scalar) Kind() ScalarKind { return s.kind }

// Str returns the string value and whether the scalar is a string.
func (s Scalar) Str() (string, bool) { return s.str, s.kind == KindString }

// Num returns the numeric value and whether the scalar is a number.
func (s Scalar) Num() (float64, bool) { return s.num, s.kind == KindNumber }

// BoolValue returns the boolean value and whether the scalar is a bool.
func (s Scalar) BoolValue() (bool, bool) { return s.b, s.kind == KindBool }

// Text renders the scalar for display.
func (s Scalar) Text() string {
	switch s.kind {
	case KindString:
		return s.str
	case KindNumber:
		return strconv.FormatFloat(s.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(s.b)
	default:
		return ""
	}
}

// MarshalJSON encodes the scalar as its native JSON value.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case KindString:
		return json.Marshal(s.str)
	case KindNumber:
		return json.Marshal(s.num)
	case KindBool:
		return json.Marshal(s.b)
	default:
		return nil, fmt.Errorf("cannot marshal invalid scalar")
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty scalar")
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = String(v)
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Bool(v)
	case '{', '[', 'n':
		return fmt.Errorf("unsupported metadata value %s: only string, number and bool are allowed", string(data))
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Number(v)
	}

	return nil
}

// Metadata is an open string keyed map of scalar values attached to nodes and edges.
type Metadata map[string]Scalar

// Clone returns a copy that never aliases the receiver. A nil receiver yields
// an empty, non-nil map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// Merge shallowly copies every entry of delta into m, overwriting existing keys.
func (m Metadata) Merge(delta Metadata) {
	maps.Copy(m, delta)
}

// GetString returns the value for key when it holds a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

// GetBool returns the value for key when it holds a bool.
func (m Metadata) GetBool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	return v.BoolValue()
}

// MetadataFrom converts a loosely typed map into Metadata. Integers and floats
// become numbers; values of any other type are rejected.
func MetadataFrom(in map[string]any) (Metadata, error) {
	out := make(Metadata, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case string:
			out[k] = String(tv)
		case bool:
			out[k] = Bool(tv)
		case float64:
			out[k] = Number(tv)
		case float32:
			out[k] = Number(float64(tv))
		case int:
			out[k] = Number(float64(tv))
		case int64:
			out[k] = Number(float64(tv))
		case int32:
			out[k] = Number(float64(tv))
		case Scalar:
			out[k] = tv
		default:
			return nil, fmt.Errorf("metadata key %q: unsupported value type %T", k, v)
		}
	}
	return out, nil
}
