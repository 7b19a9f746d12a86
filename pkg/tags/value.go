// Package tags implements typed key/value metadata about the current
// user and device: a closed union value type, category-based protection
// rules, session bookkeeping and a sqlite-backed store.
package tags

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type is the declared type of a tag value.
type Type string

const (
	TypeNumber    Type = "number"
	TypeString    Type = "string"
	TypeBoolean   Type = "boolean"
	TypeTimestamp Type = "timestamp"
)

// Category controls who may write or remove a tag.
type Category string

const (
	CategoryUser     Category = "user"
	CategoryInternal Category = "internal"
	CategoryCustomer Category = "customer"
)

// ReservedPrefix marks keys only internal subsystems may write. The public
// user-tag entry point rejects them.
const ReservedPrefix = "echoed_"

// IsReservedKey reports whether key starts with the reserved prefix.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Value is a tag value. The type is fixed at construction, so a Value can
// never hold data that disagrees with its declared type. Timestamps are
// normalized to fractional seconds since the Unix epoch.
type Value struct {
	typ Type
	num float64
	str string
	b   bool
}

// Number returns a number-typed value.
func Number(f float64) Value { return Value{typ: TypeNumber, num: f} }

// String returns a string-typed value.
func String(s string) Value { return Value{typ: TypeString, str: s} }

// Boolean returns a boolean-typed value.
func Boolean(b bool) Value { return Value{typ: TypeBoolean, b: b} }

// Timestamp returns a timestamp-typed value normalized to epoch seconds.
func Timestamp(t time.Time) Value {
	return Value{typ: TypeTimestamp, num: float64(t.UnixNano()) / float64(time.Second)}
}

// TimestampEpoch returns a timestamp-typed value from raw epoch seconds.
func TimestampEpoch(epoch float64) Value {
	return Value{typ: TypeTimestamp, num: epoch}
}

// Type returns the declared type.
func (v Value) Type() Type { return v.typ }

// IsZero reports whether v is the zero Value (no type).
func (v Value) IsZero() bool { return v.typ == "" }

// Raw returns the backend-ready representation: float64 for numbers and
// timestamps, string for strings, bool for booleans.
func (v Value) Raw() any {
	switch v.typ {
	case TypeNumber, TypeTimestamp:
		return v.num
	case TypeString:
		return v.str
	case TypeBoolean:
		return v.b
	}
	return nil
}

// Float returns the numeric value for number and timestamp types.
func (v Value) Float() (float64, bool) {
	if v.typ == TypeNumber || v.typ == TypeTimestamp {
		return v.num, true
	}
	return 0, false
}

// Str returns the string value for string types.
func (v Value) Str() (string, bool) {
	if v.typ == TypeString {
		return v.str, true
	}
	return "", false
}

// Bool returns the boolean value for boolean types.
func (v Value) Bool() (bool, bool) {
	if v.typ == TypeBoolean {
		return v.b, true
	}
	return false, false
}

// Time returns the timestamp value as a time.Time.
func (v Value) Time() (time.Time, bool) {
	if v.typ != TypeTimestamp {
		return time.Time{}, false
	}
	sec := int64(v.num)
	nsec := int64((v.num - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), true
}

// Equal reports whether two values have the same type and payload.
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.typ {
	case TypeNumber, TypeTimestamp:
		return fmt.Sprintf("%g", v.num)
	case TypeString:
		return v.str
	case TypeBoolean:
		return fmt.Sprintf("%t", v.b)
	}
	return "<unset>"
}

// wireValue is the persisted / transmitted JSON shape.
type wireValue struct {
	Type  Type            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes a discriminated {type, value} object.
func (v Value) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(v.Raw())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.typ, Value: raw})
}

// UnmarshalJSON decodes the discriminated {type, value} shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := parsePayload(w.Type, w.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func parsePayload(t Type, raw json.RawMessage) (Value, error) {
	switch t {
	case TypeNumber, TypeTimestamp:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, fmt.Errorf("%s payload: %w", t, err)
		}
		return Value{typ: t, num: f}, nil
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("string payload: %w", err)
		}
		return String(s), nil
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("boolean payload: %w", err)
		}
		return Boolean(b), nil
	}
	return Value{}, fmt.Errorf("unknown tag type %q", t)
}

// FromRaw validates and normalizes a dynamically-typed value against a
// declared type. Numbers accept any Go numeric type; timestamps accept a
// time.Time, a numeric epoch, or an RFC 3339 string. A mismatch returns an
// error and callers must leave the store untouched.
func FromRaw(raw any, t Type) (Value, error) {
	switch t {
	case TypeNumber:
		f, ok := toFloat(raw)
		if !ok {
			return Value{}, fmt.Errorf("value %T is not a number", raw)
		}
		return Number(f), nil
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("value %T is not a string", raw)
		}
		return String(s), nil
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("value %T is not a boolean", raw)
		}
		return Boolean(b), nil
	case TypeTimestamp:
		switch tv := raw.(type) {
		case time.Time:
			return Timestamp(tv), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, tv)
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a timestamp: %w", tv, err)
			}
			return Timestamp(parsed), nil
		default:
			if f, ok := toFloat(raw); ok {
				return TimestampEpoch(f), nil
			}
			return Value{}, fmt.Errorf("value %T is not a timestamp", raw)
		}
	}
	return Value{}, fmt.Errorf("unknown tag type %q", t)
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Tag is a single store entry.
type Tag struct {
	Key      string
	Value    Value
	Category Category
}
