// Package payload defines the opaque event data applications hand to the
// metrics library. The system treats a Payload as a bag of tagged values;
// it never inspects individual fields beyond what serialization requires.
package payload

import (
	"encoding/json"
	"fmt"
)

// Payload is a mapping from string key to tagged scalar or nested value.
// Callers construct a Payload; the library only ever serializes it.
type Payload map[string]Value

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInt64 Kind = iota
	KindFloat64
	KindString
	KindBool
	KindList
	KindMap
)

// Value is a tagged scalar or nested variant, matching spec.md's
// "mapping from string to tagged variant" data model. Exactly one of the
// typed fields is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Int64  int64
	Float  float64
	Str    string
	Bool   bool
	List   []Value
	Map    map[string]Value
}

func Int(v int64) Value           { return Value{Kind: KindInt64, Int64: v} }
func Float(v float64) Value       { return Value{Kind: KindFloat64, Float: v} }
func String(v string) Value       { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value           { return Value{Kind: KindBool, Bool: v} }
func List(v []Value) Value        { return Value{Kind: KindList, List: v} }
func Map(v map[string]Value) Value { return Value{Kind: KindMap, Map: v} }

// MarshalJSON renders the Value as whichever JSON primitive its Kind holds.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt64:
		return json.Marshal(v.Int64)
	case KindFloat64:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		return json.Marshal(v.List)
	case KindMap:
		return json.Marshal(v.Map)
	default:
		return nil, fmt.Errorf("payload: unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON reconstructs a Value from its JSON primitive, inferring Kind
// from the JSON token. Used when replaying queued payloads from disk.
func (v *Value) UnmarshalJSON(data []byte) error {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	*v = fromGeneric(generic)
	return nil
}

func fromGeneric(g interface{}) Value {
	switch t := g.(type) {
	case nil:
		return Value{Kind: KindString, Str: ""}
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = fromGeneric(e)
		}
		return List(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = fromGeneric(e)
		}
		return Map(out)
	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", t)}
	}
}
