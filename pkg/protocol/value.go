package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind discriminates the variants of Value, the generic schema-less
// wire representation used for func_params and result.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueList
	ValueMap
)

// Value is a tagged union over the handful of JSON-shaped value kinds a task
// handler can send or return. It exists as its own wire type (rather than
// round-tripping bare interface{} through the JSON codec) so FromWire can
// walk it without reflection and so a future non-JSON codec would have a
// concrete shape to marshal.
type Value struct {
	Kind ValueKind

	BoolVal   bool
	NumberVal float64
	StringVal string
	ListVal   []*Value
	MapVal    map[string]*Value
}

// NewValue converts a plain Go value (as produced by encoding/json or
// constructed by a handler) into a Value tree. Unsupported types become
// their string representation rather than erroring, matching the
// schema-less, best-effort nature of func_params/result.
func NewValue(v any) *Value {
	switch x := v.(type) {
	case nil:
		return &Value{Kind: ValueNull}
	case bool:
		return &Value{Kind: ValueBool, BoolVal: x}
	case float64:
		return &Value{Kind: ValueNumber, NumberVal: x}
	case int:
		return &Value{Kind: ValueNumber, NumberVal: float64(x)}
	case int64:
		return &Value{Kind: ValueNumber, NumberVal: float64(x)}
	case uint32:
		return &Value{Kind: ValueNumber, NumberVal: float64(x)}
	case uint64:
		return &Value{Kind: ValueNumber, NumberVal: float64(x)}
	case string:
		return &Value{Kind: ValueString, StringVal: x}
	case []any:
		list := make([]*Value, len(x))
		for i, e := range x {
			list[i] = NewValue(e)
		}
		return &Value{Kind: ValueList, ListVal: list}
	case map[string]any:
		m := make(map[string]*Value, len(x))
		for k, e := range x {
			m[k] = NewValue(e)
		}
		return &Value{Kind: ValueMap, MapVal: m}
	default:
		return &Value{Kind: ValueString, StringVal: fmt.Sprintf("%v", x)}
	}
}

// ToGo converts a Value tree back into plain Go values (map[string]any,
// []any, float64, string, bool, nil) for handler consumption.
func (v *Value) ToGo() any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ValueNull:
		return nil
	case ValueBool:
		return v.BoolVal
	case ValueNumber:
		return v.NumberVal
	case ValueString:
		return v.StringVal
	case ValueList:
		list := make([]any, len(v.ListVal))
		for i, e := range v.ListVal {
			list[i] = e.ToGo()
		}
		return list
	case ValueMap:
		m := make(map[string]any, len(v.MapVal))
		for k, e := range v.MapVal {
			m[k] = e.ToGo()
		}
		return m
	default:
		return nil
	}
}

// ValueMapFrom converts a plain map into a wire Value map, the shape
// FuncParams/Result take on WireTask.
func ValueMapFrom(m map[string]any) map[string]*Value {
	if m == nil {
		return nil
	}
	out := make(map[string]*Value, len(m))
	for k, v := range m {
		out[k] = NewValue(v)
	}
	return out
}

// ValueMapTo converts a wire Value map back into a plain Go map. Unknown
// keys are simply carried through, since there is no schema to reject them
// against.
func ValueMapTo(m map[string]*Value) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.ToGo()
	}
	return out
}

// MarshalJSON renders Value as the plain JSON value it represents, so the
// "dts-json" codec produces ordinary-looking JSON on the wire instead of an
// exposed Kind/Val envelope.
func (v *Value) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueBool:
		return json.Marshal(v.BoolVal)
	case ValueNumber:
		return json.Marshal(v.NumberVal)
	case ValueString:
		return json.Marshal(v.StringVal)
	case ValueList:
		return json.Marshal(v.ListVal)
	case ValueMap:
		keys := make([]string, 0, len(v.MapVal))
		for k := range v.MapVal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			vb, err := json.Marshal(v.MapVal[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers a Value's Kind from the shape of the incoming JSON
// token, tolerating any structure since there is no schema to validate
// against.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	*v = *NewValue(probe)
	return nil
}
