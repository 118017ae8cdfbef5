package value

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// FromJSON decodes a JSON byte buffer into a Value tree, preserving object
// key order as encountered (first-seen order, matching the distilled
// spec's "ordered object" requirement). Numbers without a fractional part
// or exponent decode as KindInt; everything else numeric decodes as
// KindFloat.
//
// Unlike a plain Decode into interface{} (which loses object key order
// through Go's map type), this walks the token stream directly so that
// Members() on the result reflects the wire order of the subgraph
// response — required for deterministic re-serialization and for
// __typename-first conventions some subgraphs rely on.
func FromJSON(data []byte) (Value, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("value: decode json: %w", err)
	}
	return v, nil
}

func decodeValue(dec *gojson.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *gojson.Decoder, tok gojson.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, _ := t.Float64()
		return Float(f), nil
	case gojson.Delim:
		switch t {
		case gojson.Delim('['):
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Array(items), nil
		case gojson.Delim('{'):
			var members []Member
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := keyTok.(string)
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Object(members), nil
		}
	}
	return Null(), fmt.Errorf("value: unexpected token %v", tok)
}

// FromAny converts a generic decoded JSON value (as produced by
// encoding/json or goccy/go-json with UseNumber) into a Value tree.
func FromAny(raw interface{}) Value { return fromAny(raw) }

func fromAny(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(v)
	case string:
		return String(v)
	case gojson.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i)
		}
		f, _ := v.Float64()
		return Float(f)
	case float64:
		return Float(v)
	case []interface{}:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = fromAny(item)
		}
		return Array(items)
	case map[string]interface{}:
		// Plain maps have no stable order; used only for values built
		// programmatically (e.g. variables), never for parsed subgraph
		// responses, which always go through FromJSON above.
		members := make([]Member, 0, len(v))
		for k, val := range v {
			members = append(members, Member{Key: k, Value: fromAny(val)})
		}
		return Object(members)
	default:
		return Null()
	}
}

// ToAny converts a Value tree back into plain Go values suitable for
// encoding/json or goccy/go-json marshaling (map[string]interface{} and
// []interface{}), losing the ordering guarantee — used only at the final
// response-writing boundary, which instead prefers Writer for ordered
// output. ToAny exists for interop with subgraph request bodies built
// from variables maps.
func ToAny(v Value) interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolean
	case KindInt:
		return v.integer
	case KindFloat:
		return v.float
	case KindString:
		return v.str
	case KindArray:
		out := make([]interface{}, len(v.array))
		for i, item := range v.array {
			out[i] = ToAny(item)
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.members))
		for _, m := range v.members {
			out[m.Key] = ToAny(m.Value)
		}
		return out
	default:
		return nil
	}
}

