// Package value implements the router's tagged response-value tree: the
// shape every subgraph response is parsed into, merged against, and
// eventually projected out of.
package value

import (
	"fmt"
	"sort"
)

// Kind tags the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// Member is one ordered key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Value is a tagged JSON-like tree. The zero Value is Null.
//
// Objects built with Object preserve first-seen insertion order (Members is
// an ordered slice, not a map) so that re-serialization is deterministic;
// objects built with NewObject keep their members sorted by key so Get can
// binary-search them.
type Value struct {
	kind    Kind
	boolean bool
	integer int64
	float   float64
	str     string
	array   []Value
	members []Member
	sorted  bool
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, boolean: b} }
func Int(i int64) Value           { return Value{kind: KindInt, integer: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, float: f} }
func String(s string) Value       { return Value{kind: KindString, str: s} }
func Array(items []Value) Value   { return Value{kind: KindArray, array: items} }
func Object(members []Member) Value {
	return Value{kind: KindObject, members: members}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Bool() bool     { return v.boolean }
func (v Value) Int() int64     { return v.integer }
func (v Value) Float() float64 { return v.float }
func (v Value) Str() string    { return v.str }
func (v Value) Array() []Value { return v.array }
func (v Value) Members() []Member {
	return v.members
}

// Get performs a lookup by key, preferring a binary search when the object
// has been built through NewObject (which keeps members sorted), and
// falling back to a linear scan for objects assembled ad hoc (e.g. during
// incremental merge, where insertion order must be preserved for output
// but lookups still need to work before a final sort happens).
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	if v.sorted {
		i := sort.Search(len(v.members), func(i int) bool { return v.members[i].Key >= key })
		if i < len(v.members) && v.members[i].Key == key {
			return v.members[i].Value, true
		}
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// TypeName returns the value of the __typename member of an object, if any.
func (v Value) TypeName() (string, bool) {
	tn, ok := v.Get("__typename")
	if !ok || tn.Kind() != KindString {
		return "", false
	}
	return tn.str, true
}

// NewObject builds an object from a copy of members sorted by key, for
// binary-search lookups; Members() on the result returns that key order,
// not insertion order. Callers that need insertion order for
// re-serialization should use Object() directly and avoid NewObject until
// the tree is final.
func NewObject(members []Member) Value {
	sortedMembers := make([]Member, len(members))
	copy(sortedMembers, members)
	sort.Slice(sortedMembers, func(i, j int) bool { return sortedMembers[i].Key < sortedMembers[j].Key })
	return Value{kind: KindObject, members: sortedMembers, sorted: true}
}

// WithMember returns a copy of the object with key set to val, replacing an
// existing member with the same key in place or appending otherwise.
func (v Value) WithMember(key string, val Value) Value {
	if v.kind != KindObject {
		return NewObject([]Member{{Key: key, Value: val}})
	}
	members := make([]Member, len(v.members))
	copy(members, v.members)
	for i, m := range members {
		if m.Key == key {
			members[i].Value = val
			return Value{kind: KindObject, members: members, sorted: v.sorted}
		}
	}
	members = append(members, Member{Key: key, Value: val})
	if v.sorted {
		return NewObject(members)
	}
	return Value{kind: KindObject, members: members}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolean)
	case KindInt:
		return fmt.Sprintf("%d", v.integer)
	case KindFloat:
		return fmt.Sprintf("%g", v.float)
	case KindString:
		return v.str
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.array))
	case KindObject:
		return fmt.Sprintf("object[%d]", len(v.members))
	default:
		return "?"
	}
}
