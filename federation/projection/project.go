// Package projection walks a merged response tree alongside a client's
// original selection set, producing the GraphQL response shape the client
// actually asked for (aliases honored, unrequested fields dropped,
// __typename synthesized, inline fragments filtered by type condition) and
// enforcing the non-null propagation rule: a null (or missing) value at a
// non-null position becomes a field error at that path, and the null
// propagates up to the nearest nullable ancestor.
package projection

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// Schema is the lookup projection needs from the composed supergraph:
// nullability and named-type information for response shaping, and
// possible-type membership for fragment type-condition matching against
// interfaces and unions. *graph.SuperGraph satisfies this.
type Schema interface {
	IsNonNullField(typeName, fieldName string) bool
	FieldTypeName(typeName, fieldName string) string
	IsPossibleType(abstractTypeName, concreteTypeName string) bool
}

// Error is a nullability violation discovered while shaping the response.
type Error struct {
	Message string
	Path    []interface{}
}

// Project prunes and reshapes obj according to selections, returning the
// reshaped value and any nullability errors accumulated while walking it.
// rootTypeName is the operation's root schema type (e.g. "Query"). schema
// may be nil, in which case fragments only match by literal type-condition
// equality and no field is treated as non-null.
func Project(obj interface{}, selections []ast.Selection, schema Schema, rootTypeName string) (interface{}, []Error) {
	value, errs, _ := projectValue(obj, selections, schema, rootTypeName, nil, false)
	return value, errs
}

// projectValue projects a single value (object, list, or leaf). nonNull is
// whether the schema position obj occupies is non-null; the third return
// value reports whether a descendant's non-null violation bubbled a null up
// to this value, in which case the caller must decide whether to keep
// bubbling further.
func projectValue(obj interface{}, selections []ast.Selection, schema Schema, typeName string, path []interface{}, nonNull bool) (interface{}, []Error, bool) {
	if obj == nil {
		if nonNull {
			return nil, []Error{nonNullViolation(typeName, path)}, true
		}
		return nil, nil, false
	}

	switch v := obj.(type) {
	case map[string]interface{}:
		result, errs, bubbled := projectObject(v, selections, schema, typeName, path)
		if bubbled {
			return nil, errs, nonNull
		}
		return result, errs, false
	case []interface{}:
		out := make([]interface{}, len(v))
		var errs []Error
		bubbled := false
		for i, item := range v {
			itemPath := appendPath(path, i)
			val, itemErrs, itemBubbled := projectValue(item, selections, schema, typeName, itemPath, nonNull)
			errs = append(errs, itemErrs...)
			out[i] = val
			if itemBubbled {
				bubbled = true
			}
		}
		if bubbled {
			return nil, errs, nonNull
		}
		return out, errs, false
	default:
		return v, nil, false
	}
}

func projectObject(obj map[string]interface{}, selections []ast.Selection, schema Schema, typeName string, path []interface{}) (map[string]interface{}, []Error, bool) {
	result := make(map[string]interface{})
	actualType, _ := obj["__typename"].(string)
	if actualType == "" {
		actualType = typeName
	}

	var errs []Error

	for _, sel := range flattenFragments(selections, actualType, schema) {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}

		fieldName := field.Name.String()
		responseKey := fieldName
		if field.Alias != nil && field.Alias.String() != "" {
			responseKey = field.Alias.String()
		}
		fieldPath := appendPath(path, responseKey)

		if fieldName == "__typename" {
			if actualType != "" {
				result[responseKey] = actualType
			} else if _, exists := result[responseKey]; !exists {
				result[responseKey] = nil
			}
			continue
		}

		value, exists := obj[fieldName]
		if !exists && responseKey != fieldName {
			value, exists = obj[responseKey]
		}

		nonNull := schema != nil && schema.IsNonNullField(actualType, fieldName)

		if !exists {
			if nonNull {
				errs = append(errs, nonNullViolation(actualType+"."+fieldName, fieldPath))
				return nil, errs, true
			}
			continue
		}

		if len(field.SelectionSet) > 0 {
			childType := ""
			if schema != nil {
				childType = schema.FieldTypeName(actualType, fieldName)
			}
			val, childErrs, bubbled := projectValue(value, field.SelectionSet, schema, childType, fieldPath, nonNull)
			errs = append(errs, childErrs...)
			if bubbled && nonNull {
				return nil, errs, true
			}
			result[responseKey] = val
			continue
		}

		if value == nil && nonNull {
			errs = append(errs, nonNullViolation(actualType+"."+fieldName, fieldPath))
			return nil, errs, true
		}
		result[responseKey] = value
	}

	return result, errs, false
}

func nonNullViolation(subject string, path []interface{}) Error {
	return Error{
		Message: fmt.Sprintf("Cannot return null for non-nullable field %s", subject),
		Path:    append([]interface{}{}, path...),
	}
}

func appendPath(path []interface{}, seg interface{}) []interface{} {
	out := make([]interface{}, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// flattenFragments inlines fragment selections whose type condition is
// satisfied by typeName, dropping the rest, so projectObject only ever deals
// with a flat list of fields.
func flattenFragments(selections []ast.Selection, typeName string, schema Schema) []ast.Selection {
	out := make([]ast.Selection, 0, len(selections))
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.InlineFragment:
			if satisfiesTypeCondition(s, typeName, schema) {
				out = append(out, flattenFragments(s.SelectionSet, typeName, schema)...)
			}
		default:
			out = append(out, sel)
		}
	}
	return out
}

// satisfiesTypeCondition reports whether typeName (the concrete runtime
// type of the object being projected) satisfies frag's type condition. A
// condition naming an interface or union is satisfied by any of its
// possible types, per schema.IsPossibleType.
func satisfiesTypeCondition(frag *ast.InlineFragment, typeName string, schema Schema) bool {
	if frag.TypeCondition == nil {
		return true
	}
	condName := frag.TypeCondition.String()
	if condName == "" || typeName == "" || condName == typeName {
		return true
	}
	if schema != nil {
		return schema.IsPossibleType(condName, typeName)
	}
	return false
}
