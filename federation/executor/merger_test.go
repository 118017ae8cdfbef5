package executor

import "testing"

func TestMergeFields_ExistingScalarWinsOverSource(t *testing.T) {
	target := map[string]interface{}{"name": "original"}
	source := map[string]interface{}{"name": "from-other-step", "weight": 4.5}

	mergeFields(target, source)

	if target["name"] != "original" {
		t.Errorf("name = %v, want the existing value to win", target["name"])
	}
	if target["weight"] != 4.5 {
		t.Errorf("weight = %v, want 4.5 to be added", target["weight"])
	}
}

func TestMergeFields_NestedObjectsMergeRecursively(t *testing.T) {
	target := map[string]interface{}{
		"product": map[string]interface{}{
			"id":   "p1",
			"name": "Widget",
		},
	}
	source := map[string]interface{}{
		"product": map[string]interface{}{
			"id":           "p1",
			"shippingCost": 3.25,
		},
	}

	mergeFields(target, source)

	product := target["product"].(map[string]interface{})
	if product["name"] != "Widget" {
		t.Errorf("product.name = %v, want Widget preserved", product["name"])
	}
	if product["shippingCost"] != 3.25 {
		t.Errorf("product.shippingCost = %v, want 3.25 merged in", product["shippingCost"])
	}
}

func TestMerge_RootPath(t *testing.T) {
	target := map[string]interface{}{"a": 1}
	if err := Merge(target, map[string]interface{}{"b": 2}, nil); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if target["a"] != 1 || target["b"] != 2 {
		t.Errorf("target = %v, want both a and b present", target)
	}
}

func TestMerge_ListPath(t *testing.T) {
	target := map[string]interface{}{
		"reviews": []interface{}{
			map[string]interface{}{"id": "r1", "body": "great"},
			map[string]interface{}{"id": "r2", "body": "meh"},
		},
	}
	source := []interface{}{
		map[string]interface{}{"author": map[string]interface{}{"name": "Alice"}},
		map[string]interface{}{"author": map[string]interface{}{"name": "Bob"}},
	}

	if err := Merge(target, source, []string{"reviews"}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	reviews := target["reviews"].([]interface{})
	r1 := reviews[0].(map[string]interface{})
	if r1["body"] != "great" {
		t.Errorf("reviews[0].body = %v, want great preserved", r1["body"])
	}
	author, ok := r1["author"].(map[string]interface{})
	if !ok || author["name"] != "Alice" {
		t.Errorf("reviews[0].author = %v, want Alice merged in", r1["author"])
	}
}

func TestMerge_ListLengthMismatchErrors(t *testing.T) {
	target := map[string]interface{}{
		"reviews": []interface{}{
			map[string]interface{}{"id": "r1"},
		},
	}
	source := []interface{}{
		map[string]interface{}{"body": "a"},
		map[string]interface{}{"body": "b"},
	}

	if err := Merge(target, source, []string{"reviews"}); err == nil {
		t.Fatal("expected an error for mismatched list lengths")
	}
}

func TestMerge_NestedPathCreatesIntermediateObject(t *testing.T) {
	target := map[string]interface{}{}
	if err := Merge(target, map[string]interface{}{"weight": 4.5}, []string{"product", "shippingInfo"}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	product, ok := target["product"].(map[string]interface{})
	if !ok {
		t.Fatalf("product = %v, want an intermediate map", target["product"])
	}
	shippingInfo, ok := product["shippingInfo"].(map[string]interface{})
	if !ok || shippingInfo["weight"] != 4.5 {
		t.Errorf("product.shippingInfo = %v, want weight 4.5", product["shippingInfo"])
	}
}
