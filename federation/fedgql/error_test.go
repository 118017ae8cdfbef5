package fedgql_test

import (
	"testing"

	"github.com/n9te9/federation-router/federation/fedgql"
)

func TestNew_SetsCodeAndServiceName(t *testing.T) {
	err := fedgql.New(fedgql.CodeSubgraphRequestFailure, "boom", []interface{}{"me", "reviews", 0}, "reviews")

	message, path, ext := fedgql.ToResponseFields(err)
	if message != "boom" {
		t.Errorf("message = %q, want %q", message, "boom")
	}
	if ext["code"] != fedgql.CodeSubgraphRequestFailure {
		t.Errorf("code = %v, want %v", ext["code"], fedgql.CodeSubgraphRequestFailure)
	}
	if ext["serviceName"] != "reviews" {
		t.Errorf("serviceName = %v, want \"reviews\"", ext["serviceName"])
	}

	want := []interface{}{"me", "reviews", 0}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("path[%d] = %v, want %v", i, path[i], want[i])
		}
	}
}

func TestNew_OmitsServiceNameWhenEmpty(t *testing.T) {
	err := fedgql.New(fedgql.CodeOperationNotFound, "no such operation", nil, "")
	_, _, ext := fedgql.ToResponseFields(err)
	if _, ok := ext["serviceName"]; ok {
		t.Error("serviceName extension should be absent when not given")
	}
}

func TestWithExtensions_DoesNotOverwriteExisting(t *testing.T) {
	err := fedgql.New(fedgql.CodeDownstreamServiceError, "failed", nil, "products")
	fedgql.WithExtensions(err, map[string]interface{}{
		"code":       "SHOULD_NOT_OVERWRITE",
		"retryAfter": 5,
	})

	_, _, ext := fedgql.ToResponseFields(err)
	if ext["code"] != fedgql.CodeDownstreamServiceError {
		t.Errorf("code = %v, should not have been overwritten", ext["code"])
	}
	if ext["retryAfter"] != 5 {
		t.Errorf("retryAfter = %v, want 5", ext["retryAfter"])
	}
}
