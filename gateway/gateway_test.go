package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func writeTestSchema(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test schema: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })
}

func TestGateway_ValidateAccessibility(t *testing.T) {
	schema := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
			internalCode: String! @inaccessible
		}

		type Query {
			product(id: ID!): Product
		}
	`
	writeTestSchema(t, "testdata_product_inaccessible.graphql", schema)

	settings := GatewayOption{
		Endpoint:    "/graphql",
		ServiceName: "test-gateway",
		Port:        8080,
		Services: []GatewayService{
			{
				Name:        "product",
				Host:        "http://product.example.com",
				SchemaFiles: []string{"testdata_product_inaccessible.graphql"},
			},
		},
	}

	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	t.Run("query inaccessible field should fail", func(t *testing.T) {
		query := `{ product(id: "1") { id internalCode } }`
		body, _ := json.Marshal(graphQLRequest{Query: query})
		httpReq := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
		w := httptest.NewRecorder()
		gw.ServeHTTP(w, httpReq)

		var resp map[string]any
		json.NewDecoder(w.Body).Decode(&resp)
		errs, ok := resp["errors"].([]any)
		if !ok || len(errs) == 0 {
			t.Fatal("expected errors in response")
		}
		errMap, ok := errs[0].(map[string]any)
		if !ok {
			t.Fatal("expected error entry to be an object")
		}
		ext, ok := errMap["extensions"].(map[string]any)
		if !ok {
			t.Fatal("expected error extensions")
		}
		if code, _ := ext["code"].(string); code != "INACCESSIBLE_FIELD" {
			t.Errorf("expected error code INACCESSIBLE_FIELD, got: %v", ext["code"])
		}
	})

	t.Run("introspection disabled", func(t *testing.T) {
		disabledSettings := settings
		disabledSettings.IntrospectionDisabledExpr = "always:true"

		gw, err := NewGateway(disabledSettings)
		if err != nil {
			t.Fatalf("NewGateway failed: %v", err)
		}

		query := `{ __schema { queryType { name } } }`
		body, _ := json.Marshal(graphQLRequest{Query: query})
		httpReq := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
		w := httptest.NewRecorder()
		gw.ServeHTTP(w, httpReq)

		var resp map[string]any
		json.NewDecoder(w.Body).Decode(&resp)
		errs, ok := resp["errors"].([]any)
		if !ok || len(errs) != 1 {
			t.Fatalf("expected exactly one error, got %v", resp["errors"])
		}
		errMap := errs[0].(map[string]any)
		if errMap["message"] != "Introspection queries are disabled." {
			t.Errorf("message = %v", errMap["message"])
		}
		ext := errMap["extensions"].(map[string]any)
		if ext["code"] != "INTROSPECTION_DISABLED" {
			t.Errorf("code = %v, want INTROSPECTION_DISABLED", ext["code"])
		}
	})

	t.Run("query accessible field should not report inaccessible errors", func(t *testing.T) {
		query := `{ product(id: "1") { id name } }`
		body, _ := json.Marshal(graphQLRequest{Query: query})
		httpReq := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
		w := httptest.NewRecorder()
		gw.ServeHTTP(w, httpReq)

		var resp map[string]any
		json.NewDecoder(w.Body).Decode(&resp)
		if errs, ok := resp["errors"].([]any); ok {
			for _, e := range errs {
				if errMap, ok := e.(map[string]any); ok {
					if ext, ok := errMap["extensions"].(map[string]any); ok {
						if code, _ := ext["code"].(string); code == "INACCESSIBLE_FIELD" {
							t.Error("expected no INACCESSIBLE_FIELD error")
						}
					}
				}
			}
		}
	})
}
