package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtTestSettings(t *testing.T) GatewayOption {
	schema := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
		}
		type Query {
			product(id: ID!): Product
		}
	`
	writeTestSchema(t, "testdata_product_jwt.graphql", schema)

	return GatewayOption{
		Endpoint:    "/graphql",
		ServiceName: "test-gateway",
		Port:        8080,
		Services: []GatewayService{
			{
				Name:        "product",
				Host:        "http://product.example.com",
				SchemaFiles: []string{"testdata_product_jwt.graphql"},
			},
		},
		JWTEnable: true,
		JWTSecret: "test-secret",
	}
}

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func postGraphQL(t *testing.T, gw *gateway, query, authHeader string) map[string]any {
	t.Helper()
	body, _ := json.Marshal(graphQLRequest{Query: query})
	httpReq := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	if authHeader != "" {
		httpReq.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, httpReq)

	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	return resp
}

func TestGateway_JWTStage_RejectsInvalidToken(t *testing.T) {
	settings := jwtTestSettings(t)
	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	resp := postGraphQL(t, gw, `{ product(id: "1") { id } }`, "Bearer not-a-real-token")
	errs, ok := resp["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", resp["errors"])
	}
	errMap := errs[0].(map[string]any)
	ext := errMap["extensions"].(map[string]any)
	if ext["code"] != "JWT_INVALID" {
		t.Errorf("code = %v, want JWT_INVALID", ext["code"])
	}
}

func TestGateway_JWTStage_RejectsWrongSigningSecret(t *testing.T) {
	settings := jwtTestSettings(t)
	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	token := signTestToken(t, "wrong-secret", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	resp := postGraphQL(t, gw, `{ product(id: "1") { id } }`, "Bearer "+token)
	errs, ok := resp["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", resp["errors"])
	}
	ext := errs[0].(map[string]any)["extensions"].(map[string]any)
	if ext["code"] != "JWT_INVALID" {
		t.Errorf("code = %v, want JWT_INVALID", ext["code"])
	}
}

func TestGateway_JWTStage_AcceptsValidToken(t *testing.T) {
	settings := jwtTestSettings(t)
	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	token := signTestToken(t, "test-secret", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	resp := postGraphQL(t, gw, `{ product(id: "1") { id } }`, "Bearer "+token)
	if errs, ok := resp["errors"].([]any); ok {
		for _, e := range errs {
			if ext, ok := e.(map[string]any)["extensions"].(map[string]any); ok && ext["code"] == "JWT_INVALID" {
				t.Errorf("valid token should not be rejected, got errors: %v", errs)
			}
		}
	}
}

func TestGateway_JWTStage_MissingTokenPassesThroughWhenNotRequired(t *testing.T) {
	settings := jwtTestSettings(t)
	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	resp := postGraphQL(t, gw, `{ product(id: "1") { id } }`, "")
	if errs, ok := resp["errors"].([]any); ok {
		for _, e := range errs {
			if ext, ok := e.(map[string]any)["extensions"].(map[string]any); ok && ext["code"] == "JWT_MISSING" {
				t.Error("JWTRequired is false, missing token should not be rejected")
			}
		}
	}
}

func TestGateway_JWTStage_MissingTokenRejectedWhenRequired(t *testing.T) {
	settings := jwtTestSettings(t)
	settings.JWTRequired = true
	gw, err := NewGateway(settings)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	resp := postGraphQL(t, gw, `{ product(id: "1") { id } }`, "")
	errs, ok := resp["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", resp["errors"])
	}
	ext := errs[0].(map[string]any)["extensions"].(map[string]any)
	if ext["code"] != "JWT_MISSING" {
		t.Errorf("code = %v, want JWT_MISSING", ext["code"])
	}
}
