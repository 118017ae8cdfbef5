package gateway

import "net/http"

// BuildEngineForTest exposes buildEngine to the external gateway_test package.
func BuildEngineForTest(sdls, hosts map[string]string, httpClient *http.Client) (*executionEngine, error) {
	return buildEngine(sdls, hosts, httpClient)
}

// CopyMapForTest exposes copyMap to the external gateway_test package.
func CopyMapForTest(m map[string]string) map[string]string {
	return copyMap(m)
}

// FetchSDLForTest exposes fetchSDL to the external gateway_test package.
func FetchSDLForTest(host string, httpClient *http.Client, retry RetryOption) (string, error) {
	return fetchSDL(host, httpClient, retry)
}
