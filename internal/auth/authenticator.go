// Package auth provides request authentication for outbound HTTP calls.
package auth

import (
	"fmt"
	"net/http"

	"github.com/clarityops/clarity/internal/security"
)

// Authenticator adds credentials to an outgoing HTTP request.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// APIKey authenticates requests with a static bearer key.
type APIKey struct {
	key string
}

// NewAPIKey creates an authenticator for the given key
func NewAPIKey(key string) (*APIKey, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &APIKey{key: key}, nil
}

// Authenticate sets the Authorization header
func (a *APIKey) Authenticate(req *http.Request) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if a.key == "" {
		return fmt.Errorf("api key is empty")
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	return nil
}

// Masked returns the key masked for safe logging.
func (a *APIKey) Masked() string {
	return security.MaskAPIKey(a.key)
}
