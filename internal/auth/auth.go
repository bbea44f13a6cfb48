// Package auth provides Alpaca API credentials for REST requests and the
// market data stream.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Header names Alpaca expects on every REST request.
const (
	HeaderKeyID  = "APCA-API-KEY-ID"
	HeaderSecret = "APCA-API-SECRET-KEY"
)

// Credentials holds an API key pair.
type Credentials struct {
	KeyID  string // API key ID from the Alpaca dashboard
	Secret string
}

// LoadCredentials builds credentials from a key ID and either a secret or a
// path to a file holding it. The file wins when both are set.
func LoadCredentials(keyID, secret, secretPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("API key ID is required")
	}
	if secretPath != "" {
		s, err := LoadSecret(secretPath)
		if err != nil {
			return nil, fmt.Errorf("load secret: %w", err)
		}
		secret = s
	}
	if secret == "" {
		return nil, errors.New("API secret is required")
	}

	return &Credentials{
		KeyID:  keyID,
		Secret: secret,
	}, nil
}

// LoadSecret reads a secret from a file, ignoring surrounding whitespace.
func LoadSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// Headers returns the authentication headers for a REST request.
func (c *Credentials) Headers() map[string]string {
	return map[string]string{
		HeaderKeyID:  c.KeyID,
		HeaderSecret: c.Secret,
	}
}

// Apply sets the authentication headers on h.
func (c *Credentials) Apply(h http.Header) {
	for k, v := range c.Headers() {
		h.Set(k, v)
	}
}

// StreamAuth is the first message sent on a market data stream.
type StreamAuth struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// StreamMessage returns the stream authentication message.
func (c *Credentials) StreamMessage() StreamAuth {
	return StreamAuth{Action: "auth", Key: c.KeyID, Secret: c.Secret}
}
