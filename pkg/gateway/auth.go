package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// maxAuthAttempts is the number of failed signatures tolerated before the
// connection is dropped.
const maxAuthAttempts = 3

// Authenticator issues challenges and verifies HMAC-SHA256 signatures made
// with the gateway's shared secret.
type Authenticator struct {
	sharedSecret string
}

// NewAuthenticator creates an authenticator for the given shared secret.
func NewAuthenticator(sharedSecret string) *Authenticator {
	return &Authenticator{sharedSecret: sharedSecret}
}

// Challenge returns a cryptographically random 32-byte challenge in hex.
func (a *Authenticator) Challenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// Verify checks signature against the HMAC-SHA256 of challenge in constant
// time.
func (a *Authenticator) Verify(challenge, signature string) bool {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write([]byte(challenge))
	expected := hex.EncodeToString(h.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// authenticate applies the client's signature to its pending challenge and
// updates the client's state.
func (a *Authenticator) authenticate(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return AuthResult{Event: "auth.failure", Message: "no pending challenge"}
	}

	if !a.Verify(client.Challenge, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return AuthResult{Event: "auth.failure", Message: "too many failed attempts"}
		}
		return AuthResult{Event: "auth.failure", Message: "invalid signature"}
	}

	client.Authenticated = true
	client.AuthAttempts = 0
	client.Challenge = ""
	return AuthResult{Event: "auth.success", Success: true}
}
