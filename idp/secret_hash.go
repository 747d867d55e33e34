package idp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SecretHash computes the confidential-client proof the provider expects on
// sign-up, confirmation and auth calls: base64(HMAC-SHA256(clientSecret, username+clientID)).
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Signer binds SecretHash to one app client.
type Signer struct {
	clientID     string
	clientSecret string
}

func NewSigner(clientID, clientSecret string) (*Signer, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("secret hash signer requires client id and client secret")
	}
	return &Signer{clientID: clientID, clientSecret: clientSecret}, nil
}

func (s *Signer) Hash(username string) string {
	return SecretHash(username, s.clientID, s.clientSecret)
}
