package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	SignatureHeader = "X-Signature"
	signaturePrefix = "sha256="
)

var (
	ErrBadSignature    = errors.New("invalid webhook signature")
	ErrBadNotification = errors.New("malformed webhook notification")
)

// Notification is the outcome the processor reports for one of its sessions.
type Notification struct {
	EventID    string `json:"eventId"`
	SessionRef string `json:"sessionRef"`
	Outcome    string `json:"outcome"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body in constant time.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrBadSignature)
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// ParseNotification verifies and decodes a webhook body.
func ParseNotification(secret string, body []byte, header string) (*Notification, error) {
	if err := VerifySignature(secret, body, header); err != nil {
		return nil, err
	}
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadNotification, err)
	}
	if n.SessionRef == "" || n.Outcome == "" {
		return nil, fmt.Errorf("%w: sessionRef and outcome are required", ErrBadNotification)
	}
	return &n, nil
}
