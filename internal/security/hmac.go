package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

// Desktop request headers.
const (
	HeaderDesktopID        = "X-Desktop-Id"
	HeaderAppType          = "X-App-Type"
	HeaderDesktopTimestamp = "X-Desktop-Timestamp"
	HeaderDesktopSignature = "X-Desktop-Signature"
)

// DefaultMaxDrift is the allowed difference between a request timestamp and server time.
const DefaultMaxDrift = 300 * time.Second

// SecretKeyBytes is the size of a desktop secret key before base64 encoding.
const SecretKeyBytes = 32

var (
	// ErrMissingHeader is returned when a required desktop auth header is empty.
	ErrMissingHeader = errors.New("missing authentication header")
	// ErrTimestampOutOfRange is returned for stale, future or unparseable timestamps.
	ErrTimestampOutOfRange = errors.New("timestamp out of range")
	// ErrSignatureMismatch is returned when the signature does not verify, including malformed base64.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// SignedRequest is the material a desktop signs: "{DesktopID}:{Timestamp}:{Body}".
// Timestamp is Unix seconds exactly as sent; Body is the raw payload (empty for GET).
type SignedRequest struct {
	DesktopID string
	Timestamp string
	Signature string
	Body      []byte
}

func signingMessage(desktopID, timestamp string, body []byte) []byte {
	msg := make([]byte, 0, len(desktopID)+len(timestamp)+len(body)+2)
	msg = append(msg, desktopID...)
	msg = append(msg, ':')
	msg = append(msg, timestamp...)
	msg = append(msg, ':')
	return append(msg, body...)
}

func computeMAC(key []byte, desktopID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(signingMessage(desktopID, timestamp, body))
	return mac.Sum(nil)
}

// SignDesktopRequest returns the base64 HMAC-SHA256 signature a desktop sends in X-Desktop-Signature.
func SignDesktopRequest(desktopID, timestamp string, body []byte, secretKeyB64 string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secretKeyB64)
	if err != nil {
		return "", ErrSignatureMismatch
	}
	return base64.StdEncoding.EncodeToString(computeMAC(key, desktopID, timestamp, body)), nil
}

// VerifyDesktopSignature checks the timestamp window and then the signature of req against secretKeyB64.
// maxDrift <= 0 uses DefaultMaxDrift. Comparison is constant-time over decoded bytes.
func VerifyDesktopSignature(req SignedRequest, secretKeyB64 string, now time.Time, maxDrift time.Duration) error {
	if req.DesktopID == "" || req.Timestamp == "" || req.Signature == "" {
		return ErrMissingHeader
	}
	if maxDrift <= 0 {
		maxDrift = DefaultMaxDrift
	}
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return ErrTimestampOutOfRange
	}
	// Compare in whole seconds: far-out timestamps would saturate a time.Duration.
	window, n := int64(maxDrift/time.Second), now.Unix()
	if ts < n-window || ts > n+window {
		return ErrTimestampOutOfRange
	}

	key, err := base64.StdEncoding.DecodeString(secretKeyB64)
	if err != nil || len(key) == 0 {
		return ErrSignatureMismatch
	}
	got, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(got, computeMAC(key, req.DesktopID, req.Timestamp, req.Body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// GenerateSecretKey returns a new random desktop key, base64 encoded.
func GenerateSecretKey() (string, error) {
	b := make([]byte, SecretKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
