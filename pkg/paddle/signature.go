package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header Paddle signs notifications with.
const SignatureHeader = "Paddle-Signature"

var (
	ErrSignatureMissing   = errors.New("paddle signature missing")
	ErrSignatureMalformed = errors.New("paddle signature malformed")
	ErrSignatureMismatch  = errors.New("paddle signature mismatch")
	ErrSignatureExpired   = errors.New("paddle signature outside tolerance")
)

// VerifySignature checks a `ts=<unix>;h1=<hex>` header against an
// HMAC-SHA256 of "<ts>:<body>". A zero tolerance disables the timestamp check.
func VerifySignature(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("paddle webhook secret is required")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}

	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: timestamp %q", ErrSignatureMalformed, ts)
		}
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrSignatureExpired
		}
	}

	expected := computeSignature(secret, ts, body)
	for _, candidate := range signatures {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign builds a signature header for body at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("ts=%s;h1=%s", stamp, hex.EncodeToString(computeSignature(secret, stamp, body)))
}

func parseSignatureHeader(header string) (string, []string, error) {
	var (
		ts         string
		signatures []string
	)
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "h1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, ErrSignatureMalformed
	}
	return ts, signatures, nil
}

func computeSignature(secret, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return mac.Sum(nil)
}
