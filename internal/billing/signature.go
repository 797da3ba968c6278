package billing

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

// SignatureHeader carries the delivery timestamp and HMAC signatures.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is how far a delivery timestamp may be from now.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature  = errors.New("missing signature header")
	ErrMalformedHeader   = errors.New("malformed signature header")
	ErrTimestampExpired  = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("no matching signature")
)

// VerifySignature checks a header of the form "t=<unix>,v1=<hex>[,v1=...]".
// The signed content is "<t>.<payload>", HMAC-SHA256 keyed with secret.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var (
		timestamp int64
		haveTime  bool
		sigs      [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrMalformedHeader)
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if !haveTime || len(sigs) == 0 {
		return ErrMalformedHeader
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if tolerance > 0 && (age > tolerance || age < -tolerance) {
		return ErrTimestampExpired
	}

	expected := computeSignature(timestamp, payload, secret)
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func computeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
