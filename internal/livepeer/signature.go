package livepeer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix ms>,v1=<hex hmac-sha256 of body>".
const SignatureHeader = "Livepeer-Signature"

var ErrBadSignature = errors.New("invalid webhook signature")

// VerifySignature checks the signature header against the raw body. A zero
// tolerance disables the timestamp window.
func VerifySignature(secret string, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if len(sigs) == 0 {
		return ErrBadSignature
	}
	if tolerance > 0 {
		if ts == 0 {
			return ErrBadSignature
		}
		delta := now.Sub(time.UnixMilli(ts))
		if delta > tolerance || delta < -tolerance {
			return ErrBadSignature
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign produces a header value for body, used by tests and local tooling.
func Sign(secret string, body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "t=" + strconv.FormatInt(at.UnixMilli(), 10) + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
