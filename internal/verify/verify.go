package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

const (
	// HeaderTimestamped carries the timestamped-HMAC signature
	// (comma-separated t=timestamp and v1=signature pairs).
	HeaderTimestamped = "Stripe-Signature"
	// HeaderGeneric carries the generic hex HMAC-SHA256 signature.
	HeaderGeneric = "X-Signature"

	// DefaultTolerance bounds the age of a timestamped signature.
	DefaultTolerance = 300 * time.Second
)

type schemeKind int

const (
	schemeDisabled schemeKind = iota
	schemeTimestamped
	schemeGeneric
)

// Scheme is the trust scheme decided at startup. The zero value is the
// disabled scheme.
type Scheme struct {
	kind      schemeKind
	secret    string
	tolerance time.Duration
}

// TimestampedScheme verifies a signed header of t=timestamp, v1=signature
// pairs against HMAC-SHA256(secret, "{t}.{body}"), rejecting timestamps
// older than tolerance to defend against replay.
func TimestampedScheme(secret string, tolerance time.Duration) Scheme {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return Scheme{kind: schemeTimestamped, secret: secret, tolerance: tolerance}
}

// GenericScheme verifies a single hex HMAC-SHA256 signature over the raw body.
func GenericScheme(secret string) Scheme {
	return Scheme{kind: schemeGeneric, secret: secret}
}

// DisabledScheme accepts every event. This is an explicit operational escape
// hatch, not a fallback: deployments choosing it have made a trust decision.
func DisabledScheme() Scheme {
	return Scheme{kind: schemeDisabled}
}

// SelectScheme applies the configuration precedence: a configured endpoint
// secret wins over a signing secret; neither means verification is disabled.
func SelectScheme(endpointSecret, signingSecret string, tolerance time.Duration) Scheme {
	switch {
	case endpointSecret != "":
		return TimestampedScheme(endpointSecret, tolerance)
	case signingSecret != "":
		return GenericScheme(signingSecret)
	default:
		return DisabledScheme()
	}
}

// Result is the outcome of one verification. Reason is always populated,
// for acceptances as well as rejections, to support audit logging.
type Result struct {
	Accepted bool
	Reason   string
}

func accept(reason string) Result { return Result{Accepted: true, Reason: reason} }
func reject(reason string) Result { return Result{Accepted: false, Reason: reason} }

// Verifier authenticates inbound payloads under a fixed scheme.
type Verifier struct {
	scheme Scheme
	clock  clockwork.Clock
}

func NewVerifier(scheme Scheme, clock clockwork.Clock) *Verifier {
	return &Verifier{scheme: scheme, clock: clock}
}

// Verify decides whether rawBody is authentic. It operates on the exact
// bytes received; callers must not reserialize the payload first.
func (v *Verifier) Verify(rawBody []byte, headers http.Header) Result {
	switch v.scheme.kind {
	case schemeTimestamped:
		return v.verifyTimestamped(rawBody, headers)
	case schemeGeneric:
		return v.verifyGeneric(rawBody, headers)
	default:
		return accept("signature check skipped (no secret configured)")
	}
}

func (v *Verifier) verifyTimestamped(rawBody []byte, headers http.Header) Result {
	sigHeader := headers.Get(HeaderTimestamped)
	if sigHeader == "" {
		return reject("missing " + HeaderTimestamped + " header")
	}

	timestamps, signatures := parseSignatureHeader(sigHeader)
	if len(timestamps) == 0 || len(signatures) == 0 {
		return reject("invalid " + HeaderTimestamped + " header")
	}

	// The signed string interpolates the body as text, so it must decode.
	if !utf8.Valid(rawBody) {
		return reject("invalid payload encoding")
	}

	timestamp := timestamps[0]
	signedPayload := timestamp + "." + string(rawBody)
	computed := computeHMAC(v.scheme.secret, []byte(signedPayload))

	matched := false
	for _, supplied := range signatures {
		if constantTimeEqual(computed, supplied) {
			matched = true
		}
	}
	if !matched {
		return reject("signature mismatch")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return reject("invalid timestamp")
	}

	age := v.clock.Now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > v.scheme.tolerance {
		return reject("timestamp outside tolerance")
	}

	return accept("stripe signature valid")
}

func (v *Verifier) verifyGeneric(rawBody []byte, headers http.Header) Result {
	supplied := headers.Get(HeaderGeneric)
	if supplied == "" {
		return reject("missing " + HeaderGeneric + " header")
	}

	computed := computeHMAC(v.scheme.secret, rawBody)
	if !constantTimeEqual(computed, supplied) {
		return reject("signature invalid")
	}

	return accept("signature valid")
}

// parseSignatureHeader splits a header of comma-separated key=value items,
// collecting every t and v1 occurrence. Unknown keys are ignored so future
// scheme versions remain parseable.
func parseSignatureHeader(header string) (timestamps, signatures []string) {
	for _, item := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "t":
			timestamps = append(timestamps, strings.TrimSpace(val))
		case "v1":
			signatures = append(signatures, strings.TrimSpace(val))
		}
	}
	return timestamps, signatures
}

func computeHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares two digest strings without early exit, so
// verification timing is independent of where the first mismatch occurs.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
