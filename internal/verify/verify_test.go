package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signGeneric(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signTimestamped(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return hex.EncodeToString(mac.Sum(nil))
}

func headerWith(name, value string) http.Header {
	h := http.Header{}
	h.Set(name, value)
	return h
}

// --- Generic scheme ---

func TestGeneric_ValidSignature(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())
	body := []byte(`{"amount": 100}`)

	result := v.Verify(body, headerWith(HeaderGeneric, signGeneric(testSecret, body)))

	assert.True(t, result.Accepted)
	assert.Equal(t, "signature valid", result.Reason)
}

func TestGeneric_MissingHeader(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())

	result := v.Verify([]byte("{}"), http.Header{})

	assert.False(t, result.Accepted)
	assert.Equal(t, "missing X-Signature header", result.Reason)
}

func TestGeneric_WrongSignature(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())

	result := v.Verify([]byte("{}"), headerWith(HeaderGeneric, signGeneric("other_secret", []byte("{}"))))

	assert.False(t, result.Accepted)
	assert.Equal(t, "signature invalid", result.Reason)
}

func TestGeneric_TamperedBodyRejected(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())
	body := []byte(`{"amount": 100}`)
	h := headerWith(HeaderGeneric, signGeneric(testSecret, body))

	// Flipping any single bit of the body must invalidate the signature.
	for _, bit := range []int{0, 3, len(body)*8 - 1} {
		tampered := make([]byte, len(body))
		copy(tampered, body)
		tampered[bit/8] ^= 1 << (bit % 8)

		result := v.Verify(tampered, h)
		assert.False(t, result.Accepted, "bit %d", bit)
	}
}

func TestGeneric_TamperedSignatureRejected(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())
	body := []byte(`{"amount": 100}`)
	sig := signGeneric(testSecret, body)

	for i := 0; i < len(sig); i += 13 {
		tampered := []byte(sig)
		if tampered[i] == 'a' {
			tampered[i] = 'b'
		} else {
			tampered[i] = 'a'
		}

		result := v.Verify(body, headerWith(HeaderGeneric, string(tampered)))
		assert.False(t, result.Accepted, "offset %d", i)
	}
}

func TestGeneric_HeaderNameCaseInsensitive(t *testing.T) {
	v := NewVerifier(GenericScheme(testSecret), clockwork.NewRealClock())
	body := []byte("payload")

	h := http.Header{}
	h.Set("x-signature", signGeneric(testSecret, body))

	result := v.Verify(body, h)
	assert.True(t, result.Accepted)
}

// --- Timestamped scheme ---

func TestTimestamped_ValidSignature(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clock)

	body := []byte(`{"id": "evt_1"}`)
	ts := clock.Now().Unix()
	sig := signTimestamped(testSecret, ts, body)
	h := headerWith(HeaderTimestamped, fmt.Sprintf("t=%d,v1=%s", ts, sig))

	result := v.Verify(body, h)

	assert.True(t, result.Accepted)
	assert.Equal(t, "stripe signature valid", result.Reason)
}

func TestTimestamped_AnyV1Matches(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clock)

	body := []byte(`{"id": "evt_1"}`)
	ts := clock.Now().Unix()
	sig := signTimestamped(testSecret, ts, body)

	// A rotated-secret header carries the stale signature first.
	h := headerWith(HeaderTimestamped, fmt.Sprintf("t=%d,v1=%s,v1=%s", ts, signTimestamped("old_secret", ts, body), sig))

	result := v.Verify(body, h)
	assert.True(t, result.Accepted)
}

func TestTimestamped_MissingHeader(t *testing.T) {
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clockwork.NewRealClock())

	result := v.Verify([]byte("{}"), http.Header{})

	assert.False(t, result.Accepted)
	assert.Equal(t, "missing Stripe-Signature header", result.Reason)
}

func TestTimestamped_MalformedHeader(t *testing.T) {
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clockwork.NewRealClock())

	for _, header := range []string{"garbage", "t=123", "v1=abc", ",,,"} {
		result := v.Verify([]byte("{}"), headerWith(HeaderTimestamped, header))
		assert.False(t, result.Accepted, "header %q", header)
		assert.Equal(t, "invalid Stripe-Signature header", result.Reason)
	}
}

func TestTimestamped_SignatureMismatch(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clock)

	ts := clock.Now().Unix()
	h := headerWith(HeaderTimestamped, fmt.Sprintf("t=%d,v1=%s", ts, signTimestamped("other_secret", ts, []byte("{}"))))

	result := v.Verify([]byte("{}"), h)
	assert.False(t, result.Accepted)
	assert.Equal(t, "signature mismatch", result.Reason)
}

func TestTimestamped_ToleranceBoundary(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id": "evt_1"}`)
	ts := base.Unix()
	sig := signTimestamped(testSecret, ts, body)
	h := headerWith(HeaderTimestamped, fmt.Sprintf("t=%d,v1=%s", ts, sig))

	tolerance := 300 * time.Second

	t.Run("at signing time", func(t *testing.T) {
		v := NewVerifier(TimestampedScheme(testSecret, tolerance), clockwork.NewFakeClockAt(base))
		assert.True(t, v.Verify(body, h).Accepted)
	})

	t.Run("at exactly tolerance", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(base.Add(tolerance))
		v := NewVerifier(TimestampedScheme(testSecret, tolerance), clock)
		assert.True(t, v.Verify(body, h).Accepted)
	})

	t.Run("one second past tolerance", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(base.Add(tolerance + time.Second))
		v := NewVerifier(TimestampedScheme(testSecret, tolerance), clock)

		result := v.Verify(body, h)
		assert.False(t, result.Accepted)
		assert.Equal(t, "timestamp outside tolerance", result.Reason)
	})

	t.Run("future timestamp past tolerance", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(base.Add(-tolerance - time.Second))
		v := NewVerifier(TimestampedScheme(testSecret, tolerance), clock)

		result := v.Verify(body, h)
		assert.False(t, result.Accepted)
	})
}

func TestTimestamped_NonNumericTimestamp(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clock)

	body := []byte("{}")
	sig := signGenericOverString(testSecret, "soon."+string(body))
	h := headerWith(HeaderTimestamped, "t=soon,v1="+sig)

	result := v.Verify(body, h)
	assert.False(t, result.Accepted)
	assert.Equal(t, "invalid timestamp", result.Reason)
}

func signGenericOverString(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestTimestamped_InvalidPayloadEncoding(t *testing.T) {
	v := NewVerifier(TimestampedScheme(testSecret, DefaultTolerance), clockwork.NewRealClock())

	result := v.Verify([]byte{0xff, 0xfe, 0xfd}, headerWith(HeaderTimestamped, "t=123,v1=abc"))

	assert.False(t, result.Accepted)
	assert.Equal(t, "invalid payload encoding", result.Reason)
}

// --- Scheme selection ---

func TestSelectScheme_Precedence(t *testing.T) {
	t.Run("endpoint secret wins", func(t *testing.T) {
		scheme := SelectScheme("endpoint", "signing", time.Minute)
		assert.Equal(t, schemeTimestamped, scheme.kind)
	})

	t.Run("signing secret when no endpoint secret", func(t *testing.T) {
		scheme := SelectScheme("", "signing", time.Minute)
		assert.Equal(t, schemeGeneric, scheme.kind)
	})

	t.Run("disabled when nothing configured", func(t *testing.T) {
		scheme := SelectScheme("", "", time.Minute)
		assert.Equal(t, schemeDisabled, scheme.kind)
	})
}

func TestDisabled_AcceptsUnconditionally(t *testing.T) {
	v := NewVerifier(DisabledScheme(), clockwork.NewRealClock())

	result := v.Verify([]byte("anything"), http.Header{})

	require.True(t, result.Accepted)
	assert.Equal(t, "signature check skipped (no secret configured)", result.Reason)
}

func TestResultReasonAlwaysPopulated(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	body := []byte(`{"ok":true}`)
	ts := clock.Now().Unix()

	cases := []struct {
		name    string
		scheme  Scheme
		headers http.Header
	}{
		{"generic accept", GenericScheme(testSecret), headerWith(HeaderGeneric, signGeneric(testSecret, body))},
		{"generic reject", GenericScheme(testSecret), http.Header{}},
		{"timestamped accept", TimestampedScheme(testSecret, DefaultTolerance), headerWith(HeaderTimestamped, fmt.Sprintf("t=%d,v1=%s", ts, signTimestamped(testSecret, ts, body)))},
		{"disabled", DisabledScheme(), http.Header{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := NewVerifier(tc.scheme, clock).Verify(body, tc.headers)
			assert.NotEmpty(t, result.Reason)
		})
	}
}
