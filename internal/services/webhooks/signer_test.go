package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignFormat(t *testing.T) {
	signer := NewSigner("s")
	require.NotNil(t, signer)

	payload := []byte(`{"a":1}`)
	got := signer.Sign(payload)

	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write(payload)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got)
}

func TestSignIsDeterministic(t *testing.T) {
	signer := NewSigner("topsecret")
	payload := []byte(`{"kind":"change.detected"}`)
	assert.Equal(t, signer.Sign(payload), signer.Sign(payload))
	assert.NotEqual(t, signer.Sign(payload), signer.Sign([]byte(`{"kind":"tampered"}`)))
}

func TestEmptySecretDisablesSigning(t *testing.T) {
	assert.Nil(t, NewSigner(""))
}

func TestVerify(t *testing.T) {
	signer := NewSigner("topsecret")
	payload := []byte(`{"url":"https://example.com","significance":"major"}`)
	now := time.Now()
	ts := fmt.Sprintf("%d", now.Unix())
	sig := signer.Sign(payload)

	assert.NoError(t, signer.Verify(payload, sig, ts, now))

	t.Run("tampered payload", func(t *testing.T) {
		assert.Error(t, signer.Verify([]byte(`{"url":"https://evil.com"}`), sig, ts, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSigner("different")
		assert.Error(t, other.Verify(payload, sig, ts, now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := fmt.Sprintf("%d", now.Add(-10*time.Minute).Unix())
		assert.Error(t, signer.Verify(payload, sig, old, now))
	})

	t.Run("future timestamp", func(t *testing.T) {
		future := fmt.Sprintf("%d", now.Add(10*time.Minute).Unix())
		assert.Error(t, signer.Verify(payload, sig, future, now))
	})

	t.Run("skew within tolerance", func(t *testing.T) {
		near := fmt.Sprintf("%d", now.Add(-2*time.Minute).Unix())
		assert.NoError(t, signer.Verify(payload, sig, near, now))
	})

	t.Run("malformed headers", func(t *testing.T) {
		assert.Error(t, signer.Verify(payload, sig, "not-a-number", now))
		assert.Error(t, signer.Verify(payload, "md5=abcd", ts, now))
		assert.Error(t, signer.Verify(payload, "sha256=zzzz", ts, now))
	})
}
