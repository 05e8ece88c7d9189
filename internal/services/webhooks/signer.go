package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/venator/internal/models"
)

// maxSkew bounds how far the X-Timestamp header may drift from the
// verifier's clock.
const maxSkew = 5 * time.Minute

// Signer produces and verifies the X-Signature header:
// "sha256=<hex>" where the digest is HMAC-SHA256 over the raw body. The
// delivery timestamp travels separately in X-Timestamp.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer; an empty secret disables signing.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

// Sign returns the X-Signature header value for the payload.
func (s *Signer) Sign(payload []byte) string {
	return "sha256=" + hex.EncodeToString(s.digest(payload))
}

// Verify checks a signature and timestamp header pair against the payload.
// Comparison is constant-time; a timestamp outside the skew window fails
// regardless of the digest.
func (s *Signer) Verify(payload []byte, signature, timestamp string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return models.NewError(models.KindInvalidArgument, "malformed timestamp header")
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift > maxSkew || drift < -maxSkew {
		return models.NewError(models.KindInvalidArgument, "timestamp outside tolerance")
	}

	hexDigest, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return models.NewError(models.KindInvalidArgument, "unsupported signature scheme")
	}
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return models.NewError(models.KindInvalidArgument, "malformed signature digest")
	}

	if !hmac.Equal(digest, s.digest(payload)) {
		return models.NewError(models.KindInvalidArgument, "signature mismatch")
	}
	return nil
}

func (s *Signer) digest(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
