package common

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"

	"github.com/google/uuid"
)

// base32 without padding, lowercased, so ids are filesystem- and URL-safe.
var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewJobID generates an unguessable 128-bit job id with the "job_" prefix.
func NewJobID() string {
	return "job_" + randomHex128()
}

// NewSnapshotID generates a 128-bit base32 snapshot id. The first four
// characters double as the on-disk shard directories.
func NewSnapshotID() string {
	var buf [16]byte
	mustRead(buf[:])
	return toLower(idEncoding.EncodeToString(buf[:]))
}

// NewEventID generates a webhook event id with the "evt_" prefix. Event ids
// embed a UUIDv7-style time component so per-target ordering is observable.
func NewEventID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return "evt_" + uuid.New().String()
	}
	return "evt_" + v7.String()
}

// NewCorrelationID generates the opaque id attached to sanitized internal
// errors.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

func randomHex128() string {
	var buf [16]byte
	mustRead(buf[:])
	return hex.EncodeToString(buf[:])
}

func mustRead(buf []byte) {
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform is unusable
		panic(err)
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
