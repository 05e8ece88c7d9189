package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func exampleURL() CanonicalURL {
	return CanonicalURL{Scheme: "https", Host: "example.com", Path: "/docs"}
}

func TestCanonicalURLString(t *testing.T) {
	tests := []struct {
		u    CanonicalURL
		want string
	}{
		{CanonicalURL{Scheme: "https", Host: "example.com", Path: "/a"}, "https://example.com/a"},
		{CanonicalURL{Scheme: "https", Host: "example.com"}, "https://example.com/"},
		{CanonicalURL{Scheme: "https", Host: "example.com", Port: "443", Path: "/a"}, "https://example.com/a"},
		{CanonicalURL{Scheme: "http", Host: "example.com", Port: "80", Path: "/a"}, "http://example.com/a"},
		{CanonicalURL{Scheme: "http", Host: "example.com", Port: "8080", Path: "/a"}, "http://example.com:8080/a"},
		{CanonicalURL{Scheme: "https", Host: "example.com", Path: "/s", Query: "a=1&b=2"}, "https://example.com/s?a=1&b=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.u.String())
	}
}

func TestHostPortDefaults(t *testing.T) {
	assert.Equal(t, "example.com:443", CanonicalURL{Scheme: "https", Host: "example.com"}.HostPort())
	assert.Equal(t, "example.com:80", CanonicalURL{Scheme: "http", Host: "example.com"}.HostPort())
	assert.Equal(t, "example.com:8443", CanonicalURL{Scheme: "https", Host: "example.com", Port: "8443"}.HostPort())
}

func TestSortQuery(t *testing.T) {
	assert.Equal(t, "a=1&b=2", SortQuery("b=2&a=1"))
	assert.Equal(t, "a=1&a=2", SortQuery("a=2&a=1"), "repeated keys sort by value")
	assert.Equal(t, "", SortQuery(""))
	assert.Equal(t, SortQuery("b=2&a=1"), SortQuery("a=1&b=2"), "order-insensitive")
}

func TestFingerprintDeterministic(t *testing.T) {
	a := NewFingerprint("GET", exampleURL(), nil, nil)
	b := NewFingerprint("get", exampleURL(), nil, nil)
	assert.Equal(t, a, b, "method is case-insensitive")
	assert.Len(t, string(a), 32)
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := NewFingerprint("GET", exampleURL(), nil, nil)

	other := exampleURL()
	other.Path = "/docs/intro"
	assert.NotEqual(t, base, NewFingerprint("GET", other, nil, nil))
	assert.NotEqual(t, base, NewFingerprint("POST", exampleURL(), nil, nil))
	assert.NotEqual(t, base, NewFingerprint("GET", exampleURL(), []byte(`{"q":1}`), nil))
	assert.NotEqual(t, base, NewFingerprint("GET", exampleURL(), nil, map[string]string{"accept": "text/html"}))
}

func TestFingerprintVaryHeadersNormalized(t *testing.T) {
	a := NewFingerprint("GET", exampleURL(), nil, map[string]string{"Accept": "text/html", "User-Agent": "x"})
	b := NewFingerprint("GET", exampleURL(), nil, map[string]string{"user-agent": "x", "accept": "text/html"})
	assert.Equal(t, a, b, "header casing and map order are irrelevant")
}

func TestFingerprintShard(t *testing.T) {
	f := Fingerprint("ab12cd")
	a, b := f.Shard()
	assert.Equal(t, "ab", a)
	assert.Equal(t, "12", b)

	short := Fingerprint("ab")
	a, b = short.Shard()
	assert.Equal(t, "00", a)
	assert.Equal(t, "00", b)
}
