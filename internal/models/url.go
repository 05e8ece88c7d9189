package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// CanonicalURL is a normalized, credential-free http(s) URL. Produced by the
// URL guard and never mutated afterwards.
type CanonicalURL struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"` // lowercased, no port
	Port   string `json:"port,omitempty"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"` // keys sorted
}

// String renders the canonical form.
func (c CanonicalURL) String() string {
	var b strings.Builder
	b.WriteString(c.Scheme)
	b.WriteString("://")
	b.WriteString(c.Host)
	if c.Port != "" && !c.isDefaultPort() {
		b.WriteString(":")
		b.WriteString(c.Port)
	}
	if c.Path == "" {
		b.WriteString("/")
	} else {
		b.WriteString(c.Path)
	}
	if c.Query != "" {
		b.WriteString("?")
		b.WriteString(c.Query)
	}
	return b.String()
}

// HostPort returns host:port for dialing, defaulting the port by scheme.
func (c CanonicalURL) HostPort() string {
	port := c.Port
	if port == "" {
		if c.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return c.Host + ":" + port
}

func (c CanonicalURL) isDefaultPort() bool {
	return (c.Scheme == "http" && c.Port == "80") || (c.Scheme == "https" && c.Port == "443")
}

// SortQuery returns the query string with keys (then values) sorted, which
// makes two equivalent URLs produce identical fingerprints.
func SortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// Fingerprint is the stable 128-bit cache / dedup key derived from
// (method, canonical URL, body hash, vary-headers hash).
type Fingerprint string

// NewFingerprint computes the fingerprint. body and varyHeaders may be empty.
func NewFingerprint(method string, u CanonicalURL, body []byte, varyHeaders map[string]string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(u.String()))
	h.Write([]byte{0})
	if len(body) > 0 {
		bodyHash := sha256.Sum256(body)
		h.Write(bodyHash[:])
	}
	h.Write([]byte{0})
	if len(varyHeaders) > 0 {
		lowered := make(map[string]string, len(varyHeaders))
		keys := make([]string, 0, len(varyHeaders))
		for k, v := range varyHeaders {
			lk := strings.ToLower(k)
			lowered[lk] = v
			keys = append(keys, lk)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{1})
			h.Write([]byte(lowered[k]))
			h.Write([]byte{1})
		}
	}
	sum := h.Sum(nil)
	return Fingerprint(hex.EncodeToString(sum[:16]))
}

// Shard returns the two directory shard segments used for on-disk layouts.
func (f Fingerprint) Shard() (string, string) {
	s := string(f)
	if len(s) < 4 {
		return "00", "00"
	}
	return s[0:2], s[2:4]
}
