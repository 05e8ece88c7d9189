package fetcher

import (
	"strings"
	"time"

	"github.com/ternarybob/venator/internal/models"
)

// headerAllowlist is the set of request headers a caller may supply. Anything
// else is rejected so tool arguments cannot smuggle hop-by-hop or auth
// headers into arbitrary origins.
var headerAllowlist = map[string]bool{
	"accept":          true,
	"accept-language": true,
	"cache-control":   true,
	"content-type":    true,
	"if-modified-since": true,
	"if-none-match":   true,
	"referer":         true,
	"user-agent":      true,
	"x-requested-with": true,
}

// Policy bounds a single fetch: timeouts, redirect budget, size cap.
type Policy struct {
	Method         string
	Headers        map[string]string
	Body           []byte
	Timeout        time.Duration // per attempt
	TotalTimeout   time.Duration // across retries
	MaxRedirects   int
	MaxBytes       int64
	AcceptEncoding string
}

// DefaultPolicy returns the documented defaults; callers overlay fields.
func DefaultPolicy() Policy {
	return Policy{
		Method:         "GET",
		Timeout:        30 * time.Second,
		TotalTimeout:   60 * time.Second,
		MaxRedirects:   5,
		MaxBytes:       100 << 20,
		AcceptEncoding: "gzip, deflate",
	}
}

// Validate rejects malformed methods and headers. CR/LF in a header name or
// value is always an error; names outside the allowlist are rejected.
func (p *Policy) Validate() error {
	switch strings.ToUpper(p.Method) {
	case "", "GET", "HEAD", "POST":
	default:
		return models.NewError(models.KindInvalidArgument, "method %q not supported", p.Method)
	}
	for name, value := range p.Headers {
		if strings.ContainsAny(name, "\r\n") || strings.ContainsAny(value, "\r\n") {
			return models.NewError(models.KindInvalidArgument, "header %q contains control characters", name)
		}
		if !headerAllowlist[strings.ToLower(name)] {
			return models.NewError(models.KindInvalidArgument, "header %q not allowed", name)
		}
	}
	if p.MaxRedirects < 0 {
		return models.NewError(models.KindOutOfRange, "max_redirects must be >= 0")
	}
	if p.MaxBytes <= 0 {
		return models.NewError(models.KindOutOfRange, "max_bytes must be > 0")
	}
	return nil
}
