// -----------------------------------------------------------------------
// URL Guard - canonicalization and SSRF target validation
// -----------------------------------------------------------------------

package urlguard

import (
	"context"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/net/idna"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// Resolver abstracts DNS so tests can pin resolved addresses.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

type netResolver struct{}

func (netResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// Metadata endpoints that must never be fetched, regardless of resolution.
var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"100.100.100.200":          true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

// Guard validates URLs before any network activity. Redirect-following
// callers re-validate every hop.
type Guard struct {
	resolver     Resolver
	blockPrivate bool
	blockedHosts map[string]bool
	blockedPorts map[int]bool
	logger       arbor.ILogger
}

// New creates a Guard from the SSRF policy configuration.
func New(config common.SSRFConfig, logger arbor.ILogger) *Guard {
	g := &Guard{
		resolver:     netResolver{},
		blockPrivate: config.BlockPrivate,
		blockedHosts: make(map[string]bool),
		blockedPorts: make(map[int]bool),
		logger:       logger,
	}
	for _, h := range config.ExtraBlockedHosts {
		g.blockedHosts[strings.ToLower(h)] = true
	}
	for _, p := range config.BlockedPorts {
		g.blockedPorts[p] = true
	}
	return g
}

// WithResolver replaces the DNS resolver. Used by tests.
func (g *Guard) WithResolver(r Resolver) *Guard {
	g.resolver = r
	return g
}

// Canonicalize normalizes a raw URL: lowercased punycoded host, resolved
// path, sorted query keys, fragment dropped, credentials stripped.
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func (g *Guard) Canonicalize(raw string) (models.CanonicalURL, error) {
	var c models.CanonicalURL

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return c, models.WrapError(models.KindInvalidArgument, err, "unparseable URL")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return c, models.NewError(models.KindBlockedByGuard, "scheme %q not allowed", u.Scheme).
			WithReason(models.ReasonInvalidScheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return c, models.NewError(models.KindInvalidArgument, "URL has no host")
	}
	// Punycode non-ASCII hostnames so comparisons and DNS use one form.
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	host = strings.TrimSuffix(host, ".")

	cleanPath := u.EscapedPath()
	if cleanPath == "" {
		cleanPath = "/"
	}
	cleanPath = path.Clean(cleanPath)
	if cleanPath == "." {
		cleanPath = "/"
	}
	// path.Clean drops a trailing slash that is semantically meaningful
	if strings.HasSuffix(u.EscapedPath(), "/") && cleanPath != "/" {
		cleanPath += "/"
	}

	return models.CanonicalURL{
		Scheme: scheme,
		Host:   host,
		Port:   u.Port(),
		Path:   cleanPath,
		Query:  models.SortQuery(u.RawQuery),
	}, nil
}

// Validate rejects targets whose host, port, or any resolved IP falls in a
// blocked set. Called once per request and once per redirect hop.
func (g *Guard) Validate(ctx context.Context, u models.CanonicalURL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewError(models.KindBlockedByGuard, "scheme %q not allowed", u.Scheme).
			WithReason(models.ReasonInvalidScheme)
	}

	if metadataHosts[u.Host] {
		return models.NewError(models.KindBlockedByGuard, "metadata endpoint %s blocked", u.Host).
			WithReason(models.ReasonMetadataHost)
	}

	if g.blockedHosts[u.Host] {
		return models.NewError(models.KindBlockedByGuard, "host %s is blocklisted", u.Host).
			WithReason(models.ReasonBlockedHost)
	}

	if u.Port != "" {
		port, err := strconv.Atoi(u.Port)
		if err != nil || port < 1 || port > 65535 {
			return models.NewError(models.KindBlockedByGuard, "invalid port %q", u.Port).
				WithReason(models.ReasonBlockedPort)
		}
		if g.blockedPorts[port] {
			return models.NewError(models.KindBlockedByGuard, "port %d is blocked", port).
				WithReason(models.ReasonBlockedPort)
		}
	}

	var ips []net.IP
	if ip := net.ParseIP(u.Host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := g.resolver.LookupIP(ctx, u.Host)
		if err != nil {
			return models.WrapError(models.KindBlockedByGuard, err, "cannot resolve %s", u.Host).
				WithReason(models.ReasonResolutionFailed)
		}
		ips = resolved
	}

	// Reject if ANY resolved address is private. A host that round-robins
	// between public and private addresses is treated as hostile.
	for _, ip := range ips {
		if reason := g.classifyIP(ip); reason != "" {
			g.logger.Debug().
				Str("host", u.Host).
				Str("ip", ip.String()).
				Str("reason", reason).
				Msg("URL rejected by guard")
			return models.NewError(models.KindBlockedByGuard, "host %s resolves to blocked address %s", u.Host, ip).
				WithReason(reason)
		}
	}

	return nil
}

// Admit canonicalizes and validates in one step.
func (g *Guard) Admit(ctx context.Context, raw string) (models.CanonicalURL, error) {
	u, err := g.Canonicalize(raw)
	if err != nil {
		return u, err
	}
	if err := g.Validate(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

func (g *Guard) classifyIP(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 169 && ip4[1] == 254 && ip4[2] == 169 && ip4[3] == 254 {
		return models.ReasonMetadataHost
	}
	if !g.blockPrivate {
		return ""
	}
	switch {
	case ip.IsLoopback():
		return models.ReasonPrivateAddress
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return models.ReasonPrivateAddress
	case ip.IsPrivate():
		return models.ReasonPrivateAddress
	case ip.IsUnspecified():
		return models.ReasonPrivateAddress
	case isUniqueLocal(ip):
		return models.ReasonPrivateAddress
	}
	return ""
}

// fc00::/7 unique-local addresses are not covered by net.IP.IsPrivate.
func isUniqueLocal(ip net.IP) bool {
	if ip16 := ip.To16(); ip16 != nil && ip.To4() == nil {
		return ip16[0]&0xfe == 0xfc
	}
	return false
}

// RegistrableDomain approximates eTLD+1 for the crawler's same-site check.
// It keeps the last two labels, or three when the second-level label is a
// well-known country-code second level (co.uk, com.au and similar).
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	second := labels[len(labels)-2]
	tld := labels[len(labels)-1]
	if len(tld) == 2 && (second == "co" || second == "com" || second == "net" || second == "org" || second == "gov" || second == "ac" || second == "edu") {
		if len(labels) >= 3 {
			return strings.Join(labels[len(labels)-3:], ".")
		}
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
