package media

import (
	"net/url"
	"slices"
	"strings"

	apperrors "github.com/kbukum/audioscribe/errors"
)

// HostPolicy decides which remote URLs may be fetched. It is immutable
// after construction.
type HostPolicy struct {
	exact    []string
	suffixes []string
}

// NewHostPolicy compiles host patterns. "example.com" matches only that
// host; "*.example.com" matches any of its subdomains.
func NewHostPolicy(patterns []string) *HostPolicy {
	p := &HostPolicy{}
	for _, raw := range patterns {
		pat := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case pat == "":
		case strings.HasPrefix(pat, "*."):
			p.suffixes = append(p.suffixes, pat[1:])
		default:
			p.exact = append(p.exact, pat)
		}
	}
	return p
}

// Allowed reports whether host matches a pattern.
func (p *HostPolicy) Allowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if slices.Contains(p.exact, host) {
		return true
	}
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// Validate parses raw and checks its scheme and host. It does no network I/O.
func (p *HostPolicy) Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperrors.InvalidSource(raw, "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.InvalidSource(raw, "url is malformed").WithCause(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.InvalidSource(raw, "only http and https urls are accepted")
	}
	if u.User != nil {
		return nil, apperrors.InvalidSource(raw, "urls with credentials are not accepted")
	}
	if u.Hostname() == "" || !p.Allowed(u.Hostname()) {
		return nil, apperrors.InvalidSource(raw, "host is not supported")
	}
	return u, nil
}
