// Package security guards the two places where user-controlled input can
// reach outside the conversation: custom provider base URLs (SSRF) and
// confirmed terminal commands.
package security

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Observation is an advisory finding about an accepted URL. Observations do
// not block the URL; callers surface them as warnings.
type Observation string

const (
	// ObservationPlainHTTP flags an accepted http:// URL whose host is not
	// loopback.
	ObservationPlainHTTP Observation = "plain-http"
	// ObservationNonStandardProvider flags a host outside the known
	// provider domain list.
	ObservationNonStandardProvider Observation = "non-standard-provider"
)

// metadataHosts are cloud metadata endpoints that must never be reachable
// through a user-supplied base URL, matched case-insensitively and exactly.
var metadataHosts = map[string]struct{}{
	"169.254.169.254":          {},
	"metadata.google.internal": {},
	"metadata":                 {},
}

// defaultProviderDomains is the advisory allow-list of known LLM provider
// endpoints. A host outside this list is still accepted, but the guard
// reports it so the UI can warn the user.
var defaultProviderDomains = []string{
	"api.openai.com",
	"api.anthropic.com",
	"generativelanguage.googleapis.com",
	"aiplatform.googleapis.com",
	"openrouter.ai",
	"api.groq.com",
	"api.together.xyz",
	"api.x.ai",
	"dashscope.aliyuncs.com",
	"dashscope-intl.aliyuncs.com",
}

// Guard validates user-supplied provider base URLs. The zero value uses the
// built-in provider allow-list; ExtraProviders widens it.
type Guard struct {
	// ExtraProviders lists additional domains treated as known providers.
	ExtraProviders []string
}

// ValidateBaseURL applies the default guard.
func ValidateBaseURL(raw string) ([]Observation, error) {
	return Guard{}.ValidateBaseURL(raw)
}

// ValidateBaseURL classifies a base URL as safe or unsafe. The error names
// the rejection category; the observations flag accepted-but-notable URLs.
// Rules are evaluated in order: parse, scheme, IP-literal ranges, metadata
// blocklist, provider allow-list.
func (g Guard) ValidateBaseURL(raw string) ([]Observation, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid URL: no host in %q", raw)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q: only http and https are allowed", parsed.Scheme)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if err := rejectAddr(addr.Unmap()); err != nil {
			return nil, err
		}
	}

	lowerHost := strings.ToLower(host)
	if _, blocked := metadataHosts[lowerHost]; blocked {
		return nil, fmt.Errorf("cloud metadata endpoint %q is blocked", host)
	}

	// Loopback-by-name is a developer pointing at a local proxy; neither the
	// plain-http nor the provider observation applies.
	if isLoopbackName(lowerHost) {
		return nil, nil
	}

	var observations []Observation
	if scheme == "http" {
		observations = append(observations, ObservationPlainHTTP)
	}
	if !g.isKnownProvider(lowerHost) {
		observations = append(observations, ObservationNonStandardProvider)
	}
	return observations, nil
}

// rejectAddr enforces the private/special-use ranges a base URL must not
// point into.
func rejectAddr(addr netip.Addr) error {
	switch {
	case addr.IsLoopback():
		return fmt.Errorf("loopback IP address %s is not allowed", addr)
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified IP address %s is not allowed", addr)
	case addr.IsLinkLocalUnicast():
		return fmt.Errorf("link-local IP address %s is not allowed", addr)
	case addr.IsPrivate():
		// 10/8, 172.16/12, 192.168/16 for v4; fc00::/7 ULA for v6.
		return fmt.Errorf("private IP address %s is not allowed", addr)
	case addr.Is4() && addr.As4()[0] == 0:
		return fmt.Errorf("reserved IP address %s is not allowed", addr)
	}
	return nil
}

// isLoopbackName reports whether a hostname conventionally resolves to
// loopback without consulting DNS.
func isLoopbackName(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost")
}

// isKnownProvider reports whether host is (a subdomain of) a known provider
// domain.
func (g Guard) isKnownProvider(host string) bool {
	for _, domain := range defaultProviderDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	for _, domain := range g.ExtraProviders {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
