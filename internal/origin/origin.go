// Package origin implements the browser Origin policy shared by the HTTP API
// and the signaling WebSocket upgrade.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// NormalizeHeader validates a browser Origin header and returns it as
// scheme://host[:port] together with the host[:port] part used for same-host
// checks. Default ports are dropped. The literal "null" origin is accepted and
// returned with an empty host.
func NormalizeHeader(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.Opaque != "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether a request carrying originHeader may talk to the
// server reached via requestHost. With a non-empty allow list the normalized
// origin must appear in it (or the list must contain "*"). Otherwise only
// same-host origins pass; the scheme is ignored so TLS-terminating proxies
// work.
func Allowed(originHeader, requestHost string, allowList []string) (normalized string, ok bool) {
	normalized, host, ok := NormalizeHeader(originHeader)
	if !ok {
		return "", false
	}

	if len(allowList) > 0 {
		for _, entry := range allowList {
			if entry == "*" || entry == normalized {
				return normalized, true
			}
		}
		return normalized, false
	}

	if host == "" {
		return normalized, false
	}
	scheme := normalized[:strings.Index(normalized, "://")]
	reqHost, ok := canonicalHost(requestHost, scheme)
	return normalized, ok && reqHost == host
}

// canonicalHost lowercases an authority, strips the scheme's default port and
// re-brackets IPv6 literals.
func canonicalHost(authority, scheme string) (string, bool) {
	authority = strings.TrimSpace(authority)
	if authority == "" || strings.ContainsAny(authority, "/@?#") {
		return "", false
	}
	// Reject unbracketed IPv6 literals, which url.URL would otherwise split at
	// the last colon.
	if !strings.HasPrefix(authority, "[") && strings.Count(authority, ":") > 1 {
		return "", false
	}
	if strings.HasSuffix(authority, ":") {
		return "", false
	}

	u := &url.URL{Host: authority}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", false
	}

	port := u.Port()
	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		} else {
			port = strconv.FormatUint(n, 10)
		}
	}

	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port != "" {
		return hostname + ":" + port, true
	}
	return hostname, true
}
