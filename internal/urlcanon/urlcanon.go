// Package urlcanon implements the canonical-URL rules that give crawl tasks
// their identity. It is a pure transformation: no network or store access.
package urlcanon

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformedURL is returned when a URL has no authority and no default
// authority was supplied to fall back on.
var ErrMalformedURL = errors.New("urlcanon: malformed URL")

// Parts is the six-tuple canonical form of a URL: scheme, authority, path,
// parameters, query and fragment. Fragment is always empty after Norm.
type Parts struct {
	Scheme     string
	Authority  string
	Path       string
	Parameters string
	Query      string
	Fragment   string
}

// defaultPort maps a scheme to the port implied when none is given.
var defaultPort = map[string]int{
	"http":     80,
	"https":    443,
	"gopher":   70,
	"news":     119,
	"snews":    563,
	"nntp":     119,
	"snntp":    563,
	"ftp":      21,
	"telnet":   23,
	"prospero": 191,
}

// relativeSchemes are schemes for which the path-collapse rewrite rules apply.
var relativeSchemes = map[string]bool{
	"http": true, "https": true, "news": true, "snews": true,
	"nntp": true, "snntp": true, "ftp": true, "file": true, "": true,
}

var authorityRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(.+))?$`)

// collapseRe matches one collapsible path construct; a single match is
// rewritten to "/" and the process repeats to a fixed point.
var collapseRe = regexp.MustCompile(`[^/]+/\.\./?|/\./|//|/\.$|/\.\.$|^\.`)

// Norm parses url into its canonical six-tuple. If url has no authority
// (e.g. it is a path-relative reference), defaultAuthority is used; if that
// is also empty, Norm fails with ErrMalformedURL.
func Norm(raw string, defaultAuthority string) (Parts, error) {
	scheme, authority, path, parameters, query, _ := split(raw)

	if scheme == "" {
		scheme = "http"
	}
	if authority == "" {
		authority = defaultAuthority
	}
	if authority == "" {
		return Parts{}, fmt.Errorf("%w: %s", ErrMalformedURL, raw)
	}

	authority, err := normalizeAuthority(authority, scheme)
	if err != nil {
		return Parts{}, err
	}

	if relativeSchemes[scheme] {
		path = collapsePath(path)
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}

	return Parts{
		Scheme:     scheme,
		Authority:  authority,
		Path:       path,
		Parameters: parameters,
		Query:      query,
		Fragment:   "",
	}, nil
}

// JoinParts renders a canonical Parts back into a URL string:
// scheme://authority{path;parameters?query}
func JoinParts(p Parts) string {
	var b strings.Builder
	b.WriteString(p.Scheme)
	b.WriteString("://")
	b.WriteString(p.Authority)
	b.WriteString(p.Path)
	if p.Parameters != "" {
		b.WriteByte(';')
		b.WriteString(p.Parameters)
	}
	if p.Query != "" {
		b.WriteByte('?')
		b.WriteString(p.Query)
	}
	return b.String()
}

// GetDomain returns the authority component of a canonical or raw URL.
func GetDomain(rawURL string) string {
	_, authority, _, _, _, _ := split(rawURL)
	return authority
}

// FirstLevelDomain returns the last two dot-separated labels of a domain,
// e.g. "www.example.co.uk" -> "co.uk" (a naive last-two-labels join, not a
// public-suffix-aware one).
func FirstLevelDomain(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return domain
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// split decomposes a URL into the raw six components without any
// normalization, including the params-from-last-path-segment split.
func split(raw string) (scheme, authority, path, parameters, query, fragment string) {
	rest := raw

	if idx := schemeEnd(rest); idx > 0 {
		scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+1:]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		end := len(rest)
		for i, c := range rest {
			if c == '/' || c == '?' || c == '#' {
				end = i
				break
			}
		}
		authority = rest[:end]
		rest = rest[end:]
	}

	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		fragment = rest[idx+1:]
		rest = rest[:idx]
	}

	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		query = rest[idx+1:]
		rest = rest[:idx]
	}

	path, parameters = splitParams(rest)
	return
}

// schemeEnd returns the index of the colon terminating a leading scheme, or
// -1 if rest has no valid scheme prefix.
func schemeEnd(rest string) int {
	for i, c := range rest {
		switch {
		case c == ':':
			if i == 0 {
				return -1
			}
			return i
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			continue
		case i > 0 && ((c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'):
			continue
		default:
			return -1
		}
	}
	return -1
}

// splitParams splits the trailing ";parameters" off the final path segment.
func splitParams(pathAndParams string) (path, parameters string) {
	lastSlash := strings.LastIndexByte(pathAndParams, '/')
	segment := pathAndParams[lastSlash+1:]
	if idx := strings.IndexByte(segment, ';'); idx >= 0 {
		parameters = segment[idx+1:]
		return pathAndParams[:lastSlash+1] + segment[:idx], parameters
	}
	return pathAndParams, ""
}

// normalizeAuthority lowercases and IDNA-decodes the host, strips a
// trailing dot and the scheme's default port, and preserves userinfo.
func normalizeAuthority(authority, scheme string) (string, error) {
	m := authorityRe.FindStringSubmatch(authority)
	if m == nil {
		return "", fmt.Errorf("%w: bad authority %q", ErrMalformedURL, authority)
	}
	userinfo, host, port := m[1], m[2], m[3]

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)

	// On decode failure, keep host as-is and warn.
	if decoded, err := idna.ToUnicode(host); err == nil {
		host = decoded
	} else {
		log.Printf("urlcanon: IDNA decode of %q failed, keeping it as-is: %v", host, err)
	}

	out := host
	if userinfo != "" {
		out = userinfo + "@" + out
	}
	if port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			if dp, ok := defaultPort[scheme]; !ok || p != dp {
				out = out + ":" + port
			}
		} else {
			out = out + ":" + port
		}
	}
	return out, nil
}

// collapsePath repeatedly rewrites the first collapseRe match to "/" until
// a fixed point is reached.
func collapsePath(path string) string {
	for {
		loc := collapseRe.FindStringIndex(path)
		if loc == nil {
			return path
		}
		next := path[:loc[0]] + "/" + path[loc[1]:]
		if next == path {
			return next
		}
		path = next
	}
}
