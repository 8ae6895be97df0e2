// Package fetch implements the HTTP fetcher: a single GET per call, with
// configurable proxy, timeouts and TLS verification, and validation of the
// response's Content-Type, Content-Language and Content-Length headers.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skrushinsky/torspider-go/internal/crawlerr"
)

// allowedType is the single content type the fetcher accepts.
const allowedType = "text/html"

// allowedLanguages is the Content-Language allow-list.
var allowedLanguages = map[string]bool{
	"ru": true, "en": true, "russian": true, "ru-ru": true,
}

// DefaultMaxContentSizeKB is the default Content-Length cap, in KiB.
const DefaultMaxContentSizeKB = 1024

// Config configures a Client.
type Config struct {
	// Proxy is an HTTP proxy in "host:port" form; empty disables it.
	Proxy string
	// ConnectTimeout bounds the TCP connect phase.
	ConnectTimeout time.Duration
	// RequestTimeout bounds the full request round trip.
	RequestTimeout time.Duration
	// ValidateCert enables TLS certificate verification.
	ValidateCert bool
	// MaxContentSizeKB is the Content-Length cap enforced on responses.
	MaxContentSizeKB int
	// UserAgent overrides the default browser-like User-Agent.
	UserAgent string
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.8; rv:28.0) Gecko/20100101 Firefox/28.0"

// Response is the full result of a successful visit: final URL (after
// redirects), status, headers and body.
type Response struct {
	EffectiveURL string
	StatusCode   int
	Header       http.Header
	Body         []byte
}

// Client performs HTTP GETs against the configured proxy with fixed
// browser-like headers, failing closed on non-2xx and header violations.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client from cfg, filling in defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.MaxContentSizeKB == 0 {
		cfg.MaxContentSizeKB = DefaultMaxContentSizeKB
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	transport.TLSClientConfig = tlsConfig(cfg.ValidateCert)

	if cfg.Proxy != "" {
		proxyURL := &url.URL{Scheme: "http", Host: cfg.Proxy}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
	}
}

// Visit performs one GET against targetURL and validates the response
// headers. It never retries.
func (c *Client) Visit(ctx context.Context, targetURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", allowedType)
	req.Header.Set("Accept-Charset", "utf-8, windows-1251;q=0.5, koi8-r;q=0.3, *;q=0.3")
	req.Header.Set("Accept-Language", "ru, en;q=0.7")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &crawlerr.HTTPError{StatusCode: resp.StatusCode, URL: targetURL}
	}

	if err := validateHeaders(resp.Header, c.cfg.MaxContentSizeKB); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	effectiveURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		effectiveURL = resp.Request.URL.String()
	}

	return &Response{
		EffectiveURL: effectiveURL,
		StatusCode:   resp.StatusCode,
		Header:       resp.Header,
		Body:         body,
	}, nil
}

func validateHeaders(h http.Header, maxContentSizeKB int) error {
	if ct := h.Get("Content-Type"); ct != "" {
		first := strings.TrimSpace(strings.Split(ct, ";")[0])
		if first != allowedType {
			return &crawlerr.BadContentTypeError{ContentType: ct}
		}
	}

	if cl := h.Get("Content-Language"); cl != "" {
		ok := false
		for _, tok := range strings.Split(cl, ",") {
			if allowedLanguages[strings.ToLower(strings.TrimSpace(tok))] {
				ok = true
				break
			}
		}
		if !ok {
			return &crawlerr.BadLanguageError{ContentLanguage: cl}
		}
	}

	if clen := h.Get("Content-Length"); clen != "" {
		n, err := strconv.Atoi(clen)
		if err == nil {
			sizeKB := n / 1024
			if sizeKB > maxContentSizeKB {
				return &crawlerr.ContentTooLargeError{SizeKB: sizeKB, MaxKB: maxContentSizeKB}
			}
		}
	}

	return nil
}
