// Package extract implements the Page Extractor: it turns a fetched HTTP
// response into a lazily-materialized structured page record.
package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/skrushinsky/torspider-go/internal/urlcanon"
)

// skipTags are removed, subtree and all, before text extraction.
var skipTags = map[string]bool{
	"script": true, "style": true, "form": true, "input": true,
}

// saveHeaders is the response-header whitelist carried into PageRecord.Headers.
var saveHeaders = map[string]bool{
	"content-encoding": true, "content-language": true, "content-length": true,
	"content-location": true, "content-md5": true, "content-type": true,
	"date": true, "etag": true, "expires": true, "last-modified": true,
	"link": true, "retry-after": true, "server": true, "via": true,
	"warning": true, "status": true, "x-powered-by": true, "x-ua-compatible": true,
}

var (
	reMultiSpace  = regexp.MustCompile(`\s{2,}`)
	reNewlineTrim = regexp.MustCompile(`\s*\n\s*`)
	reMultiNL     = regexp.MustCompile(`\n{2,}`)
	reDotSpace    = regexp.MustCompile(`\s+\.\s+`)
)

// Links separates a page's outgoing links by whether they share the page's
// domain.
type Links struct {
	Inner []string
	Outer []string
}

// Record is the structured report produced for a successfully-fetched page.
// Every field is optional: a field is left zero-valued when the source page
// yielded no value for it (never an explicit null/empty marker).
type Record struct {
	Title    string
	Text     string
	Meta     map[string]string
	Language string
	Links    Links
	Headers  map[string]any
}

// Page lazily builds a Record from a fetched response. Base, Title, Meta,
// Text, Language and Links memoize their result; Headers and PartitionLinks
// recompute on each call. Call order does not matter.
type Page struct {
	requestURL   string
	effectiveURL string
	body         []byte
	header       map[string][]string

	doc       *html.Node
	docErr    error
	docParsed bool

	base     string
	baseOnce bool

	title     string
	titleOnce bool

	meta     map[string]string
	metaOnce bool

	text     string
	textOnce bool

	language     string
	languageOnce bool

	links     []string
	linksOnce bool
}

// New creates a Page for the given request/effective URL pair, raw body and
// response headers.
func New(requestURL, effectiveURL string, body []byte, header map[string][]string) *Page {
	return &Page{
		requestURL:   requestURL,
		effectiveURL: effectiveURL,
		body:         body,
		header:       header,
	}
}

func (p *Page) document() (*html.Node, error) {
	if !p.docParsed {
		p.doc, p.docErr = html.Parse(bytes.NewReader(p.body))
		p.docParsed = true
	}
	return p.doc, p.docErr
}

// Base returns the <base href> if present, else the scheme+authority of the
// effective URL with a "/" path.
func (p *Page) Base() string {
	if p.baseOnce {
		return p.base
	}
	p.baseOnce = true

	doc, err := p.document()
	if err == nil {
		if href, ok := findBaseHref(doc); ok && href != "" {
			p.base = href
			return p.base
		}
	}

	parts, err := urlcanon.Norm(p.effectiveURL, "")
	if err != nil {
		p.base = p.effectiveURL
		return p.base
	}
	p.base = parts.Scheme + "://" + parts.Authority + "/"
	return p.base
}

func findBaseHref(n *html.Node) (string, bool) {
	var found string
	var ok bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.Data == "base" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					found, ok = a.Val, true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if ok {
				return
			}
		}
	}
	walk(n)
	return found, ok
}

// Title returns the <title> text, stripped, or failing that the first
// non-empty <h1>-<h5> text.
func (p *Page) Title() string {
	if p.titleOnce {
		return p.title
	}
	p.titleOnce = true

	doc, err := p.document()
	if err != nil {
		return ""
	}

	if t := findFirstText(doc, "title"); strings.TrimSpace(t) != "" {
		p.title = strings.TrimSpace(t)
		return p.title
	}

	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5"} {
		if t := findFirstText(doc, tag); strings.TrimSpace(t) != "" {
			p.title = strings.TrimSpace(t)
			return p.title
		}
	}
	return ""
}

func findFirstText(n *html.Node, tag string) string {
	var result string
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			var b strings.Builder
			collectText(n, &b)
			if strings.TrimSpace(b.String()) != "" {
				result, found = b.String(), true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if found {
				return
			}
		}
	}
	walk(n)
	return result
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Meta returns the property|name -> content mapping of every <meta> tag
// that has both. Later tags win over earlier ones on key collision.
func (p *Page) Meta() map[string]string {
	if p.metaOnce {
		return p.meta
	}
	p.metaOnce = true

	doc, err := p.document()
	if err != nil {
		return nil
	}

	m := map[string]string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, name, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "property":
					property = a.Val
				case "name":
					name = a.Val
				case "content":
					content = a.Val
				}
			}
			key := property
			if key == "" {
				key = name
			}
			if key != "" && content != "" {
				m[key] = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(m) == 0 {
		return nil
	}
	p.meta = m
	return p.meta
}

// Text removes <script>/<style>/<form>/<input> subtrees and comments from
// the body, extracts the remaining text, and applies the whitespace and
// punctuation normalizations in a fixed order.
func (p *Page) Text() string {
	if p.textOnce {
		return p.text
	}
	p.textOnce = true

	doc, err := p.document()
	if err != nil {
		return ""
	}

	body := findBody(doc)
	if body == nil {
		return ""
	}

	var b strings.Builder
	extractVisibleText(body, &b)
	text := b.String()

	text = reMultiSpace.ReplaceAllString(text, " ")
	text = reNewlineTrim.ReplaceAllString(text, "\n")
	text = reMultiNL.ReplaceAllString(text, "\n")
	text = reDotSpace.ReplaceAllString(text, ". ")
	text = strings.TrimSpace(text)

	p.text = text
	return p.text
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// extractVisibleText walks n, skipping blacklisted-tag subtrees and HTML
// comments, joining remaining text nodes with a single space.
func extractVisibleText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractVisibleText(c, b)
	}
}

// Language returns the ISO-639-1 code detected from Text, or "UNKNOWN" if
// detection fails or yields no confident result.
func (p *Page) Language() string {
	if p.languageOnce {
		return p.language
	}
	p.languageOnce = true

	text := p.Text()
	if strings.TrimSpace(text) == "" {
		p.language = "UNKNOWN"
		return p.language
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		p.language = "UNKNOWN"
		return p.language
	}
	p.language = info.Lang.Iso6391()
	return p.language
}

// Links returns the unique, normalized set of http/https links found in
// every <a href> in the page.
func (p *Page) Links() []string {
	if p.linksOnce {
		return p.links
	}
	p.linksOnce = true

	doc, err := p.document()
	if err != nil {
		return nil
	}

	baseAuthority := urlcanon.GetDomain(p.Base())

	seen := map[string]bool{}
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				parts, err := urlcanon.Norm(a.Val, baseAuthority)
				if err != nil {
					break
				}
				if parts.Scheme != "http" && parts.Scheme != "https" {
					break
				}
				joined := urlcanon.JoinParts(parts)
				if !seen[joined] {
					seen[joined] = true
					out = append(out, joined)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p.links = out
	return p.links
}

// PartitionLinks splits Links into links sharing the page's domain (inner)
// and links that don't (outer).
func (p *Page) PartitionLinks() Links {
	baseDomain := urlcanon.GetDomain(p.Base())
	var inner, outer []string
	for _, link := range p.Links() {
		if urlcanon.GetDomain(link) == baseDomain {
			inner = append(inner, link)
		} else {
			outer = append(outer, link)
		}
	}
	return Links{Inner: inner, Outer: outer}
}

// Headers filters the response headers to the whitelist, parsing
// Date/Expires/Last-Modified as times (falling back to the raw string) and
// Content-Length as an integer.
func (p *Page) Headers() map[string]any {
	if len(p.header) == 0 {
		return nil
	}

	out := map[string]any{}
	for k, values := range p.header {
		lk := strings.ToLower(k)
		if !saveHeaders[lk] {
			continue
		}
		if len(values) == 0 {
			continue
		}
		v := values[0]
		out[canonicalHeaderName(k)] = parseHeaderValue(lk, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseHeaderValue(lowerKey, v string) any {
	switch lowerKey {
	case "date", "expires", "last-modified":
		if t, err := dateparse.ParseAny(v); err == nil {
			return t
		}
		return v
	case "content-length":
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return v
	default:
		return v
	}
}

// canonicalHeaderName title-cases a header name the same way net/http does,
// so Headers() keys use canonical casing.
func canonicalHeaderName(k string) string {
	words := strings.Split(k, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, "-")
}

// AsDict renders the page as a Record, omitting any field whose source page
// yielded no value.
func (p *Page) AsDict() Record {
	var rec Record

	if t := p.Title(); t != "" {
		rec.Title = t
	}
	if t := p.Text(); t != "" {
		rec.Text = t
	}
	if m := p.Meta(); len(m) > 0 {
		rec.Meta = m
	}
	if lang := p.Language(); lang != "" {
		rec.Language = lang
	}
	if links := p.Links(); len(links) > 0 {
		rec.Links = p.PartitionLinks()
	}
	if h := p.Headers(); len(h) > 0 {
		rec.Headers = h
	}
	return rec
}

