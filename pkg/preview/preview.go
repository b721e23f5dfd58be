// Package preview scrapes Open Graph metadata for link previews.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"inspirestack/pkg/domain"
)

const (
	defaultTimeout   = 8 * time.Second
	defaultMaxBytes  = 2 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; InspireStackPreview/1.0)"
	maxRedirects     = 5
)

var (
	// ErrFetch reports that the remote page could not be retrieved.
	ErrFetch = errors.New("preview fetch failed")

	errBlockedAddress = errors.New("destination address not allowed")
)

// Preview is the metadata returned to clients.
type Preview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// AllowPrivateNetworks permits loopback and private destinations.
	AllowPrivateNetworks bool
}

// Fetcher downloads pages and extracts their preview metadata.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewFetcher builds a Fetcher. Unless AllowPrivateNetworks is set, the dialer
// refuses loopback, private and link-local destinations.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivateNetworks {
		dialer.Control = rejectPrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
	}
}

func rejectPrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return errBlockedAddress
	}
	return nil
}

// ParseTarget validates a user-supplied URL: absolute http(s) with a host.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) url", domain.ErrInvalidArgument)
	}
	return u, nil
}

// Fetch retrieves rawURL and extracts its preview.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return Preview{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Preview{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: parse html: %v", ErrFetch, err)
	}
	return Extract(doc, resp.Request.URL), nil
}

// Extract reads Open Graph tags from doc, falling back to <title> and the
// description meta tag. Relative image and page URLs resolve against base.
func Extract(doc *goquery.Document, base *url.URL) Preview {
	p := Preview{
		Title:       firstNonEmpty(metaContent(doc, "property", "og:title"), doc.Find("title").First().Text()),
		Description: firstNonEmpty(metaContent(doc, "property", "og:description"), metaContent(doc, "name", "description")),
		Image:       resolve(base, metaContent(doc, "property", "og:image")),
		URL:         resolve(base, metaContent(doc, "property", "og:url")),
	}
	if p.URL == "" && base != nil {
		p.URL = base.String()
	}
	return p
}

func metaContent(doc *goquery.Document, attr, value string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[%s=%q]`, attr, value)).First().Attr("content")
	return strings.TrimSpace(content)
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
