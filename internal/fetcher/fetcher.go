// Package fetcher downloads remote images referenced from notes.
package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const maxRedirects = 5

// Resource is a downloaded image.
type Resource struct {
	Data        []byte
	ContentType string
}

// FetchError describes a failed download. StatusCode is zero when no
// response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes caps the size of a download. Zero disables the cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithBlockInternal rejects loopback and cloud metadata hosts, including
// redirect targets.
func WithBlockInternal(block bool) Option {
	return func(f *Fetcher) { f.blockInternal = block }
}

// Fetcher performs a single GET per image. It never retries.
type Fetcher struct {
	client        *http.Client
	maxBytes      int64
	userAgent     string
	blockInternal bool
}

// New creates a Fetcher. Without WithClient it uses http.DefaultClient.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{client: http.DefaultClient}
	for _, o := range opts {
		o(f)
	}
	if f.blockInternal {
		c := *f.client
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return checkBlockedHost(req.URL.Hostname())
		}
		f.client = &c
	}
	return f
}

// Fetch downloads rawURL. Any failure, including a non-2xx status, is
// returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Resource, error) {
	if strings.HasPrefix(rawURL, "data:") {
		res, err := decodeDataURI(rawURL)
		if err != nil {
			return nil, &FetchError{URL: DisplayURL(rawURL), Err: err}
		}
		if err := f.checkSize(len(res.Data)); err != nil {
			return nil, &FetchError{URL: DisplayURL(rawURL), Err: err}
		}
		return res, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if f.blockInternal {
		if err := checkBlockedHost(req.URL.Hostname()); err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if err := f.checkSize(len(data)); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return &Resource{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (f *Fetcher) checkSize(n int) error {
	if f.maxBytes > 0 && int64(n) > f.maxBytes {
		return fmt.Errorf("too large: exceeds %d bytes", f.maxBytes)
	}
	return nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // DNS failures surface from the client
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) (*Resource, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return &Resource{Data: data, ContentType: mime}, nil
}

// DisplayURL returns rawURL for logs and records. Data URIs are cut to a
// short prefix so their payload never ends up there.
func DisplayURL(rawURL string) string {
	const max = 64
	if !strings.HasPrefix(rawURL, "data:") || len(rawURL) <= max {
		return rawURL
	}
	return rawURL[:max] + "..."
}
