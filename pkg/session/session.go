package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/types"
)

const (
	// DefaultExtractURL is the extracts endpoint of Speedtest Intelligence.
	DefaultExtractURL = "https://intelligence.speedtest.net/extracts"

	defaultTimeout = 30 * time.Minute
)

type Option struct {
	ExtractURL string
	APIKey     string
	APISecret  string
	UserAgent  string

	// RetryMax is the number of retries after a failed request. Zero fails immediately.
	RetryMax int
	// Timeout bounds the wait for response headers. Reading a body is not
	// limited, so large extracts on slow links still complete.
	Timeout  time.Duration
}

// Session executes authenticated requests against the extracts service.
type Session struct {
	http    *retryablehttp.Client
	baseURL string
	key     string
	secret  string
	agent   string
	logger  *slog.Logger
}

func New(opt Option) *Session {
	logger := slog.With(slog.String("component", "session"))

	client := retryablehttp.NewClient()
	client.RetryMax = opt.RetryMax
	client.Logger = slog.Default()
	client.Backoff = retryablehttp.DefaultBackoff
	if opt.Timeout == 0 {
		opt.Timeout = defaultTimeout
	}
	if transport, ok := client.HTTPClient.Transport.(*http.Transport); ok {
		transport.ResponseHeaderTimeout = opt.Timeout
	}
	client.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > 0 {
			logger.Debug("Redirect", slog.String("from", via[len(via)-1].URL.Redacted()), slog.String("to", req.URL.Redacted()))
		}
		return nil
	}
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if resp.StatusCode != http.StatusOK {
			logger.Debug("Unexpected http response", slog.String("url", resp.Request.URL.Redacted()), slog.String("status", resp.Status))
		}
	}
	client.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		// Callers triage the status code themselves.
		if resp != nil {
			return resp, nil
		}
		logger.Debug("HTTP request failed", slog.Int("num_tries", numTries), slog.Any("error", err))
		return nil, xerrors.Errorf("HTTP request failed after %d attempt(s): %w", numTries, err)
	}

	if opt.ExtractURL == "" {
		opt.ExtractURL = DefaultExtractURL
	}

	return &Session{
		http:    client,
		baseURL: opt.ExtractURL,
		key:     opt.APIKey,
		secret:  opt.APISecret,
		agent:   opt.UserAgent,
		logger:  logger,
	}
}

// ListingURL returns the URL of the listing at the given relative path.
func (s *Session) ListingURL(path string) string {
	return s.baseURL + path
}

// ResolveURL returns rawURL unchanged when it is absolute and relative to the
// extracts endpoint otherwise.
func (s *Session) ResolveURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		return rawURL
	}
	return s.baseURL + rawURL
}

// Listing fetches and decodes the listing at the relative path. The root
// listing ("" path) maps error statuses to ErrAuth, ErrNotProvisioned,
// ErrServer or ErrUnknownStatus.
func (s *Session) Listing(ctx context.Context, path string) ([]types.Entry, error) {
	u := s.ListingURL(path)
	s.logger.Debug("Requesting listing", slog.String("url", u))

	resp, err := s.get(ctx, u, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		if path == "" {
			return nil, statusError(resp.StatusCode)
		}
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}

	var entries []types.Entry
	if err = json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &ParseError{URL: u, Err: err}
	}
	s.logger.Debug("Found items in listing", slog.String("url", u), slog.Int("count", len(entries)))
	return entries, nil
}

// Open starts a download of rawURL. The caller must close the body.
func (s *Session) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	u := s.ResolveURL(rawURL)
	resp, err := s.get(ctx, u, false)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (s *Session) get(ctx context.Context, u string, listing bool) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xerrors.Errorf("unable to create a HTTP request: %w", err)
	}
	req.SetBasicAuth(s.key, s.secret)
	if listing {
		req.Header.Set("Accept", "application/json")
	}
	if s.agent != "" {
		req.Header.Set("User-Agent", s.agent)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	return resp, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
