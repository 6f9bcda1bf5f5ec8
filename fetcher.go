package factsync

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/time/rate"
)

const (
	VERSION = "0.1.0"

	// DefaultBaseURL is the SEC data API host
	DefaultBaseURL = "https://data.sec.gov"

	// DefaultRequestsPerSecond is the SEC fair-access ceiling
	DefaultRequestsPerSecond = 10

	// SecEmailEnvVar is the environment variable name for SEC email
	SecEmailEnvVar = "SEC_EMAIL"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks that an email is usable in the SEC User-Agent
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("SEC email required: set %s environment variable or use -email flag", SecEmailEnvVar)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	if strings.HasSuffix(email, "example.com") {
		return fmt.Errorf("use a real email address, not example.com: %s", email)
	}
	return nil
}

// BuildUserAgent creates a proper SEC User-Agent string
func BuildUserAgent(email string) string {
	return fmt.Sprintf("go-factsync/%s (%s)", VERSION, email)
}

// StatusError is returned when the registry answers with a non-200 status
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("SEC returned status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the request may succeed when repeated
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ClientConfig configures a Client. Everything the client needs comes from
// here; it never reads the environment except for standard proxy variables.
type ClientConfig struct {
	BaseURL           string        // Default DefaultBaseURL
	Email             string        // Contact email for the User-Agent
	UserAgent         string        // Full User-Agent; built from Email when empty
	Timeout           time.Duration // Per request, default 30s
	MaxAttempts       int           // Attempts per document, default 3
	RetryBackoff      time.Duration // Pause between attempts, default 3s
	RequestsPerSecond float64       // Default DefaultRequestsPerSecond
	VerifySSL         bool          // Verify server certificates
	CABundle          string        // Optional PEM bundle used when VerifySSL is set

	Logger     *zap.Logger  // Default no-op
	HTTPClient *http.Client // Overrides the transport built from the fields above
}

// Client retrieves companyfacts documents from the SEC
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient validates cfg, fills in defaults and builds the HTTP transport
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		if err := ValidateEmail(cfg.Email); err != nil {
			return nil, err
		}
		cfg.UserAgent = BuildUserAgent(cfg.Email)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport, err := newTransport(cfg)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     logger,
	}, nil
}

func newTransport(cfg ClientConfig) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	proxy := httpproxy.FromEnvironment().ProxyFunc()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if !cfg.VerifySSL {
		tlsConfig.InsecureSkipVerify = true
	} else if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, eris.Wrapf(err, "read CA bundle %s", cfg.CABundle)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, eris.Errorf("no certificates found in CA bundle %s", cfg.CABundle)
		}
		tlsConfig.RootCAs = pool
	}
	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// CompanyFactsURL returns the companyfacts endpoint for a CIK
func (c *Client) CompanyFactsURL(cik string) string {
	return fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.cfg.BaseURL, NormalizeCIK(cik))
}

// FetchCompanyFacts downloads and parses the companyfacts document of a CIK,
// retrying transport failures, 429 and 5xx answers
func (c *Client) FetchCompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	body, err := c.get(ctx, c.CompanyFactsURL(cik))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	cf, err := ParseCompanyFacts(body)
	if err != nil {
		return nil, eris.Wrapf(err, "companyfacts for CIK %s", cik)
	}
	return cf, nil
}

// Retrieve returns the facts of one company. Exhausted retries and malformed
// documents are logged and yield no facts; only the caller's context ending
// produces an error.
func (c *Client) Retrieve(ctx context.Context, company Company, concepts *Concepts, opts ExtractOptions) ([]Fact, error) {
	facts, err := c.retrieve(ctx, company, concepts, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Error("giving up on company",
			zap.String("entity", company.Ticker),
			zap.String("cik", company.CIK),
			zap.Error(err))
		return nil, nil
	}
	return facts, nil
}

// retrieve fetches and converts one company, returning the failure
func (c *Client) retrieve(ctx context.Context, company Company, concepts *Concepts, opts ExtractOptions) ([]Fact, error) {
	if concepts == nil {
		concepts = DefaultConcepts()
	}
	cf, err := c.FetchCompanyFacts(ctx, company.CIK)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s (CIK %s): %w", company.Ticker, company.CIK, err)
	}
	facts := cf.ToFacts(company, concepts, opts)
	c.log.Info("retrieved company facts",
		zap.String("entity", company.Ticker),
		zap.String("cik", company.CIK),
		zap.Int("facts", len(facts)))
	return facts, nil
}

// get performs a rate-limited GET with retries; the caller closes the body
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := c.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var statusErr *StatusError
		retryable := !eris.As(err, &statusErr) || statusErr.Retryable()
		c.log.Warn("request failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Bool("retryable", retryable),
			zap.Error(err))
		if !retryable {
			break
		}
		if attempt < c.cfg.MaxAttempts && c.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(c.cfg.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, eris.Wrapf(lastErr, "GET %s", rawURL)
}

func (c *Client) do(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp.Body, nil
}
