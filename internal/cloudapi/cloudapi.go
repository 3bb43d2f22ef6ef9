// Package cloudapi implements the cloud collaborators as injected
// functions: fetching a gateway's site-specific password and listing the
// sites available to an account. Both are treated as flaky external
// calls, so outbound requests go through go-retryablehttp built on a
// go-cleanhttp base client.
package cloudapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
)

// Credentials are the cloud account credentials used to authenticate
// against the vendor's site/password endpoints.
type Credentials struct {
	Email    string
	Password string
}

// Site is a single site returned by ListSites.
type Site struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GatewayMAC string `json:"gateway_mac"`
}

// PasswordProvider performs the vendor OAuth dance and returns the
// site-specific gateway password.
type PasswordProvider interface {
	FetchGatewayPassword(ctx context.Context, creds Credentials, mac string) (string, error)
}

// SiteLister lists the sites available to an account.
type SiteLister interface {
	ListSites(ctx context.Context, creds Credentials) ([]Site, error)
}

// NewSession builds a single configured HTTP client, backed by
// retryablehttp, for the cloud endpoints below. The digest challenge GET
// does not use it; the transport package builds its own client.
func NewSession(allowInsecureTLS bool, timeout time.Duration, log hclog.Logger) *retryablehttp.Client {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	transport := cleanhttp.DefaultPooledTransport()
	if allowInsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-configurable, defaults to verified TLS
	}
	base := &http.Client{Transport: transport, Timeout: timeout}

	retryable := retryablehttp.NewClient()
	retryable.HTTPClient = base
	retryable.RetryMax = 3
	retryable.Logger = retryableLoggerAdapter{log}
	return retryable
}

type retryableLoggerAdapter struct {
	log hclog.Logger
}

func (a retryableLoggerAdapter) Printf(format string, v ...any) {
	a.log.Debug(fmt.Sprintf(format, v...))
}

// Client is the default PasswordProvider/SiteLister implementation, backed
// by a retryablehttp session and deduplicating concurrent password fetches
// for the same MAC with singleflight (SPEC_FULL.md §9).
type Client struct {
	baseURL string
	session *retryablehttp.Client
	group   singleflight.Group
}

// NewClient builds a cloudapi.Client against baseURL (the vendor mediation
// API root) using session for outbound calls.
func NewClient(baseURL string, session *retryablehttp.Client) *Client {
	return &Client{baseURL: baseURL, session: session}
}

// FetchGatewayPassword implements PasswordProvider, deduplicating
// concurrent calls for the same mac via singleflight so two overlapping
// connect() attempts don't both hit the cloud endpoint.
func (c *Client) FetchGatewayPassword(ctx context.Context, creds Credentials, mac string) (string, error) {
	v, err, _ := c.group.Do(mac, func() (any, error) {
		return c.fetchGatewayPassword(ctx, creds, mac)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchGatewayPassword(ctx context.Context, creds Credentials, mac string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mediation/client/password", nil)
	if err != nil {
		return "", fmt.Errorf("cloudapi: build password request: %w", err)
	}
	req.SetBasicAuth(creds.Email, creds.Password)
	q := req.URL.Query()
	q.Set("mac", mac)
	req.URL.RawQuery = q.Encode()

	resp, err := c.session.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudapi: fetch gateway password: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloudapi: fetch gateway password: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("cloudapi: decode password response: %w", err)
	}
	if payload.Password == "" {
		return "", fmt.Errorf("cloudapi: empty password returned")
	}
	return payload.Password, nil
}

// ListSites implements SiteLister.
func (c *Client) ListSites(ctx context.Context, creds Credentials) ([]Site, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mediation/client/sites", nil)
	if err != nil {
		return nil, fmt.Errorf("cloudapi: build sites request: %w", err)
	}
	req.SetBasicAuth(creds.Email, creds.Password)

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudapi: list sites: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cloudapi: list sites: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sites []Site
	if err := json.NewDecoder(resp.Body).Decode(&sites); err != nil {
		return nil, fmt.Errorf("cloudapi: decode sites response: %w", err)
	}
	return sites, nil
}
