// Package gumroad talks to the Gumroad license verification endpoint.
package gumroad

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/quota"
)

// DefaultVerifyURL is Gumroad's production license endpoint.
const DefaultVerifyURL = "https://api.gumroad.com/v2/licenses/verify"

// DefaultProductID is the ClassCatch product on Gumroad. Some products
// need product_id in addition to the permalink, so requests carry both.
const DefaultProductID = "33phVx766ebEl_LxrwVEbA=="

const defaultTimeout = 15 * time.Second

// Client verifies license keys against the Gumroad API. Implements
// quota.Verifier.
type Client struct {
	verifyURL string
	productID string
	client    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithVerifyURL overrides the verification endpoint.
func WithVerifyURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.verifyURL = url
		}
	}
}

// WithProductID overrides the product identifier sent alongside the
// permalink.
func WithProductID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.productID = id
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a Gumroad client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		verifyURL: DefaultVerifyURL,
		productID: DefaultProductID,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verifyRequest struct {
	LicenseKey       string `json:"license_key"`
	ProductID        string `json:"product_id"`
	ProductPermalink string `json:"product_permalink"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Verify checks the license key. A declined key returns Valid=false
// with the provider's message and a nil error; only transport-level
// trouble produces an error.
func (c *Client) Verify(ctx context.Context, licenseKey, productPermalink string) (quota.VerifyOutcome, error) {
	body, err := json.Marshal(verifyRequest{
		LicenseKey:       licenseKey,
		ProductID:        c.productID,
		ProductPermalink: productPermalink,
	})
	if err != nil {
		return quota.VerifyOutcome{}, errkind.Wrap(errkind.KindInternal, "gumroad.verify", "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewReader(body))
	if err != nil {
		return quota.VerifyOutcome{}, errkind.Wrap(errkind.KindInternal, "gumroad.verify", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return quota.VerifyOutcome{}, errkind.Wrap(errkind.KindTransport, "gumroad.verify", "verification request failed", err)
	}
	defer resp.Body.Close()

	// Gumroad reports declines in the body, not the status code, so the
	// body is decoded regardless of status.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return quota.VerifyOutcome{}, errkind.Wrap(errkind.KindTransport, "gumroad.verify", "failed to read response", err)
	}

	var vr verifyResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		log.Debug().Int("status", resp.StatusCode).Msg("Unparseable verification response")
		return quota.VerifyOutcome{}, errkind.Wrap(errkind.KindTransport, "gumroad.verify", "malformed verification response", err)
	}

	return quota.VerifyOutcome{Valid: vr.Success, Message: vr.Message}, nil
}
