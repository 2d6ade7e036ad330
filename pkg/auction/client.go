package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"craft-flipping/pkg/logging"
)

// PageSize is the number of listings a full page carries. A shorter page is the last one.
const PageSize = 100

const component = "auction_api"

// ClientConfig holds auction API client settings
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	PageDelay time.Duration
}

// DefaultClientConfig returns sensible defaults for the DonutSMP auction API
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "https://api.donutsmp.net",
		Timeout:   10 * time.Second,
		PageDelay: 300 * time.Millisecond,
	}
}

// Client fetches auction listings page by page
type Client struct {
	config  *ClientConfig
	http    *resty.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewClient creates an auction API client.
// If config is nil, default config is used.
// If limiter is nil, one is built from config.PageDelay.
func NewClient(config *ClientConfig, logger *logging.Logger, limiter *rate.Limiter) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(config.PageDelay), 1)
	}

	httpClient := resty.New()
	httpClient.SetTimeout(config.Timeout)

	return &Client{
		config:  config,
		http:    httpClient,
		limiter: limiter,
		logger:  logging.OrQuiet(logger),
	}
}

func (c *Client) pageURL(page int) string {
	return fmt.Sprintf("%s/v1/auction/list/%d", strings.TrimRight(c.config.BaseURL, "/"), page)
}

// FetchAll walks the listing pages starting at 1 until a short page, an empty page or a failure.
//
// A 401 aborts with ErrUnauthorized and no listings. A 429 stops pagination and returns what was
// collected with RateLimited set. Any other failure on page 1 is returned as a *TransportError;
// on a later page it yields a Partial result and a nil error.
func (c *Client) FetchAll(ctx context.Context, credential string) (*FetchResult, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}

	result := &FetchResult{}
	log := c.logger.WithAuction()

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.stopEarly(result, page, &TransportError{Page: page, Err: err})
		}

		listings, err := c.fetchPage(ctx, credential, page)
		if err != nil {
			return c.stopEarly(result, page, err)
		}

		result.Pages++
		result.Listings = append(result.Listings, listings...)

		log.WithFields(logrus.Fields{
			"page":     page,
			"listings": len(listings),
			"total":    len(result.Listings),
		}).Debug("Fetched auction page")

		if len(listings) < PageSize {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"pages":    result.Pages,
		"listings": len(result.Listings),
	}).Info("Auction fetch complete")

	return result, nil
}

// stopEarly maps a page failure onto the FetchAll outcome
func (c *Client) stopEarly(result *FetchResult, page int, err error) (*FetchResult, error) {
	log := c.logger.WithAuction().WithField("page", page)

	switch {
	case errors.Is(err, ErrUnauthorized):
		log.Error("Auction API rejected credential")
		return nil, err

	case errors.Is(err, ErrRateLimited):
		log.WithField("listings", len(result.Listings)).Warn("Auction API rate limited, stopping pagination")
		result.RateLimited = true
		result.Cause = err
		return result, nil

	case page == 1:
		return nil, err

	default:
		log.WithError(err).WithField("listings", len(result.Listings)).Warn("Auction page failed, returning partial result")
		result.Partial = true
		result.Cause = err
		return result, nil
	}
}

// fetchPage requests a single listing page
func (c *Client) fetchPage(ctx context.Context, credential string, page int) ([]Listing, error) {
	endpoint := c.pageURL(page)
	c.logger.APICall(component, endpoint, http.MethodGet)
	start := time.Now()

	resp, err := c.request(ctx, credential).Get(endpoint)
	duration := time.Since(start).Seconds()
	if err != nil {
		terr := &TransportError{Page: page, Err: err}
		c.logger.APIError(component, endpoint, terr, duration, 0)
		return nil, terr
	}

	status := resp.StatusCode()
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		terr := &TransportError{Page: page, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
		c.logger.APIError(component, endpoint, terr, duration, status)
		return nil, terr
	}

	var body ListingResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		terr := &TransportError{Page: page, StatusCode: status, Err: fmt.Errorf("parsing listing response: %w", err)}
		c.logger.APIError(component, endpoint, terr, duration, status)
		return nil, terr
	}

	c.logger.APISuccess(component, endpoint, duration, status)
	return body.Result, nil
}

// TestCredential makes one page-1 request and reports whether the server accepted it
func (c *Client) TestCredential(ctx context.Context, candidate string) bool {
	if candidate == "" {
		return false
	}

	endpoint := c.pageURL(1)
	c.logger.APICall(component, endpoint, http.MethodGet)

	resp, err := c.request(ctx, candidate).Get(endpoint)
	if err != nil {
		c.logger.WithAuction().WithError(err).Warn("Credential check failed")
		return false
	}

	ok := resp.StatusCode() == http.StatusOK
	c.logger.WithAuction().WithFields(logrus.Fields{
		"status_code": resp.StatusCode(),
		"valid":       ok,
	}).Info("Credential checked")
	return ok
}

func (c *Client) request(ctx context.Context, credential string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetHeader("Accept", "application/json")
}
