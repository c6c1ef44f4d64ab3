// Package unifi is the thin adapter over the UniFi Network API used to
// look up a connected client and grant it guest access.
package unifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"redux-portal/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrController covers transport failures and non-2xx controller
// responses. Callers translate it into a guest-facing denial.
var ErrController = errors.New("controller request failed")

const (
	DefaultTimeout      = 10 * time.Second
	DefaultFindAttempts = 5
	DefaultFindBackoff  = 500 * time.Millisecond
)

// WifiClient is one station as the controller reports it.
type WifiClient struct {
	ID         string `json:"id"`
	MacAddress string `json:"macAddress"`
	Name       string `json:"name,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	Type       string `json:"type,omitempty"`
	Connected  bool   `json:"connected,omitempty"`
}

type clientsPage struct {
	Data []WifiClient `json:"data"`
}

// authorizeAction is the guest-authorization request body. Optional
// caps are omitted entirely when the policy does not set them; the
// controller treats an absent field as "no limit".
type authorizeAction struct {
	Action               string `json:"action"`
	TimeLimitMinutes     int    `json:"timeLimitMinutes"`
	DataUsageLimitMBytes *int   `json:"dataUsageLimitMBytes,omitempty"`
	RxRateLimitKbps      *int   `json:"rxRateLimitKbps,omitempty"`
	TxRateLimitKbps      *int   `json:"txRateLimitKbps,omitempty"`
}

// Client talks to one controller on behalf of one site.
type Client struct {
	httpClient   *resty.Client
	siteID       string
	findAttempts int
	findBackoff  time.Duration
	logger       *zap.Logger
}

// Options tune the lookup retry loop; zero values take the defaults.
type Options struct {
	Timeout      time.Duration
	FindAttempts int
	FindBackoff  time.Duration
}

func NewClient(baseURL, apiKey, siteID string, opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := opts.FindAttempts
	if attempts <= 0 {
		attempts = DefaultFindAttempts
	}
	backoff := opts.FindBackoff
	if backoff <= 0 {
		backoff = DefaultFindBackoff
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("X-API-KEY", apiKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient:   httpClient,
		siteID:       siteID,
		findAttempts: attempts,
		findBackoff:  backoff,
		logger:       logger,
	}
}

// GetClientsByMAC queries the controller's client list filtered to one
// MAC. The MAC must already be in canonical form.
func (c *Client) GetClientsByMAC(ctx context.Context, mac string) ([]WifiClient, error) {
	var page clientsPage
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("macAddress.eq('%s')", mac)).
		SetResult(&page).
		Get(fmt.Sprintf("/v1/sites/%s/clients", c.siteID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrController, err)
	}
	if resp.IsError() {
		c.logger.Warn("controller client lookup failed",
			zap.String("site", c.siteID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: status %d", ErrController, resp.StatusCode())
	}
	return page.Data, nil
}

// GetClient fetches one station by its controller-assigned id.
func (c *Client) GetClient(ctx context.Context, clientID string) (*WifiClient, error) {
	var client WifiClient
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&client).
		Get(fmt.Sprintf("/v1/sites/%s/clients/%s", c.siteID, clientID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrController, err)
	}
	if resp.IsError() {
		c.logger.Warn("controller client fetch failed",
			zap.String("site", c.siteID),
			zap.String("client_id", clientID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: status %d", ErrController, resp.StatusCode())
	}
	return &client, nil
}

// FindClientByMAC polls for the station with linear backoff. A device
// that just associated can take a few seconds to show up in the
// controller's client table. Returns (nil, nil) when the device never
// appears; that is a guest-visible condition, not a transport error.
func (c *Client) FindClientByMAC(ctx context.Context, mac string) (*WifiClient, error) {
	for attempt := 1; attempt <= c.findAttempts; attempt++ {
		clients, err := c.GetClientsByMAC(ctx, mac)
		if err != nil {
			return nil, err
		}
		for i := range clients {
			if clients[i].ID != "" {
				return &clients[i], nil
			}
		}
		if attempt == c.findAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * c.findBackoff):
		}
	}
	c.logger.Info("client not found on controller",
		zap.String("site", c.siteID),
		zap.String("client_mac", mac),
		zap.Int("attempts", c.findAttempts),
	)
	return nil, nil
}

// AuthorizeGuest applies the site policy to an already-located client.
// The call is idempotent on the controller side; re-authorizing an
// authorized client refreshes its limits.
func (c *Client) AuthorizeGuest(ctx context.Context, clientID string, policy domain.Policy) error {
	body := authorizeAction{
		Action:               "AUTHORIZE_GUEST_ACCESS",
		TimeLimitMinutes:     policy.TimeLimitMinutes,
		DataUsageLimitMBytes: policy.DataLimitMB,
		RxRateLimitKbps:      policy.RxKbps,
		TxRateLimitKbps:      policy.TxKbps,
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/v1/sites/%s/clients/%s/actions", c.siteID, clientID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrController, err)
	}
	if resp.IsError() {
		c.logger.Warn("controller authorize failed",
			zap.String("site", c.siteID),
			zap.String("client_id", clientID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("%w: status %d", ErrController, resp.StatusCode())
	}
	return nil
}
