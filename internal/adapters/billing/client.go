package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/azad-hub/internal/ports"
)

const (
	maxUserResponseBytes  = 1 << 20
	defaultRequestTimeout = 30 * time.Second

	subscriptionActive = "active"
)

type Config struct {
	BaseURL        string
	ExtensionID    string
	APIKeyRef      string
	RequestTimeout time.Duration
}

// Client talks to the ExtensionPay style billing service: it answers the
// entitlement check and opens the payment page.
type Client struct {
	cfg         Config
	credentials ports.CredentialStore
	host        ports.Host
	httpClient  *http.Client
}

var (
	_ ports.EntitlementChecker = (*Client)(nil)
	_ ports.BillingUI          = (*Client)(nil)
)

type userResponse struct {
	PaidAt             *time.Time `json:"paidAt"`
	SubscriptionStatus string     `json:"subscriptionStatus"`
}

func NewClient(cfg Config, credentials ports.CredentialStore, host ports.Host, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.ExtensionID) == "" {
		return nil, errors.New("billing extension id is required")
	}
	if strings.TrimSpace(cfg.APIKeyRef) == "" {
		return nil, errors.New("billing api key reference is required")
	}
	if credentials == nil {
		return nil, errors.New("credential store is nil")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return &Client{cfg: cfg, credentials: credentials, host: host, httpClient: httpClient}, nil
}

func (c *Client) CheckAuthorised(ctx context.Context) (bool, error) {
	endpoint, err := c.endpoint(ctx, "api/v2/user")
	if err != nil {
		return false, err
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create billing user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request billing user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("request billing user: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserResponseBytes)).Decode(&user); err != nil {
		return false, fmt.Errorf("decode billing user response: %w", err)
	}

	return user.authorised(), nil
}

func (c *Client) DisplayPaymentUI(ctx context.Context) error {
	if c.host == nil {
		return errors.New("no host available to open the payment page")
	}

	endpoint, err := c.endpoint(ctx, "choose-plan")
	if err != nil {
		return err
	}
	if err := c.host.OpenTab(ctx, endpoint); err != nil {
		return fmt.Errorf("open payment page: %w", err)
	}
	return nil
}

func (u userResponse) authorised() bool {
	if u.PaidAt == nil || u.PaidAt.IsZero() {
		return false
	}
	return u.SubscriptionStatus == "" || u.SubscriptionStatus == subscriptionActive
}

func (c *Client) endpoint(ctx context.Context, path string) (string, error) {
	apiKey, err := c.credentials.Get(ctx, c.cfg.APIKeyRef)
	if err != nil {
		return "", fmt.Errorf("load billing api key: %w", err)
	}

	base, err := url.Parse(strings.TrimSpace(c.cfg.BaseURL))
	if err != nil {
		return "", fmt.Errorf("parse billing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", errors.New("billing base url must use http or https")
	}
	if base.Host == "" {
		return "", errors.New("billing base url host is required")
	}

	endpoint := base.JoinPath("extension", c.cfg.ExtensionID, path)
	query := endpoint.Query()
	query.Set("api_key", apiKey)
	endpoint.RawQuery = query.Encode()

	return endpoint.String(), nil
}
