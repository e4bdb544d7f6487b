package baileys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const (
	defaultProfileTimeout       = 5 * time.Second
	maxProfileResponseBodyBytes = 64 << 10
	apiKeyHeader                = "x-api-key"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ProfileClientConfig struct {
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// ProfileClient fetches profile picture urls from the Baileys gateway
// configured on each inbox.
type ProfileClient struct {
	timeout    time.Duration
	httpClient HTTPDoer
}

func NewProfileClient(cfg ProfileClientConfig) *ProfileClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProfileTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ProfileClient{timeout: timeout, httpClient: httpClient}
}

func NewProfileClientFromConfig(cfg core.Config) *ProfileClient {
	return NewProfileClient(ProfileClientConfig{Timeout: cfg.ProfileTimeout()})
}

func (c *ProfileClient) FetchProfilePictureURL(ctx context.Context, inbox core.Inbox, address core.Address) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("providers/baileys: profile client is not configured")
	}
	endpoint, err := profilePictureURL(inbox, address)
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("providers/baileys: build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey := strings.TrimSpace(inbox.APIKey); apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("providers/baileys: profile request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxProfileResponseBodyBytes))
	if err != nil {
		return "", fmt.Errorf("providers/baileys: read profile response: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("providers/baileys: profile request returned status %d", response.StatusCode)
	}

	var payload struct {
		Data struct {
			ProfilePictureURL *string `json:"profilePictureUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("providers/baileys: decode profile response: %w", err)
	}
	if payload.Data.ProfilePictureURL == nil {
		return "", nil
	}
	return strings.TrimSpace(*payload.Data.ProfilePictureURL), nil
}

func profilePictureURL(inbox core.Inbox, address core.Address) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(inbox.ProviderURL), "/")
	if base == "" {
		return "", fmt.Errorf("providers/baileys: inbox %q has no provider url", inbox.ID)
	}
	connection := strings.TrimSpace(inbox.PhoneNumber)
	if connection == "" {
		return "", fmt.Errorf("providers/baileys: inbox %q has no phone number", inbox.ID)
	}
	jid := JID(address)
	if jid == "" {
		return "", fmt.Errorf("providers/baileys: address is required")
	}
	return base + "/connections/" + url.PathEscape(connection) + "/profile-picture-url?jid=" + url.QueryEscape(jid), nil
}
