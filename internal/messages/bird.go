package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/models"
)

// DefaultBirdURL is the Bird API base URL.
const DefaultBirdURL = "https://api.bird.com"

// maxResponseBytes bounds a single list response.
const maxResponseBytes = 32 << 20

// BirdConfig holds the channel credentials.
type BirdConfig struct {
	BaseURL     string
	AccessKey   string
	WorkspaceID string
	ChannelID   string
	HTTPClient  *http.Client
}

// BirdClient lists channel messages from the Bird API.
type BirdClient struct {
	baseURL    string
	accessKey  string
	workspace  string
	channel    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewBirdClient creates a client. All credentials are required.
func NewBirdClient(cfg BirdConfig, log zerolog.Logger) (*BirdClient, error) {
	if cfg.AccessKey == "" || cfg.WorkspaceID == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("bird: access key, workspace and channel are required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBirdURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("bird: invalid base URL %q: %w", base, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BirdClient{
		baseURL:    strings.TrimRight(base, "/"),
		accessKey:  cfg.AccessKey,
		workspace:  cfg.WorkspaceID,
		channel:    cfg.ChannelID,
		httpClient: httpClient,
		log:        log.With().Str("component", "Bird").Logger(),
	}, nil
}

type listResponse struct {
	Results []json.RawMessage `json:"results"`
}

// FetchRecent lists up to limit channel messages. Results that do not
// decode are logged and skipped.
func (c *BirdClient) FetchRecent(ctx context.Context, limit int) ([]models.Message, error) {
	path := "/workspaces/" + url.PathEscape(c.workspace) + "/channels/" + url.PathEscape(c.channel) + "/messages"
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bird: failed to create request: %w", err)
	}
	request.Header.Set("Authorization", "AccessKey "+c.accessKey)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("bird: request to %s failed: %w", path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("bird: failed to read response body: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("bird: unexpected %d response from %s: %s", response.StatusCode, path, truncate(string(body), 200))
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("bird: failed to parse message list: %w", err)
	}

	out := make([]models.Message, 0, len(list.Results))
	for i, raw := range list.Results {
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn().Err(err).Int("index", i).Msg("Skipping malformed message")
			continue
		}
		out = append(out, m)
	}
	c.log.Debug().Int("count", len(out)).Msg("Fetched messages")
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
