// Messaging gateway [Client] implementation
//
// Talks to an HTTP gateway that holds the platform session:
//   - POST /groups
//   - POST /groups/{id}/participants
//   - GET /groups/{id}
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/regroup/internal/shared"
)

const defaultGatewayURL string = "http://127.0.0.1:8080"

// GatewayOpts configures a [GatewayClient].
type GatewayOpts struct {
	BaseURL           string
	AccessToken       string        // sent as a bearer token when set
	RequestsPerSecond float64       // zero disables pacing
	Timeout           time.Duration // per request
	HTTPClient        *http.Client  // base client; the token transport wraps its transport
}

// GatewayClient implements [Client] and [GroupDirectory] against a messaging gateway.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGatewayClient creates a new gateway client.
func NewGatewayClient(opts GatewayOpts) *GatewayClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGatewayURL
	}

	base := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		base = &c
	}

	client := base
	if opts.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.AccessToken,
			TokenType:   "Bearer",
		}))
	}
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &GatewayClient{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// NewGatewayClientFromConfig builds a client from the messaging config section.
func NewGatewayClientFromConfig(cfg shared.MessagingConfig) *GatewayClient {
	return NewGatewayClient(GatewayOpts{
		BaseURL:           cfg.BaseURL,
		AccessToken:       cfg.AccessToken,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
	})
}

type createGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type groupResponse struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	Participants []struct {
		ID    string `json:"id"`
		Admin string `json:"admin,omitempty"` // "admin", "superadmin" or empty
	} `json:"participants"`
}

type updateParticipantsRequest struct {
	Action       Action   `json:"action"`
	Participants []string `json:"participants"`
}

type updateParticipantsResponse struct {
	Results []struct {
		Participant string `json:"participant"`
		Status      string `json:"status"`
	} `json:"results"`
}

// CreateGroup creates a group via POST /groups.
func (g *GatewayClient) CreateGroup(ctx context.Context, name string, participants []string) (*Group, error) {
	var resp groupResponse
	body := createGroupRequest{Name: name, Participants: participants}
	if err := g.doRequest(ctx, http.MethodPost, "/groups", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: gateway returned a group without an id", shared.ErrAPIRequest)
	}

	group := &Group{ID: resp.ID, Subject: resp.Subject}
	for _, p := range resp.Participants {
		group.Participants = append(group.Participants, p.ID)
	}
	return group, nil
}

// UpdateParticipants applies action via POST /groups/{id}/participants.
func (g *GatewayClient) UpdateParticipants(ctx context.Context, groupID string, participants []string, action Action) ([]ParticipantResult, error) {
	var resp updateParticipantsResponse
	body := updateParticipantsRequest{Action: action, Participants: participants}
	endpoint := "/groups/" + url.PathEscape(groupID) + "/participants"
	if err := g.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}

	results := make([]ParticipantResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, ParticipantResult{
			ParticipantID: r.Participant,
			Status:        ParseParticipantStatus(r.Status),
		})
	}
	return results, nil
}

// GroupInfo reads a group's members and admins via GET /groups/{id}.
func (g *GatewayClient) GroupInfo(ctx context.Context, groupID string) (*GroupInfo, error) {
	var resp groupResponse
	if err := g.doRequest(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID), nil, &resp); err != nil {
		return nil, err
	}

	info := &GroupInfo{ID: resp.ID, Subject: resp.Subject}
	for _, p := range resp.Participants {
		info.Participants = append(info.Participants, p.ID)
		if p.Admin != "" {
			info.Admins = append(info.Admins, p.ID)
		}
	}
	return info, nil
}

func (g *GatewayClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", shared.ErrAPIRequest, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%w: gateway status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%w: gateway status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
