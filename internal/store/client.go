package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/infrastructure/resilience"
	"github.com/voxwork/voxwork/internal/shared/types"
)

// Client talks to the backend store.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
}

// NewClient creates a store client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c := &Client{
		http: httpClient,
		log:  log.Named("store"),
	}
	c.breaker = resilience.New("store", resilience.Settings{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			c.log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return c
}

// credentialResponse mirrors the backend's GET /session body.
type credentialResponse struct {
	ClientSecret struct {
		Value     string    `json:"value"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"client_secret"`
}

// FetchCredential mints a short-lived transport credential. Failure here is
// fatal to the connect operation; the caller reverts to disconnected.
func (c *Client) FetchCredential(ctx context.Context) (types.Credential, error) {
	var body credentialResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/session")
	if err != nil {
		return types.Credential{}, fmt.Errorf("credential fetch failed: %w", err)
	}
	if resp.IsError() {
		return types.Credential{}, fmt.Errorf("credential fetch failed: status %d", resp.StatusCode())
	}
	if body.ClientSecret.Value == "" {
		return types.Credential{}, fmt.Errorf("credential fetch returned empty secret")
	}
	return types.Credential{
		Value:     body.ClientSecret.Value,
		ExpiresAt: body.ClientSecret.ExpiresAt,
	}, nil
}

// LatestWorkingSession returns the most recent unsaved session for a project,
// or nil when none exists.
func (c *Client) LatestWorkingSession(ctx context.Context, projectID string) (*types.WorkingSession, error) {
	var sessions []types.WorkingSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"projectId": projectID,
			"saved":     "false",
			"limit":     "1",
		}).
		SetResult(&sessions).
		Get("/sessions")
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("session lookup failed: status %d", resp.StatusCode())
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// CreateWorkingSession creates a fresh unsaved session for a project.
func (c *Client) CreateWorkingSession(ctx context.Context, projectID, suiteID string) (*types.WorkingSession, error) {
	var created types.WorkingSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"projectId": projectID,
			"suiteId":   suiteID,
		}).
		SetResult(&created).
		Post("/sessions")
	if err != nil {
		return nil, fmt.Errorf("session create failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("session create failed: status %d", resp.StatusCode())
	}
	return &created, nil
}

// SaveNamedCopy persists a user-named saved copy of the working session.
// The live working session keeps accumulating; its IsSaved flag never flips.
func (c *Client) SaveNamedCopy(ctx context.Context, sessionID, name string) (*types.WorkingSession, error) {
	var saved types.WorkingSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetResult(&saved).
		Post(fmt.Sprintf("/sessions/%s/copies", sessionID))
	if err != nil {
		return nil, fmt.Errorf("session save failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("session save failed: status %d", resp.StatusCode())
	}
	return &saved, nil
}

// SaveTabs persists a project's tab collection. Used by both the debounced
// and forced save paths.
func (c *Client) SaveTabs(ctx context.Context, projectID string, tabs []types.Tab) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{"tabs": tabs}).
			Patch(fmt.Sprintf("/projects/%s/tabs", projectID))
		if err != nil {
			return fmt.Errorf("tab save failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("tab save failed: status %d", resp.StatusCode())
		}
		return nil
	})
}

// SaveTranscript persists the working session's transcript. Best-effort for
// callers on the disconnect path; the error is for logging, not rollback.
func (c *Client) SaveTranscript(ctx context.Context, sessionID string, msgs []types.Message) error {
	return c.breaker.Execute(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{"messages": msgs}).
			Post(fmt.Sprintf("/sessions/%s/transcript", sessionID))
		if err != nil {
			return fmt.Errorf("transcript save failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("transcript save failed: status %d", resp.StatusCode())
		}
		return nil
	})
}

// BreakerState exposes the write breaker state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}
