package lifeswapsdk

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
)

// Client is a minimal LifeSwap HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Experience represents the API experience model (partial).
type Experience struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category,omitempty"`
	Region        string `json:"region,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	Status        string `json:"status"`
	ScoringPolicy string `json:"scoring_policy"`
	Featured      bool   `json:"featured"`
}

type Scenario struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id,omitempty"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Type     string  `json:"type"`
}

type Choice struct {
	ID             string  `json:"id"`
	ScenarioID     string  `json:"scenario_id"`
	NextScenarioID *string `json:"next_scenario_id,omitempty"`
	Text           string  `json:"text"`
	PointsImpact   int     `json:"points_impact"`
}

// Ledger represents one traversal (partial).
type Ledger struct {
	ID                   string  `json:"id"`
	UserID               string  `json:"user_id"`
	ExperienceID         string  `json:"experience_id"`
	CurrentScenarioID    *string `json:"current_scenario_id,omitempty"`
	Outcome              string  `json:"outcome"`
	IsCompleted          bool    `json:"is_completed"`
	CompletionPercentage int     `json:"completion_percentage"`
	PointsEarned         int     `json:"points_earned"`
	TimeSpent            int     `json:"time_spent"`
	StepCount            int     `json:"step_count"`
}

// Position is the ledger's current scenario with the choices open from it.
type Position struct {
	LedgerID  string   `json:"ledger_id"`
	Outcome   string   `json:"outcome"`
	Scenario  Scenario `json:"scenario"`
	Available []Choice `json:"available_choices"`
}

type Issue struct {
	Code       string `json:"code"`
	ScenarioID string `json:"scenario_id,omitempty"`
	ChoiceID   string `json:"choice_id,omitempty"`
	Message    string `json:"message"`
}

type ImportResult struct {
	Experience Experience `json:"experience"`
	Scenarios  int        `json:"scenarios"`
	Choices    int        `json:"choices"`
	Issues     []Issue    `json:"issues"`
}

type UserStats struct {
	UserID               string `json:"user_id"`
	EmpathyPoints        int    `json:"empathy_points"`
	ExperiencesCompleted int    `json:"experiences_completed"`
	ExperiencesExited    int    `json:"experiences_exited"`
}

// APIError wraps non-2xx responses. Code carries the server's error code,
// e.g. choice_not_available or step_limit_exceeded.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Experiences lists the published catalog, optionally filtered by category.
func (c *Client) Experiences(ctx context.Context, category string) ([]Experience, error) {
	endpoint := "experiences"
	if category != "" {
		endpoint += "?category=" + url.QueryEscape(category)
	}
	var resp struct {
		Items []Experience `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Import uploads an experience document as a draft. Requires the author role.
func (c *Client) Import(ctx context.Context, document string) (ImportResult, error) {
	var resp ImportResult
	err := c.do(ctx, http.MethodPost, "experiences", map[string]any{"document": document}, &resp)
	return resp, err
}

func (c *Client) Publish(ctx context.Context, experienceID string) (Experience, error) {
	var resp Experience
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("experiences/%s/publish", url.PathEscape(experienceID)), nil, &resp)
	return resp, err
}

// Start starts the caller's ledger, or returns the one already open.
func (c *Client) Start(ctx context.Context, experienceID string) (Ledger, error) {
	var resp Ledger
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("experiences/%s/start", url.PathEscape(experienceID)), nil, &resp)
	return resp, err
}

func (c *Client) Position(ctx context.Context, ledgerID string) (Position, error) {
	var resp Position
	err := c.do(ctx, http.MethodGet, c.ledgerPath(ledgerID, "scenario"), nil, &resp)
	return resp, err
}

func (c *Client) Choose(ctx context.Context, ledgerID, choiceID string, elapsedSeconds int) (Ledger, error) {
	body := map[string]any{
		"choice_id":       choiceID,
		"elapsed_seconds": elapsedSeconds,
	}
	var resp Ledger
	err := c.do(ctx, http.MethodPost, c.ledgerPath(ledgerID, "choices"), body, &resp)
	return resp, err
}

func (c *Client) Complete(ctx context.Context, ledgerID string) (Ledger, error) {
	var resp Ledger
	err := c.do(ctx, http.MethodPost, c.ledgerPath(ledgerID, "complete"), nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, "me/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) ledgerPath(ledgerID, p string) string {
	return fmt.Sprintf("ledgers/%s/%s", url.PathEscape(ledgerID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
