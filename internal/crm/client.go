package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultPerPage = 100
	maxPerPage     = 1000
)

// collection keys and paths per resource type. Legacy forms live under their own
// endpoint and are merged into the forms list.
var resourcePaths = map[ResourceType]struct{ path, key string }{
	ResourceForms:        {"/v4/forms", "forms"},
	ResourceTags:         {"/v4/tags", "tags"},
	ResourceSequences:    {"/v4/sequences", "sequences"},
	ResourceCustomFields: {"/v4/custom_fields", "custom_fields"},
}

const legacyFormsPath = "/v4/legacy_forms"

// ClientConfig configures the HTTP CRM client.
type ClientConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	PerPage     int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client implements Gateway over the CRM's REST API. Token acquisition and renewal
// happen elsewhere; the client only carries the bearer token it is given.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	perPage int
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ValidationError{Field: "base_url", Reason: "required"}
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, &ValidationError{Field: "access_token", Reason: "required"}
	}
	perPage := cfg.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if perPage < 1 || perPage > maxPerPage {
		return nil, &ValidationError{Field: "per_page", Reason: fmt.Sprintf("must be between 1 and %d", maxPerPage)}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if burst <= 0 {
		burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		perPage: perPage,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

type pagination struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

type resourceItem struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ListResources fetches every page of the given resource type.
func (c *Client) ListResources(ctx context.Context, t ResourceType) ([]Resource, error) {
	p, ok := resourcePaths[t]
	if !ok {
		return nil, &ValidationError{Field: "resource_type", Reason: fmt.Sprintf("unknown %q", t)}
	}
	out, err := c.listPaged(ctx, p.path, p.key, t, false)
	if err != nil {
		return nil, err
	}
	if t == ResourceForms {
		legacy, err := c.listPaged(ctx, legacyFormsPath, "legacy_forms", t, true)
		if err != nil {
			return nil, err
		}
		out = append(out, legacy...)
	}
	return out, nil
}

func (c *Client) listPaged(ctx context.Context, path, key string, t ResourceType, legacy bool) ([]Resource, error) {
	var out []Resource
	cursor := ""
	for {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(c.perPage))
		if cursor != "" {
			q.Set("after", cursor)
		}
		var page map[string]json.RawMessage
		if err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		var items []resourceItem
		if raw, ok := page[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		for _, it := range items {
			name := it.Name
			if name == "" {
				name = it.Label
			}
			out = append(out, Resource{ID: it.ID, Name: name, Type: t, Legacy: legacy, Key: it.Key})
		}
		var pg pagination
		if raw, ok := page["pagination"]; ok {
			if err := json.Unmarshal(raw, &pg); err != nil {
				return nil, fmt.Errorf("decode pagination: %w", err)
			}
		}
		if !pg.HasNextPage || pg.EndCursor == "" {
			return out, nil
		}
		cursor = pg.EndCursor
	}
}

type subscriberEnvelope struct {
	Subscriber Subscriber `json:"subscriber"`
}

// CreateSubscriber creates or updates the subscriber identified by email.
func (c *Client) CreateSubscriber(ctx context.Context, email, firstName, state string, fields Fields) (Subscriber, error) {
	if err := requireEmail(email); err != nil {
		return Subscriber{}, err
	}
	body := map[string]any{
		"email_address": email,
		"first_name":    firstName,
	}
	if state != "" {
		body["state"] = state
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	var env subscriberEnvelope
	if err := c.do(ctx, http.MethodPost, "/v4/subscribers", body, &env); err != nil {
		return Subscriber{}, err
	}
	return env.Subscriber, nil
}

// AddSubscriberToForm adds an existing subscriber to a form.
func (c *Client) AddSubscriberToForm(ctx context.Context, formID, subscriberID int64) error {
	if err := requireIDs("form_id", formID, subscriberID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v4/forms/%d/subscribers/%d", formID, subscriberID), map[string]any{}, nil)
}

// AddSubscriberToLegacyForm adds an existing subscriber to a legacy form.
func (c *Client) AddSubscriberToLegacyForm(ctx context.Context, formID, subscriberID int64) error {
	if err := requireIDs("form_id", formID, subscriberID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v4/landing_pages/%d/subscribers/%d", formID, subscriberID), map[string]any{}, nil)
}

// TagSubscribe upserts the subscriber and tags them.
func (c *Client) TagSubscribe(ctx context.Context, tagID int64, email, firstName string, fields Fields) error {
	return c.subscribeByEmail(ctx, "tag_id", "/v4/tags/%d/subscribers", tagID, email, firstName, fields)
}

// SequenceSubscribe upserts the subscriber and adds them to a sequence.
func (c *Client) SequenceSubscribe(ctx context.Context, sequenceID int64, email, firstName string, fields Fields) error {
	return c.subscribeByEmail(ctx, "sequence_id", "/v4/sequences/%d/subscribers", sequenceID, email, firstName, fields)
}

func (c *Client) subscribeByEmail(ctx context.Context, field, pathFmt string, id int64, email, firstName string, fields Fields) error {
	if id <= 0 {
		return &ValidationError{Field: field, Reason: "required"}
	}
	if _, err := c.CreateSubscriber(ctx, email, firstName, "", fields); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf(pathFmt, id), map[string]any{"email_address": email}, nil)
}

type purchaseEnvelope struct {
	Purchase struct {
		ID json.Number `json:"id"`
	} `json:"purchase"`
}

// CreatePurchase records a purchase and returns the CRM-assigned id.
func (c *Client) CreatePurchase(ctx context.Context, p Purchase) (string, error) {
	if err := requireEmail(p.EmailAddress); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return "", &ValidationError{Field: "transaction_id", Reason: "required"}
	}
	var env purchaseEnvelope
	if err := c.do(ctx, http.MethodPost, "/v4/purchases", p, &env); err != nil {
		return "", err
	}
	id := env.Purchase.ID.String()
	if id == "" {
		return "", &RemoteError{StatusCode: http.StatusOK, Message: "purchase response carried no id"}
	}
	return id, nil
}

// GetSubscriberIDByEmail returns ErrSubscriberNotFound when no subscriber matches.
func (c *Client) GetSubscriberIDByEmail(ctx context.Context, email string) (int64, error) {
	if err := requireEmail(email); err != nil {
		return 0, err
	}
	q := url.Values{}
	q.Set("email_address", email)
	var out struct {
		Subscribers []Subscriber `json:"subscribers"`
	}
	if err := c.do(ctx, http.MethodGet, "/v4/subscribers?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	if len(out.Subscribers) == 0 {
		return 0, ErrSubscriberNotFound
	}
	return out.Subscribers[0].ID, nil
}

// UpdateSubscriber updates name, email and custom fields.
func (c *Client) UpdateSubscriber(ctx context.Context, id int64, firstName, email string, fields Fields) error {
	if id <= 0 {
		return &ValidationError{Field: "subscriber_id", Reason: "required"}
	}
	if err := requireEmail(email); err != nil {
		return err
	}
	body := map[string]any{
		"email_address": email,
		"first_name":    firstName,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/v4/subscribers/%d", id), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &RemoteError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
		c.logger.Warn("crm request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", remote.Message))
		return remote
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte, fallback string) string {
	var env struct {
		Errors  []string `json:"errors"`
		Message string   `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if len(env.Errors) > 0 {
			return strings.Join(env.Errors, "; ")
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return fallback
}

func requireEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	return nil
}

func requireIDs(field string, id, subscriberID int64) error {
	if id <= 0 {
		return &ValidationError{Field: field, Reason: "required"}
	}
	if subscriberID <= 0 {
		return &ValidationError{Field: "subscriber_id", Reason: "required"}
	}
	return nil
}
