package supabase

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

	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

const (
	messagesTable = "messages"
	usersTable    = "User"
)

// Client is a wrapper around the Supabase REST API.
// It uses the service role key for backend operations with elevated privileges.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

// APIError is returned when Supabase answers with a status >= 400.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase error (status %d): %s", e.Status, e.Body)
}

// NewClient creates a new Supabase client. The timeout is an upper bound on
// every request; callers usually pass a tighter context deadline.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// BaseURL returns the project URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest executes an HTTP request to the Supabase REST API.
// It automatically adds authentication headers and handles the response.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// InsertMessage inserts a message row and returns it as persisted,
// including the store-assigned id and created_at.
func (c *Client) InsertMessage(ctx context.Context, row models.NewMessageRow) (models.Message, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, messagesTable, row)
	if err != nil {
		return models.Message{}, err
	}

	var messages []models.Message
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return models.Message{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if len(messages) == 0 {
		return models.Message{}, fmt.Errorf("insert returned no row")
	}

	return messages[0], nil
}

// ListMessages retrieves the messages of a conversation in ascending created_at
// order. If after is not zero, only messages strictly newer are returned.
func (c *Client) ListMessages(ctx context.Context, conversationKey string, after time.Time) ([]models.Message, error) {
	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationKey)
	query.Set("select", "*")
	query.Set("order", "created_at.asc")
	if !after.IsZero() {
		query.Set("created_at", "gt."+after.UTC().Format(time.RFC3339Nano))
	}

	return c.listMessages(ctx, query)
}

// LatestMessage returns the newest message of a conversation, or nil when the
// conversation is empty.
func (c *Client) LatestMessage(ctx context.Context, conversationKey string) (*models.Message, error) {
	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationKey)
	query.Set("select", "*")
	query.Set("order", "created_at.desc")
	query.Set("limit", "1")

	messages, err := c.listMessages(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

func (c *Client) listMessages(ctx context.Context, query url.Values) ([]models.Message, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, messagesTable+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	messages := []models.Message{}
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	return messages, nil
}

// GetUser retrieves a user record by its lowercase wallet address.
// It returns nil when no record exists.
func (c *Client) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	query := url.Values{}
	query.Set("Blk_Id", "eq."+wallet)
	query.Set("select", "*")
	respBody, err := c.doRequest(ctx, http.MethodGet, usersTable+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	return firstUser(respBody)
}

// CreateUser inserts a new user record.
func (c *Client) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, usersTable, user)
	if err != nil {
		return nil, err
	}

	created, err := firstUser(respBody)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("insert returned no row")
	}
	return created, nil
}

// UpdateUser patches the user record of a wallet. It returns nil when no
// record matched.
func (c *Client) UpdateUser(ctx context.Context, wallet string, updates map[string]interface{}) (*models.User, error) {
	query := url.Values{}
	query.Set("Blk_Id", "eq."+wallet)
	respBody, err := c.doRequest(ctx, http.MethodPatch, usersTable+"?"+query.Encode(), updates)
	if err != nil {
		return nil, err
	}

	return firstUser(respBody)
}

func firstUser(respBody []byte) (*models.User, error) {
	var users []models.User
	if err := json.Unmarshal(respBody, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// BroadcastMessage sends a Supabase Realtime Broadcast event carrying a freshly
// inserted message, so subscribers of the conversation channel see it without
// waiting for the database change feed.
// This uses the Supabase Realtime REST API so no WebSocket connection is needed.
func (c *Client) BroadcastMessage(ctx context.Context, msg models.Message) error {
	payload := map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"topic":   ChannelName(msg.ConversationKey),
				"event":   BroadcastEvent,
				"payload": msg,
			},
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}

	reqURL := fmt.Sprintf("%s/realtime/v1/api/broadcast", c.baseURL)
	c.log.Debug("[Broadcast] Message", zap.String("conversation", msg.ConversationKey), zap.String("id", msg.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create broadcast request: %w", err)
	}

	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("broadcast request failed: %w", err)
	}
	return nil
}

// BroadcastEvent is the event name message broadcasts are published under.
const BroadcastEvent = "message"

// ChannelName returns the realtime channel of a conversation.
func ChannelName(conversationKey string) string {
	return "conversation:" + conversationKey
}
