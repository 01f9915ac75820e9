package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"go-nukeguard/internal/cleanup"
	"go-nukeguard/internal/punish"
)

const (
	// DefaultBaseURL is the platform REST root. Tests point this at a
	// local server.
	DefaultBaseURL = "https://discord.com/api/v10"

	requestTimeout = 5 * time.Second
	userAgent      = "nukeguard (enforcement, 2.0)"
)

// Client executes punishments and reversals over the platform REST
// API. It satisfies both the punishment executor and the cleanup
// reverser contracts; transient failures surface as classified API
// errors so callers decide the retry policy.
type Client struct {
	baseURL string
	token   string
	pool    *Pool
	logger  *zap.Logger

	retainRoles func(ctx context.Context, tenantID, userID uint64) []string
}

func NewClient(baseURL, token string, pool *Pool, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, token: token, pool: pool, logger: logger}
}

var _ punish.Executor = (*Client)(nil)
var _ cleanup.Reverser = (*Client)(nil)

func (c *Client) Ban(ctx context.Context, tenantID, userID uint64, reason string) error {
	body, _ := json.Marshal(map[string]any{"delete_message_seconds": 0})
	return c.do(ctx, fasthttp.MethodPut,
		fmt.Sprintf("%s/guilds/%d/bans/%d", c.baseURL, tenantID, userID), body, reason)
}

func (c *Client) Kick(ctx context.Context, tenantID, userID uint64, reason string) error {
	return c.do(ctx, fasthttp.MethodDelete,
		fmt.Sprintf("%s/guilds/%d/members/%d", c.baseURL, tenantID, userID), nil, reason)
}

// SetRoleRetainer installs the lookup for roles that cannot be
// removed from a member (integration-managed roles). Strips keep
// those instead of failing the whole call.
func (c *Client) SetRoleRetainer(fn func(ctx context.Context, tenantID, userID uint64) []string) {
	c.retainRoles = fn
}

func (c *Client) StripRoles(ctx context.Context, tenantID, userID uint64, reason string) error {
	keep := []string{}
	if c.retainRoles != nil {
		if retained := c.retainRoles(ctx, tenantID, userID); retained != nil {
			keep = retained
		}
	}
	body, _ := json.Marshal(map[string]any{"roles": keep})
	return c.do(ctx, fasthttp.MethodPatch,
		fmt.Sprintf("%s/guilds/%d/members/%d", c.baseURL, tenantID, userID), body, reason)
}

func (c *Client) Unban(ctx context.Context, tenantID, userID uint64, reason string) error {
	return c.do(ctx, fasthttp.MethodDelete,
		fmt.Sprintf("%s/guilds/%d/bans/%d", c.baseURL, tenantID, userID), nil, reason)
}

// BanUser removes an injected account. Same wire call as Ban; kept
// separate so reverser call sites read as what they mean.
func (c *Client) BanUser(ctx context.Context, tenantID, userID uint64, reason string) error {
	return c.Ban(ctx, tenantID, userID, reason)
}

func (c *Client) DeleteObject(ctx context.Context, tenantID, objectID uint64, kind cleanup.ObjectKind, reason string) error {
	var url string
	switch kind {
	case cleanup.ObjectChannel:
		url = fmt.Sprintf("%s/channels/%d", c.baseURL, objectID)
	case cleanup.ObjectRole:
		url = fmt.Sprintf("%s/guilds/%d/roles/%d", c.baseURL, tenantID, objectID)
	case cleanup.ObjectWebhook:
		url = fmt.Sprintf("%s/webhooks/%d", c.baseURL, objectID)
	default:
		return fmt.Errorf("cannot delete object kind %q", kind)
	}
	return c.do(ctx, fasthttp.MethodDelete, url, nil, reason)
}

func (c *Client) RestoreObject(ctx context.Context, tenantID uint64, snap cleanup.Snapshot, reason string) error {
	switch snap.Kind {
	case cleanup.ObjectChannel:
		body, _ := json.Marshal(map[string]any{
			"name":     snap.Name,
			"position": snap.Position,
		})
		return c.do(ctx, fasthttp.MethodPost,
			fmt.Sprintf("%s/guilds/%d/channels", c.baseURL, tenantID), body, reason)
	case cleanup.ObjectRole:
		body, _ := json.Marshal(map[string]any{
			"name":        snap.Name,
			"permissions": strconv.FormatInt(snap.Permission, 10),
		})
		return c.do(ctx, fasthttp.MethodPost,
			fmt.Sprintf("%s/guilds/%d/roles", c.baseURL, tenantID), body, reason)
	case cleanup.ObjectGuildProfile:
		body, _ := json.Marshal(map[string]any{"name": snap.Name})
		return c.do(ctx, fasthttp.MethodPatch,
			fmt.Sprintf("%s/guilds/%d", c.baseURL, tenantID), body, reason)
	default:
		return fmt.Errorf("cannot restore object kind %q", snap.Kind)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", reason)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.SetBody(body)
	}

	start := time.Now()
	if err := c.pool.client().DoTimeout(req, resp, requestTimeout); err != nil {
		return &punish.APIError{Status: 0, Body: err.Error()}
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		c.logger.Debug("api call ok",
			zap.String("method", method),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)))
		return nil
	}

	apiErr := &punish.APIError{
		Status: status,
		Body:   string(resp.Body()),
	}
	if status == fasthttp.StatusTooManyRequests {
		apiErr.RetryAfter = retryAfterOf(resp)
	}
	return apiErr
}

// retryAfterOf reads the server wait hint, preferring the header and
// falling back to the JSON body's retry_after seconds.
func retryAfterOf(resp *fasthttp.Response) time.Duration {
	if h := string(resp.Header.Peek("Retry-After")); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return 0
}
