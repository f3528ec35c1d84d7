package suredone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/creds"
	"github.com/dropified/suredone-adapter/internal/httpclient"
	"github.com/dropified/suredone-adapter/internal/metrics"
	"github.com/dropified/suredone-adapter/internal/rate"
	"github.com/dropified/suredone-adapter/pkg/secrets"
)

// CredentialSource is the subset of the credential store the client needs for
// token refresh.
type CredentialSource interface {
	FindByUsername(ctx context.Context, username string) (*creds.Credential, error)
	Save(ctx context.Context, cred *creds.Credential) error
}

// Authorizer issues a fresh token for a username/password pair. Satisfied by
// *AdminClient.
type Authorizer interface {
	Authorize(ctx context.Context, username, password string) (string, error)
}

// ClientConfig holds the fixed settings of the SureDone client.
type ClientConfig struct {
	BaseURL        string
	PartnerID      string // fixed X-Auth-Integration value
	HTTPTimeout    time.Duration
	OptionsTimeout time.Duration // bounded timeout for the account-options fetch
	OptionsTTL     time.Duration // cache TTL for account options
}

// Client wraps HTTP communication with the SureDone multi-channel API.
// Tenant credentials are supplied per call via TenantConfig so one Client
// instance serves every connected store; a failed call whose body signals
// "Invalid Token" is refreshed and retried exactly once.
type Client struct {
	logger         *zap.Logger
	baseURL        string
	partnerID      string
	exec           *httpclient.Executor
	creds          CredentialSource
	admin          Authorizer
	options        *secrets.Cache[map[string]any]
	optionsTimeout time.Duration
}

// NewClient constructs a new SureDone HTTP client instance.
func NewClient(logger *zap.Logger, cfg ClientConfig, rateMgr *rate.Manager, credSource CredentialSource, admin Authorizer) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.OptionsTimeout == 0 {
		cfg.OptionsTimeout = 25 * time.Second
	}
	if cfg.OptionsTTL == 0 {
		cfg.OptionsTTL = 1 * time.Hour
	}
	exec := httpclient.New(logger, rateMgr, &http.Client{Timeout: cfg.HTTPTimeout}, 2, "suredone")
	return &Client{
		logger:         logger,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		partnerID:      cfg.PartnerID,
		exec:           exec,
		creds:          credSource,
		admin:          admin,
		options:        secrets.NewCache[map[string]any](cfg.OptionsTTL),
		optionsTimeout: cfg.OptionsTimeout,
	}
}

// request is the ephemeral envelope of one API call.
type request struct {
	method   string
	path     string
	query    url.Values
	form     Params // encoded as application/x-www-form-urlencoded
	jsonBody any    // used where an endpoint requires application/json
}

// call executes one authenticated request with the one-shot refresh retry.
func (c *Client) call(ctx context.Context, tenant TenantConfig, r request) (map[string]any, error) {
	start := time.Now()
	resp, err := c.do(ctx, tenant, r)
	metrics.ObserveDuration(metrics.SureDoneRequestDuration, start, r.path, r.method)
	if err != nil {
		metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "transport_error").Inc()
		return nil, &APIError{Kind: KindTransport, Message: GenericFailureMessage, Upstream: err.Error()}
	}
	if resp.OK() {
		metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "ok").Inc()
		return c.decodePayload(r, resp)
	}

	upstream := parseErrorBody(resp.Body)
	if c.isInvalidToken(resp.Status, upstream) {
		if newToken, ok := c.refreshToken(ctx, tenant.Username); ok {
			retry, err := c.do(ctx, tenant.WithToken(newToken), r)
			if err != nil {
				metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "transport_error").Inc()
				return nil, &APIError{Kind: KindTransport, Message: GenericFailureMessage, Upstream: err.Error()}
			}
			if retry.OK() {
				metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "ok_after_refresh").Inc()
				return c.decodePayload(r, retry)
			}
			// Exactly one retry: a second failure is terminal. Classify it
			// by the retry body, which may fail for a non-auth reason.
			upstream = parseErrorBody(retry.Body)
			kind, outcome := KindRemote, "remote_error"
			if c.isInvalidToken(retry.Status, upstream) {
				kind, outcome = KindAuth, "auth_error"
			}
			metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, outcome).Inc()
			return nil, &APIError{Kind: kind, Message: GenericFailureMessage, Upstream: upstream.Message, Status: retry.Status}
		}
		metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "auth_error").Inc()
		return nil, &APIError{Kind: KindAuth, Message: GenericFailureMessage, Upstream: upstream.Message, Status: resp.Status}
	}

	metrics.SureDoneRequestsTotal.WithLabelValues(r.path, r.method, "remote_error").Inc()
	return nil, &APIError{Kind: KindRemote, Message: GenericFailureMessage, Upstream: upstream.Message, Status: resp.Status}
}

// do builds and executes the HTTP exchange without retry semantics.
func (c *Client) do(ctx context.Context, tenant TenantConfig, r request) (*httpclient.Response, error) {
	target := c.baseURL + "/" + strings.TrimPrefix(r.path, "/")
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	contentType := "application/x-www-form-urlencoded"
	var body []byte
	switch {
	case r.jsonBody != nil:
		data, err := json.Marshal(r.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = data
		contentType = "application/json"
	case r.form != nil:
		body = []byte(r.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-User", tenant.Username)
	req.Header.Set("X-Auth-Token", tenant.Token)
	req.Header.Set("X-Auth-Integration", c.partnerID)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	return c.exec.Do(ctx, req, tenant.Username, body)
}

func (c *Client) decodePayload(r request, resp *httpclient.Response) (map[string]any, error) {
	if len(resp.Body) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		c.logger.Warn("suredone.decode_failed",
			zap.String("path", r.path),
			zap.Error(err))
		metrics.IncError("suredone_client", "decode")
		return nil, &APIError{Kind: KindDecode, Message: GenericFailureMessage, Upstream: err.Error(), Status: resp.Status}
	}
	return payload, nil
}

// isInvalidToken detects the token-expiry signal. SureDone reports it as an
// exact error message; an HTTP 401 is treated the same way.
func (c *Client) isInvalidToken(status int, body errorBody) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	return body.Result == "error" && body.Message == "Invalid Token"
}

// refreshToken re-authenticates the tenant using its stored password and
// persists the new token before any retry uses it. Every failure mode is
// logged and collapses to "no refresh available".
func (c *Client) refreshToken(ctx context.Context, username string) (string, bool) {
	if c.creds == nil || c.admin == nil {
		metrics.TokenRefreshTotal.WithLabelValues("unavailable").Inc()
		return "", false
	}

	cred, err := c.creds.FindByUsername(ctx, username)
	if err != nil {
		c.logger.Error("suredone.refresh.credential_lookup_failed",
			zap.String("username", username),
			zap.Error(err))
		metrics.TokenRefreshTotal.WithLabelValues("unavailable").Inc()
		return "", false
	}

	token, err := c.admin.Authorize(ctx, username, cred.Password)
	if err != nil {
		c.logger.Error("suredone.refresh.authorize_failed",
			zap.String("username", username),
			zap.Error(err))
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		return "", false
	}

	cred.Token = token
	if err := c.creds.Save(ctx, cred); err != nil {
		c.logger.Error("suredone.refresh.persist_failed",
			zap.String("username", username),
			zap.Error(err))
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		return "", false
	}

	c.logger.Info("suredone.token_refreshed", zap.String("username", username))
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	return token, true
}

// --- Products ---

// GetProducts returns the tenant's product listing filtered by query.
// GET /editor/items
func (c *Client) GetProducts(ctx context.Context, tenant TenantConfig, query url.Values) (map[string]any, error) {
	return c.call(ctx, tenant, request{method: http.MethodGet, path: "editor/items", query: query})
}

// SearchCategories returns category suggestions for a channel.
// GET /{channel}/categories
func (c *Client) SearchCategories(ctx context.Context, tenant TenantConfig, channel Channel, term, site string) (map[string]any, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
	query := url.Values{}
	query.Set("search", term)
	if site != "" {
		query.Set("site", site)
	}
	return c.call(ctx, tenant, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("%s/categories", channel),
		query:  query,
	})
}

// GetItemByGUID fetches one product record. When normalizePrices is set, the
// outward-facing price field is overwritten with the discount price wherever
// the latter parses as a finite number. SureDone exposes both for the same
// logical value and they drift.
// GET /editor/items/{guid}
func (c *Client) GetItemByGUID(ctx context.Context, tenant TenantConfig, guid string, normalizePrices bool) (map[string]any, error) {
	payload, err := c.call(ctx, tenant, request{method: http.MethodGet, path: "editor/items/" + guid})
	if err != nil || payload == nil {
		return payload, err
	}
	if normalizePrices {
		normalizeItemPrices(payload)
	}
	return payload, nil
}

func normalizeItemPrices(item map[string]any) {
	applyDiscountPrice(item)
	attrs, ok := item["attributes"].(map[string]any)
	if !ok {
		return
	}
	for _, v := range attrs {
		if block, ok := v.(map[string]any); ok {
			applyDiscountPrice(block)
		}
	}
}

func applyDiscountPrice(m map[string]any) {
	dp, ok := m["discountprice"]
	if !ok {
		return
	}
	if _, err := decimal.NewFromString(stringify(dp)); err != nil {
		return
	}
	m["price"] = dp
}

// --- Bulk actions ---

// EditProducts submits an edit batch for existing products.
func (c *Client) EditProducts(ctx context.Context, tenant TenantConfig, rows [][]string, skipAllChannels, force bool) (map[string]any, error) {
	return c.bulk(ctx, tenant, ActionEdit, rows, skipAllChannels, force)
}

// AddProducts submits a creation batch.
func (c *Client) AddProducts(ctx context.Context, tenant TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error) {
	return c.bulk(ctx, tenant, ActionAdd, rows, skipAllChannels, false)
}

// RelistProducts resubmits ended listings.
func (c *Client) RelistProducts(ctx context.Context, tenant TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error) {
	return c.bulk(ctx, tenant, ActionRelist, rows, skipAllChannels, false)
}

// EndProducts ends active listings.
func (c *Client) EndProducts(ctx context.Context, tenant TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error) {
	return c.bulk(ctx, tenant, ActionEnd, rows, skipAllChannels, false)
}

// DeleteProducts deletes products by GUID.
func (c *Client) DeleteProducts(ctx context.Context, tenant TenantConfig, guids []string, skipAllChannels bool) (map[string]any, error) {
	return c.bulk(ctx, tenant, ActionDelete, deleteRows(guids), skipAllChannels, false)
}

// bulk is the shared batch-submission routine behind every bulk operation.
// POST /bulk/edit
func (c *Client) bulk(ctx context.Context, tenant TenantConfig, action Action, rows [][]string, skipAllChannels, force bool) (map[string]any, error) {
	batch := BulkBatch(action, rows)
	query := url.Values{}
	if skipAllChannels {
		query.Set("syncskip", "1")
	}
	if force {
		query.Set("force", "true")
	}
	return c.call(ctx, tenant, request{
		method: http.MethodPost,
		path:   "bulk/edit",
		query:  query,
		form:   Params{{Key: "requests", Value: batch}},
	})
}

// --- Orders ---

// GetOrders returns the tenant's order listing filtered by query.
// GET /orders
func (c *Client) GetOrders(ctx context.Context, tenant TenantConfig, query url.Values) (map[string]any, error) {
	return c.call(ctx, tenant, request{method: http.MethodGet, path: "orders", query: query})
}

// GetOrderDetails returns one order record.
// GET /orders/{id}
func (c *Client) GetOrderDetails(ctx context.Context, tenant TenantConfig, orderID string) (map[string]any, error) {
	return c.call(ctx, tenant, request{method: http.MethodGet, path: "orders/" + orderID})
}

// UpdateOrderDetails patches an order (shipment status, tracking, notes).
// PUT /orders/{id}
func (c *Client) UpdateOrderDetails(ctx context.Context, tenant TenantConfig, orderID string, patch Params, query url.Values) (map[string]any, error) {
	return c.call(ctx, tenant, request{
		method: http.MethodPut,
		path:   "orders/" + orderID,
		query:  query,
		form:   patch,
	})
}

// --- Logs ---

// GetLogs returns platform log entries. A POST despite being a read, which is
// SureDone's contract for this endpoint.
// POST /logs
func (c *Client) GetLogs(ctx context.Context, tenant TenantConfig, filters Params) (map[string]any, error) {
	return c.call(ctx, tenant, request{method: http.MethodPost, path: "logs", form: filters})
}

// GetLastLog returns the most recent log entry matching the identifier, or
// nil when none exists.
func (c *Client) GetLastLog(ctx context.Context, tenant TenantConfig, identifier, logContext, action string) (map[string]any, error) {
	filters := Params{
		{Key: "identifier", Value: identifier},
		{Key: "context", Value: logContext},
		{Key: "action", Value: action},
		{Key: "sort", Value: "-created"},
		{Key: "limit", Value: 1},
	}
	payload, err := c.GetLogs(ctx, tenant, filters)
	if err != nil || payload == nil {
		return nil, err
	}
	results, ok := payload["results"].([]any)
	if !ok || len(results) == 0 {
		return nil, nil
	}
	entry, ok := results[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	return entry, nil
}

// --- Channel authorization ---

// AuthorizeChannel starts the OAuth-style authorization flow for a channel
// instance and returns SureDone's redirect payload.
// GET /settings/{channel}/authorize
func (c *Client) AuthorizeChannel(ctx context.Context, tenant TenantConfig, channel Channel) (map[string]any, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
	return c.call(ctx, tenant, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("settings/%s/authorize", channel.Tag(tenant.Instance)),
	})
}

// CompleteChannelAuth finishes the authorization flow with the code/state pair
// the channel redirected back with.
// POST /settings/{channel}/authorize/complete
func (c *Client) CompleteChannelAuth(ctx context.Context, tenant TenantConfig, channel Channel, code, state string) (map[string]any, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
	return c.call(ctx, tenant, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("settings/%s/authorize/complete", channel.Tag(tenant.Instance)),
		form: Params{
			{Key: "code", Value: code},
			{Key: "state", Value: state},
		},
	})
}

// AddChannelInstance provisions an additional store instance of a channel.
// POST /settings/{channel}/instance
func (c *Client) AddChannelInstance(ctx context.Context, tenant TenantConfig, channel Channel) (map[string]any, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
	return c.call(ctx, tenant, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("settings/%s/instance", channel),
	})
}

// RemoveChannelAuth revokes a channel instance's authorization.
// POST /settings/{channel}/authorize/revoke
func (c *Client) RemoveChannelAuth(ctx context.Context, tenant TenantConfig, channel Channel) (map[string]any, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
	return c.call(ctx, tenant, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("settings/%s/authorize/revoke", channel.Tag(tenant.Instance)),
	})
}

// --- Account options ---

// GetAllAccountOptions returns account option metadata, cached per tenant
// username. Option metadata changes rarely; the uncached fetch is bounded by
// the options timeout and a timeout is reported to logs rather than surfaced.
// GET /settings/options
func (c *Client) GetAllAccountOptions(ctx context.Context, tenant TenantConfig, optionType string) (map[string]any, error) {
	key := strings.ToLower(tenant.Username) + "|" + optionType
	if cached, ok := c.options.Get(key); ok {
		metrics.OptionsCacheAccess.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.OptionsCacheAccess.WithLabelValues("miss").Inc()

	optCtx, cancel := context.WithTimeout(ctx, c.optionsTimeout)
	defer cancel()

	query := url.Values{}
	if optionType != "" {
		query.Set("type", optionType)
	}
	payload, err := c.call(optCtx, tenant, request{method: http.MethodGet, path: "settings/options", query: query})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindTransport {
			c.logger.Error("suredone.options.fetch_failed",
				zap.String("username", tenant.Username),
				zap.Error(err))
			metrics.IncError("suredone_client", "options_timeout")
			return nil, nil
		}
		return nil, err
	}
	if payload != nil {
		c.options.Put(key, payload)
	}
	return payload, nil
}

// --- Validation ---

// ValidateStoreData checks candidate store-connection fields against the
// credential schema. It returns human-readable problems; an empty list means
// the fields are acceptable.
func ValidateStoreData(fields map[string]string) []string {
	var problems []string

	username := strings.TrimSpace(fields["api_username"])
	switch {
	case username == "":
		problems = append(problems, "API username is required")
	case len(username) > creds.MaxUsernameLen:
		problems = append(problems, fmt.Sprintf("API username is too long (max %d characters)", creds.MaxUsernameLen))
	}

	token := strings.TrimSpace(fields["api_token"])
	switch {
	case token == "":
		problems = append(problems, "API token is required")
	case len(token) > creds.MaxTokenLen:
		problems = append(problems, fmt.Sprintf("API token is too long (max %d characters)", creds.MaxTokenLen))
	}

	return problems
}

func parseErrorBody(body []byte) errorBody {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	return eb
}
