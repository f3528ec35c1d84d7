package suredone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AdminClient issues platform-level calls against SureDone's administrative
// endpoints: registering new accounts, enumerating them, and exchanging a
// username/password pair for a fresh token. It carries fixed platform
// credentials and no refresh logic; it is what the tenant client refreshes
// with.
type AdminClient struct {
	logger    *zap.Logger
	baseURL   string
	apiUser   string
	apiToken  string
	partnerID string
	client    *http.Client
}

// NewAdminClient creates an admin client with the platform credential set.
func NewAdminClient(logger *zap.Logger, baseURL, apiUser, apiToken, partnerID string) *AdminClient {
	return &AdminClient{
		logger:    logger,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiUser:   apiUser,
		apiToken:  apiToken,
		partnerID: partnerID,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Register creates a new SureDone account.
// POST /profile/register
func (a *AdminClient) Register(ctx context.Context, username, email, password string) (map[string]any, error) {
	form := url.Values{}
	form.Set("user", username)
	form.Set("email", email)
	form.Set("password", password)

	var out map[string]any
	if err := a.doForm(ctx, http.MethodPost, "profile/register", form, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUsers enumerates every account registered under the partner.
// GET /profile/users
func (a *AdminClient) ListUsers(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := a.doForm(ctx, http.MethodGet, "profile/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Authorize exchanges a username/password pair for a fresh bearer token.
// A non-2xx response is an error here, never a silent empty token.
// POST /auth
func (a *AdminClient) Authorize(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("user", username)
	form.Set("pass", password)

	var out struct {
		Result  string `json:"result"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := a.doForm(ctx, http.MethodPost, "auth", form, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("suredone auth: no token issued for %q: %s", username, out.Message)
	}

	a.logger.Info("suredone.admin.token_issued", zap.String("username", username))
	return out.Token, nil
}

func (a *AdminClient) doForm(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-User", a.apiUser)
	req.Header.Set("X-Auth-Token", a.apiToken)
	req.Header.Set("X-Auth-Integration", a.partnerID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("suredone admin %s returned %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode admin response: %w", err)
		}
	}
	return nil
}
