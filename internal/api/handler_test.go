package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/creds"
	"github.com/dropified/suredone-adapter/internal/suredone"
	"github.com/dropified/suredone-adapter/pkg/model"
)

// --- Mock Service ---

type mockService struct {
	getProductsFn   func(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error)
	getItemFn       func(ctx context.Context, tenant suredone.TenantConfig, guid string, normalize bool) (map[string]any, error)
	editProductsFn  func(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skip, force bool) (map[string]any, error)
	getOrdersFn     func(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error)
	updateOrderFn   func(ctx context.Context, tenant suredone.TenantConfig, orderID string, patch suredone.Params, query url.Values) (map[string]any, error)
	authorizeChanFn func(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error)
}

func (m *mockService) GetProducts(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error) {
	if m.getProductsFn != nil {
		return m.getProductsFn(ctx, tenant, query)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) GetItemByGUID(ctx context.Context, tenant suredone.TenantConfig, guid string, normalize bool) (map[string]any, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, tenant, guid, normalize)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) SearchCategories(context.Context, suredone.TenantConfig, suredone.Channel, string, string) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) EditProducts(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skip, force bool) (map[string]any, error) {
	if m.editProductsFn != nil {
		return m.editProductsFn(ctx, tenant, rows, skip, force)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) AddProducts(context.Context, suredone.TenantConfig, [][]string, bool) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) RelistProducts(context.Context, suredone.TenantConfig, [][]string, bool) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) EndProducts(context.Context, suredone.TenantConfig, [][]string, bool) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) DeleteProducts(context.Context, suredone.TenantConfig, []string, bool) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) GetOrders(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error) {
	if m.getOrdersFn != nil {
		return m.getOrdersFn(ctx, tenant, query)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) GetOrderDetails(context.Context, suredone.TenantConfig, string) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) UpdateOrderDetails(ctx context.Context, tenant suredone.TenantConfig, orderID string, patch suredone.Params, query url.Values) (map[string]any, error) {
	if m.updateOrderFn != nil {
		return m.updateOrderFn(ctx, tenant, orderID, patch, query)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) GetLastLog(context.Context, suredone.TenantConfig, string, string, string) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) GetAllAccountOptions(context.Context, suredone.TenantConfig, string) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) AuthorizeChannel(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error) {
	if m.authorizeChanFn != nil {
		return m.authorizeChanFn(ctx, tenant, channel)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) CompleteChannelAuth(context.Context, suredone.TenantConfig, suredone.Channel, string, string) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) AddChannelInstance(context.Context, suredone.TenantConfig, suredone.Channel) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) RemoveChannelAuth(context.Context, suredone.TenantConfig, suredone.Channel) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

// --- Mock issuer / export store / queue ---

type mockIssuer struct {
	token string
	err   error
}

func (m *mockIssuer) Authorize(context.Context, string, string) (string, error) {
	return m.token, m.err
}

type mockExportStore struct {
	saved   []*model.ExportConfig
	configs map[string]*model.ExportConfig
}

func (m *mockExportStore) SaveExportConfig(_ context.Context, cfg *model.ExportConfig) error {
	m.saved = append(m.saved, cfg)
	return nil
}

func (m *mockExportStore) GetExportConfig(_ context.Context, id string) (*model.ExportConfig, error) {
	return m.configs[id], nil
}

type mockQueue struct {
	jobs []any
	err  error
}

func (m *mockQueue) PublishJob(_ context.Context, _ string, payload any) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, payload)
	return nil
}

// --- Test Helpers ---

type testEnv struct {
	app     *fiber.App
	service *mockService
	issuer  *mockIssuer
	creds   *creds.MemoryStore
	exports *mockExportStore
	queue   *mockQueue
}

func newTestApp(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		service: &mockService{},
		issuer:  &mockIssuer{token: "issued-token"},
		creds:   creds.NewMemoryStore(),
		exports: &mockExportStore{configs: map[string]*model.ExportConfig{}},
		queue:   &mockQueue{},
	}
	require.NoError(t, env.creds.Save(context.Background(),
		&creds.Credential{Username: "acme", Token: "tok-acme"}))

	env.app = fiber.New()
	handler := NewHandler(zap.NewNop(), env.service, env.issuer, env.creds, env.exports, env.queue, "exports.generate")
	v1 := env.app.Group("/api/v1")
	v1.Post("/stores/validate", handler.ValidateStore)
	v1.Post("/stores", handler.ConnectStore)
	v1.Delete("/stores/:username", handler.DisconnectStore)
	v1.Get("/stores/:username/products", handler.GetProducts)
	v1.Get("/stores/:username/products/:guid", handler.GetProduct)
	v1.Post("/stores/:username/products/bulk/:action", handler.BulkProducts)
	v1.Get("/stores/:username/orders", handler.GetOrders)
	v1.Put("/stores/:username/orders/:id", handler.UpdateOrder)
	v1.Post("/stores/:username/channels/authorize", handler.AuthorizeChannel)
	v1.Post("/exports", handler.CreateExportConfig)
	v1.Post("/exports/:id/run", handler.RunExport)
	return env
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// --- Tests ---

func TestValidateStore(t *testing.T) {
	env := newTestApp(t)

	resp, body := doJSON(t, env.app, http.MethodPost, "/api/v1/stores/validate",
		`{"api_username":"acme","api_token":"tok"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = doJSON(t, env.app, http.MethodPost, "/api/v1/stores/validate",
		`{"api_username":"","api_token":"tok"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["problems"])
}

func TestConnectStore_WithToken(t *testing.T) {
	env := newTestApp(t)

	resp, body := doJSON(t, env.app, http.MethodPost, "/api/v1/stores",
		`{"username":"globex","token":"tok-globex"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "globex", body["username"])

	cred, err := env.creds.FindByUsername(context.Background(), "globex")
	require.NoError(t, err)
	assert.Equal(t, "tok-globex", cred.Token)
}

func TestConnectStore_WithPassword(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores",
		`{"username":"globex","password":"pw"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cred, err := env.creds.FindByUsername(context.Background(), "globex")
	require.NoError(t, err)
	assert.Equal(t, "issued-token", cred.Token)
}

func TestConnectStore_AuthFailure(t *testing.T) {
	env := newTestApp(t)
	env.issuer.err = fmt.Errorf("bad credentials")
	env.issuer.token = ""

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores",
		`{"username":"globex","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectStore_MissingFields(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores", `{"username":"globex"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisconnectStore(t *testing.T) {
	env := newTestApp(t)

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/stores/acme", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, env.app, http.MethodGet, "/api/v1/stores/acme/products", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProducts_ResolvesTenant(t *testing.T) {
	env := newTestApp(t)
	var seen suredone.TenantConfig
	env.service.getProductsFn = func(_ context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error) {
		seen = tenant
		assert.Equal(t, "25", query.Get("limit"))
		return map[string]any{"result": "success"}, nil
	}

	resp, body := doJSON(t, env.app, http.MethodGet, "/api/v1/stores/acme/products?limit=25", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["result"])
	assert.Equal(t, "acme", seen.Username)
	assert.Equal(t, "tok-acme", seen.Token)
}

func TestGetProducts_UnknownStore(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodGet, "/api/v1/stores/ghost/products", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProduct_NormalizeFlag(t *testing.T) {
	env := newTestApp(t)
	var gotNormalize bool
	env.service.getItemFn = func(_ context.Context, _ suredone.TenantConfig, guid string, normalize bool) (map[string]any, error) {
		assert.Equal(t, "g-1", guid)
		gotNormalize = normalize
		return map[string]any{"guid": guid}, nil
	}

	resp, _ := doJSON(t, env.app, http.MethodGet, "/api/v1/stores/acme/products/g-1?normalize=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, gotNormalize)
}

func TestBulkProducts_Edit(t *testing.T) {
	env := newTestApp(t)
	env.service.editProductsFn = func(_ context.Context, _ suredone.TenantConfig, rows [][]string, skip, force bool) (map[string]any, error) {
		assert.Equal(t, [][]string{{"guid", "price"}, {"g-1", "9.99"}}, rows)
		assert.True(t, skip)
		assert.True(t, force)
		return map[string]any{"result": "success"}, nil
	}

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores/acme/products/bulk/edit",
		`{"rows":[["guid","price"],["g-1","9.99"]],"skip_all_channels":true,"force":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBulkProducts_UnsupportedAction(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores/acme/products/bulk/explode",
		`{"rows":[["guid"],["g-1"]]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpstreamErrorRendersEnvelope(t *testing.T) {
	env := newTestApp(t)
	env.service.getOrdersFn = func(context.Context, suredone.TenantConfig, url.Values) (map[string]any, error) {
		return nil, &suredone.APIError{
			Kind:     suredone.KindRemote,
			Message:  suredone.GenericFailureMessage,
			Upstream: "Rate limited",
			Status:   429,
		}
	}

	resp, body := doJSON(t, env.app, http.MethodGet, "/api/v1/stores/acme/orders", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "error", body["result"])
	assert.Equal(t, "Something went wrong, please try again.", body["message"])
}

func TestUpdateOrder_BuildsPatch(t *testing.T) {
	env := newTestApp(t)
	var gotPatch suredone.Params
	env.service.updateOrderFn = func(_ context.Context, _ suredone.TenantConfig, orderID string, patch suredone.Params, _ url.Values) (map[string]any, error) {
		assert.Equal(t, "ord-1", orderID)
		gotPatch = patch
		return map[string]any{"result": "success"}, nil
	}

	resp, _ := doJSON(t, env.app, http.MethodPut, "/api/v1/stores/acme/orders/ord-1",
		`{"shipstatus":"shipped"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, gotPatch, 1)
	assert.Equal(t, "shipstatus", gotPatch[0].Key)
}

func TestAuthorizeChannel(t *testing.T) {
	env := newTestApp(t)
	env.service.authorizeChanFn = func(_ context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error) {
		assert.Equal(t, suredone.ChannelEbay, channel)
		assert.Equal(t, 2, tenant.Instance)
		return map[string]any{"url": "https://signin.example"}, nil
	}

	resp, body := doJSON(t, env.app, http.MethodPost, "/api/v1/stores/acme/channels/authorize",
		`{"channel":"ebay","instance":2}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://signin.example", body["url"])
}

func TestAuthorizeChannel_BadChannel(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/stores/acme/channels/authorize",
		`{"channel":"myspace"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateExportConfig(t *testing.T) {
	env := newTestApp(t)

	resp, body := doJSON(t, env.app, http.MethodPost, "/api/v1/exports",
		`{"tenant_id":"acme","statuses":["shipped"],"title_terms":["mug"],"daily":true,"min_price":"5.00"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])

	require.Len(t, env.exports.saved, 1)
	cfg := env.exports.saved[0]
	assert.Equal(t, "acme", cfg.TenantID)
	assert.True(t, cfg.Daily)
	require.NotNil(t, cfg.MinPrice)
	assert.Equal(t, "5", cfg.MinPrice.String())
}

func TestCreateExportConfig_BadPrice(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/exports",
		`{"tenant_id":"acme","min_price":"cheap"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunExport(t *testing.T) {
	env := newTestApp(t)
	env.exports.configs["cfg-1"] = &model.ExportConfig{ID: "cfg-1", TenantID: "acme"}

	resp, body := doJSON(t, env.app, http.MethodPost, "/api/v1/exports/cfg-1/run", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])

	require.Len(t, env.queue.jobs, 1)
	job := env.queue.jobs[0].(model.ExportJob)
	assert.Equal(t, "cfg-1", job.ConfigID)
}

func TestRunExport_Unknown(t *testing.T) {
	env := newTestApp(t)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/api/v1/exports/ghost/run", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
