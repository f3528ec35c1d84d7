package api

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/creds"
	"github.com/dropified/suredone-adapter/internal/exports"
	"github.com/dropified/suredone-adapter/internal/suredone"
	"github.com/dropified/suredone-adapter/pkg/model"
)

// ProductService is the slice of the SureDone client the handler forwards to.
type ProductService interface {
	GetProducts(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error)
	GetItemByGUID(ctx context.Context, tenant suredone.TenantConfig, guid string, normalizePrices bool) (map[string]any, error)
	SearchCategories(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel, term, site string) (map[string]any, error)
	EditProducts(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skipAllChannels, force bool) (map[string]any, error)
	AddProducts(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error)
	RelistProducts(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error)
	EndProducts(ctx context.Context, tenant suredone.TenantConfig, rows [][]string, skipAllChannels bool) (map[string]any, error)
	DeleteProducts(ctx context.Context, tenant suredone.TenantConfig, guids []string, skipAllChannels bool) (map[string]any, error)
	GetOrders(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error)
	GetOrderDetails(ctx context.Context, tenant suredone.TenantConfig, orderID string) (map[string]any, error)
	UpdateOrderDetails(ctx context.Context, tenant suredone.TenantConfig, orderID string, patch suredone.Params, query url.Values) (map[string]any, error)
	GetLastLog(ctx context.Context, tenant suredone.TenantConfig, identifier, logContext, action string) (map[string]any, error)
	GetAllAccountOptions(ctx context.Context, tenant suredone.TenantConfig, optionType string) (map[string]any, error)
	AuthorizeChannel(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error)
	CompleteChannelAuth(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel, code, state string) (map[string]any, error)
	AddChannelInstance(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error)
	RemoveChannelAuth(ctx context.Context, tenant suredone.TenantConfig, channel suredone.Channel) (map[string]any, error)
}

// TokenIssuer issues API tokens for username/password pairs. Satisfied by
// *suredone.AdminClient.
type TokenIssuer interface {
	Authorize(ctx context.Context, username, password string) (string, error)
}

// ExportStore persists export configs and enqueues manual runs.
type ExportStore interface {
	SaveExportConfig(ctx context.Context, cfg *model.ExportConfig) error
	GetExportConfig(ctx context.Context, id string) (*model.ExportConfig, error)
}

// Handler handles HTTP API requests for the SureDone adapter.
type Handler struct {
	logger       *zap.Logger
	service      ProductService
	issuer       TokenIssuer
	creds        creds.Store
	exports      ExportStore
	queue        exports.JobQueue
	jobQueueName string
}

// NewHandler creates a new Handler.
// issuer is optional; without it, stores can only connect with a pre-issued token.
func NewHandler(logger *zap.Logger, service ProductService, issuer TokenIssuer,
	credStore creds.Store, exportStore ExportStore, queue exports.JobQueue, jobQueueName string) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		issuer:       issuer,
		creds:        credStore,
		exports:      exportStore,
		queue:        queue,
		jobQueueName: jobQueueName,
	}
}

// tenant resolves the :username path parameter to per-call credentials.
func (h *Handler) tenant(c *fiber.Ctx) (suredone.TenantConfig, error) {
	username := c.Params("username")
	cred, err := h.creds.FindByUsername(c.Context(), username)
	if err != nil {
		if errors.Is(err, creds.ErrNotFound) {
			return suredone.TenantConfig{}, fiber.NewError(fiber.StatusNotFound, "unknown store")
		}
		return suredone.TenantConfig{}, err
	}
	instance := c.QueryInt("instance", 0)
	return suredone.TenantConfig{Username: cred.Username, Token: cred.Token, Instance: instance}, nil
}

// respond maps a client error to the fixed-shape upstream error envelope, or
// forwards the payload on success.
func (h *Handler) respond(c *fiber.Ctx, payload map[string]any, err error) error {
	if err == nil {
		return c.JSON(payload)
	}

	var apiErr *suredone.APIError
	if errors.As(err, &apiErr) {
		h.logger.Warn("api.upstream_error",
			zap.String("kind", string(apiErr.Kind)),
			zap.String("upstream", apiErr.Upstream),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(apiErr.Envelope())
	}
	h.logger.Error("api.request_failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// ValidateStore checks connection fields without contacting SureDone.
func (h *Handler) ValidateStore(c *fiber.Ctx) error {
	var fields map[string]string
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	problems := suredone.ValidateStoreData(fields)
	return c.JSON(fiber.Map{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// ConnectStore saves a store credential, issuing a token first when only a
// password was supplied.
func (h *Handler) ConnectStore(c *fiber.Ctx) error {
	var req ConnectStoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	token := req.Token
	if token == "" {
		if h.issuer == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token issuance unavailable, supply a token"})
		}
		issued, err := h.issuer.Authorize(c.Context(), req.Username, req.Password)
		if err != nil {
			h.logger.Error("api.connect_store.auth_failed",
				zap.String("username", req.Username),
				zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authorization failed"})
		}
		token = issued
	}

	if problems := suredone.ValidateStoreData(map[string]string{
		"api_username": req.Username,
		"api_token":    token,
	}); len(problems) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid credentials", "problems": problems})
	}

	cred := &creds.Credential{Username: req.Username, Token: token, Password: req.Password}
	if err := h.creds.Save(c.Context(), cred); err != nil {
		return h.respond(c, nil, err)
	}

	h.logger.Info("api.store_connected", zap.String("username", req.Username))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"username": req.Username})
}

// DisconnectStore removes a stored credential.
func (h *Handler) DisconnectStore(c *fiber.Ctx) error {
	username := c.Params("username")
	if err := h.creds.Delete(c.Context(), username); err != nil {
		if errors.Is(err, creds.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown store"})
		}
		return h.respond(c, nil, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetProducts forwards a product listing query.
func (h *Handler) GetProducts(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	query, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	query.Del("instance")
	payload, err := h.service.GetProducts(c.Context(), tenant, query)
	return h.respond(c, payload, err)
}

// GetProduct fetches a single item, optionally normalizing discount prices.
func (h *Handler) GetProduct(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	normalize := c.QueryBool("normalize", false)
	payload, err := h.service.GetItemByGUID(c.Context(), tenant, c.Params("guid"), normalize)
	return h.respond(c, payload, err)
}

// SearchCategories forwards a channel category search.
func (h *Handler) SearchCategories(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	channel := suredone.Channel(c.Params("channel"))
	if !channel.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported channel"})
	}
	payload, err := h.service.SearchCategories(c.Context(), tenant, channel, c.Query("q"), c.Query("site"))
	return h.respond(c, payload, err)
}

// BulkProducts dispatches a bulk row operation by action.
func (h *Handler) BulkProducts(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var payload map[string]any
	switch suredone.Action(c.Params("action")) {
	case suredone.ActionEdit:
		payload, err = h.service.EditProducts(c.Context(), tenant, req.Rows, req.SkipAllChannels, req.Force)
	case suredone.ActionAdd:
		payload, err = h.service.AddProducts(c.Context(), tenant, req.Rows, req.SkipAllChannels)
	case suredone.ActionRelist:
		payload, err = h.service.RelistProducts(c.Context(), tenant, req.Rows, req.SkipAllChannels)
	case suredone.ActionEnd:
		payload, err = h.service.EndProducts(c.Context(), tenant, req.Rows, req.SkipAllChannels)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported bulk action"})
	}
	return h.respond(c, payload, err)
}

// DeleteProducts removes products by GUID.
func (h *Handler) DeleteProducts(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	var req DeleteProductsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	payload, err := h.service.DeleteProducts(c.Context(), tenant, req.GUIDs, req.SkipAllChannels)
	return h.respond(c, payload, err)
}

// GetOrders forwards an order listing query.
func (h *Handler) GetOrders(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	query, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	query.Del("instance")
	payload, err := h.service.GetOrders(c.Context(), tenant, query)
	return h.respond(c, payload, err)
}

// GetOrder fetches one order.
func (h *Handler) GetOrder(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	payload, err := h.service.GetOrderDetails(c.Context(), tenant, c.Params("id"))
	return h.respond(c, payload, err)
}

// UpdateOrder patches order fields.
func (h *Handler) UpdateOrder(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var patch suredone.Params
	for key, value := range fields {
		patch = append(patch, suredone.Field{Key: key, Value: value})
	}
	payload, err := h.service.UpdateOrderDetails(c.Context(), tenant, c.Params("id"), patch, nil)
	return h.respond(c, payload, err)
}

// GetLastLog returns the most recent platform log entry for an identifier.
func (h *Handler) GetLastLog(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	payload, err := h.service.GetLastLog(c.Context(), tenant, c.Query("identifier"), c.Query("context"), c.Query("action"))
	return h.respond(c, payload, err)
}

// GetAccountOptions returns (cached) account option metadata.
func (h *Handler) GetAccountOptions(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	payload, err := h.service.GetAllAccountOptions(c.Context(), tenant, c.Params("type"))
	if err == nil && payload == nil {
		// timed-out options fetch degrades to an empty result
		payload = map[string]any{}
	}
	return h.respond(c, payload, err)
}

// AuthorizeChannel starts or completes a channel authorization flow.
func (h *Handler) AuthorizeChannel(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	var req ChannelAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Instance > 0 {
		tenant.Instance = req.Instance
	}

	channel := suredone.Channel(req.Channel)
	var payload map[string]any
	if req.Code != "" {
		payload, err = h.service.CompleteChannelAuth(c.Context(), tenant, channel, req.Code, req.State)
	} else {
		payload, err = h.service.AuthorizeChannel(c.Context(), tenant, channel)
	}
	return h.respond(c, payload, err)
}

// AddChannelInstance provisions an extra instance of a channel.
func (h *Handler) AddChannelInstance(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	var req ChannelAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	payload, err := h.service.AddChannelInstance(c.Context(), tenant, suredone.Channel(req.Channel))
	return h.respond(c, payload, err)
}

// RemoveChannelAuth revokes a channel authorization.
func (h *Handler) RemoveChannelAuth(c *fiber.Ctx) error {
	tenant, err := h.tenant(c)
	if err != nil {
		return err
	}
	channel := suredone.Channel(c.Params("channel"))
	if !channel.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported channel"})
	}
	if instance := c.QueryInt("instance", 0); instance > 0 {
		tenant.Instance = instance
	}
	payload, err := h.service.RemoveChannelAuth(c.Context(), tenant, channel)
	return h.respond(c, payload, err)
}

// CreateExportConfig saves an export definition.
func (h *Handler) CreateExportConfig(c *fiber.Ctx) error {
	var req ExportConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cfg := toExportConfig(req)
	if err := h.exports.SaveExportConfig(c.Context(), cfg); err != nil {
		return h.respond(c, nil, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cfg)
}

// RunExport enqueues an immediate report job for a saved config.
func (h *Handler) RunExport(c *fiber.Ctx) error {
	id := c.Params("id")
	cfg, err := h.exports.GetExportConfig(c.Context(), id)
	if err != nil {
		return h.respond(c, nil, err)
	}
	if cfg == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown export config"})
	}

	job := model.ExportJob{
		ConfigID:    cfg.ID,
		TenantID:    cfg.TenantID,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.queue.PublishJob(c.Context(), h.jobQueueName, job); err != nil {
		return h.respond(c, nil, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"config_id": cfg.ID, "status": "queued"})
}

func toExportConfig(req ExportConfigRequest) *model.ExportConfig {
	now := time.Now().UTC()
	cfg := &model.ExportConfig{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		Statuses:   req.Statuses,
		TitleTerms: req.TitleTerms,
		ProductIDs: req.ProductIDs,
		Daily:      req.Daily,
		NextRunAt:  now.Add(24 * time.Hour),
		CreatedAt:  now,
	}
	if req.Since != "" {
		if ts, err := time.Parse(time.RFC3339, req.Since); err == nil {
			cfg.Since = &ts
		}
	}
	if req.Until != "" {
		if ts, err := time.Parse(time.RFC3339, req.Until); err == nil {
			cfg.Until = &ts
		}
	}
	if req.MinPrice != "" {
		if d, err := decimal.NewFromString(req.MinPrice); err == nil {
			cfg.MinPrice = &d
		}
	}
	if req.MaxPrice != "" {
		if d, err := decimal.NewFromString(req.MaxPrice); err == nil {
			cfg.MaxPrice = &d
		}
	}
	return cfg
}
