package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quicktext/internal/server/notify"
	"quicktext/internal/server/service"
)

const defaultHeartbeat = 25 * time.Second

// Handler contains the HTTP handlers for the QuickText API.
type Handler struct {
	svc     *service.ShareService
	hub     *notify.Hub
	baseURL string
	logger  *zap.Logger

	heartbeat time.Duration
}

// NewHandler creates a new handler. hub may be nil, in which case the
// live update stream is unavailable.
func NewHandler(svc *service.ShareService, hub *notify.Hub, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{
		svc:       svc,
		hub:       hub,
		baseURL:   baseURL,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

type createRequest struct {
	Content       string `json:"content"`
	Password      string `json:"password"`
	Duration      string `json:"duration"`
	OneTimeAccess bool   `json:"oneTimeAccess"`
	ContentType   string `json:"contentType"`
	Language      string `json:"language"`
	MaxViews      int    `json:"maxViews"`
}

type createResponse struct {
	*service.CreateResult
	URL string `json:"url"`
}

type retrieveRequest struct {
	Password string `json:"password" query:"password"`
}

type updateRequest struct {
	Content string `json:"content"`
}

// HandleCreate handles POST /api/share.
func (h *Handler) HandleCreate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.svc.Create(c.Request().Context(), service.CreateRequest{
		Content:       req.Content,
		ContentType:   req.ContentType,
		Language:      req.Language,
		Password:      req.Password,
		Duration:      req.Duration,
		MaxViews:      req.MaxViews,
		OneTimeAccess: req.OneTimeAccess,
	})
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, createResponse{
		CreateResult: result,
		URL:          fmt.Sprintf("%s/%s", h.baseURL, result.Code),
	})
}

// HandleRetrieve handles POST|GET /api/retrieve/:code and the legacy
// /api/share/:code alias. The password may come from a JSON body or the
// "password" query param.
func (h *Handler) HandleRetrieve(c echo.Context) error {
	var req retrieveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Password == "" {
		req.Password = c.QueryParam("password")
	}

	view, err := h.svc.Retrieve(c.Request().Context(), c.Param("code"), req.Password)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, view)
}

// HandleUpdate handles PUT /api/share/:code.
func (h *Handler) HandleUpdate(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.svc.Update(c.Request().Context(), c.Param("code"), req.Content); err != nil {
		return h.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "share updated successfully"})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including store connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storeStatus := "connected"

	if err := h.svc.Ping(c.Request().Context()); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": status,
		"store":  storeStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to get stats", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"totalShares":  stats.TotalShares,
		"activeShares": stats.ActiveShares,
		"totalViews":   stats.TotalViews,
		"averageViews": stats.AverageViews(),
		"contentTypes": stats.ContentTypes,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Expired shares are reported exactly like missing ones.
func (h *Handler) mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "share not found or expired"})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":            "password required",
			"requiresPassword": true,
		})
	case errors.Is(err, service.ErrInvalidPassword):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid password"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrContentTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "content exceeds maximum allowed size"})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
