package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/peoplehub/integration-gateway/internal/emitter"
	"github.com/peoplehub/integration-gateway/internal/http/middleware"
)

// ScopeEmitEvents is required to publish domain events through the API.
const ScopeEmitEvents = "events:emit"

type emitReq struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func emitEventHandler(emitSvc *emitter.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req emitReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Type = strings.TrimSpace(req.Type)
		if req.Type == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "type is required"})
		}

		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		if !id.HasScope(ScopeEmitEvents) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "missing scope " + ScopeEmitEvents})
		}

		eventID, err := emitSvc.Emit(c.Request().Context(), id.TenantID, req.Type, req.Payload)
		if err != nil {
			if errors.Is(err, emitter.ErrInvalidEvent) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			log.Errorf("emit failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "emit failed"})
		}

		// Accepted means scheduled, not delivered: delivery is asynchronous.
		return c.JSON(http.StatusAccepted, map[string]any{
			"accepted": true,
			"event_id": eventID,
		})
	}
}
