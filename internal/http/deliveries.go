package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/peoplehub/integration-gateway/internal/http/middleware"
	"github.com/peoplehub/integration-gateway/internal/repository"
)

// ScopeReadDeliveries is required to inspect the delivery ledger.
const ScopeReadDeliveries = "deliveries:read"

// listDeliveriesHandler exposes attempt history for one of the caller's
// subscriptions: the full ledger per event, or the latest attempts overall.
func listDeliveriesHandler(deliveries repository.DeliveriesRepository, subs repository.SubscriptionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		if !id.HasScope(ScopeReadDeliveries) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "missing scope " + ScopeReadDeliveries})
		}

		subID := strings.TrimSpace(c.QueryParam("subscription_id"))
		if subID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "subscription_id is required"})
		}

		sub, err := subs.GetByID(c.Request().Context(), subID)
		if err != nil {
			c.Logger().Errorf("subscription lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		// Tenant isolation: never reveal whether a foreign subscription exists.
		if sub == nil || sub.TenantID != id.TenantID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "subscription not found"})
		}

		if eventID := strings.TrimSpace(c.QueryParam("event_id")); eventID != "" {
			rows, err := deliveries.ListByEventAndSubscription(c.Request().Context(), eventID, subID)
			if err != nil {
				c.Logger().Errorf("delivery history failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
			}
			return c.JSON(http.StatusOK, map[string]any{"count": len(rows), "results": rows})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := deliveries.ListBySubscription(c.Request().Context(), subID, limit, offset)
		if err != nil {
			c.Logger().Errorf("delivery list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
