package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/peoplehub/integration-gateway/internal/http/middleware"
	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/repository"
)

// deliveryReportHandler serves the audit trail from ClickHouse, tenant-scoped.
func deliveryReportHandler(chRepo repository.CHAttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		if !id.HasScope(ScopeReadDeliveries) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "missing scope " + ScopeReadDeliveries})
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

		var st model.DeliveryStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.DeliveryStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		subID := strings.TrimSpace(c.QueryParam("subscription_id"))

		rows, err := chRepo.ListByTenant(
			c.Request().Context(),
			id.TenantID,
			subID,
			st,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse report failed: %v", err)

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
