package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/mw"
	"smart-locker-backend/internal/syncproto"
)

// deviceKey reads the controller credential from the header, then the body,
// then the query string.
func deviceKey(c *gin.Context, fromBody string) string {
	if key := strings.TrimSpace(c.GetHeader(mw.APIKeyHeader)); key != "" {
		return key
	}
	if key := strings.TrimSpace(fromBody); key != "" {
		return key
	}
	return strings.TrimSpace(c.Query("api_key"))
}

type heartbeatRequest struct {
	APIKey       string `json:"api_key"`
	BatteryLevel *int   `json:"battery_level"`
}

// DeviceHeartbeat handles POST /api/device/heartbeat.
func (h *Handler) DeviceHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.sync.Heartbeat(c.Request.Context(), deviceKey(c, req.APIKey), req.BatteryLevel)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

type statusReportRequest struct {
	APIKey string `json:"api_key"`
	syncproto.StatusReport
}

// DeviceStatus handles POST /api/device/status.
func (h *Handler) DeviceStatus(c *gin.Context) {
	var req statusReportRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sync.ReportStatus(c.Request.Context(), deviceKey(c, req.APIKey), req.StatusReport)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// DevicePollOpen handles GET /api/device/open/:device_id.
func (h *Handler) DevicePollOpen(c *gin.Context) {
	cmd, err := h.sync.PollOpen(c.Request.Context(), c.Param("device_id"), deviceKey(c, ""))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cmd)
}

// DevicePollStatusQuery handles GET /api/device/status/query/:device_id.
func (h *Handler) DevicePollStatusQuery(c *gin.Context) {
	cmd, err := h.sync.PollStatusQuery(c.Request.Context(), c.Param("device_id"), deviceKey(c, ""))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cmd)
}
