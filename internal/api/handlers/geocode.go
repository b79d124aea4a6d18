package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GeocodeStatus 获取逆地理编码进度
func (h *Handler) GeocodeStatus(c *gin.Context) {
	status, err := h.geocodeService.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to load geocode status")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// BackfillGeocoding 触发一轮地址回填，进度通过 WebSocket 推送
func (h *Handler) BackfillGeocoding(c *gin.Context) {
	queued := h.geocodeService.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}
