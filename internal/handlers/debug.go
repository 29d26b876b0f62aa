package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/telemetry"
)

// RoomInspector exposes hub membership for debugging.
type RoomInspector interface {
	Members(room string) []string
	ConnectionCount(userID string) int
}

// RegisterDebugRoutes mounts operator-only endpoints when enabled. They are
// never behind session auth, so they must stay off in production.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, rooms RoomInspector, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), c.GetHeader("X-User-ID"), telemetry.AuditPayload{
			Action:  "debug.audit_test",
			Outcome: "ok",
			Detail:  requestIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms/:room", func(c *gin.Context) {
		if rooms == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		room := c.Param("room")
		c.JSON(http.StatusOK, gin.H{
			"room":        room,
			"members":     rooms.Members(room),
			"user_connections": rooms.ConnectionCount(room),
		})
	})
}
