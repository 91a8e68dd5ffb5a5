package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-correction-api/internal/middleware"
)

// Register mounts the correction routes on group. authenticate must populate the
// caller claims.
func (h *CorrectionHandler) Register(group *gin.RouterGroup, authenticate gin.HandlerFunc) {
	corrections := group.Group("/corrections", authenticate)
	admin := middleware.RequirePrivileged()

	corrections.POST("", h.Create)
	corrections.GET("/mine", h.Mine)
	corrections.GET("/mine/count", h.MineCount)
	corrections.GET("/pending", admin, h.Pending)
	corrections.GET("/pending/count", admin, h.PendingCount)
	corrections.POST("/bulk/approve", admin, h.BulkApprove)
	corrections.POST("/bulk/reject", admin, h.BulkReject)
	corrections.GET("/:id", h.Get)
	corrections.POST("/:id/approve", admin, h.Approve)
	corrections.POST("/:id/reject", admin, h.Reject)
	corrections.POST("/:id/cancel", h.Cancel)
}
