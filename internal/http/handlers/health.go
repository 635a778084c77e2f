package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/morav/folio-backend/internal/http/response"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

type HealthHandler struct {
	log *logger.Logger
	vec vectorstore.Store
}

func NewHealthHandler(log *logger.Logger, vec vectorstore.Store) *HealthHandler {
	return &HealthHandler{log: log, vec: vec}
}

// GET /healthcheck
//
// Reports degraded rather than failing when the vector store is unreachable:
// the process is still serving, answers just run without context.
func (h *HealthHandler) Healthcheck(c *gin.Context) {
	vec := gin.H{"ok": true}
	status := "ok"
	if points, err := h.vec.Count(c.Request.Context(), nil); err != nil {
		h.log.Warn("healthcheck vector count failed", "error", err)
		vec = gin.H{"ok": false}
		status = "degraded"
	} else {
		vec["points"] = points
	}
	response.RespondOK(c, gin.H{"status": status, "vector": vec})
}
