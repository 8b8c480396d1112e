package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
)

type DrainHandler struct {
	store   *db.Store
	drainer *core.Drainer
}

func NewDrainHandler(store *db.Store, drainer *core.Drainer) *DrainHandler {
	return &DrainHandler{store: store, drainer: drainer}
}

// DrainAll triggers an immediate sweep of all active printer queues, in
// addition to the periodic background pass.
func (h *DrainHandler) DrainAll(c *gin.Context) {
	summary, err := h.drainer.DrainAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drain failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *DrainHandler) DrainPrinter(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}

	p, err := h.store.Printers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}
	if !p.Active {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "printer is not active"})
		return
	}

	summary, err := h.drainer.DrainPrinter(c.Request.Context(), p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drain failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *DrainHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/drain", h.DrainAll)
	r.POST("/printers/:id/drain", h.DrainPrinter)
}
