package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
	"github.com/orrn/printflow/internal/transport"
)

type CreatePrinterRequest struct {
	Name           string `json:"name" binding:"required"`
	CapabilityType string `json:"capability_type" binding:"required"`
	SystemID       string `json:"system_id" binding:"required"`
	PaperSize      string `json:"paper_size"`
	Orientation    string `json:"orientation"`
	Quality        string `json:"quality"`
	Priority       int    `json:"priority"`
	IsDefault      bool   `json:"is_default"`
	LocationRef    string `json:"location_ref"`
	Department     string `json:"department"`
	SupportsPDF    bool   `json:"supports_pdf"`
	SupportsHTML   bool   `json:"supports_html"`
	SupportsESCPOS bool   `json:"supports_escpos"`
	SupportsZPL    bool   `json:"supports_zpl"`
}

type SelectPrinterRequest struct {
	CapabilityType string `json:"capability_type"`
	PrinterID      int64  `json:"printer_id"`
	PrinterName    string `json:"printer_name"`
	LocationRef    string `json:"location_ref"`
	Department     string `json:"department"`
}

type PrinterHandler struct {
	store    *db.Store
	registry *core.Registry
	drainer  *core.Drainer
	agent    *transport.AgentClient
}

func NewPrinterHandler(store *db.Store, registry *core.Registry, drainer *core.Drainer, agent *transport.AgentClient) *PrinterHandler {
	return &PrinterHandler{store: store, registry: registry, drainer: drainer, agent: agent}
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.PaperSize == "" {
		req.PaperSize = "a4"
	}
	if req.Orientation == "" {
		req.Orientation = "portrait"
	}
	if req.Quality == "" {
		req.Quality = "normal"
	}

	p := &db.Printer{
		Name:           req.Name,
		CapabilityType: req.CapabilityType,
		SystemID:       req.SystemID,
		PaperSize:      req.PaperSize,
		Orientation:    req.Orientation,
		Quality:        req.Quality,
		Priority:       req.Priority,
		IsDefault:      req.IsDefault,
		LocationRef:    req.LocationRef,
		Department:     req.Department,
		SupportsPDF:    req.SupportsPDF,
		SupportsHTML:   req.SupportsHTML,
		SupportsESCPOS: req.SupportsESCPOS,
		SupportsZPL:    req.SupportsZPL,
		Active:         true,
	}

	if err := h.store.Printers.Create(c.Request.Context(), p); err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create printer"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	var printers []*db.Printer
	var err error

	if c.Query("active") == "true" {
		printers, err = h.store.Printers.ListActive(c.Request.Context())
	} else {
		printers, err = h.store.Printers.List(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list printers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"printers": printers, "count": len(printers)})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
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

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
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

	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p.Name = req.Name
	p.CapabilityType = req.CapabilityType
	p.SystemID = req.SystemID
	if req.PaperSize != "" {
		p.PaperSize = req.PaperSize
	}
	if req.Orientation != "" {
		p.Orientation = req.Orientation
	}
	if req.Quality != "" {
		p.Quality = req.Quality
	}
	p.Priority = req.Priority
	p.IsDefault = req.IsDefault
	p.LocationRef = req.LocationRef
	p.Department = req.Department
	p.SupportsPDF = req.SupportsPDF
	p.SupportsHTML = req.SupportsHTML
	p.SupportsESCPOS = req.SupportsESCPOS
	p.SupportsZPL = req.SupportsZPL

	if err := h.store.Printers.Update(c.Request.Context(), p); err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update printer"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// ActivatePrinter brings a printer back online and immediately drains the
// jobs that queued up against it while it was offline.
func (h *PrinterHandler) ActivatePrinter(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}

	if err := h.store.Printers.SetActive(c.Request.Context(), id, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate printer"})
		return
	}

	p, err := h.store.Printers.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}

	summary, err := h.drainer.DrainPrinter(c.Request.Context(), p)
	if err != nil {
		log.Printf("[api] drain after activating printer %s failed: %v", p.Name, err)
		c.JSON(http.StatusOK, gin.H{"message": "printer activated, drain deferred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "printer activated", "drain": summary})
}

func (h *PrinterHandler) DeactivatePrinter(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}

	if err := h.store.Printers.SetActive(c.Request.Context(), id, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate printer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "printer deactivated"})
}

// SyncPrinters asks the print agent which system printers it can see and
// reconciles the registry against that list.
func (h *PrinterHandler) SyncPrinters(c *gin.Context) {
	names, err := h.agent.ListPrinters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registry.SyncDiscovered(c.Request.Context(), names)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync printers"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SelectPrinter runs printer selection without creating a job. Useful for
// previewing where a submission would land.
func (h *PrinterHandler) SelectPrinter(c *gin.Context) {
	var req SelectPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.registry.SelectPrinter(c.Request.Context(), core.SelectionRequest{
		CapabilityType: core.CapabilityType(req.CapabilityType),
		PrinterID:      req.PrinterID,
		PrinterName:    req.PrinterName,
		LocationRef:    req.LocationRef,
		Department:     req.Department,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"printer": nil, "message": "no printer available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"printer": p})
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printers", h.ListPrinters)
	r.POST("/printers", h.CreatePrinter)
	r.POST("/printers/sync", h.SyncPrinters)
	r.POST("/printers/select", h.SelectPrinter)
	r.GET("/printers/:id", h.GetPrinter)
	r.PUT("/printers/:id", h.UpdatePrinter)
	r.POST("/printers/:id/activate", h.ActivatePrinter)
	r.POST("/printers/:id/deactivate", h.DeactivatePrinter)
}

func printerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return 0, false
	}
	return id, true
}
