package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
)

type SubmitJobRequest struct {
	DocumentType string         `json:"document_type" binding:"required"`
	PrinterID    int64          `json:"printer_id"`
	PrinterName  string         `json:"printer_name"`
	LocationRef  string         `json:"location_ref"`
	Department   string         `json:"department"`
	Format       string         `json:"format" binding:"required"`
	Payload      []byte         `json:"payload"`
	TemplateRef  string         `json:"template_ref"`
	TemplateData map[string]any `json:"template_data"`
	Copies       *int           `json:"copies"`
	Priority     int            `json:"priority"`
}

type BatchJobsRequest struct {
	JobIDs []int64 `json:"job_ids" binding:"required"`
}

type CancelJobRequest struct {
	Reason string `json:"reason"`
}

type ListJobsQuery struct {
	PrinterID int64  `form:"printer_id"`
	State     string `form:"state"`
	Submitter string `form:"submitter"`
	FromDate  string `form:"from_date"`
	ToDate    string `form:"to_date"`
	Limit     int    `form:"limit" binding:"max=100"`
	Offset    int    `form:"offset"`
}

type JobStatsResponse struct {
	ByState map[string]int64 `json:"by_state"`
	Total   int64            `json:"total"`
}

type JobHandler struct {
	store  *db.Store
	engine *core.Engine
}

func NewJobHandler(store *db.Store, engine *core.Engine) *JobHandler {
	return &JobHandler{store: store, engine: engine}
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	copies := 1
	if req.Copies != nil {
		copies = *req.Copies
	}

	job, err := h.engine.SubmitJob(c.Request.Context(), core.SubmitRequest{
		DocumentType: req.DocumentType,
		PrinterID:    req.PrinterID,
		PrinterName:  req.PrinterName,
		LocationRef:  req.LocationRef,
		Department:   req.Department,
		SubmitterID:  submitterID(c),
		Format:       core.Format(req.Format),
		Payload:      req.Payload,
		TemplateRef:  req.TemplateRef,
		TemplateData: req.TemplateData,
		Copies:       copies,
		Priority:     req.Priority,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 100 {
		query.Limit = 100
	}

	filter := db.JobFilter{
		PrinterID:   query.PrinterID,
		State:       query.State,
		SubmitterID: query.Submitter,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}

	if query.FromDate != "" {
		if t, err := time.Parse("2006-01-02", query.FromDate); err == nil {
			filter.FromDate = &t
		}
	}
	if query.ToDate != "" {
		if t, err := time.Parse("2006-01-02", query.ToDate); err == nil {
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.ToDate = &endOfDay
		}
	}

	jobs, err := h.store.Jobs.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(jobs),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	job, err := h.store.Jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	var req CancelJobRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	if err := h.engine.CancelJob(c.Request.Context(), id, req.Reason); err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}

func (h *JobHandler) RetryJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	if err := h.engine.RetryJob(c.Request.Context(), id); err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job queued for retry"})
}

func (h *JobHandler) ReprintJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	clone, err := h.engine.ReprintJob(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "job reprinted",
		"new_job_id": clone.ID,
	})
}

func (h *JobHandler) BatchJobs(c *gin.Context) {
	var req BatchJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := h.engine.BatchLabelJobs(c.Request.Context(), req.JobIDs)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

func (h *JobHandler) GetJobStats(c *gin.Context) {
	counts, err := h.store.Jobs.CountsByState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	resp := JobStatsResponse{ByState: counts}
	for _, n := range counts {
		resp.Total += n
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.SubmitJob)
	r.POST("/jobs/batch", h.BatchJobs)
	r.GET("/jobs/stats", h.GetJobStats)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/cancel", h.CancelJob)
	r.POST("/jobs/:id/retry", h.RetryJob)
	r.POST("/jobs/:id/reprint", h.ReprintJob)
}

func jobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return 0, false
	}
	return id, true
}

func submitterID(c *gin.Context) string {
	if v, ok := c.Get("submitter"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.ClientIP()
}

func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrPrinterNotFound),
		errors.Is(err, core.ErrTemplateMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNoPrinterAvailable), errors.Is(err, core.ErrPrinterOffline):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
