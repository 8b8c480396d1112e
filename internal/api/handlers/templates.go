package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"text/template"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printflow/internal/db"
)

type TemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Body        string `json:"body" binding:"required"`
	DataFormat  string `json:"data_format" binding:"required"`
}

type TemplateHandler struct {
	store *db.Store
}

func NewTemplateHandler(store *db.Store) *TemplateHandler {
	return &TemplateHandler{store: store}
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := template.New(req.Name).Parse(req.Body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template body: " + err.Error()})
		return
	}

	t := &db.PrintTemplate{
		Name:        req.Name,
		Description: req.Description,
		Body:        req.Body,
		DataFormat:  req.DataFormat,
	}
	if err := h.store.Templates.Create(c.Request.Context(), t); err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.store.Templates.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}

	t, err := h.store.Templates.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get template"})
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}

	t, err := h.store.Templates.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get template"})
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := template.New(req.Name).Parse(req.Body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template body: " + err.Error()})
		return
	}

	t.Name = req.Name
	t.Description = req.Description
	t.Body = req.Body
	t.DataFormat = req.DataFormat

	if err := h.store.Templates.Update(c.Request.Context(), t); err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update template"})
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := templateID(c)
	if !ok {
		return
	}

	if err := h.store.Templates.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete template"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

func (h *TemplateHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/templates", h.ListTemplates)
	r.POST("/templates", h.CreateTemplate)
	r.GET("/templates/:id", h.GetTemplate)
	r.PUT("/templates/:id", h.UpdateTemplate)
	r.DELETE("/templates/:id", h.DeleteTemplate)
}

func templateID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return 0, false
	}
	return id, true
}
