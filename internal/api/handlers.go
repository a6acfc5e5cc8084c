package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modwatch/modwatch/internal/classifier"
	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/logger"
)

const (
	defaultStatsWindowDays = 7
	maxStatsWindowDays     = 90
)

// Handler handles HTTP requests for the moderation API
type Handler struct {
	classifier  *classifier.Classifier
	rules       *classifier.RuleSet
	auditRepo   *database.AuditRepository
	decisionLag time.Duration
	log         logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(c *classifier.Classifier, rules *classifier.RuleSet, auditRepo *database.AuditRepository, decisionLag time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		classifier:  c,
		rules:       rules,
		auditRepo:   auditRepo,
		decisionLag: decisionLag,
		log:         log,
	}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ReadyCheck reports readiness: the audit store must answer.
func (h *Handler) ReadyCheck(c *gin.Context) {
	if h.auditRepo != nil {
		if _, err := h.auditRepo.SeenItemIDs(c.Request.Context(), 1); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Classify runs the pre-filter for one item without taking any action.
// Moderators use it to probe why an item was or was not escalated.
func (h *Handler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Item.Body == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "item body is required"})
		return
	}

	decision := h.classifier.Classify(c.Request.Context(), req.Item)
	c.JSON(http.StatusOK, ClassifyResponse{Decision: &decision})
}

// ListRules summarizes the loaded rule table by category.
func (h *Handler) ListRules(c *gin.Context) {
	byCategory := make(map[string]*RuleCategoryResponse)
	var order []string
	for _, e := range h.rules.Entries {
		cat, ok := byCategory[e.Category]
		if !ok {
			cat = &RuleCategoryResponse{Name: e.Category, Tier: string(e.Tier)}
			byCategory[e.Category] = cat
			order = append(order, e.Category)
		}
		cat.Entries++
	}

	resp := RulesListResponse{Total: len(h.rules.Entries)}
	for _, name := range order {
		resp.Categories = append(resp.Categories, *byCategory[name])
	}
	c.JSON(http.StatusOK, resp)
}

// GetStats aggregates the audit table over a trailing window. The
// window defaults to a week; ?days=N adjusts it.
func (h *Handler) GetStats(c *gin.Context) {
	days := defaultStatsWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxStatsWindowDays {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "days must be between 1 and 90"})
			return
		}
		days = parsed
	}

	now := time.Now().UTC()
	stats, err := h.auditRepo.Stats(c.Request.Context(), now.AddDate(0, 0, -days), now, now.Add(-h.decisionLag))
	if err != nil {
		h.log.Error("stats query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "stats query failed"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		WindowDays: days,
		Reported:   stats.Reported,
		Removed:    stats.Removed,
		Confirmed:  stats.Confirmed,
		Overturned: stats.Overturned,
		Pending:    stats.Pending,
		LeftUp:     stats.LeftUp,
		AvgSignal:  stats.AvgSignal,
	})
}

// GetRecord returns the newest audit record for an item.
func (h *Handler) GetRecord(c *gin.Context) {
	itemID := c.Param("item_id")
	rec, err := h.auditRepo.GetByItemID(c.Request.Context(), itemID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no record for item " + itemID})
		return
	}
	if err != nil {
		h.log.Error("record lookup failed",
			logger.String("item_id", itemID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "record lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
