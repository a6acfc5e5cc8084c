package api

import (
	"github.com/modwatch/modwatch/internal/domain"
)

// ClassifyRequest carries one item for an on-demand, side-effect-free
// classification.
type ClassifyRequest struct {
	Item *domain.Item `json:"item" binding:"required"`
}

// ClassifyResponse is the pre-filter decision for a submitted item.
type ClassifyResponse struct {
	Decision *domain.EscalationDecision `json:"decision"`
}

// RuleCategoryResponse summarizes one rule category.
type RuleCategoryResponse struct {
	Name    string `json:"name"`
	Tier    string `json:"tier"`
	Entries int    `json:"entries"`
}

// RulesListResponse lists the loaded rule categories.
type RulesListResponse struct {
	Categories []RuleCategoryResponse `json:"categories"`
	Total      int                    `json:"total"`
}

// StatsResponse is the audit window aggregate.
type StatsResponse struct {
	WindowDays int     `json:"window_days"`
	Reported   int     `json:"reported"`
	Removed    int     `json:"removed"`
	Confirmed  int     `json:"confirmed"`
	Overturned int     `json:"overturned"`
	Pending    int     `json:"pending"`
	LeftUp     int     `json:"left_up"`
	AvgSignal  float64 `json:"avg_signal"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
