package api

import (
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
)

// RulesResponse wraps the rule table.
type RulesResponse struct {
	Rules models.RuleSet `json:"rules" validate:"required"`
}

// ReplaceRulesRequest is the request body for replacing every rule.
type ReplaceRulesRequest struct {
	Rules models.RuleSet `json:"rules" validate:"required"`
}

// RuleResponse is returned after a single rule was added or updated.
type RuleResponse struct {
	Index int         `json:"index" example:"0"`
	Rule  models.Rule `json:"rule"`
}

// FoldersResponse wraps folder suggestions.
type FoldersResponse struct {
	Folders []rules.Suggestion `json:"folders" validate:"required"`
}

// SortResponse describes the outcome of a manual sort.
type SortResponse struct {
	Path      string              `json:"path" example:"Clippings/article.md"`
	Outcome   string              `json:"outcome" example:"sorted"`
	Asset     *models.TargetAsset `json:"asset,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty" example:"network"`
	Error     string              `json:"error,omitempty"`
}

// RunsResponse wraps recorded runs.
type RunsResponse struct {
	Runs   []models.Run   `json:"runs" validate:"required"`
	Counts map[string]int `json:"counts"`
}
