package dto

import "github.com/hyperterse/fanout/core/domain"

// ConnectionListResponse lists registered connections
type ConnectionListResponse struct {
	Connections []domain.ProfileSummary `json:"connections"`
}

// ConnectionResponse wraps a single connection summary
type ConnectionResponse struct {
	Success    bool                  `json:"success"`
	Connection domain.ProfileSummary `json:"connection"`
}

// CompareSchemasRequest selects the connections to compare. Empty means all.
type CompareSchemasRequest struct {
	Connections []string `json:"connections" validate:"omitempty,dive,required"`
}

// RemoveResponse acknowledges a removal
type RemoveResponse struct {
	Success bool   `json:"success"`
	Removed string `json:"removed"`
}
