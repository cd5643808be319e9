package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	LeadTransitions  float64 `json:"leadTransitions"`
	QuoteTransitions float64 `json:"quoteTransitions"`
	QuotesAccepted   float64 `json:"quotesAccepted"`
	QuotesRejected   float64 `json:"quotesRejected"`
	AcceptanceRate   float64 `json:"acceptanceRate"`
	PartialSyncs     float64 `json:"partialSyncs"`
	Collisions       float64 `json:"sequencingCollisions"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
