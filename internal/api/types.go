package api

// HealthResponse reports store connectivity.
type HealthResponse struct {
	Status string `json:"status"`
}

// IndexStatusResponse carries the two ingestion cursors of an index. The
// cursors are independent and may be sourced from two different documents.
type IndexStatusResponse struct {
	Index       string `json:"index"`
	LargestID   int64  `json:"largest_id"`
	LatestValue string `json:"latest_value,omitempty"`
	LatestField string `json:"latest_field,omitempty"`
	HasLatest   bool   `json:"has_latest"`
}

// BatchExistsResponse maps each resolved document identity to its existence.
// Identities the store did not answer for are absent from the map.
type BatchExistsResponse struct {
	Index  string          `json:"index"`
	Exists map[string]bool `json:"exists"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}
