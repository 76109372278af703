package rest

// InvokeRequest is the wire shape of POST /invoke and /invoke-async
// (spec §4.6). Struct-tag validation runs through go-playground's
// validator, the same way the teacher's internal/validator wraps Gin
// binding for its own request DTOs — distinct from the Parameter
// Validator's own runtime-descriptor checking in internal/validate,
// which this envelope's Parameters field is handed to untouched.
type InvokeRequest struct {
	TransactionID string                 `json:"transaction_id" binding:"required"`
	Parameters    map[string]interface{} `json:"parameters"`
	Options       *OptionsDTO            `json:"options,omitempty"`
}

// OptionsDTO mirrors router.Options on the wire.
type OptionsDTO struct {
	TimeoutMS    int  `json:"timeout_ms,omitempty" binding:"omitempty,min=0"`
	RetryCount   int  `json:"retry_count,omitempty" binding:"omitempty,min=0,max=10"`
	TraceEnabled bool `json:"trace_enabled,omitempty"`
}

// InvokeAsyncAccepted is returned by POST /invoke-async.
type InvokeAsyncAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Protocols []string `json:"protocols"`
}
