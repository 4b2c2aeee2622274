package types

// SuccessEnvelope wraps every successful JSON response.
type SuccessEnvelope struct {
	Data   any     `json:"data"`
	Notice *Notice `json:"notice,omitempty"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Notice is a transient message the client shows and dismisses on its own.
type Notice struct {
	Message        string `json:"message"`
	DismissAfterMS int64  `json:"dismiss_after_ms"`
}
