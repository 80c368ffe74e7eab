package v1

// Error codes carried in the error envelope.
const (
	CodeBadRequest            = "bad_request"
	CodeSessionNotFound       = "session_not_found"
	CodeHealthUnavailable     = "health_unavailable"
	CodeAuditUnavailable      = "audit_unavailable"
	CodeSimilarityUnavailable = "similarity_unavailable"
	CodeInternal              = "internal_error"
)

// ErrorBody is the inner error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// NewError builds an envelope for a code and message.
func NewError(code, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Code: code, Message: message}}
}
