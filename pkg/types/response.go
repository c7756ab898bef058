package types

// Envelope is the single response shape of the HTTP API. Exactly one of Data
// and Error is non-null; both keys are always serialized.
type Envelope struct {
	Data  any       `json:"data"`
	Error *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
