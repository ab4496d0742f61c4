package model

import "encoding/json"

// APIResponse is the backend envelope. The client also tolerates bare JSON
// bodies; see internal/api.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIErrorBody   `json:"error,omitempty"`
}

type APIErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
