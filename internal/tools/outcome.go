package tools

import "encoding/json"

// FailureKind classifies tool failures. Every kind is recoverable at the
// orchestrator level except storage failures, which abort the turn.
type FailureKind string

const (
	FailInvalidInput      FailureKind = "invalid_input"
	FailNotFound          FailureKind = "not_found"
	FailAlreadyCompleted  FailureKind = "already_completed"
	FailSkippedDependency FailureKind = "skipped_dependency"
	FailStorage           FailureKind = "storage_unavailable"
	FailUnknownTool       FailureKind = "unknown_tool"
)

// Outcome is the result of one tool invocation: either a success payload or a
// classified failure. It never carries both.
type Outcome struct {
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Kind    FailureKind     `json:"kind,omitempty"`
	Detail  string          `json:"detail,omitempty"`
}

// Success builds a successful outcome from any JSON-marshalable payload.
func Success(payload any) Outcome {
	b, err := json.Marshal(payload)
	if err != nil {
		return Failure(FailInvalidInput, "unencodable payload: "+err.Error())
	}
	return Outcome{OK: true, Payload: b}
}

// Failure builds a failed outcome with a kind and human-readable detail.
func Failure(kind FailureKind, detail string) Outcome {
	return Outcome{OK: false, Kind: kind, Detail: detail}
}
