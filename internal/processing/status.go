package processing

// DefaultErrorDetail is recorded when an error stage is reported without detail.
const DefaultErrorDetail = "unknown error"

// Status is a snapshot of the processing state.
// Error is non-empty if and only if Stage is StageError.
type Status struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// InitialStatus returns the status of a tracker that has not started any operation.
func InitialStatus() Status {
	return Status{Stage: StageIdle, Progress: 0, Message: ""}
}

// HasError reports whether the status carries failure detail.
func (s Status) HasError() bool {
	return s.Error != ""
}

// clampProgress bounds a progress value to [0,100].
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
