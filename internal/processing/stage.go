// Package processing tracks the progress of a long-running content ingestion operation.
package processing

import "fmt"

// Stage is one value of the processing-status enumeration.
type Stage string

// Stage constants
const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageAnalyzing  Stage = "analyzing"
	StageExtracting Stage = "extracting"
	StageOrganizing Stage = "organizing"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Stages lists every known stage in their usual sequencing order.
var Stages = []Stage{
	StageIdle,
	StageUploading,
	StageAnalyzing,
	StageExtracting,
	StageOrganizing,
	StageCompleted,
	StageError,
}

// IsActive reports whether an operation is outstanding while in this stage.
func (s Stage) IsActive() bool {
	switch s {
	case StageUploading, StageAnalyzing, StageExtracting, StageOrganizing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the stage ends the current operation.
func (s Stage) IsTerminal() bool {
	return s == StageIdle || s == StageCompleted || s == StageError
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStage converts a string into a Stage.
func ParseStage(value string) (Stage, error) {
	s := Stage(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown processing stage: %q", value)
	}
	return s, nil
}
