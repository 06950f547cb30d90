package types

import "fmt"

// Stage is a coarse classification of dialogue progress
type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageInquiry       Stage = "inquiry"
	StageClarification Stage = "clarification"
	StageResolution    Stage = "resolution"
)

// AllStages returns all valid conversation stages
func AllStages() []Stage {
	return []Stage{
		StageGreeting,
		StageInquiry,
		StageClarification,
		StageResolution,
	}
}

// IsValid checks if the stage is valid
func (s Stage) IsValid() bool {
	switch s {
	case StageGreeting,
		StageInquiry,
		StageClarification,
		StageResolution:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// ParseStage parses a string into a Stage
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("invalid conversation stage: %s", s)
	}
	return stage, nil
}
