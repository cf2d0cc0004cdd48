package models

// AnalysisVerdict is the diagnosed root cause returned by the AI oracle (or
// assembled locally when the oracle is unavailable). The core treats it as an
// opaque input: it is never mutated after creation.
type AnalysisVerdict struct {
	Summary              string   `json:"summary"`
	RootCauseDescription string   `json:"root_cause_description"`
	AffectedComponents   []string `json:"affected_components"`
	ConfidenceScore      float64  `json:"confidence_score"`
}

// ClampConfidence bounds the confidence score to [0,1]. Oracle responses
// occasionally report values at or past the boundary; no rounding is applied.
func (v *AnalysisVerdict) ClampConfidence() {
	if v.ConfidenceScore < 0 {
		v.ConfidenceScore = 0
	}
	if v.ConfidenceScore > 1 {
		v.ConfidenceScore = 1
	}
}

// PrimaryComponent returns the first affected component, or fallback when the
// verdict names none.
func (v *AnalysisVerdict) PrimaryComponent(fallback string) string {
	for _, c := range v.AffectedComponents {
		if c != "" {
			return c
		}
	}
	return fallback
}

// RemediationCommand is the concrete corrective action chosen from the
// remediation catalog. It is selected, never generated.
type RemediationCommand struct {
	ToolName        string `json:"tool_name"`
	CommandText     string `json:"command_text"`
	TargetComponent string `json:"target_component"`
}
