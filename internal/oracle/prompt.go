package oracle

import (
	"fmt"

	"github.com/clarityops/clarity/internal/security"
)

const systemPrompt = `You are Clarity, an expert system for automated root cause analysis. Your sole purpose is to analyze the provided log data and return a single, valid JSON object conforming to the specified schema. Never include conversational text, markdown formatting, or any characters outside the final JSON object. Your response must begin with '{' and end with '}'.`

const verdictSchema = `{
    "summary": "<a brief, one-sentence summary of the incident>",
    "root_cause_description": "<a detailed, two to three-sentence explanation of the most likely root cause>",
    "affected_components": ["<a list of service names that were directly affected>"],
    "confidence_score": <a number between 0.0 and 1.0 representing your confidence in the analysis>
}`

// BuildAnalysisPrompt renders the diagnosis instruction around a condensed
// timeline summary. The system text is folded into the single prompt so the
// same string works for model families without a system role. Credentials
// captured in log lines are masked before the summary leaves the process.
func BuildAnalysisPrompt(timelineSummary string) string {
	timelineSummary = security.MaskSensitiveData(timelineSummary)
	return fmt.Sprintf(`System Prompt: %s

JSON Schema to follow:
%s

User Task: Analyze the following log data. Adhere strictly to the JSON schema provided.

--- LOG DATA START ---
%s
--- LOG DATA END ---

Your response must be ONLY the JSON object based on your analysis.`, systemPrompt, verdictSchema, timelineSummary)
}

// BuildConversePrompt renders a follow-up question with its session context.
// Unlike analysis, the answer is expected as plain prose.
func BuildConversePrompt(context, question string) string {
	context = security.MaskSensitiveData(context)
	return fmt.Sprintf(`You are Clarity, an expert incident analyst answering follow-up questions about a completed root cause analysis. Answer concisely in plain text, grounded only in the context below. If the context does not contain the answer, say so.

--- ANALYSIS CONTEXT START ---
%s
--- ANALYSIS CONTEXT END ---

Question: %s`, context, question)
}
