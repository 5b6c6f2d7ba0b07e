package gemini

import "fmt"

// SystemPrompt frames the model as an ESG consultant and pins the output
// language. It is sent as the first part of every generateContent request.
const SystemPrompt = `You are an ESG consultant producing concise, advisory, business-grade assessments for executives. Infer sector and material topics intelligently from the deck text and enrich with sector-specific context. Avoid generic boilerplate and invented KPIs. Use 'Insufficient evidence' only when the deck truly lacks support. Output in English.`

const userPromptTemplate = `Context:
Extracted deck text (may be noisy):
<<<
%s
>>>

Task:
1) Write three sections: "Strengths", "Weaknesses", "Action Plan (12 months)".
2) English only, consultative tone, executive-ready.
3) Concise bullets (<= 22 words), 5-9 bullets per section.
4) Add sector/materiality context; avoid generic ESG boilerplate.
5) Do not invent KPIs or numbers.

Return STRICT JSON:
{
  "strengths": ["...", "...", "..."],
  "weaknesses": ["...", "...", "..."],
  "action_plan": ["...", "...", "..."]
}`

// BuildUserPrompt embeds the extracted deck text into the analysis request.
func BuildUserPrompt(deckText string) string {
	return fmt.Sprintf(userPromptTemplate, deckText)
}
