package usecase

import (
	"strings"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

const documentPlaceholder = "{{document}}"

var promptTemplates = map[domain.AnalysisMode]string{
	domain.ModeSummary: `Create a concise summary of this document.

Requirements:
- Executive summary (2-3 sentences)
- Main topics covered
- Key findings or conclusions
- Important details or statistics
- Overall assessment

Document content:
{{document}}

Format: use clear headers and bullet points for readability.`,

	domain.ModeComprehensive: `Perform a thorough analysis of this document.

Analysis framework:
1. Document overview: purpose, scope and context
2. Key themes and topics: main subjects discussed
3. Critical findings: important discoveries or insights
4. Data and evidence: statistics, facts and supporting information
5. Arguments and positions: main claims and reasoning
6. Implications: what this means and why it matters
7. Recommendations: suggested actions or next steps
8. Assessment: overall evaluation and significance

Document content:
{{document}}

Instructions: provide detailed analysis under each section with specific examples from the text.`,

	domain.ModeInsights: `Extract and analyze key insights from this document.

Focus areas:
1. Top 5 most important findings
2. Trends and patterns that emerge from the content
3. Implications and broader impact
4. Opportunities and challenges identified
5. Strategic recommendations

Document content:
{{document}}

Format: use clear categories with bullet points and explanations.`,

	domain.ModeTechnical: `Provide a technical analysis of this document.

Technical framework:
- Methodology: approaches, techniques or processes used
- Technical details: specifications, parameters or technical aspects
- Data analysis: statistical information and data interpretation
- Technical conclusions: engineering, scientific or technical findings
- Implementation notes: practical application considerations

Document content:
{{document}}`,
}

const customPromptTemplate = `Based on the document provided, answer this specific question.

Question: {{question}}

Requirements:
- Provide a direct answer to the question
- Include supporting evidence quoted or paraphrased from the document
- Explain the relevant context
- Note any limitations or caveats

Document content:
{{document}}

Instructions: base your answer only on the document content above. Do not use outside knowledge; if the document does not contain the answer, say so.`

// BuildPrompt renders the prompt for mode. Unknown modes render the summary
// prompt. Custom mode embeds question verbatim; callers must reject an empty
// question before calling the provider.
func BuildPrompt(mode domain.AnalysisMode, documentText, question string) string {
	if mode == domain.ModeCustom {
		// Question first, so a question containing the placeholder stays literal.
		withQuestion := strings.Replace(customPromptTemplate, "{{question}}", strings.TrimSpace(question), 1)
		idx := strings.LastIndex(withQuestion, documentPlaceholder)
		return withQuestion[:idx] + documentText + withQuestion[idx+len(documentPlaceholder):]
	}

	tmpl, ok := promptTemplates[mode]
	if !ok {
		tmpl = promptTemplates[domain.ModeSummary]
	}
	return strings.Replace(tmpl, documentPlaceholder, documentText, 1)
}
