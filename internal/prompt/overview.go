package prompt

import "strings"

// Headings the document overview must use, in order.
var OverviewHeadings = []string{
	"### Summary",
	"### Key Insights",
	"### Important Mentions",
	"### Vigilance Score (1-100) and Justification",
}

// Overview builds the prompt for a plain-language analysis of a whole document.
func Overview(documentText string) string {
	var b strings.Builder
	b.WriteString("You are an experienced paralegal. You explain legal documents in simple, neutral terms to readers who are not lawyers.\n")
	b.WriteString("Stay factual and objective. Do not give legal advice or opinions, and do not include anything that is not in the document.\n\n")
	b.WriteString("Analyze the document below. Use exactly these headings, in this order: ")
	b.WriteString(strings.Join(OverviewHeadings, ", "))
	b.WriteString(".\n")
	b.WriteString("Under Key Insights and Important Mentions, write bullet points starting with '*'.\n")
	b.WriteString(`Under Important Mentions, list every date, deadline and amount of money. If there are none, write "None found."` + "\n")
	b.WriteString("Under the Vigilance Score heading, give a risk score from 1 (very low) to 100 (very high), then one sentence explaining it.\n\n")
	b.WriteString("Document:\n")
	b.WriteString(sectionRule)
	b.WriteString("\n")
	b.WriteString(documentText)
	b.WriteString("\n")
	return b.String()
}
