// Package prompt assembles the text sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"legalrag/internal/domain"
)

// Section headings, in the order they appear in every prompt.
const (
	DocumentHeading = "THE USER'S DOCUMENT"
	ContextHeading  = "RELEVANT LEGAL CONTEXT"
	QuestionHeading = "THE USER'S QUESTION"
)

// SnippetSeparator joins retrieved snippets inside the context section.
const SnippetSeparator = "\n\n---\n\n"

// NoContextMarker stands in for the context section when retrieval found nothing.
const NoContextMarker = "(no reference snippets were retrieved)"

const sectionRule = "---"

// GroundingContract is the set of rules the model must follow when answering.
// Each rule is a separate field so a contract can be reviewed and versioned
// as data.
type GroundingContract struct {
	Version string
	Role    string

	DocumentPrimacy    string
	Silence            string
	Conflict           string
	NoOutsideKnowledge string
	Inability          string
	NoLegalAdvice      string
}

// DefaultContract is the contract used by Compose.
var DefaultContract = GroundingContract{
	Version: "2024.1",
	Role: "You are a legal document assistant. You answer one question about the user's own legal document, " +
		"using only the material supplied below.",
	DocumentPrimacy: "Start from the user's document: find the clauses that bear on the question. " +
		"Use the legal context only to explain the standard position or define terms.",
	Silence:            "If the user's document does not address the question, say that the document is silent on it.",
	Conflict:           `If the user's document contradicts the legal context, point this out, for example: "Your document states X, while the standard legal position is Y."`,
	NoOutsideKnowledge: "Do not add facts that are not in the document or the legal context.",
	Inability:          "If the answer cannot be found in the supplied texts, say that you cannot answer.",
	NoLegalAdvice:      `Do not give legal advice. Describe what the text says, for example "This clause appears to mean..." or "This document states...".`,
}

// Instructions returns the contract rules in presentation order.
func (c GroundingContract) Instructions() []string {
	return []string{
		c.DocumentPrimacy,
		c.Silence,
		c.Conflict,
		c.NoOutsideKnowledge,
		c.Inability,
		c.NoLegalAdvice,
	}
}

// Prompt is a composed prompt and the contract version it was built with.
type Prompt struct {
	Text            string
	ContractVersion string
	Snippets        int
}

// Template renders prompts under one grounding contract.
type Template struct {
	contract GroundingContract
}

// NewTemplate returns a template for contract.
func NewTemplate(contract GroundingContract) Template {
	return Template{contract: contract}
}

// Contract returns the contract the template renders.
func (t Template) Contract() GroundingContract { return t.contract }

// Compose renders the prompt using DefaultContract.
func Compose(documentText, question string, rc domain.RetrievedContext) Prompt {
	return NewTemplate(DefaultContract).Compose(documentText, question, rc)
}

// Compose renders the role and instructions followed by the document, the
// retrieved context in rank order and the question. The document text is
// included verbatim. It never fails.
func (t Template) Compose(documentText, question string, rc domain.RetrievedContext) Prompt {
	var b strings.Builder

	b.WriteString(t.contract.Role)
	b.WriteString("\n\nYou are given three inputs: ")
	fmt.Fprintf(&b, "%s (the full text of their agreement), ", DocumentHeading)
	fmt.Fprintf(&b, "%s (reference excerpts related to the question) and ", ContextHeading)
	fmt.Fprintf(&b, "%s.\n\nINSTRUCTIONS:\n", QuestionHeading)
	n := 0
	for _, rule := range t.contract.Instructions() {
		if rule == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, rule)
	}

	writeSection(&b, DocumentHeading, documentText)

	snippets := make([]string, 0, len(rc))
	for _, s := range rc {
		if strings.TrimSpace(s) != "" {
			snippets = append(snippets, s)
		}
	}
	contextBody := NoContextMarker
	if len(snippets) > 0 {
		contextBody = strings.Join(snippets, SnippetSeparator)
	}
	writeSection(&b, ContextHeading, contextBody)

	writeSection(&b, QuestionHeading, question)
	b.WriteString(sectionRule)
	b.WriteString("\n\nAnswer:\n")

	return Prompt{
		Text:            b.String(),
		ContractVersion: t.contract.Version,
		Snippets:        len(snippets),
	}
}

func writeSection(b *strings.Builder, heading, body string) {
	b.WriteString("\n")
	b.WriteString(sectionRule)
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString(":\n")
	b.WriteString(body)
	b.WriteString("\n")
}
