package usecase

import (
	"fmt"
	"strings"
)

const (
	queryContextSeparator = "\n---\n"
	chatContextSeparator  = "\n\n"

	defaultExplainRole = "Neutral"
	exportTitle        = "AI-Generated Summary"
)

const summaryInstruction = "Summarize the key points of this document using markdown format. " +
	"Use bullet points for the main items, bold for important names, amounts and dates, " +
	"headings to group related sections, and short paragraphs where a list does not fit. " +
	"Avoid legal advice. Focus on sections, obligations, timelines, parties, risks, and notable clauses."

var noRiskPhrases = []string{"no risk", "no risks", "no significant risk", "not risky"}

var riskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"hasRisk":  map[string]any{"type": "boolean"},
		"analysis": map[string]any{"type": "string"},
	},
	"required": []string{"hasRisk", "analysis"},
}

func buildQueryPrompt(query string, contextChunks []string) string {
	return fmt.Sprintf(
		"You are a legal document assistant. Based on the context answer the user's question. "+
			"If the answer is not in the context, say you don't have enough information.\n\n"+
			"Context:\n%s\n\nQuestion:\n%s",
		strings.Join(contextChunks, queryContextSeparator),
		query,
	)
}

func buildDocumentChatPrompt(query string, contextChunks []string) string {
	return fmt.Sprintf(
		"You are a legal document analysis assistant.\n\n"+
			"Document Context:\n%s\n\n"+
			"User Question: %s\n\n"+
			"Guidelines:\n"+
			"- Answer strictly from the document context; if the answer is not there, say it is not available in the document.\n"+
			"- For questions about this conversation itself, use the conversation history.\n"+
			"- Reply briefly to greetings and small talk.\n"+
			"- Be concise and do not fabricate facts.",
		strings.Join(contextChunks, chatContextSeparator),
		query,
	)
}

func buildGeneralChatPrompt(query string) string {
	return fmt.Sprintf(
		"You are a helpful lawyer. Have a natural conversation with the user.\n\n"+
			"User Question:\n%s\n\n"+
			"Respond naturally and conversationally.",
		query,
	)
}

func buildEnrichmentExplainPrompt(text string) string {
	return "Explain this legal clause in simple plain English without giving legal advice:\n\n" + text
}

func buildRoleExplainPrompt(role, text string) string {
	if strings.TrimSpace(role) == "" {
		role = defaultExplainRole
	}
	return fmt.Sprintf(
		"Explain this clause from the perspective of a %s. What are the risks, obligations, and implications for them?\n\nClause: %s",
		role,
		text,
	)
}

func buildRiskPrompt(text string) string {
	return fmt.Sprintf(
		"Analyze the following legal text for potential risks.\n\n"+
			"Text: %s\n\n"+
			"- Set hasRisk to true if risks (e.g., indemnity, liability limits, termination, penalties, confidentiality, IP, jurisdiction, payment terms) are present; false otherwise.\n"+
			"- In analysis, provide concise markdown explanation of risks (or \"No risks identified.\" if none). Do not give legal advice.",
		text,
	)
}
