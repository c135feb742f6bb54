package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"juris-rag/internal/ai"
	"juris-rag/internal/model"
	"juris-rag/internal/retrieval"
)

const (
	disclaimer              = "⚠️ This is not legal advice. Consult a qualified attorney for legal guidance."
	promptHistoryTurns      = 5
	assistantHistoryPreview = 300
	emptyModelResponse      = "The model returned an empty response."
)

// requiredSections must all appear in a well-formed answer or summary.
var requiredSections = []string{
	"## Summary",
	"## Key Points",
	"## Risks and Red Flags",
	"## Suggested Questions",
	"⚠️ This is not legal advice",
}

const systemPrompt = `You are Juris, an assistant that explains legal documents in plain language.

Your job:
1. Translate legal jargon into everyday words.
2. Point out risky, unusual or one-sided terms and what they could mean for the reader.
3. Cite the document sections you rely on.
4. Suggest useful follow-up questions.

Rules:
- Cite sections as [filename:chunk_N] using the tags given with each section.
- Only interpret the provided text. Do not invent facts or give legal advice.
- If the provided sections do not answer the question, say so plainly.
- Finish every answer with: "` + disclaimer + `"

Answer format:

## Summary
One or two sentences.

## Key Points
Two to four bullet points.

## Risks and Red Flags
Terms the reader should watch out for.

## Suggested Questions
Two or three follow-up questions.

## Citations
The sections you referenced.

` + disclaimer

const analysisTemplate = `Answer the question about the user's legal document using these sections.

DOCUMENT SECTIONS:
%s

QUESTION: %s

Follow the answer format, cite the sections you use and flag any terms the user should be careful about.`

const conversationTemplate = `This continues an earlier conversation about a legal document.

RECENT CONVERSATION:
%s

DOCUMENT SECTIONS:
%s

QUESTION: %s

Keep the same answer format and build on the earlier answers where it helps.`

const summaryTemplate = `Summarize the legal document below for a non-lawyer.

DOCUMENT TEXT:
%s

Cover:
1. What kind of document it is
2. Who the parties are
3. Main obligations and rights
4. Important dates, amounts and conditions
5. Risky or unusual clauses
6. Whether the terms look balanced overall

Use the standard answer format.`

const noContextTemplate = `I couldn't find anything in your uploaded documents that answers: "%s"

This can happen when the question is about something the documents don't cover, or when the relevant document hasn't been uploaded yet.

## Suggested Actions
- Rephrase the question with different keywords
- Upload the document that covers this topic
- Ask about terms that appear in the document

## Common Questions for Legal Documents
- What are my main obligations under this agreement?
- How can this contract be terminated?
- Are there penalties or fees I should know about?
- What are the payment terms?

` + disclaimer

// formatContext renders retrieved chunks as numbered, citation-tagged sections.
func formatContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return "No relevant document sections found."
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Section %d - %s]\n%s", i+1, r.Chunk.Citation(), strings.TrimSpace(r.Chunk.Content)))
	}
	return strings.Join(parts, "\n\n")
}

// formatHistory renders the last turns of a conversation, shortening assistant turns.
func formatHistory(messages []model.Message) string {
	if len(messages) == 0 {
		return "No previous conversation."
	}
	if len(messages) > promptHistoryTurns {
		messages = messages[len(messages)-promptHistoryTurns:]
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			parts = append(parts, "User: "+m.Content)
		case model.RoleAssistant:
			parts = append(parts, "Assistant: "+truncate(m.Content, assistantHistoryPreview))
		}
	}
	return strings.Join(parts, "\n\n")
}

// chatPrompt picks the conversation template when earlier turns exist.
func chatPrompt(question string, results []retrieval.Result, earlier []model.Message) []ai.ChatMessage {
	var user string
	if len(earlier) > 0 {
		user = fmt.Sprintf(conversationTemplate, formatHistory(earlier), formatContext(results), question)
	} else {
		user = fmt.Sprintf(analysisTemplate, formatContext(results), question)
	}
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: user},
	}
}

func summaryPrompt(documentText string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf(summaryTemplate, documentText)},
	}
}

func noContextResponse(question string) string {
	return fmt.Sprintf(noContextTemplate, question)
}

// citations lists chunk references in order of first appearance, without duplicates.
func citations(results []retrieval.Result) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		c := r.Chunk.Citation()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func validResponseFormat(response string) bool {
	for _, section := range requiredSections {
		if !strings.Contains(response, section) {
			return false
		}
	}
	return true
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
