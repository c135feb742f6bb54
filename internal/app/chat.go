package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"juris-rag/internal/embedding"
	"juris-rag/internal/model"
	"juris-rag/internal/retrieval"
)

type ChatState string

const (
	StateReceived     ChatState = "RECEIVED"
	StateRetrieving   ChatState = "RETRIEVING"
	StateContextFound ChatState = "CONTEXT_FOUND"
	StateNoContext    ChatState = "NO_CONTEXT"
	StateGenerating   ChatState = "GENERATING"
	StateResponded    ChatState = "RESPONDED"
	StateFailed       ChatState = "FAILED"
)

type ChatInput struct {
	UserID     string
	SessionID  string
	Question   string
	DocumentID string
}

type ChatResult struct {
	Success         bool      `json:"success"`
	Response        string    `json:"response"`
	Citations       []string  `json:"citations"`
	ChunksRetrieved int       `json:"chunks_retrieved"`
	State           ChatState `json:"state"`
	Error           string    `json:"error,omitempty"`
	ErrorKind       Kind      `json:"error_kind,omitempty"`
}

// Chat answers one question. Failures are reported through the result,
// never as a Go error, and the result records the state reached.
func (s *RAGService) Chat(ctx context.Context, input ChatInput) *ChatResult {
	result := &ChatResult{State: StateReceived, Citations: []string{}}

	question := strings.TrimSpace(input.Question)
	switch {
	case strings.TrimSpace(input.UserID) == "":
		return result.fail(validationError("user_id is required"))
	case strings.TrimSpace(input.SessionID) == "":
		return result.fail(validationError("session_id is required"))
	case question == "":
		return result.fail(validationError("question is required"))
	}

	earlier, err := s.chatLog.History(ctx, input.SessionID, s.opts.MaxChatHistory)
	if err != nil {
		log.Printf("app: load history for session %s failed, answering without it: %v", input.SessionID, err)
		earlier = nil
	}

	if err := s.chatLog.Append(ctx, model.Message{
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		Role:       model.RoleUser,
		Content:    question,
		DocumentID: input.DocumentID,
	}); err != nil {
		return result.fail(wrap(ErrStorage, "record question", err))
	}

	if input.DocumentID != "" {
		if _, err := s.ownedDocument(ctx, input.UserID, input.DocumentID); err != nil {
			return result.fail(err)
		}
	}

	result.State = StateRetrieving
	results, err := s.retriever.Retrieve(ctx, retrieval.Query{
		Text:       question,
		UserID:     input.UserID,
		SessionID:  input.SessionID,
		DocumentID: input.DocumentID,
		TopK:       s.opts.TopK,
	})
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			return result.fail(wrap(ErrEmbeddingUnavailable, "retrieve", err))
		}
		return result.fail(wrap(ErrStorage, "retrieve", err))
	}

	if len(results) == 0 {
		result.State = StateNoContext
		result.Response = noContextResponse(question)
		if err := s.recordAnswer(ctx, input, result); err != nil {
			return result.fail(err)
		}
		result.State = StateResponded
		result.Success = true
		return result
	}

	result.State = StateContextFound
	result.ChunksRetrieved = len(results)
	result.Citations = citations(results)

	result.State = StateGenerating
	// The model call runs to completion even if the caller goes away; the
	// answer is simply not recorded in that case.
	answer, err := s.generator.Complete(context.WithoutCancel(ctx), chatPrompt(question, results, earlier))
	if err != nil {
		return result.fail(wrap(ErrGenerationUnavailable, "generate answer", err))
	}
	if err := ctx.Err(); err != nil {
		return result.fail(err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = emptyModelResponse
	}
	result.Response = answer

	if err := s.recordAnswer(ctx, input, result); err != nil {
		return result.fail(err)
	}
	result.State = StateResponded
	result.Success = true
	return result
}

func (s *RAGService) recordAnswer(ctx context.Context, input ChatInput, result *ChatResult) error {
	err := s.chatLog.Append(ctx, model.Message{
		SessionID:       input.SessionID,
		UserID:          input.UserID,
		Role:            model.RoleAssistant,
		Content:         result.Response,
		Citations:       result.Citations,
		DocumentID:      input.DocumentID,
		ChunksRetrieved: result.ChunksRetrieved,
	})
	if err != nil {
		return wrap(ErrStorage, "record answer", err)
	}
	return nil
}

func (r *ChatResult) fail(err error) *ChatResult {
	log.Printf("app: chat failed in state %s: %v", r.State, err)
	r.Success = false
	r.State = StateFailed
	r.Error = err.Error()
	r.ErrorKind = KindOf(err)
	return r
}
