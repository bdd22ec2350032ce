package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/pkg/llm"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

const suggestionsPrompt = `You are a help writing assistant. Given a piece of writing, offer suggestions to improve it.
Reply with a JSON array only. Each element has "originalSentence", "suggestedSentence" and "description".
Return at most 5 suggestions.`

const maxSuggestions = 5

type suggestionsTool struct {
	llm     llm.Client
	variant string
	repo    repository.DocumentRepository
}

// NewSuggestionsTool 创建 requestSuggestions 工具。
func NewSuggestionsTool(client llm.Client, variant string, repo repository.DocumentRepository) Tool {
	return &suggestionsTool{llm: client, variant: variant, repo: repo}
}

func (t *suggestionsTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(RequestSuggestions),
		Desc: "Request suggestions for a document",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"documentId": {Type: schema.String, Desc: "The ID of the document to request edits", Required: true},
		}),
	}
}

type suggestionsArgs struct {
	DocumentID string `json:"documentId"`
}

type draftSuggestion struct {
	OriginalSentence  string `json:"originalSentence"`
	SuggestedSentence string `json:"suggestedSentence"`
	Description       string `json:"description"`
}

func (t *suggestionsTool) Invoke(ctx context.Context, args json.RawMessage, tc *TurnContext) (json.RawMessage, error) {
	var a suggestionsArgs
	if err := decodeArgs(RequestSuggestions, args, &a); err != nil {
		return nil, err
	}

	doc, err := t.repo.Latest(ctx, a.DocumentID)
	if errors.Is(err, repository.ErrDocumentNotFound) || (err == nil && doc.UserID != tc.Identity.UserID) {
		return json.Marshal(map[string]string{"error": "Document not found"})
	}
	if err != nil {
		return nil, err
	}

	resp, err := t.llm.Generate(ctx, t.variant, []*schema.Message{
		schema.SystemMessage(suggestionsPrompt),
		schema.UserMessage(doc.Content),
	})
	if err != nil {
		return nil, err
	}
	drafts, err := parseSuggestions(resp.Content)
	if err != nil {
		return nil, &ToolError{Tool: RequestSuggestions, Err: err}
	}

	saved := make([]*model.Suggestion, 0, len(drafts))
	for _, d := range drafts {
		s := &model.Suggestion{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			UserID:        tc.Identity.UserID,
			OriginalText:  d.OriginalSentence,
			SuggestedText: d.SuggestedSentence,
			Description:   d.Description,
		}
		tc.emit("suggestion", s)
		saved = append(saved, s)
	}
	if err := t.repo.SaveSuggestions(ctx, saved); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]interface{}{
		"id":      doc.ID,
		"title":   doc.Title,
		"kind":    doc.Kind,
		"message": "Suggestions have been added to the document",
	})
}

// parseSuggestions 从模型输出中解析建议列表，容忍 markdown 代码块包裹。
func parseSuggestions(raw string) ([]draftSuggestion, error) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			text = text[start : end+1]
		}
	}
	var out []draftSuggestion
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("model returned malformed suggestions: %w", err)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}
