package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/pkg/llm"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

const (
	draftPromptText = "Write about the given topic. Markdown is supported. Use headings wherever appropriate."
	draftPromptCode = "You are a code generator. Write a single self-contained snippet for the request. Return only the code."
	updatePrompt    = "Improve the following contents of the document based on the given prompt.\n\n%s"
)

// DocumentWriter 负责起草文档并保存版本，createDocument 与 updateDocument 共用。
type DocumentWriter struct {
	llm     llm.Client
	variant string
	repo    repository.DocumentRepository
}

// NewDocumentWriter 创建 DocumentWriter。variant 为起草时使用的模型变体。
func NewDocumentWriter(client llm.Client, variant string, repo repository.DocumentRepository) *DocumentWriter {
	return &DocumentWriter{llm: client, variant: variant, repo: repo}
}

// draft 流式起草内容，并把每个增量以 text-delta 推给客户端。
func (w *DocumentWriter) draft(ctx context.Context, system, prompt string, tc *TurnContext) (string, error) {
	reader, err := w.llm.Stream(ctx, w.variant, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start draft: %w", err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read draft: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		tc.emit("text-delta", chunk.Content)
	}
	return sb.String(), nil
}

func systemPromptFor(kind model.DocumentKind) string {
	if kind == model.DocumentKindCode {
		return draftPromptCode
	}
	return draftPromptText
}

type createDocumentTool struct {
	w *DocumentWriter
}

// NewCreateDocumentTool 创建 createDocument 工具。
func NewCreateDocumentTool(w *DocumentWriter) Tool {
	return &createDocumentTool{w: w}
}

func (t *createDocumentTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(CreateDocument),
		Desc: "Create a document for writing or content creation activities. The content is generated from the title and shown to the user.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title": {Type: schema.String, Desc: "Title of the document", Required: true},
			"kind":  {Type: schema.String, Desc: "Kind of the document", Enum: []string{string(model.DocumentKindText), string(model.DocumentKindCode)}, Required: true},
		}),
	}
}

type createDocumentArgs struct {
	Title string             `json:"title"`
	Kind  model.DocumentKind `json:"kind"`
}

func (t *createDocumentTool) Invoke(ctx context.Context, args json.RawMessage, tc *TurnContext) (json.RawMessage, error) {
	var a createDocumentArgs
	if err := decodeArgs(CreateDocument, args, &a); err != nil {
		return nil, err
	}
	if a.Title == "" {
		return nil, &ToolError{Tool: CreateDocument, Err: errors.New("title is required")}
	}
	if a.Kind == "" {
		a.Kind = model.DocumentKindText
	}

	id := uuid.NewString()
	tc.emit("kind", a.Kind)
	tc.emit("id", id)
	tc.emit("title", a.Title)
	tc.emit("clear", "")

	content, err := t.w.draft(ctx, systemPromptFor(a.Kind), a.Title, tc)
	if err != nil {
		return nil, err
	}
	if err := t.w.repo.SaveVersion(ctx, &model.Document{
		ID:      id,
		UserID:  tc.Identity.UserID,
		Title:   a.Title,
		Kind:    a.Kind,
		Content: content,
	}); err != nil {
		return nil, err
	}
	tc.emit("finish", "")

	return json.Marshal(map[string]interface{}{
		"id":      id,
		"title":   a.Title,
		"kind":    a.Kind,
		"content": "A document was created and is now visible to the user.",
	})
}

type updateDocumentTool struct {
	w *DocumentWriter
}

// NewUpdateDocumentTool 创建 updateDocument 工具。
func NewUpdateDocumentTool(w *DocumentWriter) Tool {
	return &updateDocumentTool{w: w}
}

func (t *updateDocumentTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(UpdateDocument),
		Desc: "Update a document with the given description.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"id":          {Type: schema.String, Desc: "The ID of the document to update", Required: true},
			"description": {Type: schema.String, Desc: "The description of changes that need to be made", Required: true},
		}),
	}
}

type updateDocumentArgs struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (t *updateDocumentTool) Invoke(ctx context.Context, args json.RawMessage, tc *TurnContext) (json.RawMessage, error) {
	var a updateDocumentArgs
	if err := decodeArgs(UpdateDocument, args, &a); err != nil {
		return nil, err
	}

	doc, err := t.w.repo.Latest(ctx, a.ID)
	if errors.Is(err, repository.ErrDocumentNotFound) || (err == nil && doc.UserID != tc.Identity.UserID) {
		return json.Marshal(map[string]string{"error": "Document not found"})
	}
	if err != nil {
		return nil, err
	}

	tc.emit("clear", doc.Title)
	content, err := t.w.draft(ctx, fmt.Sprintf(updatePrompt, doc.Content), a.Description, tc)
	if err != nil {
		return nil, err
	}
	if err := t.w.repo.SaveVersion(ctx, &model.Document{
		ID:      doc.ID,
		UserID:  doc.UserID,
		Title:   doc.Title,
		Kind:    doc.Kind,
		Content: content,
	}); err != nil {
		return nil, err
	}
	tc.emit("finish", "")

	return json.Marshal(map[string]interface{}{
		"id":      doc.ID,
		"title":   doc.Title,
		"kind":    doc.Kind,
		"content": "The document has been updated successfully.",
	})
}
