// Package tools 定义了模型在生成过程中可以调用的工具，以及按模型变体决定可用工具的注册表。
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/log"

	"github.com/cloudwego/eino/schema"
)

// Name 是工具的名称，模型通过它发起调用。
type Name string

const (
	GetWeather         Name = "getWeather"
	CreateDocument     Name = "createDocument"
	UpdateDocument     Name = "updateDocument"
	RequestSuggestions Name = "requestSuggestions"
)

// ErrUnknownTool 表示请求的工具没有注册。
var ErrUnknownTool = errors.New("unknown tool")

// ToolError 包装一次工具调用的失败。它会作为工具结果反馈给模型，而不会使整个回合失败。
type ToolError struct {
	Tool Name
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// DataEvent 是工具在执行过程中推送给客户端的中间数据，例如文档草稿的增量文本。
type DataEvent struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// TurnContext 携带一次回合中工具需要的上下文。
type TurnContext struct {
	Identity model.Identity
	ChatID   string
	// Emit 把中间数据推给客户端，可以为 nil。
	Emit func(DataEvent)
}

func (tc *TurnContext) emit(typ string, content interface{}) {
	if tc == nil || tc.Emit == nil {
		return
	}
	tc.Emit(DataEvent{Type: typ, Content: content})
}

// Tool 是单个工具的实现。
type Tool interface {
	Info() *schema.ToolInfo
	Invoke(ctx context.Context, args json.RawMessage, tc *TurnContext) (json.RawMessage, error)
}

// Registry 按名称保存工具，并决定某个模型变体可以使用哪些工具。
type Registry struct {
	tools            map[Name]Tool
	reasoningVariant string
}

// NewRegistry 创建注册表。reasoningVariant 对应的模型变体不会获得任何工具。
func NewRegistry(reasoningVariant string, tools ...Tool) *Registry {
	r := &Registry{tools: make(map[Name]Tool, len(tools)), reasoningVariant: reasoningVariant}
	for _, t := range tools {
		r.tools[Name(t.Info().Name)] = t
	}
	return r
}

// ActiveTools 返回模型变体可用的工具描述，按名称排序以保证稳定。
func (r *Registry) ActiveTools(variant string) []*schema.ToolInfo {
	if variant == r.reasoningVariant {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, t.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Invoke 调用指定工具。任何失败（包括工具内部 panic）都以 *ToolError 返回。
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, tc *TurnContext) (result json.RawMessage, err error) {
	t, ok := r.tools[Name(name)]
	if !ok {
		return nil, &ToolError{Tool: Name(name), Err: ErrUnknownTool}
	}
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("tool panicked", "tool", name, "panic", p)
			result, err = nil, &ToolError{Tool: Name(name), Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err = t.Invoke(ctx, args, tc)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, &ToolError{Tool: Name(name), Err: err}
	}
	return result, nil
}

// decodeArgs 解析工具参数，失败时返回 *ToolError。
func decodeArgs(name Name, args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return &ToolError{Tool: name, Err: fmt.Errorf("invalid arguments: %w", err)}
	}
	return nil
}
