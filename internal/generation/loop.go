package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ride-chat-go/internal/tools"
	"ride-chat-go/pkg/llm"
	"ride-chat-go/pkg/log"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"
)

// Invoker 执行一次工具调用，通常由 *tools.Registry 实现。
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage, tc *tools.TurnContext) (json.RawMessage, error)
}

// Request 描述一次生成。
type Request struct {
	Variant      string
	SystemPrompt string
	History      []*schema.Message
	Tools        []*schema.ToolInfo
	MaxSteps     int
	Turn         *tools.TurnContext
}

// Loop 是生成循环。
type Loop struct {
	llm     llm.Client
	invoker Invoker
}

// NewLoop 创建生成循环。
func NewLoop(client llm.Client, invoker Invoker) *Loop {
	return &Loop{llm: client, invoker: invoker}
}

// Run 启动生成并返回事件通道。通道总是以一个 Finished 或 Failed 事件结束然后关闭；
// 调用方必须把通道读完。
func (l *Loop) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		l.run(ctx, req, out)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, req Request, out chan<- Event) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	// 工具推送的数据事件与文本事件走同一个通道
	turn := &tools.TurnContext{}
	if req.Turn != nil {
		*turn = *req.Turn
	}
	turn.Emit = func(ev tools.DataEvent) {
		out <- Event{Type: EventData, Data: &ev}
	}

	messages := make([]*schema.Message, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, req.History...)

	active := make(map[string]struct{}, len(req.Tools))
	for _, info := range req.Tools {
		active[info.Name] = struct{}{}
	}

	acc := &partsBuilder{}
	fail := func(step int, err error) {
		timeout := errors.Is(ctx.Err(), context.DeadlineExceeded)
		out <- Event{Type: EventFailed, Err: err, Timeout: timeout, Message: acc.message(), Steps: step}
	}

	for step := 1; step <= maxSteps; step++ {
		reply, err := l.streamStep(ctx, req, messages, acc, out)
		if err != nil {
			log.Warnw("generation step failed", "chatId", turn.ChatID, "step", step, "error", err)
			fail(step, err)
			return
		}
		if reply == nil || len(reply.ToolCalls) == 0 {
			out <- Event{Type: EventFinished, Message: acc.message(), Steps: step}
			return
		}
		// 只执行本次提供给模型的工具，其余调用直接丢弃
		pending := activeCalls(reply.ToolCalls, active)
		if dropped := len(reply.ToolCalls) - len(pending); dropped > 0 {
			log.Warnw("model requested inactive tools, discarding",
				"chatId", turn.ChatID, "variant", req.Variant, "step", step, "dropped", dropped)
		}
		if len(pending) == 0 {
			out <- Event{Type: EventFinished, Message: acc.message(), Steps: step}
			return
		}
		if step == maxSteps {
			// 步数耗尽：丢弃尚未执行的工具调用，以已有内容结束
			log.Infow("step budget exhausted, discarding pending tool calls",
				"chatId", turn.ChatID, "steps", step, "pending", len(pending))
			out <- Event{Type: EventFinished, Message: acc.message(), Steps: step, Incomplete: true}
			return
		}

		calls := normalizeCalls(step, pending)
		messages = append(messages, schema.AssistantMessage(reply.Content, calls))
		for _, call := range calls {
			args := rawArgs(call.Function.Arguments)
			acc.toolCall(call.ID, call.Function.Name, args)
			out <- Event{Type: EventToolCallStarted, ToolCallID: call.ID, ToolName: call.Function.Name, Args: args}
		}

		results := l.invokeAll(ctx, calls, turn)
		if err := ctx.Err(); err != nil {
			fail(step, err)
			return
		}
		for i, call := range calls {
			acc.toolResult(call.ID, call.Function.Name, results[i])
			out <- Event{Type: EventToolCallFinished, ToolCallID: call.ID, ToolName: call.Function.Name, Result: results[i]}
			messages = append(messages, schema.ToolMessage(string(results[i]), call.ID))
		}
	}
}

// streamStep 执行一次模型调用，文本增量立即下发，工具调用在流结束后合并返回。
func (l *Loop) streamStep(ctx context.Context, req Request, messages []*schema.Message, acc *partsBuilder, out chan<- Event) (*schema.Message, error) {
	reader, err := l.llm.Stream(ctx, req.Variant, messages, req.Tools)
	if err != nil {
		return nil, fmt.Errorf("model error: %w", err)
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("model error: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			acc.text(chunk.Content)
			out <- Event{Type: EventTextDelta, Text: chunk.Content}
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	reply, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("model error: failed to merge chunks: %w", err)
	}
	return reply, nil
}

// invokeAll 并发执行同一步内的所有工具调用，结果按调用声明的顺序返回。
// 工具失败会被折叠成 {"error": "..."} 结果交给模型。
func (l *Loop) invokeAll(ctx context.Context, calls []schema.ToolCall, turn *tools.TurnContext) []json.RawMessage {
	results := make([]json.RawMessage, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			res, err := l.invoker.Invoke(ctx, call.Function.Name, rawArgs(call.Function.Arguments), turn)
			if err != nil {
				log.Warnw("tool invocation failed", "tool", call.Function.Name, "toolCallId", call.ID, "error", err)
				res = errorResult(err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func activeCalls(calls []schema.ToolCall, active map[string]struct{}) []schema.ToolCall {
	out := make([]schema.ToolCall, 0, len(calls))
	for _, c := range calls {
		if _, ok := active[c.Function.Name]; ok {
			out = append(out, c)
		}
	}
	return out
}

func normalizeCalls(step int, calls []schema.ToolCall) []schema.ToolCall {
	out := make([]schema.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", step, i)
		}
		if c.Type == "" {
			c.Type = "function"
		}
		out[i] = c
	}
	return out
}

// rawArgs 保证参数是合法的 JSON；模型给出的非法参数按字符串保存。
func rawArgs(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func errorResult(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
