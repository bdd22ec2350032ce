// Package llmtest 提供按脚本回放的 llm.Client，用于测试生成循环与工具。
package llmtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Step 描述一次 Stream 调用的回放内容。
type Step struct {
	Chunks []*schema.Message
	// Err 不为空时 Stream 直接返回该错误。
	Err error
	// RecvErr 不为空时在发送完 Chunks 后以该错误结束流。
	RecvErr error
	// Hang 为 true 时发送完 Chunks 后一直阻塞，直到 ctx 结束。
	Hang bool
	// Delay 为每个 Chunk 发送前的等待时间。
	Delay time.Duration
}

// Client 按顺序回放 Steps，并记录每次调用收到的消息与工具。
type Client struct {
	mu        sync.Mutex
	steps     []Step
	replies   []*schema.Message
	Calls     [][]*schema.Message
	ToolsSeen [][]*schema.ToolInfo
	Variants  []string
}

// NewClient 创建脚本客户端。replies 依次作为 Generate 的返回值。
func NewClient(steps []Step, replies ...*schema.Message) *Client {
	return &Client{steps: steps, replies: replies}
}

// Text 构造一个纯文本增量。
func Text(s string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: s}
}

// Call 构造一个工具调用增量。
func Call(index int, id, name, args string) *schema.Message {
	idx := index
	return &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{
		Index:    &idx,
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}}}
}

// CallCount 返回 Stream 被调用的次数。
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

func (c *Client) Stream(ctx context.Context, variant string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, append([]*schema.Message(nil), messages...))
	c.ToolsSeen = append(c.ToolsSeen, tools)
	c.Variants = append(c.Variants, variant)
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return nil, errors.New("llmtest: no scripted step left")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	if !step.Hang && step.RecvErr == nil && step.Delay == 0 {
		return schema.StreamReaderFromArray(step.Chunks), nil
	}

	sr, sw := schema.Pipe[*schema.Message](len(step.Chunks) + 1)
	go func() {
		defer sw.Close()
		for _, chunk := range step.Chunks {
			if step.Delay > 0 {
				select {
				case <-time.After(step.Delay):
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				}
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
		if step.Hang {
			<-ctx.Done()
			sw.Send(nil, ctx.Err())
			return
		}
		if step.RecvErr != nil {
			sw.Send(nil, step.RecvErr)
		}
	}()
	return sr, nil
}

func (c *Client) Generate(ctx context.Context, variant string, messages []*schema.Message) (*schema.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil, errors.New("llmtest: no scripted reply left")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}
