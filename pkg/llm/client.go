// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"fmt"

	"ride-chat-go/internal/config"
	"ride-chat-go/pkg/log"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client 是模型能力的抽象：给定消息和可用工具，返回一次模型调用的增量流。
type Client interface {
	// Stream 以流式方式调用 variant 对应的模型。tools 为空时模型不会请求工具。
	Stream(ctx context.Context, variant string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error)
	// Generate 非流式调用，用于文档起草等内部任务。
	Generate(ctx context.Context, variant string, messages []*schema.Message) (*schema.Message, error)
}

type einoClient struct {
	models   map[string]model.ToolCallingChatModel
	fallback string
}

// NewClient 根据配置为每个模型变体创建 eino ChatModel。
func NewClient(ctx context.Context, cfg config.LLMConfig, defaultVariant string) (Client, error) {
	c := &einoClient{models: make(map[string]model.ToolCallingChatModel), fallback: defaultVariant}
	for variant, name := range cfg.Models {
		m, err := newChatModel(ctx, cfg, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model %s for %s: %w", name, variant, err)
		}
		c.models[variant] = m
		log.Infof("[LLM] 模型变体 '%s' -> '%s' (%s)", variant, name, cfg.Provider)
	}
	if _, ok := c.models[defaultVariant]; !ok {
		return nil, fmt.Errorf("no model configured for default variant %s", defaultVariant)
	}
	return c, nil
}

// NewClientFromModels 用已有的 ChatModel 构建 Client。
func NewClientFromModels(models map[string]model.ToolCallingChatModel, defaultVariant string) Client {
	return &einoClient{models: models, fallback: defaultVariant}
}

func newChatModel(ctx context.Context, cfg config.LLMConfig, name string) (model.ToolCallingChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		modelCfg := &openai.ChatModelConfig{
			Model:   name,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}
		if cfg.Generation.Temperature > 0 {
			temp := float32(cfg.Generation.Temperature)
			modelCfg.Temperature = &temp
		}
		if cfg.Generation.TopP > 0 {
			topP := float32(cfg.Generation.TopP)
			modelCfg.TopP = &topP
		}
		if cfg.Generation.MaxTokens > 0 {
			modelCfg.MaxTokens = &cfg.Generation.MaxTokens
		}
		return openai.NewChatModel(ctx, modelCfg)
	case "ark":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://ark.cn-beijing.volces.com/api/v3"
		}
		modelCfg := &arkext.ChatModelConfig{
			Model:   name,
			APIKey:  cfg.APIKey,
			BaseURL: baseURL,
		}
		if cfg.Generation.Temperature > 0 {
			temp := float32(cfg.Generation.Temperature)
			modelCfg.Temperature = &temp
		}
		if cfg.Generation.TopP > 0 {
			topP := float32(cfg.Generation.TopP)
			modelCfg.TopP = &topP
		}
		if cfg.Generation.MaxTokens > 0 {
			modelCfg.MaxTokens = &cfg.Generation.MaxTokens
		}
		return arkext.NewChatModel(ctx, modelCfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func (c *einoClient) pick(variant string) (model.ToolCallingChatModel, error) {
	if m, ok := c.models[variant]; ok {
		return m, nil
	}
	if m, ok := c.models[c.fallback]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no model configured for variant %s", variant)
}

func (c *einoClient) Stream(ctx context.Context, variant string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error) {
	m, err := c.pick(variant)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		m, err = m.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}
	return m.Stream(ctx, messages)
}

func (c *einoClient) Generate(ctx context.Context, variant string, messages []*schema.Message) (*schema.Message, error) {
	m, err := c.pick(variant)
	if err != nil {
		return nil, err
	}
	resp, err := m.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate: %w", err)
	}
	return resp, nil
}
