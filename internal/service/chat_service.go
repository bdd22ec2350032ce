// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"ride-chat-go/internal/config"
	"ride-chat-go/internal/generation"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/internal/tools"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/notify"
	"ride-chat-go/pkg/stream"
	"ride-chat-go/pkg/tasks"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	defaultTitle     = "New Chat"
	maxTitleRunes    = 80
	persistTimeout   = 10 * time.Second
	defaultMaxLength = 2000
)

var allowedAttachmentTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// IncomingMessage 是客户端提交的用户消息。
type IncomingMessage struct {
	ID          string             `json:"id" binding:"required,uuid"`
	Role        model.Role         `json:"role" binding:"required,eq=user"`
	Parts       []model.Part       `json:"parts" binding:"required,min=1"`
	Attachments []model.Attachment `json:"attachments"`
}

// ChatRequest 是一次回合提交的请求体。
type ChatRequest struct {
	ID                     string           `json:"id" binding:"required,uuid"`
	Message                IncomingMessage  `json:"message"`
	SelectedChatModel      string           `json:"selectedChatModel" binding:"required"`
	SelectedVisibilityType model.Visibility `json:"selectedVisibilityType" binding:"required,oneof=private public"`
	Hints                  *RequestHints    `json:"hints"`
}

// Turn 是一次已受理的回合。Stream 按顺序产出编码好的 SSE 帧，读完后关闭。
type Turn struct {
	ID       string
	ChatID   string
	StreamID string
	Stream   <-chan []byte

	done chan struct{}
	err  error
}

// Wait 阻塞直到回合结束（包括持久化与通知），返回 nil 或 *apperr.Error。
func (t *Turn) Wait() error {
	<-t.done
	return t.err
}

// ChatService 编排一次对话回合的完整生命周期。
type ChatService interface {
	SubmitTurn(ctx context.Context, identity *model.Identity, req *ChatRequest) (*Turn, error)
	// ResumeByChat 恢复对话最近一次的流。返回 (nil, nil) 表示没有可恢复的内容。
	ResumeByChat(ctx context.Context, identity *model.Identity, chatID string) (<-chan []byte, error)
	ResumeByStream(ctx context.Context, identity *model.Identity, streamID string) (<-chan []byte, error)
}

// ChatDeps 汇总编排器的依赖。
type ChatDeps struct {
	Conversations repository.ConversationRepository
	Quota         repository.QuotaRepository
	Assembler     ConversationAssembler
	Loop          *generation.Loop
	Tools         *tools.Registry
	Transport     stream.Transport
	Notifier      notify.Sink
	Chat          config.ChatConfig
	Entitlements  config.EntitlementsConfig
	NotifyTimeout time.Duration
}

type chatService struct {
	ChatDeps
	now func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(deps ChatDeps) ChatService {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.NotifyTimeout <= 0 {
		deps.NotifyTimeout = 5 * time.Second
	}
	if deps.Chat.MaxTextLength <= 0 {
		deps.Chat.MaxTextLength = defaultMaxLength
	}
	if deps.Chat.MaxDuration <= 0 {
		deps.Chat.MaxDuration = 60 * time.Second
	}
	if deps.Chat.MaxSteps <= 0 {
		deps.Chat.MaxSteps = 5
	}
	return &chatService{ChatDeps: deps, now: time.Now}
}

// turnRun 是一次回合在生成阶段需要的全部状态。
type turnRun struct {
	turn        *Turn
	identity    model.Identity
	userMsg     *model.Message
	assistantID string
}

func logState(turnID, chatID string, userID uint, state string, kv ...interface{}) {
	log.Infow("turn state", append([]interface{}{"turnId", turnID, "chatId", chatID, "userId", userID, "state", state}, kv...)...)
}

func (s *chatService) SubmitTurn(ctx context.Context, identity *model.Identity, req *ChatRequest) (*Turn, error) {
	turnID := ulid.Make().String()
	var userID uint
	if identity != nil {
		userID = identity.UserID
	}
	chatID := ""
	if req != nil {
		chatID = req.ID
	}
	failed := func(state string, err *apperr.Error) (*Turn, error) {
		log.Warnw("turn failed", "turnId", turnID, "chatId", chatID, "userId", userID, "state", state, "code", err.Code(), "error", err)
		return nil, err
	}

	logState(turnID, chatID, userID, "Validating")
	if err := s.validate(req); err != nil {
		return failed("Validating", apperr.BadRequest(apperr.ScopeAPI, err))
	}

	logState(turnID, chatID, userID, "Authorizing")
	if identity == nil {
		return failed("Authorizing", apperr.Unauthorized(apperr.ScopeChat))
	}
	entitlement := s.Entitlements.EntitlementFor(string(identity.Type))
	if !containsString(entitlement.AvailableModels, req.SelectedChatModel) {
		return failed("Authorizing", apperr.BadRequest(apperr.ScopeAPI, fmt.Errorf("model %s is not available", req.SelectedChatModel)))
	}

	logState(turnID, chatID, userID, "RateChecking")
	decision, err := s.Quota.CheckAndRecord(ctx, *identity, s.Entitlements.Window(), entitlement.MaxMessagesPerDay, turnID)
	if err != nil {
		return failed("RateChecking", apperr.Internal(apperr.ScopeChat, err))
	}
	if !decision.Allowed {
		return failed("RateChecking", apperr.RateLimit(apperr.ScopeChat))
	}

	logState(turnID, chatID, userID, "Assembling")
	chat, err := s.loadOrCreateChat(ctx, identity, req)
	if err != nil {
		return failed("Assembling", apperr.From(err))
	}
	if chat.UserID != identity.UserID {
		return failed("Assembling", apperr.Forbidden(apperr.ScopeChat))
	}
	userMsg := &model.Message{
		ID:          req.Message.ID,
		Role:        model.RoleUser,
		Parts:       req.Message.Parts,
		Attachments: req.Message.Attachments,
	}
	history, err := s.Assembler.BuildHistory(ctx, chat.ID, userMsg)
	if err != nil {
		return failed("Assembling", apperr.Internal(apperr.ScopeChat, err))
	}

	logState(turnID, chatID, userID, "Persisting", "role", model.RoleUser)
	if err := s.Conversations.AppendMessages(ctx, chat.ID, []*model.Message{userMsg}); err != nil {
		return failed("Persisting", apperr.Internal(apperr.ScopeChat, err))
	}

	streamID := uuid.NewString()
	if err := s.Conversations.CreateStreamSession(ctx, chat.ID, streamID); err != nil {
		return failed("Persisting", apperr.Internal(apperr.ScopeStream, err))
	}

	logState(turnID, chatID, userID, "Generating", "streamId", streamID, "model", req.SelectedChatModel)
	turnCtx := ctx
	if !s.Chat.CancelOnDisconnect {
		// 客户端断开后继续生成，保证助手消息能够落库
		turnCtx = context.WithoutCancel(ctx)
	}
	turnCtx, cancel := context.WithTimeout(turnCtx, s.Chat.MaxDuration)

	activeTools := s.Tools.ActiveTools(req.SelectedChatModel)
	events := s.Loop.Run(turnCtx, generation.Request{
		Variant:      req.SelectedChatModel,
		SystemPrompt: buildSystemPrompt(s.Chat.SystemPrompt, len(activeTools) > 0, req.Hints),
		History:      generation.ToSchemaMessages(history),
		Tools:        activeTools,
		MaxSteps:     s.Chat.MaxSteps,
		Turn:         &tools.TurnContext{Identity: *identity, ChatID: chat.ID},
	})

	run := &turnRun{
		turn:        &Turn{ID: turnID, ChatID: chat.ID, StreamID: streamID, done: make(chan struct{})},
		identity:    *identity,
		userMsg:     userMsg,
		assistantID: uuid.NewString(),
	}
	frames := make(chan []byte, 16)
	go func() {
		defer cancel()
		s.generate(turnCtx, run, events, frames)
	}()
	run.turn.Stream = s.Transport.Open(ctx, streamID, frames)
	return run.turn, nil
}

// generate 消费生成事件并编码为帧。终止帧在助手消息持久化之后才写出。
func (s *chatService) generate(ctx context.Context, run *turnRun, events <-chan generation.Event, frames chan<- []byte) {
	t := run.turn
	frames <- generation.EncodeFrame(generation.FrameStart, map[string]string{
		"turnId":    t.ID,
		"chatId":    t.ChatID,
		"streamId":  t.StreamID,
		"messageId": run.assistantID,
	})

	var final generation.Event
	for ev := range events {
		switch ev.Type {
		case generation.EventFinished, generation.EventFailed:
			final = ev
		default:
			if frame := generation.EncodeEvent(ev); frame != nil {
				frames <- frame
			}
		}
	}

	msg, err := s.settle(ctx, run, final)
	if err != nil {
		ae := apperr.From(err)
		log.Warnw("turn failed", "turnId", t.ID, "chatId", t.ChatID, "userId", run.identity.UserID,
			"state", "Generating", "code", ae.Code(), "error", err)
		frames <- generation.ErrorFrame(ae.Code(), ae.Message())
		close(frames)
		t.err = ae
		close(t.done)
		return
	}
	frames <- generation.FinishFrame(msg.ID, final.Steps, final.Incomplete)
	close(frames)

	logState(t.ID, t.ChatID, run.identity.UserID, "Notifying")
	s.notify(run, msg)

	logState(t.ID, t.ChatID, run.identity.UserID, "Completed", "steps", final.Steps)
	close(t.done)
}

// settle 根据终止事件持久化助手消息。超时的部分内容以 incomplete 标记落库，回合仍然失败。
func (s *chatService) settle(ctx context.Context, run *turnRun, final generation.Event) (*model.Message, error) {
	t := run.turn
	msg := final.Message
	if msg != nil {
		msg.ID = run.assistantID
		msg.Role = model.RoleAssistant
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	switch final.Type {
	case generation.EventFinished:
		if !hasContent(msg) {
			return nil, apperr.GenerationEmpty(apperr.ScopeChat)
		}
		logState(t.ID, t.ChatID, run.identity.UserID, "Persisting", "role", model.RoleAssistant)
		if err := s.Conversations.AppendMessages(persistCtx, t.ChatID, []*model.Message{msg}); err != nil {
			return nil, apperr.Internal(apperr.ScopeChat, err)
		}
		return msg, nil

	case generation.EventFailed:
		if hasContent(msg) {
			msg.Incomplete = true
			if err := s.Conversations.AppendMessages(persistCtx, t.ChatID, []*model.Message{msg}); err != nil {
				log.Errorw("failed to persist partial assistant message", "turnId", t.ID, "chatId", t.ChatID, "error", err)
			} else {
				log.Infow("partial assistant message persisted", "turnId", t.ID, "chatId", t.ChatID, "messageId", msg.ID)
			}
		}
		if final.Timeout {
			return nil, apperr.Timeout(apperr.ScopeChat, final.Err)
		}
		return nil, apperr.Internal(apperr.ScopeChat, final.Err)

	default:
		return nil, apperr.Internal(apperr.ScopeChat, errors.New("generation ended without a terminal event"))
	}
}

func (s *chatService) notify(run *turnRun, msg *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.NotifyTimeout)
	defer cancel()
	n := tasks.TurnNotification{
		TurnID:    run.turn.ID,
		ChatID:    run.turn.ChatID,
		UserID:    run.identity.UserID,
		Message:   run.userMsg.Parts,
		Assistant: msg.Parts,
		Timestamp: s.now(),
	}
	if err := s.Notifier.Deliver(ctx, n); err != nil {
		log.Warnw("turn notification failed", "turnId", run.turn.ID, "chatId", run.turn.ChatID, "error", err)
	}
}

func (s *chatService) loadOrCreateChat(ctx context.Context, identity *model.Identity, req *ChatRequest) (*model.Chat, error) {
	chat, err := s.Conversations.Get(ctx, req.ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}

	chat = &model.Chat{
		ID:         req.ID,
		UserID:     identity.UserID,
		Title:      titleFrom(req.Message.Parts),
		Visibility: req.SelectedVisibilityType,
	}
	err = s.Conversations.Create(ctx, chat)
	if errors.Is(err, repository.ErrConversationExists) {
		// 并发创建：以已存在的记录为准，归属由调用方检查
		return s.Conversations.Get(ctx, req.ID)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	return chat, nil
}

func (s *chatService) ResumeByChat(ctx context.Context, identity *model.Identity, chatID string) (<-chan []byte, error) {
	if chatID == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("missing chat id"))
	}
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeChat)
	}
	if _, err := s.readableChat(ctx, identity, chatID); err != nil {
		return nil, err
	}

	session, err := s.Conversations.LatestStreamSession(ctx, chatID)
	if errors.Is(err, repository.ErrStreamSessionNotFound) {
		return nil, apperr.NotFound(apperr.ScopeStream)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeStream, err)
	}

	frames, err := s.Transport.Resume(ctx, session.ID)
	if err == nil {
		return frames, nil
	}
	if !errors.Is(err, stream.ErrStreamNotFound) {
		return nil, apperr.Internal(apperr.ScopeStream, err)
	}

	// 流已经结束：如果刚生成完助手消息，直接补发这条消息
	last, err := s.Conversations.LastMessage(ctx, chatID)
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	if last == nil || last.Role != model.RoleAssistant || s.now().Sub(last.CreatedAt) > s.Chat.ResumeGrace {
		return nil, nil
	}
	out := make(chan []byte, 1)
	out <- generation.AppendMessageFrame(last)
	close(out)
	return out, nil
}

func (s *chatService) ResumeByStream(ctx context.Context, identity *model.Identity, streamID string) (<-chan []byte, error) {
	if streamID == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("missing stream id"))
	}
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeChat)
	}
	session, err := s.Conversations.GetStreamSession(ctx, streamID)
	if errors.Is(err, repository.ErrStreamSessionNotFound) {
		return nil, apperr.NotFound(apperr.ScopeStream)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeStream, err)
	}
	if _, err := s.readableChat(ctx, identity, session.ChatID); err != nil {
		return nil, err
	}

	frames, err := s.Transport.Resume(ctx, streamID)
	if errors.Is(err, stream.ErrStreamNotFound) {
		return nil, apperr.NotFound(apperr.ScopeStream)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeStream, err)
	}
	return frames, nil
}

// readableChat 返回对身份可见的对话：公开对话任何人可读，私有对话仅所有者可读。
func (s *chatService) readableChat(ctx context.Context, identity *model.Identity, chatID string) (*model.Chat, error) {
	chat, err := s.Conversations.Get(ctx, chatID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperr.NotFound(apperr.ScopeChat)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	if chat.Visibility == model.VisibilityPrivate && chat.UserID != identity.UserID {
		return nil, apperr.Forbidden(apperr.ScopeChat)
	}
	return chat, nil
}

func (s *chatService) validate(req *ChatRequest) error {
	if req == nil {
		return errors.New("empty request")
	}
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return err
	}
	for i, p := range req.Message.Parts {
		if p.Type != model.PartText {
			return fmt.Errorf("message.parts[%d]: unsupported part type %q", i, p.Type)
		}
		if n := utf8.RuneCountInString(p.Text); n == 0 || n > s.Chat.MaxTextLength {
			return fmt.Errorf("message.parts[%d]: text length must be between 1 and %d", i, s.Chat.MaxTextLength)
		}
	}
	for i, a := range req.Message.Attachments {
		if u, err := url.ParseRequestURI(a.URL); err != nil || u.Host == "" {
			return fmt.Errorf("message.attachments[%d]: invalid url", i)
		}
		if a.Name == "" || utf8.RuneCountInString(a.Name) > s.Chat.MaxTextLength {
			return fmt.Errorf("message.attachments[%d]: invalid name", i)
		}
		if !allowedAttachmentTypes[a.ContentType] {
			return fmt.Errorf("message.attachments[%d]: unsupported content type %q", i, a.ContentType)
		}
	}
	return nil
}

// titleFrom 用第一段文本的前若干字符作为对话标题。
func titleFrom(parts []model.Part) string {
	for _, p := range parts {
		text := strings.Join(strings.Fields(p.Text), " ")
		if p.Type != model.PartText || text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxTitleRunes {
			return string([]rune(text)[:maxTitleRunes])
		}
		return text
	}
	return defaultTitle
}

func hasContent(m *model.Message) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Parts {
		if p.Type != model.PartText || strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
