package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/service"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责回合提交与流的恢复。
type ChatHandler struct {
	chatService service.ChatService
	heartbeat   time.Duration
}

// NewChatHandler 创建一个新的 ChatHandler。heartbeat 为 0 时不发送心跳。
func NewChatHandler(chatService service.ChatService, heartbeat time.Duration) *ChatHandler {
	return &ChatHandler{chatService: chatService, heartbeat: heartbeat}
}

// Submit 受理一次回合并以 SSE 流式返回。
func (h *ChatHandler) Submit(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAPI, err))
		return
	}
	if req.Hints == nil {
		req.Hints = hintsFromHeaders(c)
	}

	turn, err := h.chatService.SubmitTurn(c.Request.Context(), middleware.Identity(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("x-stream-id", turn.StreamID)
	h.pump(c, turn.Stream)
}

// ResumeByChat 恢复对话最近一次的流，没有可恢复内容时返回 204。
func (h *ChatHandler) ResumeByChat(c *gin.Context) {
	frames, err := h.chatService.ResumeByChat(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if frames == nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.pump(c, frames)
}

// ResumeByStream 按流 ID 恢复。
func (h *ChatHandler) ResumeByStream(c *gin.Context) {
	frames, err := h.chatService.ResumeByStream(c.Request.Context(), middleware.Identity(c), c.Param("streamId"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.pump(c, frames)
}

// Socket 通过 WebSocket 转发一个流，每个 SSE 帧作为一条文本消息。
func (h *ChatHandler) Socket(c *gin.Context) {
	// 先完成鉴权和查找，失败时还能以普通 HTTP 响应返回错误码。
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	frames, err := h.chatService.ResumeByStream(ctx, middleware.Identity(c), c.Param("streamId"))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 客户端关闭连接时停止转发。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warnf("WebSocket 写入失败: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pump 把帧写入 SSE 响应，空闲时发送注释行作为心跳。
func (h *ChatHandler) pump(c *gin.Context, frames <-chan []byte) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := c.Request.Context()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			c.Writer.Flush()
		case <-tick:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// hintsFromHeaders 从网关注入的请求头中读取地理位置提示。
func hintsFromHeaders(c *gin.Context) *service.RequestHints {
	hints := &service.RequestHints{
		City:    c.GetHeader("X-City"),
		Country: c.GetHeader("X-Country"),
	}
	if v, err := strconv.ParseFloat(c.GetHeader("X-Latitude"), 64); err == nil {
		hints.Latitude = &v
	}
	if v, err := strconv.ParseFloat(c.GetHeader("X-Longitude"), 64); err == nil {
		hints.Longitude = &v
	}
	if hints.City == "" && hints.Country == "" && hints.Latitude == nil && hints.Longitude == nil {
		return nil
	}
	return hints
}
