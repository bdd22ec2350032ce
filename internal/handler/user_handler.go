package handler

import (
	"ride-chat-go/internal/middleware"
	"ride-chat-go/internal/service"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户认证与账户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// credentialsRequest 是注册和登录共用的请求体。
type credentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Guest 创建访客身份并返回 token。
func (h *UserHandler) Guest(c *gin.Context) {
	user, pair, err := h.userService.Guest(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", gin.H{"user": user, "token": pair.AccessToken, "refreshToken": pair.RefreshToken})
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAuth, err))
		return
	}
	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", user)
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAuth, err))
		return
	}
	pair, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Warnf("Login: 用户 '%s' 登录失败", req.Username)
		writeError(c, err)
		return
	}
	success(c, "success", pair)
}

// RefreshToken 处理刷新 token 的请求。
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest(apperr.ScopeAuth, err))
		return
	}
	pair, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "Token refreshed successfully", pair)
}

// Profile 返回当前用户信息。
func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.userService.Profile(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", user)
}

// Usage 返回当前窗口内的配额使用情况。
func (h *UserHandler) Usage(c *gin.Context) {
	usage, err := h.userService.Usage(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "success", usage)
}
