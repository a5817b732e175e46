package handler

import (
	"strconv"

	"docweave-go/internal/apperr"
	"docweave-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责房间内的问答请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// AskRequest 是提问请求体。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask 在房间内提问并同步返回答案。
func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.InvalidInput("问题不能为空"))
		return
	}

	res, err := h.chatService.Ask(c.Request.Context(), userID, roomID, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", res)
}

// Messages 分页返回房间消息，before 为上一页最早一条消息的 id。
func (h *ChatHandler) Messages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	before, _ := strconv.ParseUint(c.DefaultQuery("before", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.chatService.Messages(c.Request.Context(), userID, roomID, uint(before), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取消息成功", msgs)
}
