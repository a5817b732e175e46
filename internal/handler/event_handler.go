package handler

import (
	"context"
	"net/http"
	"time"

	"docweave-go/internal/notify"
	"docweave-go/internal/service"
	"docweave-go/pkg/log"
	"docweave-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// EventHandler 通过 WebSocket 把房间事件（文档状态、新消息）推送给前端。
type EventHandler struct {
	roomService service.RoomService
	subscriber  notify.Subscriber
	jwtManager  *token.JWTManager
}

// NewEventHandler 创建一个新的 EventHandler。
func NewEventHandler(roomService service.RoomService, subscriber notify.Subscriber, jwtManager *token.JWTManager) *EventHandler {
	return &EventHandler{roomService: roomService, subscriber: subscriber, jwtManager: jwtManager}
}

// Handle 处理 /ws/rooms/:roomId?token=xxx。浏览器无法为 WebSocket 设置请求头，令牌从查询参数读取。
func (h *EventHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.roomService.GetRoom(c.Request.Context(), claims.UserID, roomID); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, unsubscribe, err := h.subscriber.Subscribe(ctx, roomID)
	if err != nil {
		log.Error("订阅房间事件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "订阅失败", "data": nil})
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, userId: %d, roomId: %d", claims.UserID, roomID)

	// 客户端不发送业务消息，读循环只用于感知断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warnf("写入 WebSocket 事件失败: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
