package handler

import "github.com/gin-gonic/gin"

// RegisterRoomRoutes 在 group 下注册房间、文档与问答路由。认证中间件由调用方挂在 group 上。
func RegisterRoomRoutes(group *gin.RouterGroup, rooms *RoomHandler, chats *ChatHandler) {
	r := group.Group("/rooms")
	{
		r.POST("", rooms.CreateRoom)
		r.GET("", rooms.ListRooms)
		r.DELETE("/:roomId", rooms.DeleteRoom)
		r.POST("/:roomId/documents", rooms.AddDocument)
		r.GET("/:roomId/documents", rooms.ListDocuments)
		r.GET("/:roomId/documents/:documentId/download", rooms.DownloadURL)
		r.POST("/:roomId/ask", chats.Ask)
		r.GET("/:roomId/messages", chats.Messages)
	}
}
