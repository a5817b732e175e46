package handler

import (
	"docweave-go/internal/apperr"
	"docweave-go/internal/service"

	"github.com/gin-gonic/gin"
)

// RoomHandler 负责房间与文档相关的 API 请求。
type RoomHandler struct {
	roomService service.RoomService
}

// NewRoomHandler 创建一个新的 RoomHandler 实例。
func NewRoomHandler(roomService service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoom 上传第一个文件并创建房间。表单字段为 file。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	upload, closeFn, err := uploadedFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeFn()

	room, doc, err := h.roomService.CreateRoom(c.Request.Context(), userID, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "房间创建成功，文档已开始分析", gin.H{"room": room, "document": doc})
}

// AddDocument 向已有房间追加文件。
func (h *RoomHandler) AddDocument(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	upload, closeFn, err := uploadedFile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeFn()

	doc, err := h.roomService.AddDocument(c.Request.Context(), userID, roomID, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文档已开始分析", doc)
}

// ListRooms 按最近活跃时间倒序返回当前用户的房间。
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rooms, err := h.roomService.ListRooms(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取房间列表成功", rooms)
}

// ListDocuments 返回房间内的文档及其处理状态。
func (h *RoomHandler) ListDocuments(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	docs, err := h.roomService.ListDocuments(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取文档列表成功", docs)
}

// DownloadURL 返回原始文件的预签名下载地址。
func (h *RoomHandler) DownloadURL(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	docID, err := uintParam(c, "documentId")
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := h.roomService.DocumentURL(c.Request.Context(), userID, roomID, docID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件下载链接生成成功", gin.H{"downloadUrl": url})
}

// DeleteRoom 删除房间及其全部文档、消息和索引数据。
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := uintParam(c, "roomId")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.roomService.DeleteRoom(c.Request.Context(), userID, roomID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "房间已删除", nil)
}

func uploadedFile(c *gin.Context) (service.UploadedFile, func(), error) {
	header, err := c.FormFile("file")
	if err != nil {
		return service.UploadedFile{}, nil, apperr.FileHandling(apperr.CodeFileEmpty, "请选择要上传的文件", err)
	}
	f, err := header.Open()
	if err != nil {
		return service.UploadedFile{}, nil, apperr.FileHandling(apperr.CodeFileUploadFailed, "读取上传文件失败", err)
	}
	return service.UploadedFile{Name: header.Filename, Size: header.Size, Content: f}, func() { _ = f.Close() }, nil
}
