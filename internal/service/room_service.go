package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docweave-go/internal/apperr"
	"docweave-go/internal/config"
	"docweave-go/internal/model"
	"docweave-go/internal/notify"
	"docweave-go/internal/repository"
	"docweave-go/pkg/log"
	"docweave-go/pkg/storage"
	"docweave-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadedFile 是一次上传的文件内容。
type UploadedFile struct {
	Name    string
	Size    int64
	Content io.Reader
}

// TaskQueue 接收摄取任务。
type TaskQueue interface {
	Push(ctx context.Context, task tasks.IngestionTask) error
}

// RoomService 定义了房间与文档管理的接口。
type RoomService interface {
	// CreateRoom 以上传的文件创建一个新房间，房间标题为文件名。
	CreateRoom(ctx context.Context, userID uint, file UploadedFile) (*model.ChatRoom, *model.Document, error)
	AddDocument(ctx context.Context, userID, roomID uint, file UploadedFile) (*model.Document, error)
	ListRooms(ctx context.Context, userID uint) ([]model.ChatRoom, error)
	GetRoom(ctx context.Context, userID, roomID uint) (*model.ChatRoom, error)
	ListDocuments(ctx context.Context, userID, roomID uint) ([]model.Document, error)
	DocumentURL(ctx context.Context, userID, roomID, documentID uint) (string, error)
	// DeleteRoom 删除房间，同时清理向量索引中的子块与归档的原始文件。
	DeleteRoom(ctx context.Context, userID, roomID uint) error
}

type roomService struct {
	roomRepo   repository.RoomRepository
	docRepo    repository.DocumentRepository
	msgRepo    repository.MessageRepository
	vectorRepo repository.VectorRepository
	queue      TaskQueue
	archive    storage.Archive
	notifier   notify.Notifier
	uploadCfg  config.UploadConfig
}

// NewRoomService 创建一个新的 RoomService 实例。
func NewRoomService(
	roomRepo repository.RoomRepository,
	docRepo repository.DocumentRepository,
	msgRepo repository.MessageRepository,
	vectorRepo repository.VectorRepository,
	queue TaskQueue,
	archive storage.Archive,
	notifier notify.Notifier,
	uploadCfg config.UploadConfig,
) RoomService {
	if archive == nil {
		archive = storage.NoopArchive()
	}
	if notifier == nil {
		notifier = notify.Noop()
	}
	return &roomService{
		roomRepo:   roomRepo,
		docRepo:    docRepo,
		msgRepo:    msgRepo,
		vectorRepo: vectorRepo,
		queue:      queue,
		archive:    archive,
		notifier:   notifier,
		uploadCfg:  uploadCfg,
	}
}

func (s *roomService) CreateRoom(ctx context.Context, userID uint, file UploadedFile) (*model.ChatRoom, *model.Document, error) {
	name, err := s.validateFile(file)
	if err != nil {
		return nil, nil, err
	}
	room := &model.ChatRoom{UserID: userID, Title: name, LastActiveAt: time.Now()}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, nil, fmt.Errorf("创建房间失败: %w", err)
	}
	log.Infof("[RoomService] 房间已创建, roomId: %d, userId: %d", room.ID, userID)

	doc, err := s.ingest(ctx, room, name, file)
	if err != nil {
		return nil, nil, err
	}
	return room, doc, nil
}

func (s *roomService) AddDocument(ctx context.Context, userID, roomID uint, file UploadedFile) (*model.Document, error) {
	name, err := s.validateFile(file)
	if err != nil {
		return nil, err
	}
	room, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, room, name, file)
}

// ingest 保存临时文件、登记文档并投递摄取任务。
func (s *roomService) ingest(ctx context.Context, room *model.ChatRoom, name string, file UploadedFile) (*model.Document, error) {
	tempPath, err := s.saveTempFile(name, file.Content)
	if err != nil {
		return nil, apperr.FileHandling(apperr.CodeFileUploadFailed, "文件保存失败", err)
	}

	objectName := fmt.Sprintf("rooms/%d/%s", room.ID, filepath.Base(tempPath))
	if err := s.archive.PutFile(ctx, objectName, tempPath, "application/pdf"); err != nil {
		// 归档失败不影响问答，只是无法下载原件
		log.Warnf("[RoomService] 归档原始文件失败, object: %s, error: %v", objectName, err)
		objectName = ""
	}

	doc := &model.Document{RoomID: room.ID, FileName: name, Status: model.DocumentPending, ObjectName: objectName}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		_ = os.Remove(tempPath)
		return nil, apperr.FileHandling(apperr.CodeFileUploadFailed, "文档登记失败", err)
	}

	task := tasks.IngestionTask{
		RoomID:           room.ID,
		DocumentID:       doc.ID,
		TempFilePath:     tempPath,
		OriginalFileName: name,
	}
	if err := s.queue.Push(ctx, task); err != nil {
		_ = os.Remove(tempPath)
		return nil, apperr.FileHandling(apperr.CodeFileUploadFailed, "提交解析任务失败", err)
	}

	content := fmt.Sprintf("📎 **%s** 已开始分析。", name)
	if err := s.msgRepo.Save(ctx, &model.ChatMessage{RoomID: room.ID, Role: model.RoleAI, Content: content}); err != nil {
		log.Warnf("[RoomService] 保存系统消息失败, roomId: %d, error: %v", room.ID, err)
	} else {
		_ = s.notifier.Publish(ctx, model.RoomEvent{Type: model.EventMessage, RoomID: room.ID, Message: content})
	}
	return doc, nil
}

func (s *roomService) ListRooms(ctx context.Context, userID uint) ([]model.ChatRoom, error) {
	return s.roomRepo.FindByUser(ctx, userID)
}

func (s *roomService) GetRoom(ctx context.Context, userID, roomID uint) (*model.ChatRoom, error) {
	return findOwnedRoom(ctx, s.roomRepo, userID, roomID)
}

func (s *roomService) ListDocuments(ctx context.Context, userID, roomID uint) ([]model.Document, error) {
	if _, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID); err != nil {
		return nil, err
	}
	return s.docRepo.FindByRoom(ctx, roomID)
}

func (s *roomService) DocumentURL(ctx context.Context, userID, roomID, documentID uint) (string, error) {
	if _, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID); err != nil {
		return "", err
	}
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && doc.RoomID != roomID) {
		return "", apperr.NotFound("文档")
	}
	if err != nil {
		return "", err
	}
	if doc.ObjectName == "" {
		return "", apperr.NotFound("文档原件")
	}
	return s.archive.PresignedURL(ctx, doc.ObjectName, time.Hour)
}

func (s *roomService) DeleteRoom(ctx context.Context, userID, roomID uint) error {
	if _, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID); err != nil {
		return err
	}
	docs, err := s.docRepo.FindByRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("查询房间文档失败: %w", err)
	}

	ids := make([]uint, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	// 先删子块，避免留下指向已删除父块的索引数据
	if err := s.vectorRepo.DeleteByDocuments(ctx, ids); err != nil {
		return fmt.Errorf("删除向量索引失败: %w", err)
	}
	for _, d := range docs {
		if d.ObjectName == "" {
			continue
		}
		if err := s.archive.Remove(ctx, d.ObjectName); err != nil {
			log.Warnf("[RoomService] 删除归档文件失败, object: %s, error: %v", d.ObjectName, err)
		}
	}
	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		return fmt.Errorf("删除房间失败: %w", err)
	}
	if err := s.msgRepo.ForgetRoom(ctx, roomID); err != nil {
		log.Warnf("[RoomService] 清除历史缓存失败, roomId: %d, error: %v", roomID, err)
	}
	log.Infof("[RoomService] 房间已删除, roomId: %d, 文档数: %d", roomID, len(docs))
	return nil
}

// validateFile 校验上传文件并返回清理后的文件名。
func (s *roomService) validateFile(file UploadedFile) (string, error) {
	if file.Content == nil || file.Size <= 0 {
		return "", apperr.FileHandling(apperr.CodeFileEmpty, "上传的文件为空", nil)
	}
	name := filepath.Base(strings.TrimSpace(file.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", apperr.FileHandling(apperr.CodeInvalidExtension, "文件名无效", nil)
	}
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, a := range s.uploadCfg.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", apperr.FileHandling(apperr.CodeInvalidExtension, fmt.Sprintf("不支持的文件类型: %s", ext), nil)
	}
	if s.uploadCfg.MaxSizeBytes > 0 && file.Size > s.uploadCfg.MaxSizeBytes {
		return "", apperr.FileHandling(apperr.CodeFileTooLarge, "文件大小超过限制", nil)
	}
	return name, nil
}

func (s *roomService) saveTempFile(name string, content io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadCfg.TempDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadCfg.TempDir, uuid.NewString()+"_"+name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// findOwnedRoom 查找属于 userID 的房间。不存在或不属于该用户时都返回 NotFound。
func findOwnedRoom(ctx context.Context, repo repository.RoomRepository, userID, roomID uint) (*model.ChatRoom, error) {
	room, err := repo.FindByID(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("房间")
	}
	if err != nil {
		return nil, fmt.Errorf("查询房间失败: %w", err)
	}
	if room.UserID != userID {
		return nil, apperr.NotFound("房间")
	}
	return room, nil
}
