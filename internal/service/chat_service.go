// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docweave-go/internal/apperr"
	"docweave-go/internal/model"
	"docweave-go/internal/notify"
	"docweave-go/internal/repository"
	"docweave-go/pkg/log"
)

// AskResult 是一次问答的结果。
type AskResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ChatService 定义了房间问答的接口。
type ChatService interface {
	Ask(ctx context.Context, userID, roomID uint, question string) (*AskResult, error)
	Messages(ctx context.Context, userID, roomID, beforeID uint, limit int) ([]model.ChatMessage, error)
}

// ChatOptions 控制检索与历史窗口大小。
type ChatOptions struct {
	TopK        int
	HistorySize int
}

type chatService struct {
	roomRepo  repository.RoomRepository
	msgRepo   repository.MessageRepository
	retrieval RetrievalService
	answers   AnswerService
	notifier  notify.Notifier
	opts      ChatOptions
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	retrieval RetrievalService,
	answers AnswerService,
	notifier notify.Notifier,
	opts ChatOptions,
) ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 6
	}
	if notifier == nil {
		notifier = notify.Noop()
	}
	return &chatService{
		roomRepo:  roomRepo,
		msgRepo:   msgRepo,
		retrieval: retrieval,
		answers:   answers,
		notifier:  notifier,
		opts:      opts,
	}
}

// Ask 在房间内提问。问题会先落库；答案只有在通过落地校验后才会保存。
func (s *chatService) Ask(ctx context.Context, userID, roomID uint, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.InvalidInput("问题不能为空")
	}

	room, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, room.ID)

	if err := s.saveMessage(ctx, room.ID, model.RoleUser, question); err != nil {
		return nil, apperr.AiProcessing(fmt.Errorf("保存用户问题失败: %w", err))
	}

	start := time.Now()
	answer, err := s.answer(ctx, room, question)
	if err != nil {
		if apperr.Is(err, apperr.KindGuardrailBlocked) || apperr.Is(err, apperr.KindAiProcessing) {
			return nil, err
		}
		log.Errorf("[ChatService] 问答流程失败, roomId: %d, error: %v", room.ID, err)
		return nil, apperr.AiProcessing(err)
	}
	log.Infof("[ChatService] 问答完成, roomId: %d, 耗时: %s", room.ID, time.Since(start))

	if err := s.saveMessage(ctx, room.ID, model.RoleAI, answer); err != nil {
		return nil, apperr.AiProcessing(fmt.Errorf("保存答案失败: %w", err))
	}
	s.touch(ctx, room.ID)

	return &AskResult{Question: question, Answer: answer}, nil
}

func (s *chatService) answer(ctx context.Context, room *model.ChatRoom, question string) (string, error) {
	history, err := s.msgRepo.FindRecent(ctx, room.ID, s.opts.HistorySize)
	if err != nil {
		return "", fmt.Errorf("加载对话历史失败: %w", err)
	}

	contextText, err := s.retrieval.Retrieve(ctx, room.ID, room.UserID, question, s.opts.TopK)
	if err != nil {
		return "", err
	}
	return s.answers.Answer(ctx, FormatHistory(history), contextText, question)
}

// Messages 从新到旧逐页返回房间消息，页内按时间正序排列。
func (s *chatService) Messages(ctx context.Context, userID, roomID, beforeID uint, limit int) ([]model.ChatMessage, error) {
	if _, err := findOwnedRoom(ctx, s.roomRepo, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.msgRepo.FindPage(ctx, roomID, beforeID, limit)
}

func (s *chatService) saveMessage(ctx context.Context, roomID uint, role model.MessageRole, content string) error {
	msg := &model.ChatMessage{RoomID: roomID, Role: role, Content: content}
	if err := s.msgRepo.Save(ctx, msg); err != nil {
		return err
	}
	_ = s.notifier.Publish(ctx, model.RoomEvent{Type: model.EventMessage, RoomID: roomID, Message: content})
	return nil
}

func (s *chatService) touch(ctx context.Context, roomID uint) {
	if err := s.roomRepo.TouchLastActive(ctx, roomID, time.Now()); err != nil {
		log.Warnf("[ChatService] 更新房间活跃时间失败, roomId: %d, error: %v", roomID, err)
	}
}

// FormatHistory 把消息格式化为 "ROLE: content"，每行一条。
func FormatHistory(msgs []model.ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
