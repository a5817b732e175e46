package service

import (
	"context"
	"fmt"
	"strings"

	"docweave-go/internal/model"
	"docweave-go/internal/repository"
	"docweave-go/pkg/log"
)

// RetrievalService 根据问题检索房间内的上下文。
type RetrievalService interface {
	// Retrieve 返回拼接好的父块上下文；没有命中时返回空字符串。
	Retrieve(ctx context.Context, roomID, userID uint, question string, topK int) (string, error)
}

type retrievalService struct {
	vectorRepo    repository.VectorRepository
	parentRepo    repository.ParentChunkRepository
	userIsolation bool
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(vectorRepo repository.VectorRepository, parentRepo repository.ParentChunkRepository, userIsolation bool) RetrievalService {
	return &retrievalService{vectorRepo: vectorRepo, parentRepo: parentRepo, userIsolation: userIsolation}
}

func (s *retrievalService) Retrieve(ctx context.Context, roomID, userID uint, question string, topK int) (string, error) {
	filter := model.ChunkFilter{RoomID: roomID}
	if s.userIsolation {
		filter.UserID = userID
	}
	hits, err := s.vectorRepo.Search(ctx, question, filter, topK)
	if err != nil {
		return "", fmt.Errorf("检索子块失败: %w", err)
	}
	if len(hits) == 0 {
		log.Infof("[Retrieval] 房间 %d 没有相关子块", roomID)
		return "", nil
	}

	// 按首次命中的顺序去重
	seen := make(map[uint]bool, len(hits))
	var parentIDs []uint
	for _, h := range hits {
		if h.ParentID == 0 || seen[h.ParentID] {
			continue
		}
		seen[h.ParentID] = true
		parentIDs = append(parentIDs, h.ParentID)
	}

	parents, err := s.parentRepo.FindByIDs(ctx, parentIDs)
	if err != nil {
		return "", fmt.Errorf("加载父块失败: %w", err)
	}
	byID := make(map[uint]string, len(parents))
	for _, p := range parents {
		byID[p.ID] = p.Content
	}

	parts := make([]string, 0, len(parentIDs))
	for _, id := range parentIDs {
		if content, ok := byID[id]; ok {
			parts = append(parts, content)
		} else {
			log.Warnf("[Retrieval] 子块引用的父块不存在, parentId: %d", id)
		}
	}
	log.Infof("[Retrieval] 命中子块 %d 个, 父块 %d 个", len(hits), len(parts))
	return strings.Join(parts, "\n\n"), nil
}
