// Package pipeline 定义了文档摄取的核心流程：解析、父子切块、向量化入库与状态流转。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"docweave-go/internal/model"
	"docweave-go/internal/notify"
	"docweave-go/internal/repository"
	"docweave-go/pkg/log"
	"docweave-go/pkg/tasks"
	"docweave-go/pkg/tika"

	"gorm.io/gorm"
)

// DocumentParser 把临时文件解析为按页划分的文本。
type DocumentParser interface {
	ParseFile(ctx context.Context, path string) ([]tika.Page, error)
}

const (
	maxErrorMessageLen = 500
	// failTimeout 限制停机时落 FAILED 状态与失败消息的耗时
	failTimeout = 10 * time.Second
)

// ErrInterrupted 表示任务因停机被中断。文档保持 PROCESSING，临时文件保留，
// 由可靠队列恢复后重投。
var ErrInterrupted = errors.New("摄取任务被中断")

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	parser     DocumentParser
	chunker    *Chunker
	roomRepo   repository.RoomRepository
	docRepo    repository.DocumentRepository
	parentRepo repository.ParentChunkRepository
	vectorRepo repository.VectorRepository
	msgRepo    repository.MessageRepository
	notifier   notify.Notifier
	resumable  bool
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	parser DocumentParser,
	chunker *Chunker,
	roomRepo repository.RoomRepository,
	docRepo repository.DocumentRepository,
	parentRepo repository.ParentChunkRepository,
	vectorRepo repository.VectorRepository,
	msgRepo repository.MessageRepository,
	notifier notify.Notifier,
) *Processor {
	if notifier == nil {
		notifier = notify.Noop()
	}
	return &Processor{
		parser:     parser,
		chunker:    chunker,
		roomRepo:   roomRepo,
		docRepo:    docRepo,
		parentRepo: parentRepo,
		vectorRepo: vectorRepo,
		msgRepo:    msgRepo,
		notifier:   notifier,
	}
}

// SetResumable 设置停机中断的任务能否重投。开启后被取消的任务不落 FAILED，
// 只应在队列保留未确认任务时开启。
func (p *Processor) SetResumable(resumable bool) {
	p.resumable = resumable
}

// Process 处理一个摄取任务。处理失败（包括 panic）时文档被置为 FAILED 并在房间内发布失败消息，
// 返回的错误只用于日志。除了可重投的中断任务，临时文件都会被删除。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) (err error) {
	keepTempFile := false
	defer func() {
		if !keepTempFile {
			p.removeTempFile(task.TempFilePath)
		}
	}()

	log.Infof("[Processor] 开始处理文档, documentId: %d, roomId: %d, file: %s", task.DocumentID, task.RoomID, task.OriginalFileName)

	doc, err := p.docRepo.FindByID(ctx, task.DocumentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Processor] 文档不存在, 丢弃任务, documentId: %d", task.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询文档失败: %w", err)
	}

	switch {
	case doc.Status == model.DocumentPending:
		if err := p.docRepo.TransitionStatus(ctx, doc.ID, model.DocumentPending, model.DocumentProcessing, ""); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				log.Warnf("[Processor] 文档已被其他 worker 领取, documentId: %d", doc.ID)
				return nil
			}
			return fmt.Errorf("更新文档状态失败: %w", err)
		}
	case doc.Status == model.DocumentProcessing && task.Attempts > 0:
		// 上一次处理中途崩溃，清理可能残留的半成品后重跑
		log.Warnf("[Processor] 恢复中断的文档处理, documentId: %d, attempts: %d", doc.ID, task.Attempts)
		if err := p.resetPartialOutput(ctx, doc.ID); err != nil {
			return p.fail(ctx, task, err)
		}
	default:
		log.Warnf("[Processor] 文档状态为 %s, 跳过重复任务, documentId: %d", doc.Status, doc.ID)
		return nil
	}
	// 进入 PROCESSING 之后的 panic 同样要落 FAILED，否则文档会一直停在处理中
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Processor] 文档处理发生 panic, documentId: %d, panic: %v\n%s", task.DocumentID, r, debug.Stack())
			err = p.fail(ctx, task, fmt.Errorf("panic: %v", r))
		}
	}()
	p.publishStatus(ctx, task, model.DocumentProcessing, "")

	chunkCount, err := p.ingest(ctx, task)
	if err != nil {
		if ctx.Err() != nil && p.resumable {
			keepTempFile = true
			log.Warnf("[Processor] 处理被停机中断, 文档保持 PROCESSING 等待重投, documentId: %d", doc.ID)
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return p.fail(ctx, task, err)
	}

	if err := p.docRepo.TransitionStatus(ctx, doc.ID, model.DocumentProcessing, model.DocumentCompleted, ""); err != nil {
		return p.fail(ctx, task, err)
	}
	var content string
	if chunkCount == 0 {
		content = fmt.Sprintf("ℹ️ **%s** 中没有提取到任何文本内容，文档已处理完成。", task.OriginalFileName)
	} else {
		content = fmt.Sprintf("✅ **%s** 分析完成，现在可以开始提问了！", task.OriginalFileName)
	}
	p.postSystemMessage(ctx, task.RoomID, content)
	p.publishStatus(ctx, task, model.DocumentCompleted, "")

	log.Infof("[Processor] 文档处理完成, documentId: %d, 子块数: %d", doc.ID, chunkCount)
	return nil
}

// ingest 执行解析、切块与入库，返回写入向量索引的子块数。
func (p *Processor) ingest(ctx context.Context, task tasks.IngestionTask) (int, error) {
	room, err := p.roomRepo.FindByID(ctx, task.RoomID)
	if err != nil {
		return 0, fmt.Errorf("查询房间失败: %w", err)
	}

	log.Infof("[Processor] 步骤1: 解析文件, path: %s", task.TempFilePath)
	pages, err := p.parser.ParseFile(ctx, task.TempFilePath)
	if err != nil {
		return 0, fmt.Errorf("文档解析失败: %w", err)
	}
	if len(pages) == 0 {
		log.Warnf("[Processor] 文档 '%s' 没有提取到文本", task.OriginalFileName)
		return 0, nil
	}
	log.Infof("[Processor] 步骤1: 解析完成, 页数: %d", len(pages))

	log.Infof("[Processor] 步骤2: 父子切块并保存父块")
	var children []model.ChildChunk
	parentCount := 0
	for _, page := range pages {
		for _, parentText := range p.chunker.SplitParent(page.Text) {
			parent := &model.ParentChunk{
				DocumentID:  task.DocumentID,
				OwnerUserID: room.UserID,
				Content:     parentText,
				PageNumber:  page.Number,
			}
			if err := p.parentRepo.Create(ctx, parent); err != nil {
				return 0, fmt.Errorf("保存父块失败: %w", err)
			}
			parentCount++

			for _, childText := range p.chunker.SplitChild(parentText) {
				children = append(children, model.ChildChunk{
					Text:       childText,
					ParentID:   parent.ID,
					DocumentID: task.DocumentID,
					RoomID:     task.RoomID,
					UserID:     room.UserID,
					SourceFile: task.OriginalFileName,
					PageNumber: page.Number,
				})
			}
		}
	}
	log.Infof("[Processor] 步骤2: 切块完成, 父块: %d, 子块: %d", parentCount, len(children))

	log.Infof("[Processor] 步骤3: 向量化并批量写入索引")
	if err := p.vectorRepo.Add(ctx, children); err != nil {
		return 0, fmt.Errorf("写入向量索引失败: %w", err)
	}
	return len(children), nil
}

func (p *Processor) resetPartialOutput(ctx context.Context, documentID uint) error {
	if err := p.vectorRepo.DeleteByDocuments(ctx, []uint{documentID}); err != nil {
		return fmt.Errorf("清理残留子块失败: %w", err)
	}
	if err := p.parentRepo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("清理残留父块失败: %w", err)
	}
	return nil
}

// fail 把文档置为 FAILED。调用方的 ctx 可能已被取消，这里改用独立的超时上下文。
func (p *Processor) fail(ctx context.Context, task tasks.IngestionTask, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	log.Errorf("[Processor] 文档处理失败, documentId: %d, error: %v", task.DocumentID, cause)
	msg := truncate(cause.Error(), maxErrorMessageLen)
	if err := p.docRepo.TransitionStatus(ctx, task.DocumentID, model.DocumentProcessing, model.DocumentFailed, msg); err != nil {
		log.Errorf("[Processor] 无法将文档置为 FAILED, documentId: %d, error: %v", task.DocumentID, err)
	}
	p.postSystemMessage(ctx, task.RoomID, fmt.Sprintf("⚠️ **%s** 处理过程中发生错误。", task.OriginalFileName))
	p.publishStatus(ctx, task, model.DocumentFailed, msg)
	return cause
}

func (p *Processor) postSystemMessage(ctx context.Context, roomID uint, content string) {
	msg := &model.ChatMessage{RoomID: roomID, Role: model.RoleAI, Content: content}
	if err := p.msgRepo.Save(ctx, msg); err != nil {
		log.Errorf("[Processor] 保存系统消息失败, roomId: %d, error: %v", roomID, err)
		return
	}
	_ = p.notifier.Publish(ctx, model.RoomEvent{Type: model.EventMessage, RoomID: roomID, Message: content})
}

func (p *Processor) publishStatus(ctx context.Context, task tasks.IngestionTask, status model.DocumentStatus, message string) {
	err := p.notifier.Publish(ctx, model.RoomEvent{
		Type:       model.EventDocumentStatus,
		RoomID:     task.RoomID,
		DocumentID: task.DocumentID,
		FileName:   task.OriginalFileName,
		Status:     status,
		Message:    message,
	})
	if err != nil {
		log.Warnf("[Processor] 发布状态事件失败, documentId: %d, error: %v", task.DocumentID, err)
	}
}

func (p *Processor) removeTempFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("[Processor] 删除临时文件失败: %s, error: %v", path, err)
	}
}

// truncate 按字符截断，避免截断出非法的 UTF-8。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
