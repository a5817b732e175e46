package service

import (
	"context"
	"sync"
	"time"

	"docweave-go/internal/model"
	"docweave-go/pkg/llm"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// mapEmbedder 按文本返回预设向量，未预设的文本返回 err 或默认向量。
type mapEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   []string
}

func (e *mapEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0, 0}, nil
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	args := m.Called(ctx, messages, gen)
	return args.String(0), args.Error(1)
}

// slowLLM 阻塞直到 ctx 结束。
type slowLLM struct{}

func (slowLLM) Generate(ctx context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeVectors struct {
	hits       []model.ChildChunkHit
	err        error
	lastFilter model.ChunkFilter
	lastTopK   int
	deleted    []uint
}

func (f *fakeVectors) Add(context.Context, []model.ChildChunk) error { return nil }
func (f *fakeVectors) Search(_ context.Context, _ string, filter model.ChunkFilter, topK int) ([]model.ChildChunkHit, error) {
	f.lastFilter = filter
	f.lastTopK = topK
	return f.hits, f.err
}
func (f *fakeVectors) DeleteByDocuments(_ context.Context, ids []uint) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeParents struct {
	chunks  map[uint]model.ParentChunk
	lastIDs []uint
}

func (f *fakeParents) Create(context.Context, *model.ParentChunk) error { return nil }
func (f *fakeParents) FindByIDs(_ context.Context, ids []uint) ([]model.ParentChunk, error) {
	f.lastIDs = ids
	var out []model.ParentChunk
	// 故意倒序返回，验证调用方按命中顺序拼接
	for i := len(ids) - 1; i >= 0; i-- {
		if c, ok := f.chunks[ids[i]]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeParents) CountByDocument(context.Context, uint) (int64, error) { return 0, nil }
func (f *fakeParents) DeleteByDocument(context.Context, uint) error         { return nil }

type fakeRooms struct {
	rooms   map[uint]*model.ChatRoom
	touched []uint
	deleted []uint
	nextID  uint
}

func (f *fakeRooms) Create(_ context.Context, room *model.ChatRoom) error {
	f.nextID++
	room.ID = f.nextID
	if f.rooms == nil {
		f.rooms = map[uint]*model.ChatRoom{}
	}
	f.rooms[room.ID] = room
	return nil
}
func (f *fakeRooms) FindByID(_ context.Context, id uint) (*model.ChatRoom, error) {
	if r, ok := f.rooms[id]; ok {
		return r, nil
	}
	return nil, errRecordNotFound
}
func (f *fakeRooms) FindByUser(_ context.Context, userID uint) ([]model.ChatRoom, error) {
	var out []model.ChatRoom
	for _, r := range f.rooms {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}
func (f *fakeRooms) TouchLastActive(_ context.Context, id uint, _ time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}
func (f *fakeRooms) Delete(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	delete(f.rooms, id)
	return nil
}

type fakeMessages struct {
	saved     []model.ChatMessage
	forgotten []uint
}

func (f *fakeMessages) Save(_ context.Context, msg *model.ChatMessage) error {
	msg.ID = uint(len(f.saved) + 1)
	f.saved = append(f.saved, *msg)
	return nil
}
func (f *fakeMessages) FindRecent(_ context.Context, roomID uint, limit int) ([]model.ChatMessage, error) {
	var inRoom []model.ChatMessage
	for _, m := range f.saved {
		if m.RoomID == roomID {
			inRoom = append(inRoom, m)
		}
	}
	if len(inRoom) > limit {
		inRoom = inRoom[len(inRoom)-limit:]
	}
	return inRoom, nil
}
func (f *fakeMessages) ForgetRoom(_ context.Context, roomID uint) error {
	f.forgotten = append(f.forgotten, roomID)
	return nil
}
func (f *fakeMessages) FindPage(context.Context, uint, uint, int) ([]model.ChatMessage, error) {
	return f.saved, nil
}

type fakeDocs struct {
	docs   []model.Document
	nextID uint
}

func (f *fakeDocs) Create(_ context.Context, doc *model.Document) error {
	f.nextID++
	doc.ID = f.nextID
	if doc.Status == "" {
		doc.Status = model.DocumentPending
	}
	f.docs = append(f.docs, *doc)
	return nil
}
func (f *fakeDocs) FindByID(_ context.Context, id uint) (*model.Document, error) {
	for _, d := range f.docs {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, errRecordNotFound
}
func (f *fakeDocs) FindByRoom(_ context.Context, roomID uint) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.RoomID == roomID {
			out = append(out, d)
		}
	}
	return out, nil
}
func (f *fakeDocs) TransitionStatus(context.Context, uint, model.DocumentStatus, model.DocumentStatus, string) error {
	return nil
}

type recordingNotifier struct {
	events []model.RoomEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev model.RoomEvent) error {
	n.events = append(n.events, ev)
	return nil
}

var errRecordNotFound = gorm.ErrRecordNotFound
