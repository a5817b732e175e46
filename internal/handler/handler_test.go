package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docweave-go/internal/apperr"
	"docweave-go/internal/model"
	"docweave-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChatService struct {
	mock.Mock
}

func (m *mockChatService) Ask(ctx context.Context, userID, roomID uint, question string) (*service.AskResult, error) {
	args := m.Called(ctx, userID, roomID, question)
	res, _ := args.Get(0).(*service.AskResult)
	return res, args.Error(1)
}

func (m *mockChatService) Messages(ctx context.Context, userID, roomID, beforeID uint, limit int) ([]model.ChatMessage, error) {
	args := m.Called(ctx, userID, roomID, beforeID, limit)
	msgs, _ := args.Get(0).([]model.ChatMessage)
	return msgs, args.Error(1)
}

type mockRoomService struct {
	mock.Mock
}

func (m *mockRoomService) CreateRoom(ctx context.Context, userID uint, file service.UploadedFile) (*model.ChatRoom, *model.Document, error) {
	body, _ := io.ReadAll(file.Content)
	args := m.Called(ctx, userID, file.Name, string(body))
	room, _ := args.Get(0).(*model.ChatRoom)
	doc, _ := args.Get(1).(*model.Document)
	return room, doc, args.Error(2)
}

func (m *mockRoomService) AddDocument(ctx context.Context, userID, roomID uint, file service.UploadedFile) (*model.Document, error) {
	args := m.Called(ctx, userID, roomID, file.Name)
	doc, _ := args.Get(0).(*model.Document)
	return doc, args.Error(1)
}

func (m *mockRoomService) ListRooms(ctx context.Context, userID uint) ([]model.ChatRoom, error) {
	args := m.Called(ctx, userID)
	rooms, _ := args.Get(0).([]model.ChatRoom)
	return rooms, args.Error(1)
}

func (m *mockRoomService) GetRoom(ctx context.Context, userID, roomID uint) (*model.ChatRoom, error) {
	args := m.Called(ctx, userID, roomID)
	room, _ := args.Get(0).(*model.ChatRoom)
	return room, args.Error(1)
}

func (m *mockRoomService) ListDocuments(ctx context.Context, userID, roomID uint) ([]model.Document, error) {
	args := m.Called(ctx, userID, roomID)
	docs, _ := args.Get(0).([]model.Document)
	return docs, args.Error(1)
}

func (m *mockRoomService) DocumentURL(ctx context.Context, userID, roomID, documentID uint) (string, error) {
	args := m.Called(ctx, userID, roomID, documentID)
	return args.String(0), args.Error(1)
}

func (m *mockRoomService) DeleteRoom(ctx context.Context, userID, roomID uint) error {
	return m.Called(ctx, userID, roomID).Error(0)
}

// withUser 模拟认证中间件写入用户 ID。
func withUser(id uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Next()
	}
}

func newTestRouter(rooms service.RoomService, chats service.ChatService, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", withUser(userID))
	RegisterRoomRoutes(api, NewRoomHandler(rooms), NewChatHandler(chats))
	return r
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestAskReturnsAnswer(t *testing.T) {
	chats := &mockChatService{}
	chats.On("Ask", mock.Anything, uint(7), uint(3), "what?").
		Return(&service.AskResult{Question: "what?", Answer: "this"}, nil)
	r := newTestRouter(&mockRoomService{}, chats, 7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/3/ask", strings.NewReader(`{"question":"what?"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, http.StatusOK, env.Code)
	assert.JSONEq(t, `{"question":"what?","answer":"this"}`, string(env.Data))
	chats.AssertExpectations(t)
}

func TestAskErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"guardrail", apperr.GuardrailBlocked(), http.StatusUnprocessableEntity, apperr.CodeGuardrailBlocked},
		{"ai", apperr.AiProcessing(errors.New("upstream 500")), http.StatusBadGateway, apperr.CodeAiService},
		{"not found", apperr.NotFound("房间"), http.StatusNotFound, apperr.CodeNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chats := &mockChatService{}
			chats.On("Ask", mock.Anything, uint(7), uint(3), "q").Return(nil, tc.err)
			r := newTestRouter(&mockRoomService{}, chats, 7)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/3/ask", strings.NewReader(`{"question":"q"}`))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			env := decode(t, w)
			assert.Equal(t, tc.code, env.Code)
			assert.NotContains(t, env.Message, "upstream 500")
		})
	}
}

func TestAskRejectsMissingQuestion(t *testing.T) {
	r := newTestRouter(&mockRoomService{}, &mockChatService{}, 7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/3/ask", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidRoomID(t *testing.T) {
	r := newTestRouter(&mockRoomService{}, &mockChatService{}, 7)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/abc/documents", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRoomMultipart(t *testing.T) {
	rooms := &mockRoomService{}
	rooms.On("CreateRoom", mock.Anything, uint(7), "paper.pdf", "%PDF-1.7").
		Return(&model.ChatRoom{ID: 1, UserID: 7, Title: "paper.pdf"}, &model.Document{ID: 2, RoomID: 1, Status: model.DocumentPending}, nil)
	r := newTestRouter(rooms, &mockChatService{}, 7)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "paper.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Contains(t, string(env.Data), `"status":"PENDING"`)
	rooms.AssertExpectations(t)
}

func TestCreateRoomWithoutFile(t *testing.T) {
	r := newTestRouter(&mockRoomService{}, &mockChatService{}, 7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.CodeFileEmpty, decode(t, w).Code)
}

func TestMessagesPagination(t *testing.T) {
	chats := &mockChatService{}
	chats.On("Messages", mock.Anything, uint(7), uint(3), uint(40), 20).
		Return([]model.ChatMessage{{ID: 39, RoomID: 3, Role: model.RoleAI, Content: "hi"}}, nil)
	r := newTestRouter(&mockRoomService{}, chats, 7)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/3/messages?before=40&limit=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	chats.AssertExpectations(t)
}

func TestDeleteRoom(t *testing.T) {
	rooms := &mockRoomService{}
	rooms.On("DeleteRoom", mock.Anything, uint(7), uint(3)).Return(nil)
	r := newTestRouter(rooms, &mockChatService{}, 7)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/rooms/3", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	rooms.AssertExpectations(t)
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoomRoutes(r.Group("/api/v1"), NewRoomHandler(&mockRoomService{}), NewChatHandler(&mockChatService{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
