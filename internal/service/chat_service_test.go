package service

import (
	"context"
	"errors"
	"testing"

	"docweave-go/internal/apperr"
	"docweave-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetrieval struct {
	context string
	err     error
	userID  uint
	topK    int
}

func (s *stubRetrieval) Retrieve(_ context.Context, _, userID uint, _ string, topK int) (string, error) {
	s.userID = userID
	s.topK = topK
	return s.context, s.err
}

type stubAnswers struct {
	answer  string
	err     error
	history string
}

func (s *stubAnswers) Answer(_ context.Context, history, _, _ string) (string, error) {
	s.history = history
	return s.answer, s.err
}

func newChatFixture(answers *stubAnswers) (*fakeRooms, *fakeMessages, *stubRetrieval, ChatService) {
	rooms := &fakeRooms{rooms: map[uint]*model.ChatRoom{1: {ID: 1, UserID: 5, Title: "doc.pdf"}}}
	msgs := &fakeMessages{}
	retrieval := &stubRetrieval{context: "ctx"}
	svc := NewChatService(rooms, msgs, retrieval, answers, &recordingNotifier{}, ChatOptions{TopK: 2, HistorySize: 6})
	return rooms, msgs, retrieval, svc
}

func TestAskPersistsQuestionAndAnswer(t *testing.T) {
	answers := &stubAnswers{answer: "the answer"}
	rooms, msgs, retrieval, svc := newChatFixture(answers)

	res, err := svc.Ask(context.Background(), 5, 1, "  what is it?  ")
	require.NoError(t, err)
	assert.Equal(t, "what is it?", res.Question)
	assert.Equal(t, "the answer", res.Answer)

	require.Len(t, msgs.saved, 2)
	assert.Equal(t, model.RoleUser, msgs.saved[0].Role)
	assert.Equal(t, model.RoleAI, msgs.saved[1].Role)
	assert.Equal(t, "the answer", msgs.saved[1].Content)
	assert.Equal(t, uint(5), retrieval.userID)
	assert.Equal(t, 2, retrieval.topK)
	assert.Equal(t, "USER: what is it?", answers.history)
	assert.NotEmpty(t, rooms.touched)
}

func TestAskHistoryKeepsLastSixChronologically(t *testing.T) {
	answers := &stubAnswers{answer: "ok answer"}
	_, msgs, _, svc := newChatFixture(answers)
	for i := 0; i < 4; i++ {
		msgs.saved = append(msgs.saved,
			model.ChatMessage{RoomID: 1, Role: model.RoleUser, Content: "q"},
			model.ChatMessage{RoomID: 1, Role: model.RoleAI, Content: "a"},
		)
	}

	_, err := svc.Ask(context.Background(), 5, 1, "latest")
	require.NoError(t, err)
	assert.Equal(t, "AI: a\nUSER: q\nAI: a\nUSER: q\nAI: a\nUSER: latest", answers.history)
}

func TestAskGuardrailBlockedDoesNotPersistAnswer(t *testing.T) {
	_, msgs, _, svc := newChatFixture(&stubAnswers{err: apperr.GuardrailBlocked()})

	_, err := svc.Ask(context.Background(), 5, 1, "question")
	assert.True(t, apperr.Is(err, apperr.KindGuardrailBlocked))
	require.Len(t, msgs.saved, 1)
	assert.Equal(t, model.RoleUser, msgs.saved[0].Role)
}

func TestAskCollapsesOtherErrors(t *testing.T) {
	answers := &stubAnswers{answer: "unused"}
	_, _, retrieval, svc := newChatFixture(answers)
	retrieval.err = errors.New("es timeout")

	_, err := svc.Ask(context.Background(), 5, 1, "question")
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindAiProcessing, appErr.Kind)
	assert.NotContains(t, appErr.Message, "es timeout")
}

func TestAskUnknownOrForeignRoom(t *testing.T) {
	_, msgs, _, svc := newChatFixture(&stubAnswers{answer: "x"})

	_, err := svc.Ask(context.Background(), 5, 404, "q")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Ask(context.Background(), 6, 1, "q")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, msgs.saved)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	_, _, _, svc := newChatFixture(&stubAnswers{})
	_, err := svc.Ask(context.Background(), 5, 1, "   ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestFormatHistory(t *testing.T) {
	out := FormatHistory([]model.ChatMessage{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAI, Content: "hello"},
	})
	assert.Equal(t, "USER: hi\nAI: hello", out)
	assert.Equal(t, "", FormatHistory(nil))
}
