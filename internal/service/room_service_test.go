package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"docweave-go/internal/apperr"
	"docweave-go/internal/config"
	"docweave-go/internal/model"
	"docweave-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	pushed []tasks.IngestionTask
	err    error
}

func (q *fakeQueue) Push(_ context.Context, task tasks.IngestionTask) error {
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, task)
	return nil
}

type fakeArchive struct {
	put     []string
	removed []string
	putErr  error
}

func (a *fakeArchive) PutFile(_ context.Context, objectName, _, _ string) error {
	if a.putErr != nil {
		return a.putErr
	}
	a.put = append(a.put, objectName)
	return nil
}

func (a *fakeArchive) Remove(_ context.Context, objectName string) error {
	a.removed = append(a.removed, objectName)
	return nil
}

func (a *fakeArchive) PresignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "http://minio.local/" + objectName, nil
}

type roomFixture struct {
	rooms    *fakeRooms
	docs     *fakeDocs
	msgs     *fakeMessages
	vectors  *fakeVectors
	queue    *fakeQueue
	archive  *fakeArchive
	notifier *recordingNotifier
	svc      RoomService
	tempDir  string
}

func newRoomFixture(t *testing.T) *roomFixture {
	f := &roomFixture{
		rooms:    &fakeRooms{},
		docs:     &fakeDocs{},
		msgs:     &fakeMessages{},
		vectors:  &fakeVectors{},
		queue:    &fakeQueue{},
		archive:  &fakeArchive{},
		notifier: &recordingNotifier{},
		tempDir:  t.TempDir(),
	}
	f.svc = NewRoomService(f.rooms, f.docs, f.msgs, f.vectors, f.queue, f.archive, f.notifier, config.UploadConfig{
		TempDir:           f.tempDir,
		MaxSizeBytes:      1024,
		AllowedExtensions: []string{".pdf"},
	})
	return f
}

func pdfUpload(name, body string) UploadedFile {
	return UploadedFile{Name: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestCreateRoomEnqueuesIngestion(t *testing.T) {
	f := newRoomFixture(t)

	room, doc, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("report.pdf", "%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", room.Title)
	assert.Equal(t, uint(7), room.UserID)
	assert.Equal(t, model.DocumentPending, doc.Status)
	assert.Equal(t, room.ID, doc.RoomID)

	require.Len(t, f.queue.pushed, 1)
	task := f.queue.pushed[0]
	assert.Equal(t, room.ID, task.RoomID)
	assert.Equal(t, doc.ID, task.DocumentID)
	assert.Equal(t, "report.pdf", task.OriginalFileName)
	assert.True(t, strings.HasPrefix(task.TempFilePath, f.tempDir))
	assert.True(t, strings.HasSuffix(task.TempFilePath, "_report.pdf"))

	data, err := os.ReadFile(task.TempFilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.Len(t, f.archive.put, 1)
	assert.Equal(t, f.archive.put[0], f.docs.docs[0].ObjectName)

	require.Len(t, f.msgs.saved, 1)
	assert.Contains(t, f.msgs.saved[0].Content, "report.pdf")
	assert.Equal(t, model.RoleAI, f.msgs.saved[0].Role)
}

func TestUploadValidation(t *testing.T) {
	f := newRoomFixture(t)

	cases := []struct {
		name string
		file UploadedFile
		code int
	}{
		{"empty", UploadedFile{Name: "a.pdf", Size: 0, Content: strings.NewReader("")}, apperr.CodeFileEmpty},
		{"extension", pdfUpload("notes.txt", "hello"), apperr.CodeInvalidExtension},
		{"too large", UploadedFile{Name: "big.pdf", Size: 2048, Content: strings.NewReader("x")}, apperr.CodeFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.svc.CreateRoom(context.Background(), 7, tc.file)
			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperr.KindFileHandling, appErr.Kind)
			assert.Equal(t, tc.code, appErr.Code)
		})
	}
	assert.Empty(t, f.queue.pushed)
	assert.Empty(t, f.rooms.rooms)
}

func TestUploadExtensionIsCaseInsensitive(t *testing.T) {
	f := newRoomFixture(t)
	_, _, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("SCAN.PDF", "%PDF"))
	require.NoError(t, err)
}

func TestAddDocumentRequiresOwnership(t *testing.T) {
	f := newRoomFixture(t)
	room, _, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	require.NoError(t, err)

	_, err = f.svc.AddDocument(context.Background(), 8, room.ID, pdfUpload("b.pdf", "%PDF"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	doc, err := f.svc.AddDocument(context.Background(), 7, room.ID, pdfUpload("b.pdf", "%PDF"))
	require.NoError(t, err)
	assert.Equal(t, room.ID, doc.RoomID)
	assert.Len(t, f.queue.pushed, 2)
}

func TestQueueFailureRemovesTempFile(t *testing.T) {
	f := newRoomFixture(t)
	f.queue.err = errors.New("redis down")

	_, _, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.CodeFileUploadFailed, appErr.Code)

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveFailureDoesNotBlockUpload(t *testing.T) {
	f := newRoomFixture(t)
	f.archive.putErr = errors.New("minio down")

	_, doc, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	require.NoError(t, err)
	assert.Empty(t, doc.ObjectName)

	_, err = f.svc.DocumentURL(context.Background(), 7, doc.RoomID, doc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDocumentURL(t *testing.T) {
	f := newRoomFixture(t)
	room, doc, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	require.NoError(t, err)

	url, err := f.svc.DocumentURL(context.Background(), 7, room.ID, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, url, f.archive.put[0])

	_, err = f.svc.DocumentURL(context.Background(), 7, room.ID, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteRoomCascades(t *testing.T) {
	f := newRoomFixture(t)
	room, first, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	require.NoError(t, err)
	second, err := f.svc.AddDocument(context.Background(), 7, room.ID, pdfUpload("b.pdf", "%PDF"))
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.svc.DeleteRoom(context.Background(), 8, room.ID), apperr.KindNotFound))
	assert.Empty(t, f.rooms.deleted)

	require.NoError(t, f.svc.DeleteRoom(context.Background(), 7, room.ID))
	assert.ElementsMatch(t, []uint{first.ID, second.ID}, f.vectors.deleted)
	assert.ElementsMatch(t, f.archive.put, f.archive.removed)
	assert.Equal(t, []uint{room.ID}, f.rooms.deleted)
	assert.Equal(t, []uint{room.ID}, f.msgs.forgotten)
}

func TestListRoomsAndDocuments(t *testing.T) {
	f := newRoomFixture(t)
	room, _, err := f.svc.CreateRoom(context.Background(), 7, pdfUpload("a.pdf", "%PDF"))
	require.NoError(t, err)
	_, _, err = f.svc.CreateRoom(context.Background(), 9, pdfUpload("other.pdf", "%PDF"))
	require.NoError(t, err)

	rooms, err := f.svc.ListRooms(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	docs, err := f.svc.ListDocuments(context.Background(), 7, room.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].FileName)

	_, err = f.svc.ListDocuments(context.Background(), 9, room.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
