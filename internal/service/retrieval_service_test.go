package service

import (
	"context"
	"errors"
	"testing"

	"docweave-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(parentID uint) model.ChildChunkHit {
	return model.ChildChunkHit{ChildChunk: model.ChildChunk{ParentID: parentID}}
}

func TestRetrieveJoinsDistinctParentsInHitOrder(t *testing.T) {
	vectors := &fakeVectors{hits: []model.ChildChunkHit{hit(7), hit(3), hit(7)}}
	parents := &fakeParents{chunks: map[uint]model.ParentChunk{
		3: {ID: 3, Content: "parent three"},
		7: {ID: 7, Content: "parent seven"},
	}}
	s := NewRetrievalService(vectors, parents, true)

	ctxText, err := s.Retrieve(context.Background(), 1, 2, "q", 3)
	require.NoError(t, err)

	assert.Equal(t, "parent seven\n\nparent three", ctxText)
	assert.Equal(t, []uint{7, 3}, parents.lastIDs)
	assert.Equal(t, model.ChunkFilter{RoomID: 1, UserID: 2}, vectors.lastFilter)
	assert.Equal(t, 3, vectors.lastTopK)
}

func TestRetrieveNoHitsIsEmptyContext(t *testing.T) {
	parents := &fakeParents{}
	s := NewRetrievalService(&fakeVectors{}, parents, true)

	ctxText, err := s.Retrieve(context.Background(), 1, 2, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "", ctxText)
	assert.Nil(t, parents.lastIDs)
}

func TestRetrieveWithoutUserIsolation(t *testing.T) {
	vectors := &fakeVectors{}
	s := NewRetrievalService(vectors, &fakeParents{}, false)

	_, err := s.Retrieve(context.Background(), 1, 2, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, model.ChunkFilter{RoomID: 1}, vectors.lastFilter)
}

func TestRetrieveSkipsMissingParents(t *testing.T) {
	vectors := &fakeVectors{hits: []model.ChildChunkHit{hit(1), hit(2)}}
	parents := &fakeParents{chunks: map[uint]model.ParentChunk{2: {ID: 2, Content: "only"}}}
	s := NewRetrievalService(vectors, parents, true)

	ctxText, err := s.Retrieve(context.Background(), 1, 2, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "only", ctxText)
}

func TestRetrievePropagatesSearchError(t *testing.T) {
	s := NewRetrievalService(&fakeVectors{err: errors.New("es down")}, &fakeParents{}, true)
	_, err := s.Retrieve(context.Background(), 1, 2, "q", 2)
	assert.Error(t, err)
}
