package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"docweave-go/internal/config"
	"docweave-go/internal/model"
	"docweave-go/pkg/embedding"
	"docweave-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/sync/errgroup"
)

// VectorRepository 是子块向量索引的读写接口。
type VectorRepository interface {
	// Add 为缺少向量的子块计算 embedding，并以一次 bulk 请求写入索引。
	Add(ctx context.Context, chunks []model.ChildChunk) error
	// Search 对 query 做向量化后执行 kNN 检索，按相似度降序返回至多 topK 个命中。
	Search(ctx context.Context, query string, filter model.ChunkFilter, topK int) ([]model.ChildChunkHit, error)
	DeleteByDocuments(ctx context.Context, documentIDs []uint) error
}

type esVectorRepository struct {
	client      *elasticsearch.Client
	embedder    embedding.Client
	index       string
	concurrency int
}

// NewVectorRepository 创建一个基于 Elasticsearch dense_vector 的 VectorRepository。
func NewVectorRepository(client *elasticsearch.Client, embedder embedding.Client, cfg config.ElasticsearchConfig) VectorRepository {
	concurrency := cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &esVectorRepository{client: client, embedder: embedder, index: cfg.IndexName, concurrency: concurrency}
}

func (r *esVectorRepository) Add(ctx context.Context, chunks []model.ChildChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range chunks {
		if len(chunks[i].Vector) > 0 {
			continue
		}
		i := i
		g.Go(func() error {
			vec, err := r.embedder.CreateEmbedding(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("子块向量化失败 (parent %d): %w", chunks[i].ParentID, err)
			}
			chunks[i].Vector = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, c := range chunks {
		if err := enc.Encode(map[string]interface{}{"index": map[string]string{"_index": r.index}}); err != nil {
			return err
		}
		if err := enc.Encode(c); err != nil {
			return err
		}
	}

	res, err := r.client.Bulk(
		bytes.NewReader(body.Bytes()),
		r.client.Bulk.WithContext(ctx),
		r.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk 写入子块失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk 写入子块失败: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					return fmt.Errorf("bulk 写入部分失败: %s: %s", result.Error.Type, result.Error.Reason)
				}
			}
		}
		return errors.New("bulk 写入部分失败")
	}
	log.Infof("[VectorRepository] 已写入 %d 个子块到索引 %s", len(chunks), r.index)
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64          `json:"_score"`
			Source model.ChildChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *esVectorRepository) Search(ctx context.Context, query string, filter model.ChunkFilter, topK int) ([]model.ChildChunkHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := r.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("问题向量化失败: %w", err)
	}

	numCandidates := topK * 10
	if numCandidates < 50 {
		numCandidates = 50
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vec,
		"k":              topK,
		"num_candidates": numCandidates,
	}
	if terms := filterTerms(filter); len(terms) > 0 {
		knn["filter"] = terms
	}
	payload, err := json.Marshal(map[string]interface{}{
		"size":    topK,
		"knn":     knn,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	})
	if err != nil {
		return nil, err
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("向量检索失败: [%d] %s", res.StatusCode, string(b))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}
	hits := make([]model.ChildChunkHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, model.ChildChunkHit{ChildChunk: h.Source, Score: h.Score})
	}
	return hits, nil
}

func filterTerms(filter model.ChunkFilter) []map[string]interface{} {
	var terms []map[string]interface{}
	if filter.RoomID != 0 {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"room_id": filter.RoomID}})
	}
	if filter.UserID != 0 {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"user_id": filter.UserID}})
	}
	return terms
}

func (r *esVectorRepository) DeleteByDocuments(ctx context.Context, documentIDs []uint) error {
	if len(documentIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"terms": map[string]interface{}{"document_id": documentIDs}},
	})
	if err != nil {
		return err
	}
	res, err := r.client.DeleteByQuery(
		[]string{r.index},
		strings.NewReader(string(payload)),
		r.client.DeleteByQuery.WithContext(ctx),
		r.client.DeleteByQuery.WithConflicts("proceed"),
		r.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("删除子块失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("删除子块失败: %s", res.String())
	}
	return nil
}
