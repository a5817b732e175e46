// Package embedding 封装 OpenAI 兼容的 /embeddings 接口，为子块、问题与答案计算向量。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docweave-go/internal/config"
	"docweave-go/pkg/log"
)

// Client 计算单段文本的向量。
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ErrEmptyEmbedding 表示接口返回了空向量。
var ErrEmptyEmbedding = errors.New("embedding api returned no vector")

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient 创建 Embedding 客户端，请求超时取自 cfg.Timeout。
func NewClient(cfg config.EmbeddingConfig) Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Debugf("[EmbeddingClient] 调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	reqBytes, err := json.Marshal(embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 embedding 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("创建 embedding 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("调用 embedding api 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("解析 embedding 响应失败: %w", err)
	}
	// 只发送了一条输入，取 index 为 0 的结果
	for _, d := range embeddingResp.Data {
		if d.Index != 0 {
			continue
		}
		if len(d.Embedding) == 0 {
			break
		}
		if c.cfg.Dimensions > 0 && len(d.Embedding) != c.cfg.Dimensions {
			return nil, fmt.Errorf("embedding 维度不匹配: 期望 %d, 实际 %d", c.cfg.Dimensions, len(d.Embedding))
		}
		return d.Embedding, nil
	}
	log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
	return nil, ErrEmptyEmbedding
}

// statusError 把非 200 响应转为错误，优先使用 OpenAI 风格的 error.message。
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("embedding api 返回 %s: %s", resp.Status, apiErr.Error.Message)
	}
	return fmt.Errorf("embedding api 返回 %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
