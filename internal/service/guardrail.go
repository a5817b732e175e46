package service

import (
	"context"
	"math"
	"unicode/utf8"

	"docweave-go/internal/config"
	"docweave-go/pkg/embedding"
	"docweave-go/pkg/log"
)

// Guardrail 校验生成的答案是否扎根于检索到的上下文。
type Guardrail struct {
	embedder embedding.Client
	cfg      config.GuardrailConfig
}

// NewGuardrail 创建一个新的 Guardrail。
func NewGuardrail(embedder embedding.Client, cfg config.GuardrailConfig) *Guardrail {
	if cfg.RefusalPhrase == "" {
		cfg.RefusalPhrase = config.DefaultRefusalPhrase
	}
	return &Guardrail{embedder: embedder, cfg: cfg}
}

// RefusalPhrase 返回模型在上下文无法回答时应输出的固定短语。
func (g *Guardrail) RefusalPhrase() string {
	return g.cfg.RefusalPhrase
}

// Validate 判断答案是否可信：
// 拒答短语总是通过；过短的答案不通过；其余答案要求与上下文的余弦相似度不低于阈值。
// Embedding 调用失败时按 FailOpen 决定结果。
func (g *Guardrail) Validate(ctx context.Context, contextVec []float32, answer string) bool {
	if answer == g.cfg.RefusalPhrase {
		return true
	}
	if utf8.RuneCountInString(answer) < g.cfg.MinAnswerLength {
		return false
	}

	answerVec, err := g.embedder.CreateEmbedding(ctx, answer)
	if err != nil {
		log.Errorf("[Guardrail] 答案向量化失败, failOpen: %v, error: %v", g.cfg.FailOpen, err)
		return g.cfg.FailOpen
	}

	sim := CosineSimilarity(contextVec, answerVec)
	log.Debugf("[Guardrail] 答案与上下文相似度: %.4f, 阈值: %.2f", sim, g.cfg.Threshold)
	return g.meetsThreshold(sim)
}

func (g *Guardrail) meetsThreshold(sim float64) bool {
	return sim >= g.cfg.Threshold
}

// CosineSimilarity 计算两个向量的余弦相似度。长度不同、为空或任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
