package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"docweave-go/internal/apperr"
	"docweave-go/pkg/embedding"
	"docweave-go/pkg/llm"
	"docweave-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

const defaultPromptTemplate = `你是一个严谨的文档问答助手。请只依据【参考资料】回答【用户问题】。
规则：
1. 只能使用参考资料中的信息，不要编造任何内容，也不要使用资料以外的知识。
2. 如果参考资料不足以回答问题，请只回复这句话，不要添加任何其他内容：{{.RefusalPhrase}}
3. 可以参考对话历史理解问题中的指代。

【对话历史】
{{.History}}

【参考资料】
{{.Context}}

【用户问题】
{{.Question}}`

// PromptData 是提示词模板可用的字段。
type PromptData struct {
	History       string
	Context       string
	Question      string
	RefusalPhrase string
}

// AnswerService 生成并校验答案。
type AnswerService interface {
	// Answer 生成答案并做落地校验。校验不通过返回 GuardrailBlocked，其余失败返回 AiProcessing。
	Answer(ctx context.Context, history, contextText, question string) (string, error)
}

type answerService struct {
	llmClient llm.Client
	embedder  embedding.Client
	guardrail *Guardrail
	prompt    *template.Template
	timeout   time.Duration
}

// NewAnswerService 创建一个新的 AnswerService。promptTemplate 为空时使用内置模板。
func NewAnswerService(llmClient llm.Client, embedder embedding.Client, guardrail *Guardrail, promptTemplate string, timeout time.Duration) (AnswerService, error) {
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = defaultPromptTemplate
	}
	tmpl, err := template.New("rag").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("解析提示词模板失败: %w", err)
	}
	return &answerService{
		llmClient: llmClient,
		embedder:  embedder,
		guardrail: guardrail,
		prompt:    tmpl,
		timeout:   timeout,
	}, nil
}

// BuildPrompt 渲染提示词。
func (s *answerService) BuildPrompt(history, contextText, question string) (string, error) {
	var b strings.Builder
	err := s.prompt.Execute(&b, PromptData{
		History:       history,
		Context:       contextText,
		Question:      question,
		RefusalPhrase: s.guardrail.RefusalPhrase(),
	})
	return b.String(), err
}

func (s *answerService) Answer(ctx context.Context, history, contextText, question string) (string, error) {
	prompt, err := s.BuildPrompt(history, contextText, question)
	if err != nil {
		return "", apperr.AiProcessing(fmt.Errorf("渲染提示词失败: %w", err))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		answer     string
		contextVec []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.llmClient.Generate(gctx, llm.UserPrompt(prompt), nil)
		if err != nil {
			return fmt.Errorf("生成答案失败: %w", err)
		}
		answer = out
		return nil
	})
	g.Go(func() error {
		// 空上下文没有可比较的向量，只有拒答短语能通过校验
		if strings.TrimSpace(contextText) == "" {
			return nil
		}
		vec, err := s.embedder.CreateEmbedding(gctx, contextText)
		if err != nil {
			return fmt.Errorf("上下文向量化失败: %w", err)
		}
		contextVec = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("AI 调用超时 (%s): %w", s.timeout, err)
		}
		log.Errorf("[AnswerService] %v", err)
		return "", apperr.AiProcessing(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", apperr.AiProcessing(errors.New("模型返回了空答案"))
	}

	if !s.guardrail.Validate(ctx, contextVec, answer) {
		log.Warnf("[AnswerService] 答案未通过落地校验, question: %s", question)
		return "", apperr.GuardrailBlocked()
	}
	return answer, nil
}
