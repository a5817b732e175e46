// Package apperr 定义了业务错误分类，handler 据此映射 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误的分类。
type Kind string

const (
	KindFileHandling     Kind = "FILE_HANDLING"
	KindAiProcessing     Kind = "AI_PROCESSING"
	KindGuardrailBlocked Kind = "GUARDRAIL_BLOCKED"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidInput     Kind = "INVALID_INPUT"
)

// Error 是带分类和对外提示信息的业务错误，Err 保存内部原因（仅用于日志）。
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回该错误对应的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindFileHandling, KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindGuardrailBlocked:
		return http.StatusUnprocessableEntity
	case KindAiProcessing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 错误码按编号段划分：1xxxx 参数，2xxxx 文件，3xxxx AI，4xxxx 资源。
const (
	CodeInvalidInput     = 10001
	CodeFileEmpty        = 20000
	CodeFileUploadFailed = 20001
	CodeInvalidExtension = 20002
	CodeFileTooLarge     = 20003
	CodeAiService        = 30000
	CodeDocumentParsing  = 30002
	CodeGuardrailBlocked = 30003
	CodeNotFound         = 40000
)

// FileHandling 构造文件处理错误（空文件、类型不支持、解析失败等）。
func FileHandling(code int, message string, err error) *Error {
	return &Error{Kind: KindFileHandling, Code: code, Message: message, Err: err}
}

// AiProcessing 构造 AI 处理错误，内部原因不会暴露给调用方。
func AiProcessing(err error) *Error {
	return &Error{Kind: KindAiProcessing, Code: CodeAiService, Message: "AI 模型调用过程中发生错误", Err: err}
}

// GuardrailBlocked 构造答案未通过落地校验的错误。
func GuardrailBlocked() *Error {
	return &Error{Kind: KindGuardrailBlocked, Code: CodeGuardrailBlocked, Message: "AI 回答未达到可信度要求，已被拦截"}
}

// NotFound 构造资源不存在错误。
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: what + " 不存在"}
}

// InvalidInput 构造请求参数错误。
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, Message: message}
}

// Is 报告 err 链中是否存在指定分类的业务错误。
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
