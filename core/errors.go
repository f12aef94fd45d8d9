package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 约定：
//   - 召回通道的错误在编排层被吞掉，降级为空结果，只进入 debug 信息
//   - 值对象构造期的非法配置（负 quota、缺失 user id 等）以 INVALID_INPUT 立即返回
//   - 存储层的 key 不存在用 NOT_FOUND 表达
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "recall", "engine"）
	Err     error  // 底层错误，可为空
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 让 errors.Is 按 Module+Code 匹配哨兵错误。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 包装底层错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetDomainError 获取错误链上的 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// IsDomainError 检查错误链上是否有 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore     = "store"
	ModuleRecall    = "recall"
	ModuleFusion    = "fusion"
	ModuleRerank    = "rerank"
	ModuleRetrieval = "retrieval"
	ModuleEngine    = "engine"
	ModuleCache     = "cache"
)

var (
	// ErrMissingUserID 是唯一会向调用方传播的引擎错误。
	ErrMissingUserID = NewDomainError(ModuleEngine, ErrorCodeInvalidInput, "user id is required")
	// ErrNegativeQuota 表示召回计划中存在负 quota。
	ErrNegativeQuota = NewDomainError(ModuleRecall, ErrorCodeInvalidInput, "quota must be >= 0")
	// ErrMissingSource 表示候选没有来源通道。
	ErrMissingSource = NewDomainError(ModuleRecall, ErrorCodeInvalidInput, "candidate source is required")
	// ErrDocIDMismatch 表示合并两个不同文档的 DocScore。
	ErrDocIDMismatch = NewDomainError(ModuleRetrieval, ErrorCodeInvalidInput, "cannot combine scores of different documents")
	// ErrChannelUnavailable 表示通道被熔断或未注册。
	ErrChannelUnavailable = NewDomainError(ModuleRecall, ErrorCodeUnavailable, "recall channel unavailable")
)

func hasCode(err error, code string) bool {
	if de := GetDomainError(err); de != nil {
		return de.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }
