package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message），可选包装底层错误（Err）
//   - 支持错误检查函数（IsXXX），对 fmt.Errorf("%w") 包装后的错误同样有效
//
// 错误分类（按影响范围）：
//   - CANDIDATE_FETCH_FAILED：存储不可达，终止该用户本次运行，旧缓存保持不动
//   - SCORING_FAILED：单条候选打分失败，丢弃该候选
//   - FEEDBACK_LOOKUP_FAILED：单条反馈查询失败，按 0 处理
//   - CACHE_WRITE_FAILED：缓存写入失败，触发备份恢复，仅告警
//   - EMPTY_RESULT：选择后为空，合法终态
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "SCORING_FAILED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "rank", "cache"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 判等，便于对哨兵错误使用 errors.Is。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否包含 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装了底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 排序引擎错误代码
	ErrorCodeCandidateFetch = "CANDIDATE_FETCH_FAILED"
	ErrorCodeScoring        = "SCORING_FAILED"
	ErrorCodeFeedbackLookup = "FEEDBACK_LOOKUP_FAILED"
	ErrorCodeCacheWrite     = "CACHE_WRITE_FAILED"
	ErrorCodeEmptyResult    = "EMPTY_RESULT"
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleRecall   = "recall"   // 候选获取
	ModuleRank     = "rank"     // 打分
	ModuleFeedback = "feedback" // 反馈分
	ModuleVector   = "vector"   // 向量
	ModuleCache    = "cache"    // 缓存管理
	ModuleEngine   = "engine"   // 批处理引擎
)

// 通用错误检查函数

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsCandidateFetchFailure 检查错误是否为候选获取失败（用户级）
func IsCandidateFetchFailure(err error) bool { return hasCode(err, ErrorCodeCandidateFetch) }

// IsScoringFailure 检查错误是否为单条打分失败
func IsScoringFailure(err error) bool { return hasCode(err, ErrorCodeScoring) }

// IsFeedbackLookupFailure 检查错误是否为反馈查询失败
func IsFeedbackLookupFailure(err error) bool { return hasCode(err, ErrorCodeFeedbackLookup) }

// IsCacheWriteFailure 检查错误是否为缓存写入失败
func IsCacheWriteFailure(err error) bool { return hasCode(err, ErrorCodeCacheWrite) }

// CandidateFetchError 包装候选获取阶段的错误
func CandidateFetchError(err error) error {
	return WrapDomainError(ModuleRecall, ErrorCodeCandidateFetch, "candidate fetch failed", err)
}

// ScoringError 包装单条候选的打分错误
func ScoringError(itemID string, err error) error {
	return WrapDomainError(ModuleRank, ErrorCodeScoring, "score item "+itemID, err)
}

// CacheWriteError 包装缓存写入错误
func CacheWriteError(err error) error {
	return WrapDomainError(ModuleCache, ErrorCodeCacheWrite, "cache write failed", err)
}
