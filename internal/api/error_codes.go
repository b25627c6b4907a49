// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest       = "BAD_REQUEST"
	ErrorNotFound         = "NOT_FOUND"
	ErrorInternalError    = "INTERNAL_ERROR"
	ErrorConflict         = "CONFLICT"
	ErrorValidationFailed = "VALIDATION_FAILED"
	ErrorRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrorTimeout          = "TIMEOUT"

	// 书籍相关错误
	ErrorBookNotFound     = "BOOK_NOT_FOUND"
	ErrorChapterNotFound  = "CHAPTER_NOT_FOUND"
	ErrorChunkNotFound    = "CHUNK_NOT_FOUND"
	ErrorGlossaryNotFound = "GLOSSARY_NOT_FOUND"
	ErrorTaskNotFound     = "TASK_NOT_FOUND"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"
	ErrorFileTooLarge     = "FILE_TOO_LARGE"

	// 翻译相关错误
	ErrorTranslationFailed     = "TRANSLATION_FAILED"
	ErrorTranslationInProgress = "TRANSLATION_IN_PROGRESS"
	ErrorTranslatorNotReady    = "TRANSLATOR_NOT_CONFIGURED"

	// 导出相关错误
	ErrorExportFailed = "EXPORT_FAILED"
)

// 资源名称，用于生成 not found 错误代码
const (
	ResourceBook     = "book"
	ResourceChapter  = "chapter"
	ResourceChunk    = "chunk"
	ResourceGlossary = "glossary"
	ResourceTask     = "task"
)
