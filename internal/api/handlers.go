// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/Corphon/EpubTranslator/internal/utils"
	"github.com/gin-gonic/gin"
)

// HealthChecker 检查存储是否可用
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler 处理页面和API请求
type Handler struct {
	BookService        *services.BookService        // 书籍服务
	ChapterService     *services.ChapterService     // 章节服务
	GlossaryService    *services.GlossaryService    // 术语表服务
	TranslationService *services.TranslationService // 翻译服务
	ExportService      *services.ExportService      // 导出服务
	ConfigService      *services.ConfigService      // 配置服务
	ProgressService    *services.ProgressService    // 进度跟踪服务
	Health             HealthChecker                // 存储健康检查
	WebSocket          *WebSocketManager            // WebSocket 管理器
	Metrics            *utils.AppMetrics            // 业务指标
	Response           *ResponseHelper              // 响应助手
}

// uploadFieldName 上传表单中 EPUB 文件的字段名
const uploadFieldName = "epub_file"

// parseID 读取路径参数中的数字 ID
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// readUpload 读取上传的 EPUB 文件
func readUpload(c *gin.Context) (string, []byte, error) {
	fileHeader, err := c.FormFile(uploadFieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, apperrors.NewValidationError(fmt.Sprintf("文件超过 %d MB", tooLarge.Limit>>20), err)
		}
		return "", nil, apperrors.NewValidationError("请选择要上传的 EPUB 文件", err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", nil, apperrors.NewProcessingError("读取上传文件失败", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, apperrors.NewProcessingError("读取上传文件失败", err)
	}
	return filepath.Base(fileHeader.Filename), data, nil
}

// ========================================
// 书籍
// ========================================

// ListBooks 返回全部书籍
func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.BookService.ListBooks(c.Request.Context())
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Success(c, books)
}

// UploadBook 上传并导入 EPUB
func (h *Handler) UploadBook(c *gin.Context) {
	filename, data, err := readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge, err.Error())
			return
		}
		h.Response.HandleError(c, err, ResourceBook)
		return
	}

	book, err := h.BookService.ImportEPUB(c.Request.Context(), filename, data)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Created(c, book, fmt.Sprintf("Book %q loaded successfully!", book.Title))
}

// GetBook 返回书籍及其分部和章节
func (h *Handler) GetBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	book, err := h.BookService.GetBookTree(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Success(c, book)
}

// UpdateBook 修改书籍信息
func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	var input services.BookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	book, err := h.BookService.UpdateBook(c.Request.Context(), id, input)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Success(c, book, "Book updated successfully!")
}

// DeleteBook 删除书籍
func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	release, ok := h.TranslationService.ReserveBook(id)
	if !ok {
		h.Response.Error(c, http.StatusConflict, ErrorTranslationInProgress, "book is being translated")
		return
	}
	defer release()
	if err := h.BookService.DeleteBook(c.Request.Context(), id); err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Success(c, gin.H{"id": id}, "Book deleted successfully!")
}

// ExportBook 下载包含译文的 EPUB
func (h *Handler) ExportBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	result, err := h.ExportService.ExportEPUB(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.FileResponse(c, result.Data, result.Filename, result.ContentType)
}

// ========================================
// 章节和段落
// ========================================

// GetChapter 返回章节及其段落
func (h *Handler) GetChapter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid chapter id")
		return
	}
	detail, err := h.ChapterService.GetChapter(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceChapter)
		return
	}
	h.Response.Success(c, detail)
}

// UpdateChunk 修改段落原文或译文
func (h *Handler) UpdateChunk(c *gin.Context) {
	chapterID, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid chapter id")
		return
	}
	chunkID, ok := parseID(c, "chunkID")
	if !ok {
		h.Response.BadRequest(c, "invalid chunk id")
		return
	}
	var input services.ChunkInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	chunk, err := h.ChapterService.UpdateChunk(c.Request.Context(), chapterID, chunkID, input)
	if err != nil {
		h.Response.HandleError(c, err, ResourceChunk)
		return
	}
	h.Response.Success(c, chunk, fmt.Sprintf("Chunk %d updated successfully!", chunk.Order))
}

// ========================================
// 术语表
// ========================================

type glossaryRequest struct {
	Word        string `json:"word" form:"word"`
	Translation string `json:"translation" form:"translation"`
}

// ListGlossary 返回书籍术语表
func (h *Handler) ListGlossary(c *gin.Context) {
	bookID, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	entries, err := h.GlossaryService.List(c.Request.Context(), bookID)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Success(c, entries)
}

// AddGlossary 添加术语
func (h *Handler) AddGlossary(c *gin.Context) {
	bookID, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	var req glossaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	entry, err := h.GlossaryService.Add(c.Request.Context(), bookID, req.Word, req.Translation)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Created(c, entry, "Glossary entry added successfully!")
}

// UpdateGlossary 修改术语
func (h *Handler) UpdateGlossary(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid glossary id")
		return
	}
	var req glossaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	entry, err := h.GlossaryService.Update(c.Request.Context(), id, req.Word, req.Translation)
	if err != nil {
		h.Response.HandleError(c, err, ResourceGlossary)
		return
	}
	h.Response.Success(c, entry, "Glossary entry updated successfully!")
}

// DeleteGlossary 删除术语
func (h *Handler) DeleteGlossary(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid glossary id")
		return
	}
	bookID, err := h.GlossaryService.Delete(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceGlossary)
		return
	}
	h.Response.Success(c, gin.H{"id": id, "book_id": bookID}, "Glossary entry deleted successfully!")
}

// ========================================
// 翻译和进度
// ========================================

// TranslateChapter 同步翻译章节
func (h *Handler) TranslateChapter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid chapter id")
		return
	}
	detail, err := h.ChapterService.GetChapter(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceChapter)
		return
	}
	result, err := h.TranslationService.TranslateChapter(c.Request.Context(), id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceChapter)
		return
	}
	h.Response.Success(c, result, services.ChapterResultMessage(detail.Chapter.DisplayTitle(), result))
}

// TranslateBook 启动后台翻译，返回任务 ID
func (h *Handler) TranslateBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	taskID, err := h.TranslationService.StartBookTranslation(id)
	if err != nil {
		h.Response.HandleError(c, err, ResourceBook)
		return
	}
	h.Response.Accepted(c, gin.H{
		"task_id":      taskID,
		"book_id":      id,
		"progress_url": "/api/progress/" + taskID,
	}, "Translation started")
}

// GetTranslationStatus 返回书籍当前的翻译任务
func (h *Handler) GetTranslationStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.Response.BadRequest(c, "invalid book id")
		return
	}
	data := gin.H{"book_id": id, "running": h.TranslationService.IsTranslating(id)}
	if taskID, ok := h.TranslationService.ActiveTask(id); ok {
		data["running"] = true
		data["task_id"] = taskID
		if tracker, exists := h.ProgressService.GetTracker(taskID); exists {
			data["progress"] = tracker.Snapshot()
		}
	}
	h.Response.Success(c, data)
}

// SubscribeProgress 订阅任务进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.ProgressService.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, ResourceTask)
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"task_id\":%q}\n\n", taskID)
	c.Writer.Flush()

	streamProgress(c, tracker, updateChan, 15*time.Second)
}

// streamProgress 写出进度事件，直到任务结束或客户端断开
func streamProgress(c *gin.Context, tracker *services.ProgressTracker, updates <-chan services.ProgressUpdate, heartbeat time.Duration) {
	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	writeUpdate := func(update services.ProgressUpdate) {
		data, _ := json.Marshal(update)
		fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", data)
		c.Writer.Flush()
	}

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			writeUpdate(update)
			if update.Finished() {
				return
			}
		case <-tracker.Done:
			// 订阅通道满时最后一次更新可能被丢弃
			writeUpdate(tracker.Snapshot())
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// CancelTask 取消正在运行的翻译任务
func (h *Handler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskID")
	if err := h.TranslationService.Cancel(taskID); err != nil {
		h.Response.HandleError(c, err, ResourceTask)
		return
	}
	h.Response.Success(c, gin.H{"task_id": taskID}, "Cancellation requested")
}

// ========================================
// 设置、指标和健康检查
// ========================================

// GetSettings 返回翻译设置，密钥已隐藏
func (h *Handler) GetSettings(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"translator": h.ConfigService.Settings(),
		"providers":  h.ConfigService.AvailableProviders(),
		"ready":      h.ConfigService.IsReady(),
	})
}

// SaveSettings 保存翻译设置
func (h *Handler) SaveSettings(c *gin.Context) {
	var settings services.TranslatorSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	if err := h.ConfigService.UpdateTranslatorConfig(settings); err != nil {
		h.Response.HandleError(c, err, "")
		return
	}
	h.Response.Success(c, h.ConfigService.Settings(), "Settings saved successfully!")
}

// GetMetrics 返回运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().GetMetrics())
}

// HealthCheck 检查数据库和翻译服务状态
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	database := "ok"
	if h.Health != nil {
		if err := h.Health.Ping(ctx); err != nil {
			status = "degraded"
			database = err.Error()
		}
	}
	translator := "ready"
	if !h.ConfigService.IsReady() {
		translator = "not configured"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, &APIResponse{
		Success: status == "ok",
		Data: gin.H{
			"status":     status,
			"database":   database,
			"translator": translator,
			"provider":   strings.TrimSpace(h.ConfigService.Settings().Provider),
		},
		Timestamp: time.Now(),
		RequestID: c.GetString(requestIDKey),
	})
}
