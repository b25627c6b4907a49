// internal/api/pages.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/gin-gonic/gin"
)

// render 渲染页面模板，并附带一次性提示
func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if flash, ok := PopFlash(c); ok {
		data["Flash"] = flash
	}
	c.HTML(status, name, data)
}

// renderError 渲染错误页面
func (h *Handler) renderError(c *gin.Context, err error, resource string) {
	status, code := errorStatus(err, resource)
	if status >= http.StatusInternalServerError {
		h.Response.logger.Error("页面请求失败", map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		})
	}
	h.render(c, status, "error.html", gin.H{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Code":    code,
		"Message": err.Error(),
	})
}

// pageID 解析页面路径中的 ID，无效时渲染 404
func (h *Handler) pageID(c *gin.Context, name, resource string) (int64, bool) {
	id, ok := parseID(c, name)
	if !ok {
		h.renderError(c, apperrors.NewNotFoundError(fmt.Sprintf("%s not found", resource), nil), resource)
	}
	return id, ok
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusFound, location)
}

func bookURL(id int64) string {
	return "/books/book/" + strconv.FormatInt(id, 10)
}

func chapterEditURL(id int64) string {
	return "/books/chapter/" + strconv.FormatInt(id, 10) + "/edit"
}

func glossaryURL(bookID int64) string {
	return bookURL(bookID) + "/glossary"
}

// IndexPage 首页跳转到书籍列表
func (h *Handler) IndexPage(c *gin.Context) {
	redirect(c, "/books")
}

// BookListPage 书籍列表
func (h *Handler) BookListPage(c *gin.Context) {
	books, err := h.BookService.ListBooks(c.Request.Context())
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	h.render(c, http.StatusOK, "book_list.html", gin.H{
		"Title": "Books",
		"Books": books,
		"Ready": h.ConfigService.IsReady(),
	})
}

// LoadBookPage 上传表单
func (h *Handler) LoadBookPage(c *gin.Context) {
	h.render(c, http.StatusOK, "load_book.html", gin.H{"Title": "Load book"})
}

// LoadBook 处理上传表单
func (h *Handler) LoadBook(c *gin.Context) {
	filename, data, err := readUpload(c)
	if err == nil {
		var book *models.Book
		book, err = h.BookService.ImportEPUB(c.Request.Context(), filename, data)
		if err == nil {
			SetFlash(c, FlashSuccess, fmt.Sprintf("Book %q loaded successfully!", book.Title))
			redirect(c, "/books")
			return
		}
	}

	status, _ := errorStatus(err, ResourceBook)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	h.render(c, status, "load_book.html", gin.H{
		"Title": "Load book",
		"Error": err.Error(),
	})
}

// ViewBookPage 书籍详情及章节列表
func (h *Handler) ViewBookPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	book, err := h.BookService.GetBookTree(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}

	total, translated := 0, 0
	for _, part := range book.Parts {
		for _, chapter := range part.Chapters {
			total += chapter.ChunkCount
			translated += chapter.TranslatedCount
		}
	}
	percent := 0
	if total > 0 {
		percent = translated * 100 / total
	}

	data := gin.H{
		"Title":           book.Title,
		"Book":            book,
		"ChunkCount":      total,
		"TranslatedCount": translated,
		"Percent":         percent,
		"Ready":           h.ConfigService.IsReady(),
	}
	if taskID, running := h.TranslationService.ActiveTask(id); running {
		data["TaskID"] = taskID
		if tracker, exists := h.ProgressService.GetTracker(taskID); exists {
			data["Progress"] = tracker.Snapshot()
		}
	}
	h.render(c, http.StatusOK, "view_book.html", data)
}

// EditBookPage 编辑书籍信息表单
func (h *Handler) EditBookPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	book, err := h.BookService.GetBook(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	h.render(c, http.StatusOK, "edit_book.html", gin.H{
		"Title": "Edit " + book.Title,
		"Book":  book,
		"Form": services.BookInput{
			Title:    book.Title,
			Author:   book.Author,
			Language: book.Language,
		},
	})
}

// EditBook 保存书籍信息
func (h *Handler) EditBook(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	book, err := h.BookService.GetBook(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}

	input := services.BookInput{
		Title:    c.PostForm("title"),
		Author:   c.PostForm("author"),
		Language: c.PostForm("language"),
	}
	updated, err := h.BookService.UpdateBook(c.Request.Context(), id, input)
	if err != nil {
		if !apperrors.IsValidationError(err) {
			h.renderError(c, err, ResourceBook)
			return
		}
		h.render(c, http.StatusBadRequest, "edit_book.html", gin.H{
			"Title": "Edit " + book.Title,
			"Book":  book,
			"Form":  input,
			"Error": err.Error(),
		})
		return
	}

	SetFlash(c, FlashSuccess, fmt.Sprintf("Book %q updated successfully!", updated.Title))
	redirect(c, bookURL(id))
}

// DeleteBookPage 删除书籍
func (h *Handler) DeleteBookPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	book, err := h.BookService.GetBook(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	release, ok := h.TranslationService.ReserveBook(id)
	if !ok {
		SetFlash(c, FlashError, fmt.Sprintf("Book %q is being translated and cannot be deleted.", book.Title))
		redirect(c, bookURL(id))
		return
	}
	defer release()
	if err := h.BookService.DeleteBook(c.Request.Context(), id); err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	SetFlash(c, FlashSuccess, fmt.Sprintf("Book %q deleted successfully!", book.Title))
	redirect(c, "/books")
}

// SaveBookPage 下载翻译后的 EPUB
func (h *Handler) SaveBookPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	result, err := h.ExportService.ExportEPUB(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	h.Response.FileResponse(c, result.Data, result.Filename, result.ContentType)
}

// EditChapterPage 章节段落编辑
func (h *Handler) EditChapterPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceChapter)
	if !ok {
		return
	}
	detail, err := h.ChapterService.GetChapter(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceChapter)
		return
	}
	running := h.TranslationService.IsTranslating(detail.Book.ID)
	h.render(c, http.StatusOK, "edit_chapter.html", gin.H{
		"Title":   detail.Chapter.DisplayTitle(),
		"Detail":  detail,
		"Running": running,
		"Ready":   h.ConfigService.IsReady(),
	})
}

// EditChapter 保存单个段落，字段名带有 chunk_<id>- 前缀
func (h *Handler) EditChapter(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceChapter)
	if !ok {
		return
	}
	chunkID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("chunk_id")), 10, 64)
	if err != nil || chunkID <= 0 {
		SetFlash(c, FlashError, "Invalid chunk.")
		redirect(c, chapterEditURL(id))
		return
	}

	prefix := fmt.Sprintf("chunk_%d-", chunkID)
	input := services.ChunkInput{
		OriginalText:   c.PostForm(prefix + "original_text"),
		TranslatedText: c.PostForm(prefix + "translated_text"),
		Translated:     c.PostForm(prefix+"translated") != "",
	}
	chunk, err := h.ChapterService.UpdateChunk(c.Request.Context(), id, chunkID, input)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.renderError(c, err, ResourceChunk)
			return
		}
		SetFlash(c, FlashError, err.Error())
		redirect(c, chapterEditURL(id))
		return
	}

	SetFlash(c, FlashSuccess, fmt.Sprintf("Chunk %d updated successfully!", chunk.Order))
	redirect(c, fmt.Sprintf("%s#chunk-%d", chapterEditURL(id), chunk.ID))
}

// TranslateChapterPage 同步翻译章节后返回编辑页
func (h *Handler) TranslateChapterPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceChapter)
	if !ok {
		return
	}
	detail, err := h.ChapterService.GetChapter(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceChapter)
		return
	}

	result, err := h.TranslationService.TranslateChapter(c.Request.Context(), id)
	switch {
	case err != nil:
		SetFlash(c, FlashError, fmt.Sprintf("Translation failed: %s", sanitizeErrorMessage(err.Error())))
	case result.ChunksTranslated > 0:
		SetFlash(c, FlashSuccess, services.ChapterResultMessage(detail.Chapter.DisplayTitle(), result))
	default:
		SetFlash(c, FlashInfo, services.ChapterResultMessage(detail.Chapter.DisplayTitle(), result))
	}
	redirect(c, chapterEditURL(id))
}

// TranslateBookPage 启动整本书的后台翻译
func (h *Handler) TranslateBookPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	book, err := h.BookService.GetBook(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}

	if _, err := h.TranslationService.StartBookTranslation(id); err != nil {
		if apperrors.IsConflictError(err) {
			SetFlash(c, FlashWarning, fmt.Sprintf("Book %q is already being translated.", book.Title))
		} else {
			SetFlash(c, FlashError, fmt.Sprintf("Translation failed: %s", sanitizeErrorMessage(err.Error())))
		}
		redirect(c, bookURL(id))
		return
	}
	SetFlash(c, FlashInfo, fmt.Sprintf("Translation of book %q started.", book.Title))
	redirect(c, bookURL(id))
}

// ManageGlossaryPage 术语表列表和添加表单
func (h *Handler) ManageGlossaryPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	h.renderGlossary(c, http.StatusOK, id, glossaryRequest{}, "")
}

func (h *Handler) renderGlossary(c *gin.Context, status int, bookID int64, form glossaryRequest, formError string) {
	book, err := h.BookService.GetBook(c.Request.Context(), bookID)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	entries, err := h.GlossaryService.List(c.Request.Context(), bookID)
	if err != nil {
		h.renderError(c, err, ResourceBook)
		return
	}
	h.render(c, status, "manage_glossary.html", gin.H{
		"Title":   "Glossary: " + book.Title,
		"Book":    book,
		"Entries": entries,
		"Form":    form,
		"Error":   formError,
	})
}

// AddGlossaryPage 添加术语
func (h *Handler) AddGlossaryPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceBook)
	if !ok {
		return
	}
	form := glossaryRequest{Word: c.PostForm("word"), Translation: c.PostForm("translation")}
	if _, err := h.GlossaryService.Add(c.Request.Context(), id, form.Word, form.Translation); err != nil {
		if apperrors.IsValidationError(err) {
			h.renderGlossary(c, http.StatusBadRequest, id, form, err.Error())
			return
		}
		h.renderError(c, err, ResourceBook)
		return
	}
	SetFlash(c, FlashSuccess, "Glossary entry added successfully!")
	redirect(c, glossaryURL(id))
}

// UpdateGlossaryPage 术语编辑表单
func (h *Handler) UpdateGlossaryPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceGlossary)
	if !ok {
		return
	}
	entry, err := h.GlossaryService.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceGlossary)
		return
	}
	h.render(c, http.StatusOK, "update_glossary.html", gin.H{
		"Title": "Edit glossary entry",
		"Entry": entry,
		"Form":  glossaryRequest{Word: entry.Word, Translation: entry.Translation},
	})
}

// UpdateGlossaryEntry 保存术语修改
func (h *Handler) UpdateGlossaryEntry(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceGlossary)
	if !ok {
		return
	}
	entry, err := h.GlossaryService.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceGlossary)
		return
	}

	form := glossaryRequest{Word: c.PostForm("word"), Translation: c.PostForm("translation")}
	if _, err := h.GlossaryService.Update(c.Request.Context(), id, form.Word, form.Translation); err != nil {
		if apperrors.IsValidationError(err) {
			h.render(c, http.StatusBadRequest, "update_glossary.html", gin.H{
				"Title": "Edit glossary entry",
				"Entry": entry,
				"Form":  form,
				"Error": err.Error(),
			})
			return
		}
		h.renderError(c, err, ResourceGlossary)
		return
	}
	SetFlash(c, FlashSuccess, "Glossary entry updated successfully!")
	redirect(c, glossaryURL(entry.BookID))
}

// DeleteGlossaryPage 删除术语
func (h *Handler) DeleteGlossaryPage(c *gin.Context) {
	id, ok := h.pageID(c, "id", ResourceGlossary)
	if !ok {
		return
	}
	bookID, err := h.GlossaryService.Delete(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, ResourceGlossary)
		return
	}
	SetFlash(c, FlashSuccess, "Glossary entry deleted successfully!")
	redirect(c, glossaryURL(bookID))
}

// SettingsPage 翻译设置
func (h *Handler) SettingsPage(c *gin.Context) {
	h.renderSettings(c, http.StatusOK, h.ConfigService.Settings(), "")
}

func (h *Handler) renderSettings(c *gin.Context, status int, settings services.TranslatorSettings, formError string) {
	h.render(c, status, "settings.html", gin.H{
		"Title":     "Settings",
		"Settings":  settings,
		"Configs":   h.ConfigService.ProviderSettings(),
		"Providers": h.ConfigService.AvailableProviders(),
		"Ready":     h.ConfigService.IsReady(),
		"Error":     formError,
	})
}

// SaveSettingsPage 保存翻译设置；字段名为 <provider>[<key>]，留空的密钥保持不变
func (h *Handler) SaveSettingsPage(c *gin.Context) {
	provider := strings.TrimSpace(c.PostForm("provider"))
	settings := services.TranslatorSettings{
		Provider:       provider,
		TargetLanguage: c.PostForm("target_language"),
		ApplyGlossary:  c.PostForm("apply_glossary") != "",
		Config:         c.PostFormMap(provider),
	}
	if err := h.ConfigService.UpdateTranslatorConfig(settings); err != nil {
		if apperrors.IsValidationError(err) {
			h.renderSettings(c, http.StatusBadRequest, settings, err.Error())
			return
		}
		h.renderError(c, err, "")
		return
	}
	if h.ConfigService.IsReady() {
		SetFlash(c, FlashSuccess, "Settings saved successfully!")
	} else {
		SetFlash(c, FlashWarning, "Settings saved, but the translator is not fully configured yet.")
	}
	redirect(c, "/settings")
}
