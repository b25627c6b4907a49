package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/EpubTranslator/internal/config"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	translate.Register("echo", func() translate.Provider { return &echoProvider{} })
}

// echoProvider 在原文前加上目标语言前缀
type echoProvider struct{}

func (p *echoProvider) Initialize(map[string]string) error { return nil }
func (p *echoProvider) GetName() string                    { return "echo" }
func (p *echoProvider) MaxBatchChars() int                 { return 1000 }

func (p *echoProvider) Translate(ctx context.Context, req translate.Request) ([]string, error) {
	out := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = "[" + req.TargetLanguage + "] " + text
	}
	return out, nil
}

type echoSource struct{}

func (echoSource) Provider() (translate.Provider, error) { return &echoProvider{}, nil }
func (echoSource) TargetLanguage() string                { return "ru" }
func (echoSource) ApplyGlossary() bool                   { return false }

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Fixture Book</dc:title>
    <dc:creator>Ann Author</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="one" href="one.xhtml" media-type="application/xhtml+xml"/>
    <item id="two" href="two.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="one"/><itemref idref="two"/></spine>
</package>`

func fixtureEPUB(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": `<container><rootfiles><rootfile full-path="OPS/book.opf"/></rootfiles></container>`,
		"OPS/book.opf":           testOPF,
		"OPS/one.xhtml":          `<html><body><h1>Opening</h1><p>The cat sat.</p><p>The dog ran.</p></body></html>`,
		"OPS/two.xhtml":          `<html><body><h1>Closing</h1><p>The end.</p></body></html>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("创建压缩条目失败: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("写入压缩条目失败: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("关闭压缩包失败: %v", err)
	}
	return buf.Bytes()
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
	store   *storage.Store
}

func newTestServer(t *testing.T, maxUploadMB int) *testServer {
	t.Helper()
	return newTestServerWithSource(t, maxUploadMB, echoSource{})
}

func newTestServerWithSource(t *testing.T, maxUploadMB int, source services.ProviderSource) *testServer {
	t.Helper()
	dir := t.TempDir()

	if err := config.InitConfigWith(&config.Config{
		Port:               "0",
		DataDir:            dir,
		DatabasePath:       filepath.Join(dir, "books.db"),
		MaxUploadMB:        maxUploadMB,
		TranslatorProvider: "echo",
		TargetLanguage:     "ru",
	}); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	store, err := storage.Open(filepath.Join(dir, "books.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	files, err := storage.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	locks := services.NewLockManager()
	t.Cleanup(locks.Stop)
	progress := services.NewProgressService()
	translation := services.NewTranslationService(store, source, locks, progress)
	t.Cleanup(translation.Shutdown)

	ws := NewWebSocketManager()
	t.Cleanup(ws.Shutdown)
	translation.SetBroadcaster(ws)

	handler := &Handler{
		BookService:        services.NewBookService(store, files),
		ChapterService:     services.NewChapterService(store),
		GlossaryService:    services.NewGlossaryService(store),
		TranslationService: translation,
		ExportService:      services.NewExportService(store, files),
		ConfigService:      services.NewConfigService(),
		ProgressService:    progress,
		Health:             store,
		WebSocket:          ws,
		Response:           NewResponseHelper(),
	}
	router, err := NewRouter(handler, &config.AppConfig{MaxUploadMB: maxUploadMB})
	if err != nil {
		t.Fatalf("创建路由失败: %v", err)
	}
	return &testServer{router: router, handler: handler, store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadFieldName, filename)
	if err != nil {
		t.Fatalf("创建表单失败: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, target string, payload interface{}) *http.Request {
	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	var raw struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("解析响应失败: %v (%s)", err, w.Body.String())
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("解析响应数据失败: %v", err)
		}
	}
	return raw.APIResponse
}

func (s *testServer) uploadFixture(t *testing.T) *models.Book {
	t.Helper()
	w := s.do(uploadRequest(t, "/api/books", "fixture.epub", fixtureEPUB(t)))
	if w.Code != http.StatusCreated {
		t.Fatalf("上传状态码 = %d: %s", w.Code, w.Body.String())
	}
	var book models.Book
	resp := decodeResponse(t, w, &book)
	if resp.Message != `Book "Fixture Book" loaded successfully!` {
		t.Fatalf("上传提示 = %q", resp.Message)
	}
	return &book
}

func (s *testServer) chapters(t *testing.T, bookID int64) []*models.Chapter {
	t.Helper()
	tree, err := s.handler.BookService.GetBookTree(context.Background(), bookID)
	if err != nil {
		t.Fatalf("GetBookTree 失败: %v", err)
	}
	return tree.Parts[0].Chapters
}

// flashCookie 从响应中取出提示 cookie
func flashCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == FlashCookieName && cookie.Value != "" {
			return cookie
		}
	}
	return nil
}

func decodeFlashCookie(t *testing.T, cookie *http.Cookie) Flash {
	t.Helper()
	if cookie == nil {
		t.Fatal("应设置提示 cookie")
	}
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		t.Fatalf("解码提示失败: %v", err)
	}
	var flash Flash
	if err := json.Unmarshal(data, &flash); err != nil {
		t.Fatalf("解析提示失败: %v", err)
	}
	return flash
}

func TestUploadAndListBooks(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	if book.ID == 0 || book.Title != "Fixture Book" {
		t.Fatalf("书籍 = %+v", book)
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/books", nil))
	var books []models.BookSummary
	resp := decodeResponse(t, w, &books)
	if !resp.Success || len(books) != 1 || books[0].ChunkCount != 3 {
		t.Fatalf("书籍列表 = %+v", books)
	}
	if resp.RequestID == "" || w.Header().Get(requestIDHeader) == "" {
		t.Fatal("响应应包含请求 ID")
	}
}

func TestUploadRejectsInvalidFile(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(uploadRequest(t, "/api/books", "notes.txt", []byte("hello")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want 400", w.Code)
	}
	resp := decodeResponse(t, w, nil)
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrorValidationFailed {
		t.Fatalf("错误响应 = %+v", resp)
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.do(uploadRequest(t, "/api/books", "big.epub", bytes.Repeat([]byte("x"), 2<<20)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("状态码 = %d, want 413", w.Code)
	}
	if resp := decodeResponse(t, w, nil); resp.Error == nil || resp.Error.Code != ErrorFileTooLarge {
		t.Fatalf("错误响应 = %+v", resp)
	}
}

func TestBookNotFound(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/books/999", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, want 404", w.Code)
	}
	if resp := decodeResponse(t, w, nil); resp.Error == nil || resp.Error.Code != ErrorBookNotFound {
		t.Fatalf("错误响应 = %+v", resp)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/books/abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("非法 ID 状态码 = %d, want 400", w.Code)
	}
}

func TestUpdateBookAPI(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	target := "/api/books/" + strconv.FormatInt(book.ID, 10)

	w := s.do(jsonRequest(http.MethodPut, target, services.BookInput{Title: "  ", Language: "en"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("空标题状态码 = %d, want 400", w.Code)
	}

	w = s.do(jsonRequest(http.MethodPut, target, services.BookInput{Title: "Renamed", Author: "B", Language: "de-AT"}))
	var updated models.Book
	decodeResponse(t, w, &updated)
	if w.Code != http.StatusOK || updated.Title != "Renamed" || updated.Language != "de" {
		t.Fatalf("更新结果 = %d %+v", w.Code, updated)
	}

	w = s.do(httptest.NewRequest(http.MethodDelete, target, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("删除状态码 = %d", w.Code)
	}
	if w = s.do(httptest.NewRequest(http.MethodGet, target, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("删除后状态码 = %d, want 404", w.Code)
	}
}

func TestChunkAndGlossaryAPI(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	chapter := s.chapters(t, book.ID)[0]

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/chapters/"+strconv.FormatInt(chapter.ID, 10), nil))
	var detail services.ChapterDetail
	decodeResponse(t, w, &detail)
	if len(detail.Chapter.Chunks) != 2 || detail.NextID == 0 {
		t.Fatalf("章节详情 = %+v", detail.Chapter)
	}

	chunk := detail.Chapter.Chunks[1]
	target := "/api/chapters/" + strconv.FormatInt(chapter.ID, 10) + "/chunks/" + strconv.FormatInt(chunk.ID, 10)
	w = s.do(jsonRequest(http.MethodPut, target, services.ChunkInput{
		OriginalText:   "The dog ran.",
		TranslatedText: "Собака бежала.",
		Translated:     true,
	}))
	resp := decodeResponse(t, w, nil)
	if w.Code != http.StatusOK || resp.Message != "Chunk 2 updated successfully!" {
		t.Fatalf("更新段落 = %d %q", w.Code, resp.Message)
	}

	glossaryTarget := "/api/books/" + strconv.FormatInt(book.ID, 10) + "/glossary"
	w = s.do(jsonRequest(http.MethodPost, glossaryTarget, glossaryRequest{Word: "cat", Translation: "кот"}))
	var entry models.GlossaryEntry
	decodeResponse(t, w, &entry)
	if w.Code != http.StatusCreated || entry.ID == 0 {
		t.Fatalf("添加术语 = %d %+v", w.Code, entry)
	}

	w = s.do(jsonRequest(http.MethodPost, glossaryTarget, glossaryRequest{Word: "", Translation: "x"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("空术语状态码 = %d, want 400", w.Code)
	}

	entryTarget := "/api/glossary/" + strconv.FormatInt(entry.ID, 10)
	w = s.do(jsonRequest(http.MethodPut, entryTarget, glossaryRequest{Word: "cat", Translation: "кошка"}))
	if w.Code != http.StatusOK {
		t.Fatalf("更新术语状态码 = %d", w.Code)
	}

	var entries []models.GlossaryEntry
	decodeResponse(t, s.do(httptest.NewRequest(http.MethodGet, glossaryTarget, nil)), &entries)
	if len(entries) != 1 || entries[0].Translation != "кошка" {
		t.Fatalf("术语表 = %+v", entries)
	}

	if w = s.do(httptest.NewRequest(http.MethodDelete, entryTarget, nil)); w.Code != http.StatusOK {
		t.Fatalf("删除术语状态码 = %d", w.Code)
	}
	if w = s.do(httptest.NewRequest(http.MethodDelete, entryTarget, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("重复删除状态码 = %d, want 404", w.Code)
	}
}

func TestTranslateChapterAPI(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	chapter := s.chapters(t, book.ID)[0]
	target := "/api/chapters/" + strconv.FormatInt(chapter.ID, 10) + "/translate"

	w := s.do(httptest.NewRequest(http.MethodPost, target, nil))
	var result models.TranslationResult
	resp := decodeResponse(t, w, &result)
	if w.Code != http.StatusOK || result.ChunksTranslated != 2 {
		t.Fatalf("翻译结果 = %d %+v", w.Code, result)
	}
	if resp.Message != `Successfully translated 2 chunks in chapter "Opening"!` {
		t.Fatalf("翻译提示 = %q", resp.Message)
	}

	w = s.do(httptest.NewRequest(http.MethodPost, target, nil))
	resp = decodeResponse(t, w, &result)
	if result.ChunksTranslated != 0 || resp.Message != `No new content to translate in chapter "Opening".` {
		t.Fatalf("重复翻译 = %+v %q", result, resp.Message)
	}
}

func TestTranslateBookAndExport(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	bookPath := "/api/books/" + strconv.FormatInt(book.ID, 10)

	w := s.do(httptest.NewRequest(http.MethodPost, bookPath+"/translate", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("状态码 = %d, want 202: %s", w.Code, w.Body.String())
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	decodeResponse(t, w, &started)
	if started.TaskID == "" {
		t.Fatal("应返回任务 ID")
	}

	tracker, ok := s.handler.ProgressService.GetTracker(started.TaskID)
	if !ok {
		t.Fatal("应存在进度跟踪器")
	}
	select {
	case <-tracker.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("翻译任务超时")
	}
	if snapshot := tracker.Snapshot(); snapshot.Status != services.StatusCompleted {
		t.Fatalf("任务状态 = %+v", snapshot)
	}

	// 进度订阅在任务结束后立即返回最终状态
	w = s.do(httptest.NewRequest(http.MethodGet, "/api/progress/"+started.TaskID, nil))
	if !strings.Contains(w.Body.String(), `"status":"completed"`) {
		t.Fatalf("SSE 输出 = %s", w.Body.String())
	}

	w = s.do(httptest.NewRequest(http.MethodGet, bookPath+"/export", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != services.EPUBContentType {
		t.Fatalf("导出 = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), services.ExportFilename(book.ID)) {
		t.Fatalf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if _, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len())); err != nil {
		t.Fatalf("导出的文件不是有效的压缩包: %v", err)
	}

	if w = s.do(httptest.NewRequest(http.MethodPost, "/api/cancel/unknown", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("取消未知任务状态码 = %d, want 404", w.Code)
	}
}

func TestSettingsAPI(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(jsonRequest(http.MethodPut, "/api/settings", services.TranslatorSettings{Provider: "missing", TargetLanguage: "ru"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("未知翻译服务状态码 = %d, want 400", w.Code)
	}

	w = s.do(jsonRequest(http.MethodPut, "/api/settings", services.TranslatorSettings{Provider: "echo", TargetLanguage: "de-DE", ApplyGlossary: true}))
	var saved services.TranslatorSettings
	decodeResponse(t, w, &saved)
	if w.Code != http.StatusOK || saved.TargetLanguage != "de" || !saved.ApplyGlossary {
		t.Fatalf("保存设置 = %d %+v", w.Code, saved)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"translator":"ready"`) {
		t.Fatalf("健康检查 = %d %s", w.Code, w.Body.String())
	}
}

func TestLoadBookPageSetsFlash(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(uploadRequest(t, "/books/load", "fixture.epub", fixtureEPUB(t)))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/books" {
		t.Fatalf("上传页面 = %d %q", w.Code, w.Header().Get("Location"))
	}
	cookie := flashCookie(w)
	if cookie == nil {
		t.Fatal("应设置提示 cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.AddCookie(cookie)
	w = s.do(req)
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.Contains(body, "loaded successfully!") || !strings.Contains(body, "Fixture Book") {
		t.Fatalf("书籍列表页面缺少提示: %d\n%s", w.Code, body)
	}

	w = s.do(uploadRequest(t, "/books/load", "fixture.pdf", []byte("x")))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "flash-error") {
		t.Fatalf("无效文件应重新显示表单: %d", w.Code)
	}
}

func TestEditChapterPage(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	chapter := s.chapters(t, book.ID)[0]
	chapterPath := "/books/chapter/" + strconv.FormatInt(chapter.ID, 10) + "/edit"

	w := s.do(httptest.NewRequest(http.MethodGet, chapterPath, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "The cat sat.") {
		t.Fatalf("章节页面 = %d", w.Code)
	}

	chunks, _ := s.store.ListChunks(context.Background(), chapter.ID)
	prefix := "chunk_" + strconv.FormatInt(chunks[0].ID, 10) + "-"
	w = s.do(formRequest(chapterPath, url.Values{
		"chunk_id":                 {strconv.FormatInt(chunks[0].ID, 10)},
		prefix + "original_text":   {"The cat sat."},
		prefix + "translated_text": {"Кот сидел."},
		prefix + "translated":      {"on"},
	}))
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), chapterPath) {
		t.Fatalf("保存段落 = %d %q", w.Code, w.Header().Get("Location"))
	}

	updated, err := s.store.GetChunk(context.Background(), chunks[0].ID)
	if err != nil {
		t.Fatalf("GetChunk 失败: %v", err)
	}
	if !updated.Translated || updated.TranslationOrEmpty() != "Кот сидел." {
		t.Fatalf("段落未更新: %+v", updated)
	}
}

func TestTranslateChapterPageFlashes(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	chapter := s.chapters(t, book.ID)[1]
	path := "/books/chapter/" + strconv.FormatInt(chapter.ID, 10) + "/translate"

	w := s.do(httptest.NewRequest(http.MethodPost, path, nil))
	if w.Code != http.StatusFound {
		t.Fatalf("状态码 = %d, want 302", w.Code)
	}
	flash := decodeFlashCookie(t, flashCookie(w))
	if flash.Kind != FlashSuccess || flash.Message != `Successfully translated 1 chunks in chapter "Closing"!` {
		t.Fatalf("提示 = %+v", flash)
	}

	w = s.do(httptest.NewRequest(http.MethodPost, path, nil))
	if flash = decodeFlashCookie(t, flashCookie(w)); flash.Kind != FlashInfo {
		t.Fatalf("没有新内容时应为 info 提示, got %+v", flash)
	}
}

func TestGlossaryPages(t *testing.T) {
	s := newTestServer(t, 10)
	book := s.uploadFixture(t)
	path := "/books/book/" + strconv.FormatInt(book.ID, 10) + "/glossary"

	w := s.do(formRequest(path, url.Values{"word": {"dragon"}, "translation": {"дракон"}}))
	if w.Code != http.StatusFound || w.Header().Get("Location") != path {
		t.Fatalf("添加术语 = %d %q", w.Code, w.Header().Get("Location"))
	}

	w = s.do(formRequest(path, url.Values{"word": {""}, "translation": {""}}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("空表单状态码 = %d, want 400", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, path, nil))
	if !strings.Contains(w.Body.String(), "дракон") {
		t.Fatal("术语表页面应显示词条")
	}
}

func TestSettingsPage(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(httptest.NewRequest(http.MethodGet, "/settings", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `name="yandex[api_key]"`) {
		t.Fatalf("设置页面 = %d", w.Code)
	}

	w = s.do(formRequest("/settings", url.Values{
		"provider":        {"echo"},
		"target_language": {"fr"},
		"apply_glossary":  {"on"},
	}))
	if w.Code != http.StatusFound {
		t.Fatalf("保存设置状态码 = %d", w.Code)
	}
	cfg := config.GetCurrentConfig()
	if cfg.TargetLanguage != "fr" || !cfg.ApplyGlossary {
		t.Fatalf("设置未保存: %s %v", cfg.TargetLanguage, cfg.ApplyGlossary)
	}
}

func TestMissingPagesRenderErrorTemplate(t *testing.T) {
	s := newTestServer(t, 10)

	w := s.do(httptest.NewRequest(http.MethodGet, "/books/book/42", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Back to books") {
		t.Fatalf("不存在的书籍页面 = %d", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/books" {
		t.Fatalf("首页应跳转到书籍列表, got %d %q", w.Code, w.Header().Get("Location"))
	}
}
