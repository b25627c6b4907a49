package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/EpubTranslator/internal/epub"
	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
)

const fixtureOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Fixture Book</dc:title>
    <dc:creator>Ann Author</dc:creator>
    <dc:language>en-GB</dc:language>
  </metadata>
  <manifest>
    <item id="a" href="a.xhtml" media-type="application/xhtml+xml"/>
    <item id="b" href="intro.xhtml" media-type="application/xhtml+xml"/>
    <item id="c" href="c.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="b"/><itemref idref="a"/><itemref idref="c"/></spine>
</package>`

func fixtureEPUB(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": `<container><rootfiles><rootfile full-path="OPS/book.opf"/></rootfiles></container>`,
		"OPS/book.opf":           fixtureOPF,
		"OPS/intro.xhtml":        `<html><body><p>Only an image here.</p></body></html>`,
		"OPS/a.xhtml":            `<html><body><h1>The Cat</h1><p>The cat sat.</p><p>The dragon flew.</p><p>The end.</p></body></html>`,
		"OPS/c.xhtml":            `<html><body><div>no paragraphs</div></body></html>`,
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

type testEnv struct {
	store *storage.Store
	files *storage.FileStorage
	books *BookService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "books.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	files, err := storage.NewFileStorage(dir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	return &testEnv{store: store, files: files, books: NewBookService(store, files)}
}

func (e *testEnv) importFixture(t *testing.T) *models.Book {
	t.Helper()
	book, err := e.books.ImportEPUB(context.Background(), "fixture.epub", fixtureEPUB(t))
	if err != nil {
		t.Fatalf("导入 EPUB 失败: %v", err)
	}
	return book
}

// upperProvider 把文本转为大写，可配置在第 N 次调用时失败
type upperProvider struct {
	mu       sync.Mutex
	maxChars int
	failOn   int
	calls    int
	requests []translate.Request
	block    chan struct{}
}

func (p *upperProvider) Initialize(map[string]string) error { return nil }
func (p *upperProvider) GetName() string                    { return "upper" }
func (p *upperProvider) MaxBatchChars() int {
	if p.maxChars == 0 {
		return 1000
	}
	return p.maxChars
}

func (p *upperProvider) Translate(ctx context.Context, req translate.Request) ([]string, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.requests = append(p.requests, req)
	if p.failOn > 0 && p.calls == p.failOn {
		return nil, errors.New("quota exceeded")
	}
	out := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = strings.ToUpper(text)
	}
	return out, nil
}

type stubSource struct {
	provider translate.Provider
	err      error
	glossary bool
}

func (s *stubSource) Provider() (translate.Provider, error) { return s.provider, s.err }
func (s *stubSource) TargetLanguage() string                { return "ru" }
func (s *stubSource) ApplyGlossary() bool                   { return s.glossary }

func newTranslationService(t *testing.T, env *testEnv, source ProviderSource) *TranslationService {
	t.Helper()
	locks := NewLockManager()
	t.Cleanup(locks.Stop)
	return NewTranslationService(env.store, source, locks, NewProgressService())
}

func TestImportEPUB(t *testing.T) {
	env := newTestEnv(t)
	book := env.importFixture(t)

	if book.Title != "Fixture Book" || book.Author != "Ann Author" || book.Language != "en" {
		t.Fatalf("书籍元数据错误: %q %q %q", book.Title, book.Author, book.Language)
	}

	tree, err := env.books.GetBookTree(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("GetBookTree 失败: %v", err)
	}
	if len(tree.Parts) != 1 || tree.Parts[0].Title != nil || tree.Parts[0].DisplayTitle() != "Part 1" {
		t.Fatalf("应只有一个未命名的分部: %+v", tree.Parts)
	}
	chapters := tree.Parts[0].Chapters
	if len(chapters) != 3 {
		t.Fatalf("章节数 = %d, want 3", len(chapters))
	}
	if chapters[0].Title != "intro" || chapters[1].Title != "The Cat" || chapters[2].Title != "c" {
		t.Fatalf("章节标题或顺序错误: %q %q %q", chapters[0].Title, chapters[1].Title, chapters[2].Title)
	}
	if chapters[1].ChunkCount != 3 || chapters[2].ChunkCount != 0 {
		t.Fatalf("段落数错误: %d %d", chapters[1].ChunkCount, chapters[2].ChunkCount)
	}

	if !env.files.FileExists(storage.BookDir(book.ID), "fixture.epub") {
		t.Fatal("原始文件应已保存")
	}
}

func TestImportEPUBRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.books.ImportEPUB(ctx, "book.pdf", []byte("x")); !apperrors.IsValidationError(err) {
		t.Errorf("非 .epub 文件应返回验证错误, got %v", err)
	}
	if _, err := env.books.ImportEPUB(ctx, "book.epub", nil); !apperrors.IsValidationError(err) {
		t.Errorf("空文件应返回验证错误, got %v", err)
	}
	if _, err := env.books.ImportEPUB(ctx, "book.epub", []byte("not a zip")); !apperrors.IsValidationError(err) {
		t.Errorf("损坏的文件应返回验证错误, got %v", err)
	}
}

func TestUpdateAndDeleteBook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)

	if _, err := env.books.UpdateBook(ctx, book.ID, BookInput{Title: "  ", Language: "en"}); !apperrors.IsValidationError(err) {
		t.Fatalf("空标题应返回验证错误, got %v", err)
	}
	if _, err := env.books.UpdateBook(ctx, book.ID, BookInput{Title: strings.Repeat("x", 256), Language: "en"}); !apperrors.IsValidationError(err) {
		t.Fatalf("过长的标题应返回验证错误, got %v", err)
	}

	updated, err := env.books.UpdateBook(ctx, book.ID, BookInput{Title: " New ", Author: "B", Language: "de_DE"})
	if err != nil {
		t.Fatalf("UpdateBook 失败: %v", err)
	}
	if updated.Title != "New" || updated.Language != "de" {
		t.Fatalf("更新结果错误: %+v", updated)
	}

	if err := env.books.DeleteBook(ctx, book.ID); err != nil {
		t.Fatalf("DeleteBook 失败: %v", err)
	}
	if _, err := env.books.GetBook(ctx, book.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("删除后应返回 not found, got %v", err)
	}
	if env.files.FileExists(storage.BookDir(book.ID), "fixture.epub") {
		t.Fatal("删除书籍后原始文件应被删除")
	}
}

func TestChapterServiceUpdateChunk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)
	chapters := NewChapterService(env.store)

	tree, _ := env.books.GetBookTree(ctx, book.ID)
	intro, cat, last := tree.Parts[0].Chapters[0], tree.Parts[0].Chapters[1], tree.Parts[0].Chapters[2]

	detail, err := chapters.GetChapter(ctx, cat.ID)
	if err != nil {
		t.Fatalf("GetChapter 失败: %v", err)
	}
	if detail.Book.ID != book.ID || len(detail.Chapter.Chunks) != 3 {
		t.Fatalf("章节详情错误: %+v", detail)
	}
	if detail.PrevID != intro.ID || detail.NextID != last.ID {
		t.Fatalf("前后章节错误: prev=%d next=%d", detail.PrevID, detail.NextID)
	}

	chunk := detail.Chapter.Chunks[0]
	if _, err := chapters.UpdateChunk(ctx, intro.ID, chunk.ID, ChunkInput{OriginalText: "x"}); !apperrors.IsNotFoundError(err) {
		t.Fatalf("段落不属于章节时应返回 not found, got %v", err)
	}
	if _, err := chapters.UpdateChunk(ctx, cat.ID, chunk.ID, ChunkInput{OriginalText: " "}); !apperrors.IsValidationError(err) {
		t.Fatalf("空原文应返回验证错误, got %v", err)
	}

	updated, err := chapters.UpdateChunk(ctx, cat.ID, chunk.ID, ChunkInput{
		OriginalText:   "The cat sat down.",
		TranslatedText: "  ",
		Translated:     true,
	})
	if err != nil {
		t.Fatalf("UpdateChunk 失败: %v", err)
	}
	if updated.TranslatedText != nil {
		t.Fatal("空译文应保存为 NULL")
	}
	if updated.Text() != "The cat sat down." {
		t.Fatalf("没有译文时应显示原文, got %q", updated.Text())
	}
}

func TestGlossaryService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)
	glossary := NewGlossaryService(env.store)

	if _, err := glossary.Add(ctx, book.ID, " ", "x"); !apperrors.IsValidationError(err) {
		t.Fatalf("空术语应返回验证错误, got %v", err)
	}
	if _, err := glossary.Add(ctx, book.ID, strings.Repeat("w", 256), "x"); !apperrors.IsValidationError(err) {
		t.Fatalf("过长的术语应返回验证错误, got %v", err)
	}
	if _, err := glossary.List(ctx, 999); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的书籍应返回 not found, got %v", err)
	}

	entry, err := glossary.Add(ctx, book.ID, " dragon ", " дракон ")
	if err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	if entry.Word != "dragon" || entry.Translation != "дракон" {
		t.Fatalf("输入应被去除空白: %+v", entry)
	}
	if _, err := glossary.Update(ctx, entry.ID, "dragon", "змей"); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}

	pairs, err := glossary.Pairs(ctx, book.ID)
	if err != nil || len(pairs) != 1 || pairs[0].Translation != "змей" {
		t.Fatalf("术语对 = %+v, err = %v", pairs, err)
	}

	bookID, err := glossary.Delete(ctx, entry.ID)
	if err != nil || bookID != book.ID {
		t.Fatalf("Delete = %d, %v", bookID, err)
	}
}

func TestTranslateChapter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)
	tree, _ := env.books.GetBookTree(ctx, book.ID)
	cat := tree.Parts[0].Chapters[1]

	provider := &upperProvider{}
	svc := newTranslationService(t, env, &stubSource{provider: provider})

	result, err := svc.TranslateChapter(ctx, cat.ID)
	if err != nil {
		t.Fatalf("TranslateChapter 失败: %v", err)
	}
	if result.ChunksTranslated != 3 || result.ChaptersTranslated != 1 {
		t.Fatalf("翻译统计错误: %+v", result)
	}
	if req := provider.requests[0]; req.SourceLanguage != "en" || req.TargetLanguage != "ru" || req.Glossary != nil {
		t.Fatalf("请求参数错误: %+v", req)
	}

	chunks, _ := env.store.ListChunks(ctx, cat.ID)
	for _, chunk := range chunks {
		if !chunk.Translated || chunk.Text() != strings.ToUpper(chunk.OriginalText) {
			t.Fatalf("段落未翻译: %+v", chunk)
		}
	}

	result, err = svc.TranslateChapter(ctx, cat.ID)
	if err != nil || result.ChunksTranslated != 0 {
		t.Fatalf("再次翻译应没有新内容: %+v, %v", result, err)
	}
	if got := ChapterResultMessage("The Cat", result); got != `No new content to translate in chapter "The Cat".` {
		t.Fatalf("提示文字 = %q", got)
	}
}

func TestTranslateChapterPassesGlossary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)
	tree, _ := env.books.GetBookTree(ctx, book.ID)

	if _, err := NewGlossaryService(env.store).Add(ctx, book.ID, "dragon", "дракон"); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}

	provider := &upperProvider{}
	svc := newTranslationService(t, env, &stubSource{provider: provider, glossary: true})
	if _, err := svc.TranslateChapter(ctx, tree.Parts[0].Chapters[1].ID); err != nil {
		t.Fatalf("TranslateChapter 失败: %v", err)
	}
	glossary := provider.requests[0].Glossary
	if len(glossary) != 1 || glossary[0].Source != "dragon" {
		t.Fatalf("应附带术语表: %+v", glossary)
	}
}

func TestTranslateChapterKeepsSavedBatchesOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)
	tree, _ := env.books.GetBookTree(ctx, book.ID)
	cat := tree.Parts[0].Chapters[1]

	// 每个段落单独一批，第二批失败
	provider := &upperProvider{maxChars: 5, failOn: 2}
	svc := newTranslationService(t, env, &stubSource{provider: provider})

	result, err := svc.TranslateChapter(ctx, cat.ID)
	if !apperrors.IsUpstreamError(err) {
		t.Fatalf("翻译服务失败应返回 upstream 错误, got %v", err)
	}
	if result.ChunksTranslated != 1 {
		t.Fatalf("失败前应已翻译 1 个段落, got %d", result.ChunksTranslated)
	}
	pending, _ := env.store.ListUntranslatedChunks(ctx, cat.ID)
	if len(pending) != 2 {
		t.Fatalf("未翻译段落 = %d, want 2", len(pending))
	}
}

func TestTranslateChapterConfigurationError(t *testing.T) {
	env := newTestEnv(t)
	book := env.importFixture(t)
	tree, _ := env.books.GetBookTree(context.Background(), book.ID)

	svc := newTranslationService(t, env, &stubSource{err: apperrors.NewConfigurationError("缺少密钥", nil)})
	if _, err := svc.TranslateChapter(context.Background(), tree.Parts[0].Chapters[1].ID); !apperrors.IsConfigurationError(err) {
		t.Fatalf("应返回配置错误, got %v", err)
	}
}

func TestTranslateBookReportsProgress(t *testing.T) {
	env := newTestEnv(t)
	book := env.importFixture(t)
	svc := newTranslationService(t, env, &stubSource{provider: &upperProvider{}})

	var reports []int
	result, err := svc.TranslateBook(context.Background(), book.ID, func(done, total int, _ *models.Chapter) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		reports = append(reports, done)
	})
	if err != nil {
		t.Fatalf("TranslateBook 失败: %v", err)
	}
	if len(reports) != 3 || reports[2] != 3 {
		t.Fatalf("进度回调 = %v", reports)
	}
	if result.ChunksTranslated != 4 || result.ChaptersTranslated != 2 {
		t.Fatalf("翻译统计错误: %+v", result)
	}
	want := `Successfully translated 4 chunks in 2 chapters of book "Fixture Book"!`
	if got := BookResultMessage(book.Title, result); got != want {
		t.Fatalf("提示文字 = %q", got)
	}
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (b *recordingBroadcaster) BroadcastBookProgress(_ int64, update ProgressUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
}

func waitDone(t *testing.T, tracker *ProgressTracker) {
	t.Helper()
	select {
	case <-tracker.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("任务未在超时前结束")
	}
}

func TestStartBookTranslation(t *testing.T) {
	env := newTestEnv(t)
	book := env.importFixture(t)

	provider := &upperProvider{block: make(chan struct{})}
	svc := newTranslationService(t, env, &stubSource{provider: provider})
	broadcaster := &recordingBroadcaster{}
	svc.SetBroadcaster(broadcaster)

	taskID, err := svc.StartBookTranslation(book.ID)
	if err != nil {
		t.Fatalf("StartBookTranslation 失败: %v", err)
	}
	if active, ok := svc.ActiveTask(book.ID); !ok || active != taskID {
		t.Fatalf("ActiveTask = %q, %v", active, ok)
	}
	if _, err := svc.StartBookTranslation(book.ID); !apperrors.IsConflictError(err) {
		t.Fatalf("重复启动应返回冲突错误, got %v", err)
	}
	tree, _ := env.books.GetBookTree(context.Background(), book.ID)
	if _, err := svc.TranslateChapter(context.Background(), tree.Parts[0].Chapters[1].ID); !apperrors.IsConflictError(err) {
		t.Fatalf("翻译进行中时章节翻译应返回冲突错误, got %v", err)
	}

	close(provider.block)
	tracker, ok := svc.progress.GetTracker(taskID)
	if !ok {
		t.Fatal("应存在进度跟踪器")
	}
	waitDone(t, tracker)

	snapshot := tracker.Snapshot()
	if snapshot.Status != StatusCompleted || snapshot.Progress != 100 {
		t.Fatalf("任务状态错误: %+v", snapshot)
	}
	if !strings.Contains(snapshot.Message, "Successfully translated 4 chunks") {
		t.Fatalf("完成提示 = %q", snapshot.Message)
	}

	// 后台协程在 Done 关闭后释放锁
	deadline := time.Now().Add(5 * time.Second)
	for svc.locks.IsBookLocked(book.ID) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if svc.locks.IsBookLocked(book.ID) {
		t.Fatal("任务结束后应释放书籍锁")
	}

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if len(broadcaster.updates) == 0 {
		t.Fatal("应推送进度")
	}
}

func TestCancelBookTranslation(t *testing.T) {
	env := newTestEnv(t)
	book := env.importFixture(t)

	provider := &upperProvider{block: make(chan struct{})}
	svc := newTranslationService(t, env, &stubSource{provider: provider})

	taskID, err := svc.StartBookTranslation(book.ID)
	if err != nil {
		t.Fatalf("StartBookTranslation 失败: %v", err)
	}
	if err := svc.Cancel(taskID); err != nil {
		t.Fatalf("Cancel 失败: %v", err)
	}

	tracker, _ := svc.progress.GetTracker(taskID)
	waitDone(t, tracker)
	if status := tracker.Snapshot().Status; status != StatusCancelled {
		t.Fatalf("任务状态 = %s, want cancelled", status)
	}
	if err := svc.Cancel("missing"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("取消不存在的任务应返回 not found, got %v", err)
	}
}

func TestExportEPUB(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	book := env.importFixture(t)

	svc := newTranslationService(t, env, &stubSource{provider: &upperProvider{}})
	tree, _ := env.books.GetBookTree(ctx, book.ID)
	if _, err := svc.TranslateChapter(ctx, tree.Parts[0].Chapters[1].ID); err != nil {
		t.Fatalf("TranslateChapter 失败: %v", err)
	}

	result, err := NewExportService(env.store, env.files).ExportEPUB(ctx, book.ID)
	if err != nil {
		t.Fatalf("ExportEPUB 失败: %v", err)
	}
	if result.Filename != ExportFilename(book.ID) || result.ContentType != EPUBContentType || result.Chapters != 3 {
		t.Fatalf("导出结果错误: %+v", result)
	}

	exported, err := epub.Read(bytes.NewReader(result.Data), int64(len(result.Data)))
	if err != nil {
		t.Fatalf("重新读取导出文件失败: %v", err)
	}
	var paragraphs []string
	for _, doc := range exported.Documents() {
		if strings.HasSuffix(doc.Href, epub.SectionFilename(tree.Parts[0].Chapters[1].ID)) {
			paragraphs = epub.ExtractParagraphs(doc.Content)
		}
	}
	if len(paragraphs) != 3 || paragraphs[0] != "THE CAT SAT." {
		t.Fatalf("导出的段落应使用译文: %q", paragraphs)
	}

	if _, err := NewExportService(env.store, env.files).ExportEPUB(ctx, 999); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的书籍应返回 not found, got %v", err)
	}
}

func TestProgressTracker(t *testing.T) {
	ps := NewProgressService()
	tracker := ps.CreateTracker("t1", 1)
	sub := tracker.Subscribe()

	if first := <-sub; first.Status != StatusRunning || first.Progress != 0 {
		t.Fatalf("订阅时应收到当前状态: %+v", first)
	}

	tracker.UpdateProgress(50, "half")
	tracker.UpdateProgress(20, "")
	if got := tracker.Snapshot(); got.Progress != 50 || got.Message != "half" {
		t.Fatalf("进度应只增不减: %+v", got)
	}

	tracker.Fail("boom")
	tracker.Complete("")
	if got := tracker.Snapshot(); got.Status != StatusFailed || got.Message != "Translation failed: boom" {
		t.Fatalf("任务结束后状态不应改变: %+v", got)
	}

	tracker.Unsubscribe(sub)
	tracker.Unsubscribe(sub)

	if removed := ps.CleanupCompletedTasks(time.Hour); removed != 0 {
		t.Fatalf("新结束的任务不应被清理, removed %d", removed)
	}
	if removed := ps.CleanupCompletedTasks(0); removed != 1 {
		t.Fatalf("应清理 1 个任务, removed %d", removed)
	}
}

func TestLockManager(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	unlock, ok := lm.TryLockBook(1)
	if !ok || !lm.IsBookLocked(1) {
		t.Fatal("第一次加锁应成功")
	}
	if _, ok := lm.TryLockBook(1); ok {
		t.Fatal("重复加锁应失败")
	}
	if _, ok := lm.TryLockBook(2); !ok {
		t.Fatal("不同书籍的锁互不影响")
	}
	unlock()
	unlock()
	if lm.IsBookLocked(1) {
		t.Fatal("释放后不应处于锁定状态")
	}
}
