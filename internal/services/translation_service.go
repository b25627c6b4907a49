// internal/services/translation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
	"github.com/Corphon/EpubTranslator/internal/utils"
)

// ProviderSource 提供当前翻译服务及翻译设置
type ProviderSource interface {
	Provider() (translate.Provider, error)
	TargetLanguage() string
	ApplyGlossary() bool
}

// ProgressBroadcaster 把任务进度推送给书籍的订阅者
type ProgressBroadcaster interface {
	BroadcastBookProgress(bookID int64, update ProgressUpdate)
}

// ProgressFunc 每翻译完一个章节调用一次
type ProgressFunc func(done, total int, chapter *models.Chapter)

// TranslationService 负责章节和整本书的翻译
type TranslationService struct {
	store    *storage.Store
	source   ProviderSource
	glossary *GlossaryService
	locks    *LockManager
	progress *ProgressService
	metrics  *utils.AppMetrics
	logger   *utils.Logger

	mu          sync.Mutex
	broadcaster ProgressBroadcaster
	cancels     map[string]context.CancelFunc
	active      map[int64]string
}

// NewTranslationService 创建翻译服务
func NewTranslationService(store *storage.Store, source ProviderSource, locks *LockManager, progress *ProgressService) *TranslationService {
	return &TranslationService{
		store:    store,
		source:   source,
		glossary: NewGlossaryService(store),
		locks:    locks,
		progress: progress,
		metrics:  utils.NewAppMetrics(),
		logger:   utils.GetLogger(),
		cancels:  make(map[string]context.CancelFunc),
		active:   make(map[int64]string),
	}
}

// SetBroadcaster 设置进度推送目标
func (s *TranslationService) SetBroadcaster(b ProgressBroadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

func (s *TranslationService) broadcast(update ProgressUpdate) {
	s.mu.Lock()
	b := s.broadcaster
	s.mu.Unlock()
	if b != nil {
		b.BroadcastBookProgress(update.BookID, update)
	}
}

// ChapterResultMessage 章节翻译结果的提示文字
func ChapterResultMessage(title string, result models.TranslationResult) string {
	if result.ChunksTranslated == 0 {
		return fmt.Sprintf("No new content to translate in chapter %q.", title)
	}
	return fmt.Sprintf("Successfully translated %d chunks in chapter %q!", result.ChunksTranslated, title)
}

// BookResultMessage 整本书翻译结果的提示文字
func BookResultMessage(title string, result models.TranslationResult) string {
	if result.ChunksTranslated == 0 {
		return fmt.Sprintf("No new content to translate in book %q.", title)
	}
	return fmt.Sprintf("Successfully translated %d chunks in %d chapters of book %q!",
		result.ChunksTranslated, result.ChaptersTranslated, title)
}

// TranslateChapter 翻译章节中所有未翻译的段落
func (s *TranslationService) TranslateChapter(ctx context.Context, chapterID int64) (models.TranslationResult, error) {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return models.TranslationResult{}, err
	}

	unlock, ok := s.locks.TryLockBook(chapter.BookID)
	if !ok {
		return models.TranslationResult{}, apperrors.NewConflictError("书籍正在翻译中", nil)
	}
	defer unlock()

	job, err := s.prepare(ctx, chapter.BookID)
	if err != nil {
		return models.TranslationResult{}, err
	}
	return s.translateChapter(ctx, job, chapter)
}

// TranslateBook 按分部和章节顺序翻译整本书
func (s *TranslationService) TranslateBook(ctx context.Context, bookID int64, progress ProgressFunc) (models.TranslationResult, error) {
	unlock, ok := s.locks.TryLockBook(bookID)
	if !ok {
		return models.TranslationResult{}, apperrors.NewConflictError("书籍正在翻译中", nil)
	}
	defer unlock()

	job, err := s.prepare(ctx, bookID)
	if err != nil {
		return models.TranslationResult{}, err
	}
	return s.translateBook(ctx, job, progress)
}

// StartBookTranslation 在后台翻译整本书，返回任务 ID
func (s *TranslationService) StartBookTranslation(bookID int64) (string, error) {
	unlock, ok := s.locks.TryLockBook(bookID)
	if !ok {
		return "", apperrors.NewConflictError("书籍正在翻译中", nil)
	}

	job, err := s.prepare(context.Background(), bookID)
	if err != nil {
		unlock()
		return "", err
	}

	taskID := uuid.New().String()
	tracker := s.progress.CreateTracker(taskID, bookID)
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.active[bookID] = taskID
	s.mu.Unlock()

	s.metrics.TranslationStarted()
	s.broadcast(tracker.Snapshot())

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("翻译任务异常", map[string]interface{}{
					"task_id": taskID,
					"panic":   fmt.Sprint(r),
				})
				tracker.Fail(fmt.Sprint(r))
			}
			cancel()
			unlock()
			s.mu.Lock()
			delete(s.cancels, taskID)
			if s.active[bookID] == taskID {
				delete(s.active, bookID)
			}
			s.mu.Unlock()
			s.metrics.TranslationFinished()
			s.broadcast(tracker.Snapshot())
		}()

		result, err := s.translateBook(ctx, job, func(done, total int, chapter *models.Chapter) {
			tracker.UpdateProgress(done*100/total, fmt.Sprintf("Translated chapter %d of %d: %s", done, total, chapter.DisplayTitle()))
			s.broadcast(tracker.Snapshot())
		})

		switch {
		case errors.Is(err, context.Canceled):
			tracker.Cancel(fmt.Sprintf("Translation cancelled after %d chunks.", result.ChunksTranslated))
		case err != nil:
			s.logger.Error("翻译任务失败", map[string]interface{}{
				"task_id": taskID,
				"book_id": bookID,
				"error":   err.Error(),
			})
			tracker.Fail(err.Error())
		default:
			tracker.Complete(BookResultMessage(job.book.Title, result))
		}
	}()

	s.logger.Info("翻译任务已启动", map[string]interface{}{"task_id": taskID, "book_id": bookID})
	return taskID, nil
}

// Cancel 取消正在运行的任务
func (s *TranslationService) Cancel(taskID string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[taskID]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError("任务不存在或已结束: "+taskID, nil)
	}
	cancel()
	return nil
}

// ReserveBook 占用书籍锁，释放前不能开始翻译；书籍正在翻译（同步或后台）时返回 false
func (s *TranslationService) ReserveBook(bookID int64) (func(), bool) {
	return s.locks.TryLockBook(bookID)
}

// IsTranslating 书籍是否有正在进行的翻译
func (s *TranslationService) IsTranslating(bookID int64) bool {
	return s.locks.IsBookLocked(bookID)
}

// ActiveTask 返回书籍正在运行的任务 ID
func (s *TranslationService) ActiveTask(bookID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taskID, ok := s.active[bookID]
	return taskID, ok
}

// Shutdown 取消所有后台任务
func (s *TranslationService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

// translationJob 一次翻译所需的上下文
type translationJob struct {
	book     *models.Book
	provider translate.Provider
	target   string
	glossary []translate.GlossaryPair
}

func (s *TranslationService) prepare(ctx context.Context, bookID int64) (*translationJob, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	provider, err := s.source.Provider()
	if err != nil {
		return nil, err
	}

	job := &translationJob{book: book, provider: provider, target: s.source.TargetLanguage()}
	if s.source.ApplyGlossary() {
		if job.glossary, err = s.glossary.Pairs(ctx, bookID); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (s *TranslationService) translateBook(ctx context.Context, job *translationJob, progress ProgressFunc) (models.TranslationResult, error) {
	var result models.TranslationResult

	chapters, err := s.store.ListBookChapters(ctx, job.book.ID)
	if err != nil {
		return result, err
	}
	for i, chapter := range chapters {
		r, err := s.translateChapter(ctx, job, chapter)
		result.Add(r)
		if err != nil {
			return result, err
		}
		if progress != nil {
			progress(i+1, len(chapters), chapter)
		}
	}
	return result, nil
}

func (s *TranslationService) translateChapter(ctx context.Context, job *translationJob, chapter *models.Chapter) (models.TranslationResult, error) {
	var result models.TranslationResult

	chunks, err := s.store.ListUntranslatedChunks(ctx, chapter.ID)
	if err != nil || len(chunks) == 0 {
		return result, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.OriginalText
	}

	for _, batch := range translate.Batch(texts, job.provider.MaxBatchChars()) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		req := translate.Request{
			SourceLanguage: job.book.Language,
			TargetLanguage: job.target,
			Glossary:       job.glossary,
		}
		for _, idx := range batch {
			req.Texts = append(req.Texts, texts[idx])
		}

		start := time.Now()
		translations, err := job.provider.Translate(ctx, req)
		if err == nil && len(translations) != len(req.Texts) {
			err = fmt.Errorf("翻译结果数量不匹配: 期望 %d, 实际 %d", len(req.Texts), len(translations))
		}
		s.metrics.RecordTranslatorRequest(job.provider.GetName(), len(req.Texts), req.Characters(), time.Since(start), err)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if _, ok := apperrors.TypeOf(err); ok {
				return result, err
			}
			return result, apperrors.NewUpstreamError("翻译服务调用失败", err)
		}

		saved := make(map[int64]string, len(batch))
		for i, idx := range batch {
			saved[chunks[idx].ID] = translations[i]
		}
		if err := s.store.SaveTranslations(ctx, saved); err != nil {
			return result, err
		}
		result.ChunksTranslated += len(batch)
		result.CharactersSent += req.Characters()
	}

	result.ChaptersTranslated = 1
	s.logger.Debug("章节翻译完成", map[string]interface{}{
		"chapter_id": chapter.ID,
		"chunks":     result.ChunksTranslated,
	})
	return result, nil
}
