// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

// 任务状态
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID   string `json:"task_id"`
	BookID   int64  `json:"book_id,omitempty"`
	Progress int    `json:"progress"` // 进度百分比 (0-100)
	Message  string `json:"message"`
	Status   string `json:"status"` // running, completed, failed, cancelled
}

// Finished 任务是否已结束
func (u ProgressUpdate) Finished() bool {
	return u.Status != StatusRunning
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	TaskID      string
	BookID      int64
	Progress    int
	Message     string
	Status      string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{} // 任务结束时关闭
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器，已存在时返回现有跟踪器
func (s *ProgressService) CreateTracker(taskID string, bookID int64) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		BookID:      bookID,
		Message:     "Starting...",
		Status:      StatusRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}
	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// snapshotLocked 生成当前状态，调用方需持有锁
func (t *ProgressTracker) snapshotLocked() ProgressUpdate {
	return ProgressUpdate{
		TaskID:   t.TaskID,
		BookID:   t.BookID,
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	}
}

// Snapshot 返回当前进度
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshotLocked()
}

// broadcastLocked 非阻塞地通知所有订阅者，通道已满则跳过
func (t *ProgressTracker) broadcastLocked() {
	update := t.snapshotLocked()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

// UpdateProgress 更新任务进度，进度只增不减
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcastLocked()
}

// finish 结束任务并关闭 Done
func (t *ProgressTracker) finish(status, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	t.Status = status
	t.Message = message
	if status == StatusCompleted {
		t.Progress = 100
	}
	t.UpdateTime = time.Now()
	t.broadcastLocked()
	close(t.Done)
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string) {
	if message == "" {
		message = "Task completed"
	}
	t.finish(StatusCompleted, message)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.finish(StatusFailed, fmt.Sprintf("Translation failed: %s", errorMsg))
}

// Cancel 标记任务已取消
func (t *ProgressTracker) Cancel(message string) {
	if message == "" {
		message = "Task cancelled"
	}
	t.finish(StatusCancelled, message)
}

// Subscribe 订阅进度更新，订阅时立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true
	subscriber <- t.snapshotLocked()
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Subscribers[subscriber]; !exists {
		return
	}
	delete(t.Subscribers, subscriber)
	close(subscriber)
}

// CleanupCompletedTasks 清理结束超过 maxAge 的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status != StatusRunning
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if finished && isOld {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}
