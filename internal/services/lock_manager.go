// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按书籍管理互斥锁，保证同一本书同时只有一个翻译任务
type LockManager struct {
	bookLocks  map[int64]*LockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    sync.Mutex
	LastUsed time.Time
	held     bool
}

// NewLockManager 创建锁管理器并启动定期清理
func NewLockManager() *LockManager {
	lm := &LockManager{
		bookLocks: make(map[int64]*LockInfo),
		lockTTL:   30 * time.Minute,
		stopChan:  make(chan struct{}),
	}
	lm.startCleanup(5 * time.Minute)
	return lm
}

func (lm *LockManager) getBookLock(bookID int64) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.bookLocks[bookID]
	if !exists {
		info = &LockInfo{}
		lm.bookLocks[bookID] = info
	}
	info.LastUsed = time.Now()
	return info
}

// TryLockBook 尝试获取书籍锁，成功时返回释放函数
func (lm *LockManager) TryLockBook(bookID int64) (func(), bool) {
	info := lm.getBookLock(bookID)
	if !info.Mutex.TryLock() {
		return nil, false
	}

	lm.globalLock.Lock()
	info.held = true
	lm.globalLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.globalLock.Lock()
			info.held = false
			info.LastUsed = time.Now()
			lm.globalLock.Unlock()
			info.Mutex.Unlock()
		})
	}, true
}

// IsBookLocked 检查书籍当前是否被锁定
func (lm *LockManager) IsBookLocked(bookID int64) bool {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.bookLocks[bookID]
	return exists && info.held
}

func (lm *LockManager) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-lm.stopChan:
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks()
			}
		}
	}()
}

// cleanupUnusedLocks 删除长时间未使用且未被持有的锁
func (lm *LockManager) cleanupUnusedLocks() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	now := time.Now()
	for bookID, info := range lm.bookLocks {
		if !info.held && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.bookLocks, bookID)
			removed++
		}
	}
	return removed
}

// Stop 停止清理协程
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}
