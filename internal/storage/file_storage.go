// internal/storage/file_storage.go
package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStorage 管理上传的原始 EPUB 文件和导出文件
type FileStorage struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileStorage{BaseDir: baseDir}, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// BookDir 返回书籍上传目录的相对路径
func BookDir(bookID int64) string {
	return filepath.Join("uploads", fmt.Sprintf("book_%d", bookID))
}

// SanitizeFilename 去掉路径部分和不安全字符
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "book.epub"
	}
	return name
}

// SaveFile 原子写入文件
func (fs *FileStorage) SaveFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			log.Printf("警告: 清理临时文件失败 %s: %v", tempPath, removeErr)
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}

// LoadFile 读取文件
func (fs *FileStorage) LoadFile(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return content, nil
}

// SaveUpload 保存书籍的原始上传文件
func (fs *FileStorage) SaveUpload(bookID int64, filename string, content []byte) (string, error) {
	name := SanitizeFilename(filename)
	if err := fs.SaveFile(BookDir(bookID), name, content); err != nil {
		return "", err
	}
	return name, nil
}

// LoadUpload 读取书籍的原始上传文件
func (fs *FileStorage) LoadUpload(bookID int64, filename string) ([]byte, error) {
	return fs.LoadFile(BookDir(bookID), SanitizeFilename(filename))
}

// FileExists 检查文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	_, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	return err == nil
}

// DeleteBookFiles 删除书籍的全部上传文件，目录不存在时不报错
func (fs *FileStorage) DeleteBookFiles(bookID int64) error {
	fullPath := filepath.Join(fs.BaseDir, BookDir(bookID))

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("删除书籍文件失败: %w", err)
	}
	fs.fileLocks.Delete(fullPath)
	return nil
}

// TempDir 在数据目录下创建临时工作目录，调用方负责删除
func (fs *FileStorage) TempDir(pattern string) (string, error) {
	base := filepath.Join(fs.BaseDir, "exports")
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}
	return os.MkdirTemp(base, pattern)
}
