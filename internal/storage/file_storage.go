// internal/storage/file_storage.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStorage 提供导出产物的文件存储服务
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

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile 保存文本文件（临时文件+重命名保证原子性）
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) (string, error) {
	if err := validatePathComponent(dirPath); err != nil {
		return "", err
	}
	if err := validatePathComponent(filename); err != nil {
		return "", err
	}

	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"

	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return "", fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("保存文件失败: %w", err)
	}

	return fullPath, nil
}

// ReadTextFile 读取文本文件
func (fs *FileStorage) ReadTextFile(dirPath, filename string) ([]byte, error) {
	if err := validatePathComponent(dirPath); err != nil {
		return nil, err
	}
	if err := validatePathComponent(filename); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	return data, nil
}

// ListFiles 列出目录下的文件名（按名称排序）
func (fs *FileStorage) ListFiles(dirPath string) ([]string, error) {
	if err := validatePathComponent(dirPath); err != nil {
		return nil, err
	}

	fullDirPath := filepath.Join(fs.BaseDir, dirPath)

	entries, err := os.ReadDir(fullDirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

// RemoveDir 删除目录及其内容（会话清理时使用）
func (fs *FileStorage) RemoveDir(dirPath string) error {
	if err := validatePathComponent(dirPath); err != nil {
		return err
	}

	return os.RemoveAll(filepath.Join(fs.BaseDir, dirPath))
}

// validatePathComponent 拒绝路径穿越
func validatePathComponent(component string) error {
	if component == "" {
		return fmt.Errorf("路径不能为空")
	}
	if strings.Contains(component, "..") || filepath.IsAbs(component) {
		return fmt.Errorf("非法路径: %s", component)
	}
	return nil
}
