package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"olxscout/internal/shared/logger"
)

const template = "# Add your proxies here in format: ip:port or ip:port:username:password\n" +
	"# Example: 123.45.67.89:8080:user:pass\n"

// Storage 接口定义了代理列表来源的行为。
type Storage interface {
	Load() ([]string, error)
}

// FileStorage 实现了 Storage 接口，读取按行组织的代理列表文件。
type FileStorage struct {
	filePath       string
	createTemplate bool
	mu             sync.Mutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。
// createTemplate 为 true 时，文件缺失会写入一个带注释的模板文件。
func NewFileStorage(filePath string, createTemplate bool) *FileStorage {
	return &FileStorage{
		filePath:       filePath,
		createTemplate: createTemplate,
	}
}

// Path returns the backing file path.
func (fs *FileStorage) Path() string {
	return fs.filePath
}

// Load 返回文件中的所有原始行。文件不存在不是错误，返回空列表。
func (fs *FileStorage) Load() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("ProxyPool/Storage")

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Warn().Str("path", fs.filePath).Msg("Proxy list not found, working without proxies.")
			if fs.createTemplate {
				if werr := fs.writeTemplate(); werr != nil {
					l.Warn().Err(werr).Str("path", fs.filePath).Msg("Failed to create proxy list template.")
				}
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	l.Debug().Int("lines", len(lines)).Str("path", fs.filePath).Msg("Proxy list read.")
	return lines, nil
}

func (fs *FileStorage) writeTemplate() error {
	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(fs.filePath, []byte(template), 0644)
}
