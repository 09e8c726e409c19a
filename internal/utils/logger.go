// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	loggerOnce   sync.Once
	logFile      *os.File
)

// GetLogger 返回全局日志实例
func GetLogger() *logrus.Logger {
	loggerOnce.Do(func() {
		globalLogger = logrus.New()
		globalLogger.SetOutput(os.Stdout)
		globalLogger.SetLevel(logrus.InfoLevel)
		globalLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	})
	return globalLogger
}

// InitLogger 初始化日志文件输出（stdout + 文件双写）
func InitLogger(logPath string) error {
	logger := GetLogger()

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}

	// 关闭之前的日志文件（如果存在）
	if logFile != nil {
		logFile.Close()
	}
	logFile = file

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetDebug 切换调试级别日志
func SetDebug(debug bool) {
	if debug {
		GetLogger().SetLevel(logrus.DebugLevel)
	} else {
		GetLogger().SetLevel(logrus.InfoLevel)
	}
}
