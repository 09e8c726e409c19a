// internal/models/export.go
package models

import "time"

// 导出形式
const (
	ExportFormWord  = "word"  // 可编辑表格文档（.doc 包装）
	ExportFormPrint = "print" // 分页打印文档（浏览器打印/PDF）
)

// ExportResult 表示一次导出操作的结果
type ExportResult struct {
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	Form        string    `json:"form"`
	Content     string    `json:"content"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SceneCount  int       `json:"scene_count"`
	CutCount    int       `json:"cut_count"`
	GeneratedAt time.Time `json:"generated_at"`
	FilePath    string    `json:"file_path,omitempty"`
}
