// internal/services/export_service.go
package services

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/storage"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

// 导出文档中的固定字符串（与生成内容同为韩文）
const (
	defaultDocumentTitle = "방송대본"
	labelNarration       = "나레이션"
	labelImagePrompt     = "이미지 프롬프트"
	labelVideoPrompt     = "동영상 프롬프트"
	labelNoVideoPrompt   = "동영상 프롬프트 없음"
	labelScene           = "씬"
	labelCut             = "컷"
	documentFooterBrand  = "AI 방송 대본 생성기"
)

// 文件名中不允许的字符
var unsafeFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// ExportService 将大本和已生成图像渲染为导出文档。
// 渲染函数是(Script, ImageMap, 时间戳)上的纯函数，产物落盘由服务层负责。
type ExportService struct {
	storage  *storage.FileStorage
	validate *validator.Validate
}

// NewExportService 创建导出服务实例
func NewExportService(fileStorage *storage.FileStorage) *ExportService {
	return &ExportService{
		storage:  fileStorage,
		validate: validator.New(),
	}
}

// ExportWord 导出可编辑表格文档（Word兼容的.doc包装）
func (s *ExportService) ExportWord(sessionID string, script *models.Script, images models.ImageMap) (*models.ExportResult, error) {
	generatedAt := time.Now()

	content, err := s.BuildWordDocument(script, images, generatedAt)
	if err != nil {
		return nil, err
	}

	result := &models.ExportResult{
		SessionID:   sessionID,
		Title:       documentTitle(script),
		Form:        models.ExportFormWord,
		Content:     "\uFEFF" + content, // BOM让Word正确识别UTF-8
		FileName:    exportFileName(script, generatedAt),
		ContentType: "application/msword",
		SceneCount:  len(script.Scenes),
		CutCount:    script.TotalCuts(),
		GeneratedAt: generatedAt,
	}

	s.saveArtifact(result)
	return result, nil
}

// ExportPrint 导出分页打印文档（由客户端打开打印对话框）
func (s *ExportService) ExportPrint(sessionID string, script *models.Script, images models.ImageMap) (*models.ExportResult, error) {
	generatedAt := time.Now()

	content, err := s.BuildPrintDocument(script, images, generatedAt)
	if err != nil {
		return nil, err
	}

	result := &models.ExportResult{
		SessionID:   sessionID,
		Title:       documentTitle(script),
		Form:        models.ExportFormPrint,
		Content:     content,
		FileName:    "",
		ContentType: "text/html; charset=utf-8",
		SceneCount:  len(script.Scenes),
		CutCount:    script.TotalCuts(),
		GeneratedAt: generatedAt,
	}

	s.saveArtifact(result)
	return result, nil
}

// saveArtifact 保存导出产物副本，失败只记日志不影响导出
func (s *ExportService) saveArtifact(result *models.ExportResult) {
	if s.storage == nil {
		return
	}

	filename := result.FileName
	if filename == "" {
		filename = fmt.Sprintf("%s_%s.html", sanitizeFilename(result.Title),
			result.GeneratedAt.Format("20060102_150405"))
	}

	path, err := s.storage.SaveTextFile(result.SessionID, filename, []byte(result.Content))
	if err != nil {
		utils.GetLogger().WithField("error", err.Error()).Warn("保存导出产物失败")
		return
	}
	result.FilePath = path
}

// ListArtifacts 列出会话已保存的导出产物文件名
func (s *ExportService) ListArtifacts(sessionID string) ([]string, error) {
	if s.storage == nil {
		return []string{}, nil
	}
	return s.storage.ListFiles(sessionID)
}

// ReadArtifact 按文件名读取已保存的导出产物
func (s *ExportService) ReadArtifact(sessionID, filename string) ([]byte, error) {
	if s.storage == nil {
		return nil, apperrors.NewNotFoundError("导出产物不存在: "+filename, nil)
	}

	data, err := s.storage.ReadTextFile(sessionID, filename)
	if err != nil {
		return nil, apperrors.NewNotFoundError("导出产物不存在: "+filename, err)
	}
	return data, nil
}

// validateForExport 导出前的结构校验。
// 可选字段（时长、韩文提示、视频提示、图像）缺失不报错；
// 场景存在但镜头缺少旁白/提示词属于畸形大本，宁可拒绝也不输出残缺文档。
func (s *ExportService) validateForExport(script *models.Script) error {
	if script == nil {
		return apperrors.NewValidationError("尚未生成大本，无法导出", nil)
	}
	if len(script.Scenes) == 0 {
		return apperrors.NewValidationError("大本中没有场景，无法导出", nil)
	}

	if err := s.validate.Struct(script); err != nil {
		return apperrors.NewValidationError("大本结构不完整，拒绝导出", err)
	}

	return nil
}

// BuildWordDocument 渲染形式A：每个镜头一行的可编辑表格，
// 场景列在该场景第一行以rowspan纵向合并。
func (s *ExportService) BuildWordDocument(script *models.Script, images models.ImageMap, generatedAt time.Time) (string, error) {
	if err := s.validateForExport(script); err != nil {
		return "", err
	}

	title := documentTitle(script)
	totalCuts := script.TotalCuts()

	var b strings.Builder

	// Word识别的HTML包装（xmlns:w 声明 + mso分页样式）
	b.WriteString(`<html xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:w="urn:schemas-microsoft-com:office:word" xmlns="http://www.w3.org/TR/REC-html40">
<head>
<meta charset="utf-8">
<title>`)
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</title>
<!--[if gte mso 9]><xml><w:WordDocument><w:View>Print</w:View><w:Zoom>100</w:Zoom></w:WordDocument></xml><![endif]-->
<style>
  body { font-family: 'Malgun Gothic', 'Apple SD Gothic Neo', sans-serif; font-size: 10pt; }
  h1 { font-size: 16pt; text-align: center; }
  .meta { text-align: center; color: #6B7280; font-size: 9pt; margin-bottom: 16pt; }
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1pt solid #9CA3AF; padding: 6pt; vertical-align: top; }
  th { background: #EEF2FF; font-size: 9pt; }
  .scene-cell { background: #F9FAFB; font-weight: bold; text-align: center; }
  .prompt { font-family: Consolas, monospace; font-size: 8pt; color: #4B5563; }
  .prompt-kr { font-size: 8pt; color: #6B7280; border-top: 1pt dashed #D1D5DB; margin-top: 4pt; padding-top: 4pt; }
  .cut-image { width: 180pt; }
</style>
</head>
<body>
`)

	b.WriteString("<h1>" + html.EscapeString(title) + "</h1>\n")
	b.WriteString(fmt.Sprintf(`<div class="meta">러닝타임: %s | %s: %d개 | %s: %d개 | 생성일: %s</div>`,
		formatDuration(script.TotalDuration), labelScene, len(script.Scenes),
		labelCut, totalCuts, generatedAt.Format("2006-01-02")))
	b.WriteString("\n<table>\n<tr>")
	for _, header := range []string{labelScene, labelCut, "샷 타입", "시간", labelNarration, labelImagePrompt, "이미지"} {
		b.WriteString("<th>" + html.EscapeString(header) + "</th>")
	}
	b.WriteString("</tr>\n")

	for _, scene := range script.Scenes {
		for i, cut := range scene.Cuts {
			b.WriteString("<tr>")

			// 场景合并单元格：只在该场景第一行输出，跨越其全部镜头行
			if i == 0 {
				b.WriteString(fmt.Sprintf(`<td class="scene-cell" rowspan="%d">%s %d`,
					len(scene.Cuts), labelScene, scene.SceneNumber))
				if scene.SceneTitle != "" {
					b.WriteString("<br>" + html.EscapeString(scene.SceneTitle))
				}
				b.WriteString("</td>")
			}

			b.WriteString(fmt.Sprintf("<td>%d</td>", cut.CutNumber))
			b.WriteString("<td>" + html.EscapeString(cut.ShotType) + "</td>")
			b.WriteString("<td>" + durationCell(cut.Duration) + "</td>")
			b.WriteString("<td>" + html.EscapeString(cut.Audio) + "</td>")

			b.WriteString(`<td><div class="prompt">` + html.EscapeString(cut.Prompt) + "</div>")
			if cut.PromptKr != "" {
				b.WriteString(`<div class="prompt-kr">` + html.EscapeString(cut.PromptKr) + "</div>")
			}
			b.WriteString("</td>")

			// 图像列：仅当该镜头键有生成图像时嵌入
			key := models.NewCutKey(scene.SceneNumber, cut.CutNumber)
			if imageURI, ok := images[key]; ok {
				b.WriteString(fmt.Sprintf(`<td><img class="cut-image" src="%s" alt="%s %d %s %d"></td>`,
					imageURI, labelScene, scene.SceneNumber, labelCut, cut.CutNumber))
			} else {
				b.WriteString("<td></td>")
			}

			b.WriteString("</tr>\n")
		}
	}

	b.WriteString("</table>\n")
	b.WriteString(fmt.Sprintf(`<div class="meta">%s | 생성일: %s</div>`,
		documentFooterBrand, generatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString("\n</body>\n</html>\n")

	return b.String(), nil
}

// BuildPrintDocument 渲染形式B：按场景分块的分页打印文档。
// 场景块和镜头块都不允许跨页断开；视频提示缺失时渲染占位文本而不是空面板。
func (s *ExportService) BuildPrintDocument(script *models.Script, images models.ImageMap, generatedAt time.Time) (string, error) {
	if err := s.validateForExport(script); err != nil {
		return "", err
	}

	title := documentTitle(script)
	totalCuts := script.TotalCuts()

	var b strings.Builder

	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>`)
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</title>
<style>
  @page { size: A4; margin: 20mm; }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: 'Malgun Gothic', 'Apple SD Gothic Neo', 'Noto Sans KR', sans-serif;
    font-size: 11px; line-height: 1.6; color: #333; background: #fff; padding: 20px;
  }
  .document-header { text-align: center; border-bottom: 4px solid #4F46E5; padding-bottom: 20px; margin-bottom: 30px; }
  .document-title { font-size: 24px; font-weight: bold; color: #1E1B4B; margin-bottom: 10px; }
  .document-meta { color: #6B7280; font-size: 12px; }
  .scene { margin-bottom: 25px; page-break-inside: avoid; }
  .scene-header {
    background: linear-gradient(135deg, #4F46E5, #6366F1); color: white;
    padding: 12px 20px; font-size: 14px; font-weight: bold; border-radius: 8px 8px 0 0;
  }
  .scene-body { border: 1px solid #E5E7EB; border-top: none; border-radius: 0 0 8px 8px; }
  .cut { padding: 20px; border-bottom: 1px solid #E5E7EB; page-break-inside: avoid; }
  .cut:last-child { border-bottom: none; }
  .cut-header { display: flex; align-items: center; gap: 12px; margin-bottom: 15px; padding-bottom: 10px; border-bottom: 1px solid #F3F4F6; }
  .cut-number {
    width: 32px; height: 32px; background: #4F46E5; color: white; border-radius: 50%;
    display: flex; align-items: center; justify-content: center; font-weight: bold; font-size: 12px;
  }
  .shot-type { background: #EEF2FF; color: #4338CA; padding: 4px 12px; border-radius: 12px; font-size: 11px; font-weight: 500; }
  .duration { color: #9CA3AF; font-size: 11px; }
  .cut-body { display: flex; gap: 20px; }
  .left-content { flex: 1; }
  .right-content { width: 200px; flex-shrink: 0; }
  .preview-image { width: 100%; border-radius: 8px; border: 1px solid #E5E7EB; }
  .section { margin-bottom: 12px; border-radius: 8px; padding: 12px; }
  .section-label { font-size: 10px; font-weight: bold; text-transform: uppercase; margin-bottom: 6px; }
  .section-content { font-size: 12px; line-height: 1.7; }
  .section-content.mono { font-family: 'Consolas', 'Monaco', monospace; font-size: 10px; background: white; padding: 10px; border-radius: 6px; word-break: break-word; }
  .audio-section { background: #EFF6FF; border: 1px solid #BFDBFE; }
  .audio-section .section-label { color: #1D4ED8; }
  .audio-section .section-content { color: #1E40AF; }
  .prompt-section { background: #F9FAFB; border: 1px solid #E5E7EB; }
  .prompt-section .section-label { color: #374151; }
  .prompt-section .section-content { color: #4B5563; border: 1px solid #E5E7EB; }
  .prompt-kr { margin-top: 8px; padding-top: 8px; border-top: 1px solid #E5E7EB; font-size: 10px; color: #6B7280; }
  .video-section { background: #FAF5FF; border: 1px solid #E9D5FF; }
  .video-section .section-label { color: #7C3AED; }
  .video-section .section-content { color: #5B21B6; border: 1px solid #E9D5FF; }
  .no-content { color: #A78BFA; font-style: italic; }
  .document-footer { text-align: center; margin-top: 30px; padding-top: 20px; border-top: 2px solid #E5E7EB; color: #9CA3AF; font-size: 10px; }
  @media print {
    body { padding: 0; }
    .scene { page-break-inside: avoid; }
    .cut { page-break-inside: avoid; }
  }
</style>
</head>
<body>
`)

	// 标题块：标题、分+秒渲染的总时长、场景数、重新统计的镜头数
	b.WriteString(`<div class="document-header">
  <div class="document-title">` + html.EscapeString(title) + `</div>
  <div class="document-meta">`)
	b.WriteString(fmt.Sprintf("러닝타임: %s | %s: %d개 | %s: %d개 | 생성일: %s",
		formatDuration(script.TotalDuration), labelScene, len(script.Scenes),
		labelCut, totalCuts, generatedAt.Format("2006-01-02")))
	b.WriteString("</div>\n</div>\n")

	for _, scene := range script.Scenes {
		b.WriteString(`<div class="scene">` + "\n")
		b.WriteString(fmt.Sprintf(`  <div class="scene-header">%s %d: %s</div>`,
			labelScene, scene.SceneNumber, html.EscapeString(scene.SceneTitle)))
		b.WriteString("\n" + `  <div class="scene-body">` + "\n")

		for _, cut := range scene.Cuts {
			writePrintCut(&b, scene.SceneNumber, cut, images)
		}

		b.WriteString("  </div>\n</div>\n")
	}

	b.WriteString(fmt.Sprintf(`<div class="document-footer">%s | 생성일: %s</div>`,
		documentFooterBrand, generatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString("\n</body>\n</html>\n")

	return b.String(), nil
}

// writePrintCut 渲染一个镜头块
func writePrintCut(b *strings.Builder, sceneNumber int, cut models.Cut, images models.ImageMap) {
	b.WriteString(`    <div class="cut">` + "\n")

	// 镜头头部徽章
	b.WriteString(fmt.Sprintf(`      <div class="cut-header"><span class="cut-number">%d</span><span class="shot-type">%s</span><span class="duration">%s</span></div>`,
		cut.CutNumber, html.EscapeString(cut.ShotType), durationCell(cut.Duration)))
	b.WriteString("\n" + `      <div class="cut-body">` + "\n" + `        <div class="left-content">` + "\n")

	// 旁白面板
	b.WriteString(fmt.Sprintf(`          <div class="section audio-section"><div class="section-label">%s (%d초)</div><div class="section-content">%s</div></div>`,
		labelNarration, cut.Duration, html.EscapeString(cut.Audio)))
	b.WriteString("\n")

	// 图像提示面板（含可选的韩文说明）
	b.WriteString(`          <div class="section prompt-section"><div class="section-label">` + labelImagePrompt + `</div>`)
	b.WriteString(`<div class="section-content mono">` + html.EscapeString(cut.Prompt) + "</div>")
	if cut.PromptKr != "" {
		b.WriteString(`<div class="prompt-kr">` + html.EscapeString(cut.PromptKr) + "</div>")
	}
	b.WriteString("</div>\n")

	// 视频提示面板：缺失时渲染占位文本，绝不省略面板
	b.WriteString(`          <div class="section video-section"><div class="section-label">` + labelVideoPrompt + `</div><div class="section-content mono">`)
	if cut.VideoPrompt != "" {
		b.WriteString(html.EscapeString(cut.VideoPrompt))
	} else {
		b.WriteString(`<span class="no-content">` + labelNoVideoPrompt + "</span>")
	}
	b.WriteString("</div></div>\n")

	b.WriteString("        </div>\n")

	// 生成图像（仅当存在时输出区块）
	key := models.NewCutKey(sceneNumber, cut.CutNumber)
	if imageURI, ok := images[key]; ok {
		b.WriteString(fmt.Sprintf(`        <div class="right-content"><img src="%s" alt="%s %d %s %d" class="preview-image"></div>`,
			imageURI, labelScene, sceneNumber, labelCut, cut.CutNumber))
		b.WriteString("\n")
	}

	b.WriteString("      </div>\n    </div>\n")
}

// documentTitle 返回文档标题，空标题用默认值
func documentTitle(script *models.Script) string {
	if script == nil || strings.TrimSpace(script.Title) == "" {
		return defaultDocumentTitle
	}
	return script.Title
}

// durationCell 时长单元格：零/缺失渲染为"-"
func durationCell(duration int) string {
	if duration <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d초", duration)
}

// formatDuration 将秒渲染为 분+초
func formatDuration(totalSeconds int) string {
	if totalSeconds <= 0 {
		return "0분 0초"
	}
	return fmt.Sprintf("%d분 %d초", totalSeconds/60, totalSeconds%60)
}

// exportFileName 生成下载文件名: <标题>_<ISO日期>.doc
func exportFileName(script *models.Script, generatedAt time.Time) string {
	return fmt.Sprintf("%s_%s.doc", sanitizeFilename(documentTitle(script)),
		generatedAt.Format("2006-01-02"))
}

// sanitizeFilename 清理文件名中的不安全字符
func sanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "_")
	cleaned = strings.Trim(cleaned, "._")
	if cleaned == "" {
		return defaultDocumentTitle
	}
	return cleaned
}
