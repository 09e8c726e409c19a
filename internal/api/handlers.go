// internal/api/handlers.go
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ScriptStudioMCP/internal/imgutil"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/services"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

// 上传图像大小上限（原始字节）
const maxUploadBytes = 8 << 20

// Handler API处理器
type Handler struct {
	SessionService  *services.SessionService
	ScriptService   *services.ScriptService
	AnalyzerService *services.AnalyzerService
	ImageService    *services.ImageService
	ExportService   *services.ExportService

	responseHelper *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	sessionService *services.SessionService,
	scriptService *services.ScriptService,
	analyzerService *services.AnalyzerService,
	imageService *services.ImageService,
	exportService *services.ExportService,
) *Handler {
	return &Handler{
		SessionService:  sessionService,
		ScriptService:   scriptService,
		AnalyzerService: analyzerService,
		ImageService:    imageService,
		ExportService:   exportService,
		responseHelper:  NewResponseHelper(),
	}
}

// getSession 解析路径中的会话ID并取出会话
func (h *Handler) getSession(c *gin.Context) (*services.Session, bool) {
	session, err := h.SessionService.GetSession(c.Param("id"))
	if err != nil {
		h.responseHelper.AppError(c, err)
		return nil, false
	}
	return session, true
}

// getCutKey 解析路径中的场景号/镜头号
func (h *Handler) getCutKey(c *gin.Context) (models.CutKey, bool) {
	scene, err := strconv.Atoi(c.Param("scene"))
	if err != nil || scene <= 0 {
		h.responseHelper.BadRequest(c, "场景号必须是正整数")
		return models.CutKey{}, false
	}

	cut, err := strconv.Atoi(c.Param("cut"))
	if err != nil || cut <= 0 {
		h.responseHelper.BadRequest(c, "镜头号必须是正整数")
		return models.CutKey{}, false
	}

	return models.NewCutKey(scene, cut), true
}

// buildStateView 构造对外的状态视图，凭证只暴露有无
func buildStateView(snapshot state.State, version uint64) gin.H {
	return gin.H{
		"version":              version,
		"has_credential":       snapshot.Credential != "",
		"topic":                snapshot.Topic,
		"duration_seconds":     snapshot.DurationSeconds,
		"synopsis":             snapshot.Synopsis,
		"notes":                snapshot.Notes,
		"script":               snapshot.Script,
		"style_reference":      snapshot.StyleReference,
		"characters":           snapshot.Characters,
		"auto_cast_characters": snapshot.AutoCastCharacters,
		"generated_images":     snapshot.GeneratedImages,
		"flags":                snapshot.Flags(),
		"generating_image_for": snapshot.GeneratingImageFor,
		"modal_image":          snapshot.ModalImage,
	}
}

// ===============================
// 会话
// ===============================

// CreateSession 创建新会话
func (h *Handler) CreateSession(c *gin.Context) {
	session := h.SessionService.CreateSession()
	h.responseHelper.Created(c, gin.H{
		"session_id": session.ID,
		"state":      buildStateView(session.Store.Snapshot(), session.Store.Version()),
	}, "会话已创建")
}

// GetSessionState 返回会话状态快照
func (h *Handler) GetSessionState(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}
	h.responseHelper.Success(c,
		buildStateView(session.Store.Snapshot(), session.Store.Version()))
}

// ResetSession 重置会话状态（保留凭证）
func (h *Handler) ResetSession(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	snapshot, err := session.Store.Apply(state.Reset{})
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c,
		buildStateView(snapshot, session.Store.Version()), "会话已重置")
}

// ===============================
// 用户输入
// ===============================

// updateInputRequest 输入更新请求：字段为nil表示不修改
type updateInputRequest struct {
	Credential      *string `json:"credential"`
	Topic           *string `json:"topic"`
	DurationSeconds *int    `json:"duration_seconds"`
	Synopsis        *string `json:"synopsis"`
	Notes           *string `json:"notes"`
}

// UpdateInput 更新用户输入字段
func (h *Handler) UpdateInput(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	var req updateInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responseHelper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	var actions []state.Action
	if req.Credential != nil {
		actions = append(actions, state.SetCredential{Credential: *req.Credential})
	}
	if req.Topic != nil {
		actions = append(actions, state.SetTopic{Topic: *req.Topic})
	}
	if req.DurationSeconds != nil {
		actions = append(actions, state.SetDuration{Seconds: *req.DurationSeconds})
	}
	if req.Synopsis != nil {
		actions = append(actions, state.SetSynopsis{Synopsis: *req.Synopsis})
	}
	if req.Notes != nil {
		actions = append(actions, state.SetNotes{Notes: *req.Notes})
	}

	if len(actions) == 0 {
		h.responseHelper.BadRequest(c, "没有需要更新的字段")
		return
	}

	for _, action := range actions {
		if _, err := session.Store.Apply(action); err != nil {
			h.responseHelper.AppError(c, err)
			return
		}
	}

	h.responseHelper.Success(c,
		buildStateView(session.Store.Snapshot(), session.Store.Version()))
}

// ===============================
// 大本
// ===============================

// GenerateScript 基于用户输入生成大本
func (h *Handler) GenerateScript(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	script, err := h.ScriptService.GenerateScript(c.Request.Context(), session.Store)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"script": script})
}

// LoadDemoScript 加载演示大本（无需API调用）
func (h *Handler) LoadDemoScript(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	script, err := h.ScriptService.LoadDemoScript(session.Store)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"script": script})
}

// updateCutPromptRequest 镜头提示词更新请求（0基索引）
type updateCutPromptRequest struct {
	SceneIndex *int   `json:"scene_index" binding:"required"`
	CutIndex   *int   `json:"cut_index" binding:"required"`
	Prompt     string `json:"prompt"`
}

// UpdateCutPrompt 更新指定镜头的图像提示词
func (h *Handler) UpdateCutPrompt(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	var req updateCutPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responseHelper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	snapshot, err := session.Store.Apply(state.UpdateCutPrompt{
		SceneIndex: *req.SceneIndex,
		CutIndex:   *req.CutIndex,
		Prompt:     req.Prompt,
	})
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"script": snapshot.Script})
}

// ===============================
// 风格/人物参考
// ===============================

// readUploadedImage 读取multipart图像字段并检测类型
func (h *Handler) readUploadedImage(c *gin.Context, field string) ([]byte, string, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		h.responseHelper.BadRequest(c, "缺少图像文件", err.Error())
		return nil, "", false
	}
	if fileHeader.Size > maxUploadBytes {
		h.responseHelper.BadRequest(c, "图像文件过大")
		return nil, "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.responseHelper.InternalError(c, "读取上传文件失败", err.Error())
		return nil, "", false
	}
	defer func(f multipart.File) { f.Close() }(file)

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.responseHelper.InternalError(c, "读取上传文件失败", err.Error())
		return nil, "", false
	}

	mimeType := imgutil.DetectImageType(data)
	if !imgutil.IsValidImageType(mimeType) {
		h.responseHelper.BadRequest(c, "不支持的图像格式")
		return nil, "", false
	}

	utils.GetLogger().WithFields(map[string]interface{}{
		"mime_type": mimeType,
		"size":      imgutil.FormatFileSize(int64(len(data))),
	}).Debug("收到参考图像")

	return data, mimeType, true
}

// AnalyzeStyle 上传并分析风格参考图像
func (h *Handler) AnalyzeStyle(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	data, mimeType, ok := h.readUploadedImage(c, "image")
	if !ok {
		return
	}

	reference, err := h.AnalyzerService.AnalyzeStyle(c.Request.Context(), session.Store, data, mimeType)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"style_reference": reference})
}

// ClearStyle 清除风格参考
func (h *Handler) ClearStyle(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	if _, err := session.Store.Apply(state.SetStyleReference{Reference: nil}); err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, nil, "风格参考已清除")
}

// AnalyzeCharacter 上传并分析人物参考图像
func (h *Handler) AnalyzeCharacter(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	name := c.PostForm("name")
	if name == "" {
		h.responseHelper.BadRequest(c, "人物名称不能为空")
		return
	}

	data, mimeType, ok := h.readUploadedImage(c, "image")
	if !ok {
		return
	}

	character, err := h.AnalyzerService.AnalyzeCharacter(c.Request.Context(), session.Store, name, data, mimeType)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"character": character})
}

// RemoveCharacter 移除人物参考
func (h *Handler) RemoveCharacter(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	if _, err := session.Store.Apply(state.RemoveCharacter{ID: c.Param("charID")}); err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, nil, "人物参考已移除")
}

// AutoCast 基于剧情简介自动选角
func (h *Handler) AutoCast(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	characters, err := h.AnalyzerService.AutoCast(c.Request.Context(), session.Store)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"characters": characters})
}

// ===============================
// 镜头图像
// ===============================

// GenerateCutImage 为指定镜头生成图像
func (h *Handler) GenerateCutImage(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	key, ok := h.getCutKey(c)
	if !ok {
		return
	}

	image, err := h.ImageService.GenerateCutImage(c.Request.Context(), session.Store, key)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"cut_key": key, "image": image})
}

// RegenerateCutImage 丢弃已有图像后重新生成
func (h *Handler) RegenerateCutImage(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	key, ok := h.getCutKey(c)
	if !ok {
		return
	}

	image, err := h.ImageService.RegenerateCutImage(c.Request.Context(), session.Store, key)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"cut_key": key, "image": image})
}

// RemoveCutImage 删除指定镜头的生成图像
func (h *Handler) RemoveCutImage(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	key, ok := h.getCutKey(c)
	if !ok {
		return
	}

	if err := h.ImageService.RemoveCutImage(session.Store, key); err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"cut_key": key}, "图像已删除")
}

// ===============================
// 导出
// ===============================

// ExportWord 导出形式A：可编辑Word表格文档
func (h *Handler) ExportWord(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	snapshot := session.Store.Snapshot()
	result, err := h.ExportService.ExportWord(session.ID, snapshot.Script, snapshot.GeneratedImages)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.ExportResponse(c, result)
}

// ExportPrint 导出形式B：分页打印文档
func (h *Handler) ExportPrint(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	snapshot := session.Store.Snapshot()
	result, err := h.ExportService.ExportPrint(session.ID, snapshot.Script, snapshot.GeneratedImages)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.ExportResponse(c, result)
}

// ListExportArtifacts 列出会话已保存的导出产物文件名
func (h *Handler) ListExportArtifacts(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	files, err := h.ExportService.ListArtifacts(session.ID)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	h.responseHelper.Success(c, gin.H{"files": files})
}

// DownloadExportArtifact 按文件名下载已保存的导出产物
func (h *Handler) DownloadExportArtifact(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}

	filename := c.Param("name")
	data, err := h.ExportService.ReadArtifact(session.ID, filename)
	if err != nil {
		h.responseHelper.AppError(c, err)
		return
	}

	contentType := "text/html; charset=utf-8"
	if strings.HasSuffix(filename, ".doc") {
		contentType = "application/msword"
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	c.Data(http.StatusOK, contentType, data)
}

// ===============================
// WebSocket / 健康检查
// ===============================

// SessionWebSocket 订阅会话状态变更
func (h *Handler) SessionWebSocket(c *gin.Context) {
	session, ok := h.getSession(c)
	if !ok {
		return
	}
	ServeStoreEvents(c, session.ID, session.Store)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.responseHelper.Success(c, gin.H{
		"status":   "ok",
		"sessions": h.SessionService.Count(),
	})
}
