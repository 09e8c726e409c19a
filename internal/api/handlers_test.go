// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/ScriptStudioMCP/internal/llm"
	"github.com/Corphon/ScriptStudioMCP/internal/services"
	"github.com/Corphon/ScriptStudioMCP/internal/storage"
)

// stubProvider 固定响应的测试提供商
type stubProvider struct {
	text  string
	image string
}

func (p *stubProvider) Initialize(config map[string]string) error { return nil }
func (p *stubProvider) GetName() string                           { return "stub" }

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Text: p.text}, nil
}

func (p *stubProvider) CompleteVision(ctx context.Context, req llm.VisionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Text: p.text}, nil
}

func (p *stubProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	return &llm.ImageResponse{DataURI: p.image, MimeType: "image/png"}, nil
}

func newTestRouter(t *testing.T, provider llm.Provider) (*gin.Engine, *services.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	resolver := func(credential string) (llm.Provider, error) {
		return provider, nil
	}

	sessionService := services.NewSessionService(time.Hour, nil)
	t.Cleanup(sessionService.Stop)

	handler := NewHandler(
		sessionService,
		services.NewScriptService(resolver),
		services.NewAnalyzerService(resolver),
		services.NewImageService(resolver),
		services.NewExportService(nil),
	)

	r := gin.New()
	registerRoutes(r, handler)
	return r, sessionService
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestSession(t *testing.T, r *gin.Engine) string {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.SessionID)
	return resp.Data.SessionID
}

func TestCreateAndGetSession(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Version         uint64 `json:"version"`
			HasCredential   bool   `json:"has_credential"`
			DurationSeconds int    `json:"duration_seconds"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Data.HasCredential)
	assert.Equal(t, 240, resp.Data.DurationSeconds)
}

func TestUnknownSessionReturns404(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})

	w := doJSON(t, r, http.MethodGet, "/api/sessions/no-such-id/state", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateInputMasksCredential(t *testing.T) {
	r, sessions := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/input", map[string]interface{}{
		"credential":       "secret-api-key",
		"topic":            "수학의 역사",
		"duration_seconds": 60,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// 响应只暴露凭证有无，不回显内容
	body := w.Body.String()
	assert.NotContains(t, body, "secret-api-key")
	assert.Contains(t, body, `"has_credential":true`)

	session, err := sessions.GetSession(id)
	require.NoError(t, err)
	snapshot := session.Store.Snapshot()
	assert.Equal(t, "secret-api-key", snapshot.Credential)
	assert.Equal(t, "수학의 역사", snapshot.Topic)
	assert.Equal(t, 60, snapshot.DurationSeconds)
}

func TestUpdateInputRejectsEmptyBody(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/input", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateInputNegativeDuration(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/input", map[string]interface{}{
		"duration_seconds": -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDemoScriptAndCutPromptUpdate(t *testing.T) {
	r, sessions := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/sessions/"+id+"/script/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/script/cuts/prompt", map[string]interface{}{
		"scene_index": 0,
		"cut_index":   0,
		"prompt":      "updated prompt",
	})
	require.Equal(t, http.StatusOK, w.Code)

	session, err := sessions.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "updated prompt", session.Store.Snapshot().Script.Scenes[0].Cuts[0].Prompt)

	// 越界索引返回400
	w = doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/script/cuts/prompt", map[string]interface{}{
		"scene_index": 99,
		"cut_index":   0,
		"prompt":      "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateAndDeleteCutImage(t *testing.T) {
	r, sessions := newTestRouter(t, &stubProvider{image: "data:image/png;base64,STUB"})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/sessions/"+id+"/script/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	session, err := sessions.GetSession(id)
	require.NoError(t, err)
	scene := session.Store.Snapshot().Script.Scenes[0]
	path := fmt.Sprintf("/api/sessions/%s/cuts/%d/%d/image", id, scene.SceneNumber, scene.Cuts[0].CutNumber)

	w = doJSON(t, r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data:image/png;base64,STUB")
	assert.Len(t, session.Store.Snapshot().GeneratedImages, 1)

	w = doJSON(t, r, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, session.Store.Snapshot().GeneratedImages)

	// 不存在的镜头返回404
	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/cuts/99/99/image", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 非数字路径参数返回400
	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/cuts/abc/1/image", id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	// 没有大本时导出被拒绝
	w := doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/word", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/sessions/"+id+"/script/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/word", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/msword", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".doc")
	assert.True(t, strings.HasPrefix(w.Body.String(), "\uFEFF"))

	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/print", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")
}

func TestExportArtifactEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := func(credential string) (llm.Provider, error) {
		return &stubProvider{}, nil
	}

	fileStorage, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	sessionService := services.NewSessionService(time.Hour, fileStorage)
	t.Cleanup(sessionService.Stop)

	handler := NewHandler(
		sessionService,
		services.NewScriptService(resolver),
		services.NewAnalyzerService(resolver),
		services.NewImageService(resolver),
		services.NewExportService(fileStorage),
	)

	r := gin.New()
	registerRoutes(r, handler)
	id := createTestSession(t, r)

	// 尚无产物
	w := doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"files":[]`)

	// 导出后产物落盘并可列出
	w = doJSON(t, r, http.MethodPost, "/api/sessions/"+id+"/script/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/word", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Files []string `json:"files"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Files, 1)
	assert.True(t, strings.HasSuffix(resp.Data.Files[0], ".doc"))

	// 按文件名下载
	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/files/"+resp.Data.Files[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/msword", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	// 不存在的文件
	w = doJSON(t, r, http.MethodGet, "/api/sessions/"+id+"/export/files/missing.doc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 删除会话后产物目录一并清理
	sessionService.RemoveSession(id)
	files, err := fileStorage.ListFiles(id)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResetSessionKeepsCredential(t *testing.T) {
	r, sessions := newTestRouter(t, &stubProvider{})
	id := createTestSession(t, r)

	w := doJSON(t, r, http.MethodPut, "/api/sessions/"+id+"/input", map[string]interface{}{
		"credential": "keep-me",
		"topic":      "주제",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	session, err := sessions.GetSession(id)
	require.NoError(t, err)
	snapshot := session.Store.Snapshot()
	assert.Equal(t, "keep-me", snapshot.Credential)
	assert.Empty(t, snapshot.Topic)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})
	createTestSession(t, r)

	w := doJSON(t, r, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"sessions":1`)
}
