// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
)

// 默认模型
const (
	DefaultTextModel      = "gemini-2.0-flash"
	DefaultImageModel     = "gemini-2.0-flash-exp-image-generation"
	FallbackImageModel    = "imagen-3.0-generate-002"
	defaultRequestTimeout = 120 * time.Second
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return apperrors.NewAuthQuotaError("google_api密钥未提供", nil)
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: defaultRequestTimeout}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = DefaultTextModel
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

// geminiResponse Gemini generateContent响应的公共结构
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// 构建Gemini请求
	generationConfig := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{"text": req.Prompt}}},
		},
		"generationConfig": generationConfig,
	}

	response, err := p.doGenerateContent(ctx, model, requestBody)
	if err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, apperrors.NewFormatError("google gemini未返回任何结果", nil)
	}

	// 提取文本内容
	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	if resultText == "" {
		return nil, apperrors.NewFormatError("google gemini响应中没有文本内容", nil)
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

func (p *Provider) CompleteVision(ctx context.Context, req llm.VisionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	if len(req.ImageData) == 0 {
		return nil, apperrors.NewValidationError("视觉分析需要图像数据", nil)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	generationConfig := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}

	// 文本提示 + 内联图像
	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{
				{"text": req.Prompt},
				{"inlineData": map[string]string{
					"mimeType": mimeType,
					"data":     base64.StdEncoding.EncodeToString(req.ImageData),
				}},
			}},
		},
		"generationConfig": generationConfig,
	}

	response, err := p.doGenerateContent(ctx, model, requestBody)
	if err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, apperrors.NewFormatError("google gemini未返回任何结果", nil)
	}

	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = DefaultImageModel
	}

	// imagen-* 模型走 :predict 接口，其余走 :generateContent
	if strings.HasPrefix(model, "imagen-") {
		return p.generateImagePredict(ctx, model, req)
	}

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{
				"text": fmt.Sprintf(
					"Generate a high-quality cinematic image in %s aspect ratio: %s.\nMake it photorealistic with dramatic lighting and film-quality composition.",
					aspectRatio, req.Prompt),
			}}},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"image", "text"},
		},
	}

	response, err := p.doGenerateContent(ctx, model, requestBody)
	if err != nil {
		if apperrors.IsAuthQuotaError(err) {
			return nil, err
		}
		return nil, apperrors.WrapError(err, "图像生成失败", apperrors.ErrorTypeGeneration)
	}

	if len(response.Candidates) > 0 {
		for _, part := range response.Candidates[0].Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return &llm.ImageResponse{
					DataURI:   "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data,
					MimeType:  part.InlineData.MimeType,
					ModelName: model,
				}, nil
			}
		}
	}

	// 响应中没有图像，调用方可用 imagen 模型重试
	return nil, apperrors.NewGenerationError("响应中没有图像数据", nil)
}

// generateImagePredict 调用 Imagen 的 :predict 接口
func (p *Provider) generateImagePredict(ctx context.Context, model string, req llm.ImageRequest) (*llm.ImageResponse, error) {
	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	requestBody := map[string]interface{}{
		"instances": []map[string]string{{"prompt": req.Prompt}},
		"parameters": map[string]interface{}{
			"sampleCount":      1,
			"aspectRatio":      aspectRatio,
			"personGeneration": "allow_adult",
			"safetySetting":    "block_only_high",
		},
	}

	apiURL := fmt.Sprintf("%s/models/%s:predict?key=%s", p.baseURL, model, p.apiKey)

	body, err := p.doRequest(ctx, apiURL, requestBody)
	if err != nil {
		if apperrors.IsAuthQuotaError(err) {
			return nil, err
		}
		return nil, apperrors.WrapError(err, "imagen图像生成失败", apperrors.ErrorTypeGeneration)
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, apperrors.NewGenerationError("解析imagen响应失败", err)
	}

	if len(response.Predictions) == 0 || response.Predictions[0].BytesBase64Encoded == "" {
		return nil, apperrors.NewGenerationError("imagen未返回图像数据", nil)
	}

	mimeType := response.Predictions[0].MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	return &llm.ImageResponse{
		DataURI:   "data:" + mimeType + ";base64," + response.Predictions[0].BytesBase64Encoded,
		MimeType:  mimeType,
		ModelName: model,
	}, nil
}

// doGenerateContent 调用 :generateContent 并解析公共响应结构
func (p *Provider) doGenerateContent(ctx context.Context, model string, requestBody map[string]interface{}) (*geminiResponse, error) {
	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	body, err := p.doRequest(ctx, apiURL, requestBody)
	if err != nil {
		return nil, err
	}

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, apperrors.NewFormatError("解析google gemini响应失败", err)
	}

	return &response, nil
}

// doRequest 发送JSON请求并处理HTTP层错误分类
func (p *Provider) doRequest(ctx context.Context, apiURL string, requestBody map[string]interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewProcessingError("调用google gemini失败", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.NewProcessingError("读取google gemini响应失败", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		message := extractErrorMessage(body, httpResp.StatusCode)

		switch httpResp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			// 凭证被拒绝或配额用尽
			return nil, apperrors.NewAuthQuotaError(message, nil)
		default:
			return nil, apperrors.NewProcessingError(message, nil)
		}
	}

	return body, nil
}

// extractErrorMessage 从错误响应体提取提供商的错误消息
func extractErrorMessage(body []byte, statusCode int) string {
	var errorResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return fmt.Sprintf("google gemini API错误(%d): %s", statusCode, errorResp.Error.Message)
	}

	return fmt.Sprintf("google gemini API错误(%d): %s", statusCode, string(body))
}

// 编译期检查
var _ llm.Provider = (*Provider)(nil)
