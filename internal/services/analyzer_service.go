// internal/services/analyzer_service.go
package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/imgutil"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
)

// AnalyzerService 提供参考图像分析和自动选角功能
type AnalyzerService struct {
	resolveProvider ProviderResolver
}

// NewAnalyzerService 创建分析服务实例
func NewAnalyzerService(resolver ProviderResolver) *AnalyzerService {
	if resolver == nil {
		resolver = DefaultProviderResolver
	}
	return &AnalyzerService{resolveProvider: resolver}
}

// AnalyzeStyle 分析风格参考图像并写入状态。
// 先以空分析存入图像（界面立即显示），分析完成后整体替换。
func (s *AnalyzerService) AnalyzeStyle(ctx context.Context, store *state.Store, imageData []byte, mimeType string) (*models.StyleReference, error) {
	if !imgutil.IsValidImageType(mimeType) {
		return nil, apperrors.NewValidationError("不支持的图像类型: "+mimeType, nil)
	}

	dataURI, err := imgutil.EncodeDataURI(mimeType, imageData)
	if err != nil {
		return nil, apperrors.NewValidationError("编码图像失败", err)
	}

	snapshot := store.Snapshot()
	provider, err := s.resolveProvider(snapshot.Credential)
	if err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetStyleReference{
		Reference: &models.StyleReference{Image: dataURI},
	}); err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetLoadingFlag{Flag: state.FlagAnalyzingStyle, Busy: true}); err != nil {
		return nil, err
	}
	defer store.Apply(state.SetLoadingFlag{Flag: state.FlagAnalyzingStyle, Busy: false})

	resp, err := provider.CompleteVision(ctx, llm.VisionRequest{
		Prompt:      styleAnalysisPrompt,
		ImageData:   imageData,
		MimeType:    mimeType,
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	reference := &models.StyleReference{
		Image:    dataURI,
		Analysis: strings.TrimSpace(resp.Text),
	}

	if _, err := store.Apply(state.SetStyleReference{Reference: reference}); err != nil {
		return nil, err
	}

	return reference, nil
}

// AnalyzeCharacter 分析人物参考图像，追加到人物列表并在分析完成后修补描述
func (s *AnalyzerService) AnalyzeCharacter(ctx context.Context, store *state.Store, name string, imageData []byte, mimeType string) (*models.CharacterReference, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("人物名称不能为空", nil)
	}
	if !imgutil.IsValidImageType(mimeType) {
		return nil, apperrors.NewValidationError("不支持的图像类型: "+mimeType, nil)
	}

	dataURI, err := imgutil.EncodeDataURI(mimeType, imageData)
	if err != nil {
		return nil, apperrors.NewValidationError("编码图像失败", err)
	}

	snapshot := store.Snapshot()
	provider, err := s.resolveProvider(snapshot.Credential)
	if err != nil {
		return nil, err
	}

	character := models.CharacterReference{
		ID:    uuid.NewString(),
		Name:  name,
		Image: dataURI,
	}

	// 先以空分析插入，分析返回后修补
	if _, err := store.Apply(state.AddCharacter{Character: character}); err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetLoadingFlag{Flag: state.FlagAnalyzingCharacter, Busy: true}); err != nil {
		return nil, err
	}
	defer store.Apply(state.SetLoadingFlag{Flag: state.FlagAnalyzingCharacter, Busy: false})

	resp, err := provider.CompleteVision(ctx, llm.VisionRequest{
		Prompt:      characterAnalysisPrompt(name),
		ImageData:   imageData,
		MimeType:    mimeType,
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	character.Analysis = strings.TrimSpace(resp.Text)

	if _, err := store.Apply(state.UpdateCharacterAnalysis{
		ID:       character.ID,
		Analysis: character.Analysis,
	}); err != nil {
		return nil, err
	}

	return &character, nil
}

// AutoCast 从剧情简介推导登场人物列表
func (s *AnalyzerService) AutoCast(ctx context.Context, store *state.Store) ([]models.AutoCastCharacter, error) {
	snapshot := store.Snapshot()

	if strings.TrimSpace(snapshot.Synopsis) == "" {
		return nil, apperrors.NewValidationError("剧情简介不能为空", nil)
	}

	provider, err := s.resolveProvider(snapshot.Credential)
	if err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetLoadingFlag{Flag: state.FlagAutoCasting, Busy: true}); err != nil {
		return nil, err
	}
	defer store.Apply(state.SetLoadingFlag{Flag: state.FlagAutoCasting, Busy: false})

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:      autoCastPrompt(snapshot.Synopsis),
		Temperature: 0.5,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	characters, err := parseAutoCastResponse(resp.Text)
	if err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetAutoCastCharacters{Characters: characters}); err != nil {
		return nil, err
	}

	return characters, nil
}

// parseAutoCastResponse 解析自动选角JSON响应
func parseAutoCastResponse(text string) ([]models.AutoCastCharacter, error) {
	jsonStr, err := extractJSONBlock(text)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Characters []models.AutoCastCharacter `json:"characters"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, apperrors.NewFormatError("解析自动选角JSON失败", err)
	}

	return payload.Characters, nil
}

// 风格分析提示词
const styleAnalysisPrompt = `이 이미지의 시각적 스타일을 분석해주세요. 다음 요소들을 영어로 설명해주세요:
1. Art style (e.g., photorealistic, painterly, anime, etc.)
2. Color palette and tone
3. Lighting style
4. Mood and atmosphere
5. Texture and detail level

이 스타일을 다른 이미지 생성 프롬프트에 적용할 수 있도록 간결한 스타일 설명문(영문)을 작성해주세요.
형식: "Style: [간결한 스타일 설명]"`

// characterAnalysisPrompt 人物分析提示词
func characterAnalysisPrompt(name string) string {
	return `이 인물 사진을 분석해주세요. "` + name + `"(이)라는 캐릭터로 사용됩니다.

다음 요소들을 영어로 상세히 설명해주세요:
1. Physical appearance (age, gender, facial features, body type)
2. Clothing and accessories
3. Hair style and color
4. Distinguishing features

이 캐릭터를 이미지 생성 프롬프트에 사용할 수 있도록 간결한 외모 설명문(영문)을 작성해주세요.`
}

// autoCastPrompt 自动选角提示词
func autoCastPrompt(synopsis string) string {
	return `다음 시놉시스를 분석하여 등장해야 할 역사적 인물들을 도출하고, 각 인물의 역사적 사실에 기반한 외모 묘사를 작성해주세요.

시놉시스: ` + synopsis + `

각 인물에 대해 다음을 포함해주세요:
1. 인물 이름 (한글)
2. 역사적 배경 설명 (간단히)
3. 외모 묘사 (영문, 이미지 생성 프롬프트용)

반드시 다음 JSON 형식으로만 응답하세요:
{
  "characters": [
    {
      "name": "인물 이름",
      "background": "역사적 배경",
      "description": "A [age]-year-old [nationality] [title/occupation], [physical description], wearing [clothing description], [additional details]"
    }
  ]
}`
}
