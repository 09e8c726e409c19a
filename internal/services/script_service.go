// internal/services/script_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

// 目标时长范围（秒）
const (
	MinDurationSeconds = 30
	MaxDurationSeconds = 300
)

// 匹配markdown代码块中的JSON
var jsonFenceRegex = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ScriptService 提供大本生成功能
type ScriptService struct {
	resolveProvider ProviderResolver
	validate        *validator.Validate
}

// NewScriptService 创建大本服务实例
func NewScriptService(resolver ProviderResolver) *ScriptService {
	if resolver == nil {
		resolver = DefaultProviderResolver
	}
	return &ScriptService{
		resolveProvider: resolver,
		validate:        validator.New(),
	}
}

// GenerateScript 根据会话输入生成大本并写入状态存储。
// 加载标志通过defer保证在任何退出路径上都被清除。
func (s *ScriptService) GenerateScript(ctx context.Context, store *state.Store) (*models.Script, error) {
	snapshot := store.Snapshot()

	if strings.TrimSpace(snapshot.Topic) == "" {
		return nil, apperrors.NewValidationError("主题不能为空", nil)
	}
	if snapshot.DurationSeconds < MinDurationSeconds || snapshot.DurationSeconds > MaxDurationSeconds {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("目标时长必须在%d-%d秒之间: %d",
				MinDurationSeconds, MaxDurationSeconds, snapshot.DurationSeconds), nil)
	}

	provider, err := s.resolveProvider(snapshot.Credential)
	if err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetLoadingFlag{Flag: state.FlagGeneratingScript, Busy: true}); err != nil {
		return nil, err
	}
	defer store.Apply(state.SetLoadingFlag{Flag: state.FlagGeneratingScript, Busy: false})

	prompt := buildScriptPrompt(snapshot)

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   8192,
	})
	if err != nil {
		return nil, err
	}

	script, err := s.ParseScriptResponse(resp.Text)
	if err != nil {
		return nil, err
	}

	if _, err := store.Apply(state.SetScript{Script: script}); err != nil {
		return nil, err
	}

	utils.GetLogger().WithFields(map[string]interface{}{
		"title":  script.Title,
		"scenes": len(script.Scenes),
		"cuts":   script.TotalCuts(),
		"tokens": resp.TokensUsed,
	}).Info("大本生成完成")

	return script, nil
}

// LoadDemoScript 加载内置演示大本（无需API）
func (s *ScriptService) LoadDemoScript(store *state.Store) (*models.Script, error) {
	snapshot := store.Snapshot()

	topic := snapshot.Topic
	if strings.TrimSpace(topic) == "" {
		topic = "수학의 역사"
	}

	script := DemoScript(topic, snapshot.DurationSeconds)
	if _, err := store.Apply(state.SetScript{Script: script}); err != nil {
		return nil, err
	}

	return script, nil
}

// ParseScriptResponse 从AI响应文本中提取并校验大本JSON
func (s *ScriptService) ParseScriptResponse(text string) (*models.Script, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewFormatError("AI未返回任何内容", nil)
	}

	jsonStr, err := extractJSONBlock(text)
	if err != nil {
		return nil, err
	}

	var script models.Script
	if err := json.Unmarshal([]byte(jsonStr), &script); err != nil {
		return nil, apperrors.NewFormatError("解析大本JSON失败", err)
	}

	if err := s.ValidateScript(&script); err != nil {
		return nil, err
	}

	return &script, nil
}

// ValidateScript 结构化校验大本（场景非空、旁白和提示词必填等）
func (s *ScriptService) ValidateScript(script *models.Script) error {
	if script == nil {
		return apperrors.NewValidationError("大本不能为空", nil)
	}

	if err := s.validate.Struct(script); err != nil {
		return apperrors.NewValidationError("大本结构不完整", err)
	}

	return nil
}

// extractJSONBlock 从响应文本提取JSON载荷：优先markdown代码块，其次首尾大括号
func extractJSONBlock(text string) (string, error) {
	if match := jsonFenceRegex.FindStringSubmatch(text); match != nil {
		return match[1], nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], nil
	}

	return "", apperrors.NewFormatError("响应中没有找到JSON载荷", nil)
}

// buildScriptPrompt 构建EBS教育纪录片风格的大本生成提示词
func buildScriptPrompt(snapshot state.State) string {
	runningTime := snapshot.DurationSeconds

	// 每个镜头4-10秒，推算目标镜头数
	minCuts := int(math.Ceil(float64(runningTime) / 10))
	maxCuts := runningTime / 4
	targetCuts := int(math.Round(float64(minCuts+maxCuts) / 2))

	var characterDescriptions strings.Builder
	if len(snapshot.Characters) > 0 {
		characterDescriptions.WriteString("\n\n등장인물 레퍼런스:\n")
		for _, c := range snapshot.Characters {
			characterDescriptions.WriteString(fmt.Sprintf("- %s: %s\n", c.Name, c.Analysis))
		}
	}
	if len(snapshot.AutoCastCharacters) > 0 {
		characterDescriptions.WriteString("\n\n자동 캐스팅된 인물:\n")
		for _, c := range snapshot.AutoCastCharacters {
			characterDescriptions.WriteString(fmt.Sprintf("- %s: %s\n", c.Name, c.Description))
		}
	}

	styleInstruction := ""
	if snapshot.StyleReference != nil && snapshot.StyleReference.Analysis != "" {
		styleInstruction = "\n\n모든 영상 프롬프트에 다음 스타일을 적용하세요: " + snapshot.StyleReference.Analysis
	}

	notesLine := ""
	if snapshot.Notes != "" {
		notesLine = "참고사항: " + snapshot.Notes
	}

	return fmt.Sprintf(`당신은 EBS 교육방송의 베테랑 수학사 다큐멘터리 작가입니다.
중학생(13-15세)을 대상으로 하는 수학사 교육 콘텐츠 대본을 작성합니다.

[프로젝트 정보]
주제: %s
러닝타임: %d초
시놉시스: %s
%s
%s
%s

[핵심 작성 원칙]

1. **교육적 깊이**:
   - 모든 나레이션에는 반드시 구체적인 역사적 사실, 수학적 개념, 연도, 수치가 포함되어야 합니다
   - 단순 설명이 아닌, 배경/맥락/의의까지 설명하세요

2. **나레이션 분량**:
   - 각 컷의 나레이션은 최소 2-3문장, 50-80자 이상이어야 합니다
   - 컷 하나에 하나의 완결된 정보나 이야기가 담겨야 합니다
   - 짧은 감탄사나 단순 연결어만으로 구성된 컷은 금지입니다

3. **스토리텔링**:
   - 시청자의 호기심을 자극하는 질문으로 시작하세요
   - 역사적 인물의 고민, 갈등, 발견의 순간을 생생하게 묘사하세요
   - 수학적 발견이 당시 사회에 미친 영향을 설명하세요

4. **수학사 팩트**:
   - 정확한 연도, 장소, 인물명을 사용하세요
   - 수학 공식이나 정리가 나오면 그 의미를 쉽게 풀어서 설명하세요
   - 해당 발견이 현대에 어떻게 사용되는지 연결해주세요

[기술적 요구사항]
- 총 %d개 내외의 컷 (최소 %d컷, 최대 %d컷)
- 각 컷은 4~10초 분량
- 씬(Scene)과 컷(Cut)으로 논리적 구분
- 영상 프롬프트는 시네마틱하고 고증에 충실하게

[JSON 출력 형식]
반드시 아래 형식의 JSON만 출력하세요:
{
  "title": "대본 제목",
  "totalDuration": %d,
  "scenes": [
    {
      "sceneNumber": 1,
      "sceneTitle": "씬 제목",
      "cuts": [
        {
          "cutNumber": 1,
          "duration": 6,
          "shotType": "Wide Shot",
          "audio": "나레이션 텍스트",
          "prompt": "English image generation prompt, cinematic, 16:9",
          "promptKr": "프롬프트의 한글 설명"
        }
      ]
    }
  ]
}

위 예시처럼 나레이션에는 연도, 장소, 인물, 역사적 의의가 구체적으로 담겨야 합니다.`,
		snapshot.Topic, runningTime, snapshot.Synopsis,
		notesLine, characterDescriptions.String(), styleInstruction,
		targetCuts, minCuts, maxCuts, runningTime)
}
