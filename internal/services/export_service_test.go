// internal/services/export_service_test.go
package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/storage"
)

var exportTestTime = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

func exportScript() *models.Script {
	return &models.Script{
		Title:         "유클리드의 원론",
		TotalDuration: 90,
		Scenes: []models.Scene{
			{
				SceneNumber: 1,
				SceneTitle:  "알렉산드리아 도서관",
				Cuts: []models.Cut{
					{
						CutNumber: 1, Duration: 6, ShotType: "Wide Shot",
						Audio:  "기원전 300년경, 알렉산드리아에서 유클리드가 원론을 저술했습니다.",
						Prompt: "Ancient library of alexandria, cinematic", PromptKr: "고대 도서관",
						VideoPrompt: "Slow pan across library shelves",
					},
					{
						CutNumber: 2, Duration: 0, ShotType: "Close-up",
						Audio:  "원론은 2천 년 이상 수학 교육의 표준이었습니다.",
						Prompt: "Ancient mathematical scroll close-up",
					},
				},
			},
			{
				SceneNumber: 2,
				SceneTitle:  "공리의 체계",
				Cuts: []models.Cut{
					{
						CutNumber: 3, Duration: 8, ShotType: "Medium Shot",
						Audio:  "다섯 개의 공준에서 모든 기하학이 전개됩니다.",
						Prompt: "Geometric diagrams on parchment",
					},
				},
			},
		},
	}
}

func TestBuildWordDocumentStructure(t *testing.T) {
	svc := NewExportService(nil)
	images := models.ImageMap{
		models.NewCutKey(1, 1): "data:image/png;base64,AAAA",
	}

	doc, err := svc.BuildWordDocument(exportScript(), images, exportTestTime)
	require.NoError(t, err)

	// Word识别的HTML包装
	assert.Contains(t, doc, "urn:schemas-microsoft-com:office:word")
	assert.Contains(t, doc, "유클리드의 원론")

	// 场景单元格按镜头数纵向合并
	assert.Contains(t, doc, `rowspan="2"`)
	assert.Contains(t, doc, `rowspan="1"`)

	// 汇总行：场景数和重新统计的镜头数
	assert.Contains(t, doc, "씬: 2개")
	assert.Contains(t, doc, "컷: 3개")
	assert.Contains(t, doc, "러닝타임: 1분 30초")

	// 时长0渲染为"-"
	assert.Contains(t, doc, "<td>-</td>")
	assert.Contains(t, doc, "<td>6초</td>")

	// 有图像的镜头嵌入data URI，没有的留空单元格
	assert.Contains(t, doc, "data:image/png;base64,AAAA")
	assert.Contains(t, doc, "<td></td>")
}

func TestBuildPrintDocumentStructure(t *testing.T) {
	svc := NewExportService(nil)

	doc, err := svc.BuildPrintDocument(exportScript(), nil, exportTestTime)
	require.NoError(t, err)

	assert.Contains(t, doc, "<!DOCTYPE html>")
	assert.Contains(t, doc, "유클리드의 원론")
	assert.Contains(t, doc, "씬 1: 알렉산드리아 도서관")
	assert.Contains(t, doc, "씬 2: 공리의 체계")

	// 旁白面板带时长
	assert.Contains(t, doc, "나레이션 (6초)")

	// 视频提示缺失时渲染占位文本
	assert.Contains(t, doc, "동영상 프롬프트 없음")
	assert.Contains(t, doc, "Slow pan across library shelves")

	// 分页约束
	assert.Contains(t, doc, "page-break-inside: avoid")
}

func TestExportEscapesMarkup(t *testing.T) {
	svc := NewExportService(nil)
	script := exportScript()
	script.Title = `대본 <script>alert("x")</script>`
	script.Scenes[0].Cuts[0].Audio = `나레이션 <b>볼드 & "인용"</b>`
	script.Scenes[0].Cuts[0].Prompt = `prompt with <img src=x onerror=alert(1)>`

	for _, build := range []func() (string, error){
		func() (string, error) { return svc.BuildWordDocument(script, nil, exportTestTime) },
		func() (string, error) { return svc.BuildPrintDocument(script, nil, exportTestTime) },
	} {
		doc, err := build()
		require.NoError(t, err)
		assert.NotContains(t, doc, `<script>alert`)
		assert.NotContains(t, doc, `<b>볼드`)
		assert.NotContains(t, doc, `<img src=x`)
		assert.Contains(t, doc, "&lt;script&gt;")
	}
}

func TestExportDeterministicForSameInput(t *testing.T) {
	svc := NewExportService(nil)
	script := exportScript()
	images := models.ImageMap{models.NewCutKey(2, 3): "data:image/png;base64,CCCC"}

	first, err := svc.BuildWordDocument(script, images, exportTestTime)
	require.NoError(t, err)
	second, err := svc.BuildWordDocument(script, images, exportTestTime)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	firstPrint, err := svc.BuildPrintDocument(script, images, exportTestTime)
	require.NoError(t, err)
	secondPrint, err := svc.BuildPrintDocument(script, images, exportTestTime)
	require.NoError(t, err)
	assert.Equal(t, firstPrint, secondPrint)
}

func TestExportRejectsMalformedScript(t *testing.T) {
	svc := NewExportService(nil)

	cases := []struct {
		name   string
		script *models.Script
	}{
		{"空大本", nil},
		{"没有场景", &models.Script{Title: "빈 대본"}},
		{"镜头缺少旁白", func() *models.Script {
			s := exportScript()
			s.Scenes[0].Cuts[0].Audio = ""
			return s
		}()},
		{"镜头缺少提示词", func() *models.Script {
			s := exportScript()
			s.Scenes[1].Cuts[0].Prompt = ""
			return s
		}()},
		{"场景没有镜头", func() *models.Script {
			s := exportScript()
			s.Scenes[1].Cuts = nil
			return s
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.BuildWordDocument(tc.script, nil, exportTestTime)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidationError(err))

			_, err = svc.BuildPrintDocument(tc.script, nil, exportTestTime)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidationError(err))
		})
	}
}

func TestExportWordResultMetadata(t *testing.T) {
	svc := NewExportService(nil)

	result, err := svc.ExportWord("session-1", exportScript(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExportFormWord, result.Form)
	assert.Equal(t, "application/msword", result.ContentType)
	assert.Equal(t, 2, result.SceneCount)
	assert.Equal(t, 3, result.CutCount)
	assert.True(t, strings.HasPrefix(result.Content, "\uFEFF"), "Word内容必须带BOM")
	assert.Equal(t,
		fmt.Sprintf("유클리드의_원론_%s.doc", result.GeneratedAt.Format("2006-01-02")),
		result.FileName)
}

func TestExportPrintResultMetadata(t *testing.T) {
	svc := NewExportService(nil)

	result, err := svc.ExportPrint("session-1", exportScript(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExportFormPrint, result.Form)
	assert.Equal(t, "text/html; charset=utf-8", result.ContentType)
	assert.False(t, strings.HasPrefix(result.Content, "\uFEFF"))
}

func TestExportArtifactRoundTrip(t *testing.T) {
	fileStorage, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(fileStorage)

	result, err := svc.ExportWord("session-1", exportScript(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.FilePath)

	files, err := svc.ListArtifacts("session-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, result.FileName, files[0])

	data, err := svc.ReadArtifact("session-1", files[0])
	require.NoError(t, err)
	assert.Equal(t, result.Content, string(data))

	_, err = svc.ReadArtifact("session-1", "없는파일.doc")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestExportArtifactsWithoutStorage(t *testing.T) {
	svc := NewExportService(nil)

	files, err := svc.ListArtifacts("session-1")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = svc.ReadArtifact("session-1", "방송대본.doc")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestExportDefaultTitle(t *testing.T) {
	svc := NewExportService(nil)
	script := exportScript()
	script.Title = "   "

	doc, err := svc.BuildPrintDocument(script, nil, exportTestTime)
	require.NoError(t, err)
	assert.Contains(t, doc, "방송대본")
}
