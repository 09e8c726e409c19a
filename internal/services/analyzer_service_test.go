// internal/services/analyzer_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
)

// 最小的有效PNG前缀，足够通过类型检查
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestAnalyzeStyle(t *testing.T) {
	provider := &fakeProvider{visionResponse: "Style: watercolor, soft lighting\n"}
	svc := NewAnalyzerService(fakeResolver(provider))
	store := state.NewStore()

	reference, err := svc.AnalyzeStyle(context.Background(), store, pngBytes, "image/png")
	require.NoError(t, err)
	require.NotNil(t, reference)

	assert.Contains(t, reference.Image, "data:image/png;base64,")
	assert.Equal(t, "Style: watercolor, soft lighting", reference.Analysis)

	snapshot := store.Snapshot()
	assert.Equal(t, reference, snapshot.StyleReference)
	assert.False(t, snapshot.AnalyzingStyle)
}

func TestAnalyzeStyleRejectsInvalidMimeType(t *testing.T) {
	svc := NewAnalyzerService(fakeResolver(&fakeProvider{}))

	_, err := svc.AnalyzeStyle(context.Background(), state.NewStore(), pngBytes, "application/pdf")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAnalyzeStyleKeepsImageOnProviderError(t *testing.T) {
	provider := &fakeProvider{visionErr: apperrors.NewProcessingError("提供商故障", nil)}
	svc := NewAnalyzerService(fakeResolver(provider))
	store := state.NewStore()

	_, err := svc.AnalyzeStyle(context.Background(), store, pngBytes, "image/png")
	require.Error(t, err)

	// 图像已先行入库但没有分析文本，标志已清除
	snapshot := store.Snapshot()
	require.NotNil(t, snapshot.StyleReference)
	assert.Empty(t, snapshot.StyleReference.Analysis)
	assert.False(t, snapshot.AnalyzingStyle)
}

func TestAnalyzeCharacter(t *testing.T) {
	provider := &fakeProvider{visionResponse: "A bearded greek philosopher in a white robe"}
	svc := NewAnalyzerService(fakeResolver(provider))
	store := state.NewStore()

	character, err := svc.AnalyzeCharacter(context.Background(), store, "피타고라스", pngBytes, "image/png")
	require.NoError(t, err)
	require.NotNil(t, character)

	assert.NotEmpty(t, character.ID)
	assert.Equal(t, "피타고라스", character.Name)
	assert.Equal(t, "A bearded greek philosopher in a white robe", character.Analysis)

	snapshot := store.Snapshot()
	require.Len(t, snapshot.Characters, 1)
	assert.Equal(t, character.Analysis, snapshot.Characters[0].Analysis)
	assert.False(t, snapshot.AnalyzingCharacter)
}

func TestAnalyzeCharacterRequiresName(t *testing.T) {
	svc := NewAnalyzerService(fakeResolver(&fakeProvider{}))

	_, err := svc.AnalyzeCharacter(context.Background(), state.NewStore(), "  ", pngBytes, "image/png")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAutoCast(t *testing.T) {
	provider := &fakeProvider{textResponse: `{
		"characters": [
			{"name": "유클리드", "background": "고대 그리스의 수학자", "description": "An elderly greek mathematician"},
			{"name": "프톨레마이오스 1세", "background": "이집트의 왕", "description": "An egyptian king in royal garments"}
		]
	}`}
	svc := NewAnalyzerService(fakeResolver(provider))
	store := state.NewStore()
	_, err := store.Apply(state.SetSynopsis{Synopsis: "알렉산드리아에서 원론이 탄생한 이야기"})
	require.NoError(t, err)

	characters, err := svc.AutoCast(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, characters, 2)
	assert.Equal(t, "유클리드", characters[0].Name)

	snapshot := store.Snapshot()
	assert.Equal(t, characters, snapshot.AutoCastCharacters)
	assert.False(t, snapshot.AutoCasting)
}

func TestAutoCastRequiresSynopsis(t *testing.T) {
	svc := NewAnalyzerService(fakeResolver(&fakeProvider{}))

	_, err := svc.AutoCast(context.Background(), state.NewStore())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAutoCastUnparsableResponse(t *testing.T) {
	provider := &fakeProvider{textResponse: "죄송합니다. 인물을 도출할 수 없습니다."}
	svc := NewAnalyzerService(fakeResolver(provider))
	store := state.NewStore()
	_, err := store.Apply(state.SetSynopsis{Synopsis: "시놉시스"})
	require.NoError(t, err)

	_, err = svc.AutoCast(context.Background(), store)
	require.Error(t, err)
	assert.True(t, apperrors.IsFormatError(err))
	assert.False(t, store.Snapshot().AutoCasting)
}
