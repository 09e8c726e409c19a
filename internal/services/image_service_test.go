// internal/services/image_service_test.go
package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
	"github.com/Corphon/ScriptStudioMCP/internal/llm/providers/google"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
)

func imageTestStore(t *testing.T) *state.Store {
	t.Helper()
	store := state.NewStore()

	script := &models.Script{
		Title:         "테스트 대본",
		TotalDuration: 30,
		Scenes: []models.Scene{
			{
				SceneNumber: 1,
				SceneTitle:  "씬",
				Cuts: []models.Cut{
					{CutNumber: 1, Duration: 6, Audio: "나레이션", Prompt: "a geometric diagram"},
					{CutNumber: 2, Duration: 8, Audio: "나레이션 2", Prompt: "a chalkboard proof"},
				},
			},
		},
	}
	_, err := store.Apply(state.SetScript{Script: script})
	require.NoError(t, err)
	return store
}

func TestGenerateCutImageSuccess(t *testing.T) {
	provider := &fakeProvider{
		imageResponses: []llm.ImageResponse{{DataURI: "data:image/png;base64,IMG1", MimeType: "image/png"}},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)
	key := models.NewCutKey(1, 1)

	dataURI, err := svc.GenerateCutImage(context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,IMG1", dataURI)

	snapshot := store.Snapshot()
	assert.Equal(t, dataURI, snapshot.GeneratedImages[key])
	assert.Nil(t, snapshot.GeneratingImageFor)
	assert.Equal(t, 1, provider.imageCalls)
}

func TestGenerateCutImageAppendsStyleHint(t *testing.T) {
	provider := &fakeProvider{
		imageResponses: []llm.ImageResponse{{DataURI: "data:image/png;base64,IMG1"}},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)
	_, err := store.Apply(state.SetStyleReference{Reference: &models.StyleReference{
		Image:    "data:image/png;base64,STYLE",
		Analysis: "watercolor, soft pastel tones",
	}})
	require.NoError(t, err)

	_, err = svc.GenerateCutImage(context.Background(), store, models.NewCutKey(1, 1))
	require.NoError(t, err)

	assert.Equal(t, "a geometric diagram. Style: watercolor, soft pastel tones",
		provider.lastImageReq.Prompt)
}

func TestGenerateCutImageUnknownCut(t *testing.T) {
	svc := NewImageService(fakeResolver(&fakeProvider{}))
	store := imageTestStore(t)

	_, err := svc.GenerateCutImage(context.Background(), store, models.NewCutKey(9, 9))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestGenerateCutImageWithoutScript(t *testing.T) {
	svc := NewImageService(fakeResolver(&fakeProvider{}))

	_, err := svc.GenerateCutImage(context.Background(), state.NewStore(), models.NewCutKey(1, 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGenerateCutImageConflict(t *testing.T) {
	svc := NewImageService(fakeResolver(&fakeProvider{}))
	store := imageTestStore(t)

	busy := models.NewCutKey(1, 1)
	_, err := store.Apply(state.SetGeneratingImageFor{Key: &busy})
	require.NoError(t, err)

	_, err = svc.GenerateCutImage(context.Background(), store, models.NewCutKey(1, 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

// blockingProvider 在GenerateImage中阻塞，直到release关闭才返回
type blockingProvider struct {
	fakeProvider
	release chan struct{}
	calls   int32
}

func (p *blockingProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	atomic.AddInt32(&p.calls, 1)
	<-p.release
	return &llm.ImageResponse{DataURI: "data:image/png;base64,SLOW"}, nil
}

func TestGenerateCutImageConcurrentSingleSlot(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{})}
	svc := NewImageService(func(credential string) (llm.Provider, error) {
		return provider, nil
	})
	store := imageTestStore(t)

	// 两个并发请求只有一个能抢到槽位，另一个立即收到冲突错误
	results := make(chan error, 2)
	for _, key := range []models.CutKey{models.NewCutKey(1, 1), models.NewCutKey(1, 2)} {
		go func(key models.CutKey) {
			_, err := svc.GenerateCutImage(context.Background(), store, key)
			results <- err
		}(key)
	}

	first := <-results
	require.Error(t, first)
	assert.True(t, apperrors.IsConflictError(first))

	close(provider.release)
	require.NoError(t, <-results)

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
	snapshot := store.Snapshot()
	assert.Nil(t, snapshot.GeneratingImageFor)
	assert.Len(t, snapshot.GeneratedImages, 1)
}

func TestGenerateCutImageFallbackToImagen(t *testing.T) {
	provider := &fakeProvider{
		imageErrs: []error{apperrors.NewGenerationError("响应中没有图像", nil), nil},
		imageResponses: []llm.ImageResponse{
			{}, // 主调用失败，占位
			{DataURI: "data:image/png;base64,FALLBACK"},
		},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)
	key := models.NewCutKey(1, 1)

	dataURI, err := svc.GenerateCutImage(context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,FALLBACK", dataURI)

	// 回退调用指定imagen模型
	assert.Equal(t, 2, provider.imageCalls)
	assert.Equal(t, google.FallbackImageModel, provider.lastImageReq.Model)
}

func TestGenerateCutImageAuthErrorSkipsFallback(t *testing.T) {
	provider := &fakeProvider{
		imageErrs: []error{apperrors.NewAuthQuotaError("API密钥无效", nil)},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)

	_, err := svc.GenerateCutImage(context.Background(), store, models.NewCutKey(1, 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthQuotaError(err))
	assert.Equal(t, 1, provider.imageCalls)

	// 失败后在途标记已清除
	assert.Nil(t, store.Snapshot().GeneratingImageFor)
}

func TestGenerateCutImageBothModelsFail(t *testing.T) {
	provider := &fakeProvider{
		imageErrs: []error{
			apperrors.NewGenerationError("主模型失败", nil),
			apperrors.NewGenerationError("回退也失败", nil),
		},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)
	key := models.NewCutKey(1, 1)

	_, err := svc.GenerateCutImage(context.Background(), store, key)
	require.Error(t, err)
	assert.True(t, apperrors.IsGenerationError(err))
	assert.NotContains(t, store.Snapshot().GeneratedImages, key)
}

func TestRegenerateCutImageReplacesExisting(t *testing.T) {
	provider := &fakeProvider{
		imageResponses: []llm.ImageResponse{{DataURI: "data:image/png;base64,NEW"}},
	}
	svc := NewImageService(fakeResolver(provider))
	store := imageTestStore(t)
	key := models.NewCutKey(1, 1)

	_, err := store.Apply(state.SetGeneratedImage{Key: key, Image: "data:image/png;base64,OLD"})
	require.NoError(t, err)

	dataURI, err := svc.RegenerateCutImage(context.Background(), store, key)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,NEW", dataURI)
	assert.Equal(t, "data:image/png;base64,NEW", store.Snapshot().GeneratedImages[key])
}

func TestRemoveCutImage(t *testing.T) {
	svc := NewImageService(fakeResolver(&fakeProvider{}))
	store := imageTestStore(t)
	key := models.NewCutKey(1, 1)

	_, err := store.Apply(state.SetGeneratedImage{Key: key, Image: "data:image/png;base64,OLD"})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveCutImage(store, key))
	assert.NotContains(t, store.Snapshot().GeneratedImages, key)

	// 再次删除为无操作
	require.NoError(t, svc.RemoveCutImage(store, key))
}
