// internal/services/image_service.go
package services

import (
	"context"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
	"github.com/Corphon/ScriptStudioMCP/internal/llm/providers/google"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
	"github.com/Corphon/ScriptStudioMCP/internal/state"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"
)

// ImageService 提供镜头图像生成功能
type ImageService struct {
	resolveProvider ProviderResolver
}

// NewImageService 创建图像服务实例
func NewImageService(resolver ProviderResolver) *ImageService {
	if resolver == nil {
		resolver = DefaultProviderResolver
	}
	return &ImageService{resolveProvider: resolver}
}

// GenerateCutImage 为指定镜头生成图像并写入状态。
// 同一时刻最多一个图像生成在途，并发请求返回冲突错误。
// 生成失败时先用imagen模型回退重试，仍失败才上报；
// 失败不会破坏该镜头已存储的图像（除非是再生成流程先行移除）。
func (s *ImageService) GenerateCutImage(ctx context.Context, store *state.Store, key models.CutKey) (string, error) {
	snapshot := store.Snapshot()

	cut, err := findCut(snapshot.Script, key)
	if err != nil {
		return "", err
	}

	// 占槽必须通过Apply完成：归约器在槽位被占时返回冲突错误，
	// Store的互斥锁保证并发请求只有一个能抢到槽位
	if _, err := store.Apply(state.SetGeneratingImageFor{Key: &key}); err != nil {
		return "", err
	}
	defer store.Apply(state.SetGeneratingImageFor{Key: nil})

	provider, err := s.resolveProvider(snapshot.Credential)
	if err != nil {
		return "", err
	}

	// 附加风格提示
	fullPrompt := cut.Prompt
	if snapshot.StyleReference != nil && snapshot.StyleReference.Analysis != "" {
		fullPrompt = cut.Prompt + ". Style: " + snapshot.StyleReference.Analysis
	}

	dataURI, err := s.generateWithFallback(ctx, provider, fullPrompt)
	if err != nil {
		return "", err
	}

	if _, err := store.Apply(state.SetGeneratedImage{Key: key, Image: dataURI}); err != nil {
		return "", err
	}

	utils.GetLogger().WithField("cut_key", key.String()).Info("镜头图像生成完成")
	return dataURI, nil
}

// RegenerateCutImage 再生成：先移除已有图像，再执行标准生成流程。
// 两步之间没有原子替换，重试是幂等的。
func (s *ImageService) RegenerateCutImage(ctx context.Context, store *state.Store, key models.CutKey) (string, error) {
	if _, err := store.Apply(state.RemoveGeneratedImage{Key: key}); err != nil {
		return "", err
	}

	return s.GenerateCutImage(ctx, store, key)
}

// RemoveCutImage 删除镜头的生成图像
func (s *ImageService) RemoveCutImage(store *state.Store, key models.CutKey) error {
	_, err := store.Apply(state.RemoveGeneratedImage{Key: key})
	return err
}

// generateWithFallback 主模型失败时用imagen模型重试一次
func (s *ImageService) generateWithFallback(ctx context.Context, provider llm.Provider, prompt string) (string, error) {
	resp, err := provider.GenerateImage(ctx, llm.ImageRequest{Prompt: prompt})
	if err == nil {
		return resp.DataURI, nil
	}

	// 凭证/配额错误直接上报，回退无意义
	if apperrors.IsAuthQuotaError(err) {
		return "", err
	}

	utils.GetLogger().WithField("error", err.Error()).Warn("主模型图像生成失败，尝试imagen回退")

	fallbackResp, fallbackErr := provider.GenerateImage(ctx, llm.ImageRequest{
		Prompt: prompt,
		Model:  google.FallbackImageModel,
	})
	if fallbackErr != nil {
		if apperrors.IsAuthQuotaError(fallbackErr) {
			return "", fallbackErr
		}
		return "", apperrors.NewGenerationError(
			"이미지 생성에 실패했습니다. API 키와 할당량을 확인해주세요.", fallbackErr)
	}

	return fallbackResp.DataURI, nil
}

// findCut 在大本中按镜头键查找镜头
func findCut(script *models.Script, key models.CutKey) (*models.Cut, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("尚未生成大本，无法生成图像", nil)
	}

	for i := range script.Scenes {
		scene := &script.Scenes[i]
		if scene.SceneNumber != key.Scene {
			continue
		}
		for j := range scene.Cuts {
			if scene.Cuts[j].CutNumber == key.Cut {
				return &scene.Cuts[j], nil
			}
		}
	}

	return nil, apperrors.NewNotFoundError("镜头不存在: "+key.String(), nil)
}
