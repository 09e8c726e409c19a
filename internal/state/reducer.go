// internal/state/reducer.go
package state

import (
	"fmt"

	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/models"
)

// Reduce 对状态应用一个命名转换，返回新状态。
// 纯函数：不做I/O，不修改入参，相同的(状态, 转换)总是产生相同结果。
// 失败时返回验证错误且调用方应继续持有旧状态。
func Reduce(s State, action Action) (State, error) {
	if action == nil {
		return s, apperrors.NewValidationError("转换不能为空", nil)
	}

	switch a := action.(type) {
	case SetCredential:
		s.Credential = a.Credential
		return s, nil

	case SetTopic:
		s.Topic = a.Topic
		return s, nil

	case SetSynopsis:
		s.Synopsis = a.Synopsis
		return s, nil

	case SetNotes:
		s.Notes = a.Notes
		return s, nil

	case SetDuration:
		if a.Seconds < 0 {
			return s, apperrors.NewValidationError(
				fmt.Sprintf("目标时长不能为负数: %d", a.Seconds), nil)
		}
		s.DurationSeconds = a.Seconds
		return s, nil

	case SetScript:
		s.Script = a.Script
		// 新大本的镜头编号与旧图像无对应关系，整体清空
		s.GeneratedImages = models.ImageMap{}
		s.GeneratingImageFor = nil
		return s, nil

	case SetStyleReference:
		s.StyleReference = a.Reference
		return s, nil

	case AddCharacter:
		if a.Character.ID == "" {
			return s, apperrors.NewValidationError("人物ID不能为空", nil)
		}
		if s.FindCharacter(a.Character.ID) >= 0 {
			return s, apperrors.NewValidationError(
				fmt.Sprintf("人物ID已存在: %s", a.Character.ID), nil)
		}
		characters := make([]models.CharacterReference, len(s.Characters), len(s.Characters)+1)
		copy(characters, s.Characters)
		s.Characters = append(characters, a.Character)
		return s, nil

	case RemoveCharacter:
		idx := s.FindCharacter(a.ID)
		if idx < 0 {
			return s, nil // 无操作
		}
		characters := make([]models.CharacterReference, 0, len(s.Characters)-1)
		characters = append(characters, s.Characters[:idx]...)
		characters = append(characters, s.Characters[idx+1:]...)
		s.Characters = characters
		return s, nil

	case UpdateCharacterAnalysis:
		idx := s.FindCharacter(a.ID)
		if idx < 0 {
			return s, nil // 无操作
		}
		characters := make([]models.CharacterReference, len(s.Characters))
		copy(characters, s.Characters)
		characters[idx].Analysis = a.Analysis
		s.Characters = characters
		return s, nil

	case SetAutoCastCharacters:
		s.AutoCastCharacters = a.Characters
		return s, nil

	case SetGeneratedImage:
		if a.Image == "" {
			return s, apperrors.NewValidationError("图像内容不能为空", nil)
		}
		images := s.GeneratedImages.Clone()
		images[a.Key] = a.Image
		s.GeneratedImages = images
		return s, nil

	case RemoveGeneratedImage:
		if _, exists := s.GeneratedImages[a.Key]; !exists {
			return s, nil // 无操作
		}
		images := s.GeneratedImages.Clone()
		delete(images, a.Key)
		s.GeneratedImages = images
		return s, nil

	case UpdateCutPrompt:
		return reduceUpdateCutPrompt(s, a)

	case SetLoadingFlag:
		switch a.Flag {
		case FlagGeneratingScript:
			s.GeneratingScript = a.Busy
		case FlagAnalyzingStyle:
			s.AnalyzingStyle = a.Busy
		case FlagAnalyzingCharacter:
			s.AnalyzingCharacter = a.Busy
		case FlagAutoCasting:
			s.AutoCasting = a.Busy
		default:
			return s, apperrors.NewValidationError(
				fmt.Sprintf("未知的加载标志: %s", a.Flag), nil)
		}
		return s, nil

	case SetGeneratingImageFor:
		// 占用槽位时拒绝新的占用请求，由Store互斥锁保证抢占原子性
		if a.Key != nil && s.GeneratingImageFor != nil {
			return s, apperrors.NewConflictError(
				fmt.Sprintf("已有图像生成在途: %s", s.GeneratingImageFor.String()), nil)
		}
		s.GeneratingImageFor = a.Key
		return s, nil

	case SetModalImage:
		s.ModalImage = a.Image
		return s, nil

	case Reset:
		next := NewState()
		next.Credential = s.Credential
		return next, nil

	default:
		// Action 是封闭集合；到达此处说明传入了外部实现
		return s, apperrors.NewValidationError(
			fmt.Sprintf("无法识别的转换: %s", action.Name()), nil)
	}
}

// reduceUpdateCutPrompt 替换指定位置镜头的提示词，写时复制整条路径
func reduceUpdateCutPrompt(s State, a UpdateCutPrompt) (State, error) {
	if s.Script == nil {
		return s, apperrors.NewValidationError("尚未生成大本，无法修改提示词", nil)
	}
	if a.SceneIndex < 0 || a.SceneIndex >= len(s.Script.Scenes) {
		return s, apperrors.NewValidationError(
			fmt.Sprintf("场景索引越界: %d（共%d个场景）", a.SceneIndex, len(s.Script.Scenes)), nil)
	}

	scene := s.Script.Scenes[a.SceneIndex]
	if a.CutIndex < 0 || a.CutIndex >= len(scene.Cuts) {
		return s, apperrors.NewValidationError(
			fmt.Sprintf("镜头索引越界: %d（场景%d共%d个镜头）",
				a.CutIndex, scene.SceneNumber, len(scene.Cuts)), nil)
	}

	script := *s.Script
	script.Scenes = make([]models.Scene, len(s.Script.Scenes))
	copy(script.Scenes, s.Script.Scenes)

	cuts := make([]models.Cut, len(scene.Cuts))
	copy(cuts, scene.Cuts)
	cuts[a.CutIndex].Prompt = a.Prompt
	script.Scenes[a.SceneIndex].Cuts = cuts

	s.Script = &script
	return s, nil
}
