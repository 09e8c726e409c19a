// internal/state/actions.go
package state

import (
	"github.com/Corphon/ScriptStudioMCP/internal/models"
)

// Action 是状态转换的封闭集合。每个转换对应一个携带强类型载荷的变体，
// 未知转换在类型层面不可表达（见 Reduce 对 nil/外部实现的拒绝）。
type Action interface {
	// Name 返回转换名称，用于日志和变更事件
	Name() string
}

// SetCredential 替换API凭证
type SetCredential struct {
	Credential string
}

// SetTopic 替换主题
type SetTopic struct {
	Topic string
}

// SetSynopsis 替换剧情简介
type SetSynopsis struct {
	Synopsis string
}

// SetNotes 替换参考事项
type SetNotes struct {
	Notes string
}

// SetDuration 替换目标时长（秒）
type SetDuration struct {
	Seconds int
}

// SetScript 整体替换生成的大本。
// 设计决定：镜头键只相对产生它的大本有意义，因此同时清空 ImageMap，
// 避免重新生成后同键不同内容的陈旧图像被静默复用。
type SetScript struct {
	Script *models.Script
}

// SetStyleReference 整体替换风格参考
type SetStyleReference struct {
	Reference *models.StyleReference
}

// AddCharacter 追加人物参考（ID在插入时必须唯一）
type AddCharacter struct {
	Character models.CharacterReference
}

// RemoveCharacter 按ID移除人物参考（不存在时为无操作）
type RemoveCharacter struct {
	ID string
}

// UpdateCharacterAnalysis 修补指定人物的分析文本（不存在时为无操作）
type UpdateCharacterAnalysis struct {
	ID       string
	Analysis string
}

// SetAutoCastCharacters 整体替换自动选角列表
type SetAutoCastCharacters struct {
	Characters []models.AutoCastCharacter
}

// SetGeneratedImage 插入/覆盖一个镜头的生成图像
type SetGeneratedImage struct {
	Key   models.CutKey
	Image string
}

// RemoveGeneratedImage 删除一个镜头的生成图像（不存在时为无操作）
type RemoveGeneratedImage struct {
	Key models.CutKey
}

// UpdateCutPrompt 替换指定位置（0基索引）镜头的图像提示词。
// 索引越界时返回验证错误且状态不变。
type UpdateCutPrompt struct {
	SceneIndex int
	CutIndex   int
	Prompt     string
}

// SetLoadingFlag 设置一个命名布尔标志
type SetLoadingFlag struct {
	Flag LoadingFlag
	Busy bool
}

// SetGeneratingImageFor 设置当前正在生成图像的镜头键（nil表示空闲）
type SetGeneratingImageFor struct {
	Key *models.CutKey
}

// SetModalImage 替换全屏预览图像（nil表示关闭）
type SetModalImage struct {
	Image *string
}

// Reset 恢复所有字段到初始默认值，仅保留凭证
type Reset struct{}

func (SetCredential) Name() string           { return "SET_CREDENTIAL" }
func (SetTopic) Name() string                { return "SET_TOPIC" }
func (SetSynopsis) Name() string             { return "SET_SYNOPSIS" }
func (SetNotes) Name() string                { return "SET_NOTES" }
func (SetDuration) Name() string             { return "SET_DURATION" }
func (SetScript) Name() string               { return "SET_SCRIPT" }
func (SetStyleReference) Name() string       { return "SET_STYLE_REFERENCE" }
func (AddCharacter) Name() string            { return "ADD_CHARACTER" }
func (RemoveCharacter) Name() string         { return "REMOVE_CHARACTER" }
func (UpdateCharacterAnalysis) Name() string { return "UPDATE_CHARACTER_ANALYSIS" }
func (SetAutoCastCharacters) Name() string   { return "SET_AUTO_CAST_CHARACTERS" }
func (SetGeneratedImage) Name() string       { return "SET_GENERATED_IMAGE" }
func (RemoveGeneratedImage) Name() string    { return "REMOVE_GENERATED_IMAGE" }
func (UpdateCutPrompt) Name() string         { return "UPDATE_CUT_PROMPT" }
func (SetLoadingFlag) Name() string          { return "SET_LOADING_FLAG" }
func (SetGeneratingImageFor) Name() string   { return "SET_GENERATING_IMAGE_FOR" }
func (SetModalImage) Name() string           { return "SET_MODAL_IMAGE" }
func (Reset) Name() string                   { return "RESET" }
