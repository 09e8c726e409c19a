// internal/state/state.go
package state

import (
	"github.com/Corphon/ScriptStudioMCP/internal/models"
)

// LoadingFlag 命名的异步操作标志
type LoadingFlag string

const (
	FlagGeneratingScript   LoadingFlag = "generating_script"
	FlagAnalyzingStyle     LoadingFlag = "analyzing_style"
	FlagAnalyzingCharacter LoadingFlag = "analyzing_character"
	FlagAutoCasting        LoadingFlag = "auto_casting"
)

// DefaultDurationSeconds 默认目标时长（4分钟）
const DefaultDurationSeconds = 240

// State 是单个创作会话的完整应用状态快照。
// 状态只能通过 Reduce 应用命名转换来演化，Reduce 本身不做任何I/O。
type State struct {
	// API凭证（Reset时保留）
	Credential string `json:"credential,omitempty"`

	// 用户输入
	Topic           string `json:"topic"`
	DurationSeconds int    `json:"duration_seconds"`
	Synopsis        string `json:"synopsis"`
	Notes           string `json:"notes"`

	// 生成的大本
	Script *models.Script `json:"script"`

	// 风格参考
	StyleReference *models.StyleReference `json:"style_reference"`

	// 人物参考
	Characters []models.CharacterReference `json:"characters"`

	// 自动选角人物
	AutoCastCharacters []models.AutoCastCharacter `json:"auto_cast_characters"`

	// 已生成图像（镜头键 -> data URI）
	GeneratedImages models.ImageMap `json:"generated_images"`

	// 异步操作标志
	GeneratingScript   bool `json:"generating_script"`
	AnalyzingStyle     bool `json:"analyzing_style"`
	AnalyzingCharacter bool `json:"analyzing_character"`
	AutoCasting        bool `json:"auto_casting"`

	// 正在生成图像的镜头键（同一时刻最多一个）
	GeneratingImageFor *models.CutKey `json:"generating_image_for"`

	// 全屏预览图像
	ModalImage *string `json:"modal_image"`
}

// NewState 创建带默认值的初始状态
func NewState() State {
	return State{
		DurationSeconds:    DefaultDurationSeconds,
		Characters:         []models.CharacterReference{},
		AutoCastCharacters: []models.AutoCastCharacter{},
		GeneratedImages:    models.ImageMap{},
	}
}

// FlagsView 是推送给客户端的加载状态视图
type FlagsView struct {
	GeneratingScript   bool    `json:"generating_script"`
	AnalyzingStyle     bool    `json:"analyzing_style"`
	AnalyzingCharacter bool    `json:"analyzing_character"`
	AutoCasting        bool    `json:"auto_casting"`
	GeneratingImageFor *string `json:"generating_image_for"`
}

// Flags 提取当前加载状态视图
func (s State) Flags() FlagsView {
	view := FlagsView{
		GeneratingScript:   s.GeneratingScript,
		AnalyzingStyle:     s.AnalyzingStyle,
		AnalyzingCharacter: s.AnalyzingCharacter,
		AutoCasting:        s.AutoCasting,
	}
	if s.GeneratingImageFor != nil {
		key := s.GeneratingImageFor.String()
		view.GeneratingImageFor = &key
	}
	return view
}

// FindCharacter 按ID查找人物参考，返回索引（未找到时为-1）
func (s *State) FindCharacter(id string) int {
	for i, c := range s.Characters {
		if c.ID == id {
			return i
		}
	}
	return -1
}
