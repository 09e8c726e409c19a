// internal/models/script.go
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Script 表示一份完整的方案大本：标题、目标时长和场景序列。
// TotalDuration 理论上等于所有切分镜头时长之和，但不强制，消费方需容忍偏差。
type Script struct {
	Title         string  `json:"title"`
	TotalDuration int     `json:"totalDuration" validate:"gte=0"`
	Scenes        []Scene `json:"scenes" validate:"required,min=1,dive"`
}

// Scene 表示一个带标题的镜头组
type Scene struct {
	SceneNumber int    `json:"sceneNumber" validate:"gt=0"`
	SceneTitle  string `json:"sceneTitle,omitempty"`
	Cuts        []Cut  `json:"cuts" validate:"required,min=1,dive"`
}

// Cut 是大本的原子单位：一个带时长的片段，含旁白和图像/视频生成提示词。
// CutNumber 在整个大本内连续递增，不按场景重置。
type Cut struct {
	CutNumber   int    `json:"cutNumber" validate:"gt=0"`
	Duration    int    `json:"duration"`
	ShotType    string `json:"shotType"`
	Audio       string `json:"audio" validate:"required"`
	Prompt      string `json:"prompt" validate:"required"`
	PromptKr    string `json:"promptKr,omitempty"`
	VideoPrompt string `json:"videoPrompt,omitempty"`
}

// TotalCuts 重新统计所有场景的切分镜头数量。
// 导出时的汇总必须使用该值，而不是任何缓存的计数器。
func (s *Script) TotalCuts() int {
	total := 0
	for _, scene := range s.Scenes {
		total += len(scene.Cuts)
	}
	return total
}

// CutKey 是场景号+镜头号的复合键，用于将生成的图像关联到具体镜头。
// 使用结构体而非拼接字符串，避免 1-23 与 12-3 这类裸拼接歧义。
type CutKey struct {
	Scene int `json:"scene"`
	Cut   int `json:"cut"`
}

// NewCutKey 创建镜头键
func NewCutKey(sceneNumber, cutNumber int) CutKey {
	return CutKey{Scene: sceneNumber, Cut: cutNumber}
}

// String 返回带分隔符的字符串形式，如 "2-5"
func (k CutKey) String() string {
	return fmt.Sprintf("%d-%d", k.Scene, k.Cut)
}

// MarshalText 实现 encoding.TextMarshaler，使 CutKey 可直接作为JSON映射键
func (k CutKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *CutKey) UnmarshalText(text []byte) error {
	parsed, err := ParseCutKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseCutKey 从 "scene-cut" 形式解析镜头键
func ParseCutKey(s string) (CutKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return CutKey{}, fmt.Errorf("无效的镜头键: %q", s)
	}

	scene, err := strconv.Atoi(parts[0])
	if err != nil {
		return CutKey{}, fmt.Errorf("无效的场景号: %q", parts[0])
	}

	cut, err := strconv.Atoi(parts[1])
	if err != nil {
		return CutKey{}, fmt.Errorf("无效的镜头号: %q", parts[1])
	}

	if scene <= 0 || cut <= 0 {
		return CutKey{}, fmt.Errorf("镜头键必须为正整数: %q", s)
	}

	return CutKey{Scene: scene, Cut: cut}, nil
}

// ImageMap 是镜头键到已生成图像（自包含的data URI）的映射
type ImageMap map[CutKey]string

// Clone 返回映射的浅拷贝（值为不可变字符串）
func (m ImageMap) Clone() ImageMap {
	cloned := make(ImageMap, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}
