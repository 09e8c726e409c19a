// internal/models/reference.go
package models

// StyleReference 用户上传的风格参考：图像 + AI生成的风格描述。
// Analysis 在异步分析完成前可能为空字符串。
type StyleReference struct {
	Image    string `json:"image"` // data URI
	Analysis string `json:"analysis"`
}

// CharacterReference 用户上传的人物参考
type CharacterReference struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image    string `json:"image"` // data URI
	Analysis string `json:"analysis"`
}

// AutoCastCharacter 从剧情简介自动推导出的人物
type AutoCastCharacter struct {
	Name        string `json:"name"`
	Background  string `json:"background,omitempty"`
	Description string `json:"description"`
}
