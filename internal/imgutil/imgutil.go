// internal/imgutil/imgutil.go
package imgutil

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// 接受的图像MIME类型
var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsValidImageType 检查MIME类型是否为受支持的图像类型
func IsValidImageType(mimeType string) bool {
	return validImageTypes[strings.ToLower(strings.TrimSpace(mimeType))]
}

// DetectImageType 从字节内容嗅探MIME类型
func DetectImageType(data []byte) string {
	return http.DetectContentType(data)
}

// EncodeDataURI 将图像字节编码为可嵌入的data URI
func EncodeDataURI(mimeType string, data []byte) (string, error) {
	if !IsValidImageType(mimeType) {
		return "", fmt.Errorf("不支持的图像类型: %s", mimeType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("图像数据为空")
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURI 将data URI解码回MIME类型和原始字节
func DecodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("无效的data URI")
	}

	rest := strings.TrimPrefix(uri, "data:")
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return "", nil, fmt.Errorf("无效的data URI: 缺少数据部分")
	}

	meta := rest[:sep]
	payload := rest[sep+1:]

	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("无效的data URI: 仅支持base64编码")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")

	if !IsValidImageType(mimeType) {
		return "", nil, fmt.Errorf("不支持的图像类型: %s", mimeType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("解码图像数据失败: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("图像数据为空")
	}

	return mimeType, data, nil
}

// FormatFileSize 将字节数格式化为可读大小
func FormatFileSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	const unit = 1024
	sizes := []string{"Bytes", "KB", "MB", "GB"}

	size := float64(bytes)
	i := 0
	for size >= unit && i < len(sizes)-1 {
		size /= unit
		i++
	}

	return fmt.Sprintf("%.2f %s", size, sizes[i])
}
