// internal/services/provider.go
package services

import (
	"github.com/Corphon/ScriptStudioMCP/internal/config"
	apperrors "github.com/Corphon/ScriptStudioMCP/internal/errors"
	"github.com/Corphon/ScriptStudioMCP/internal/llm"
)

// ProviderResolver 按会话凭证解析生成客户端实例。
// 会话凭证优先；为空时回退到服务器级配置的API密钥。
type ProviderResolver func(credential string) (llm.Provider, error)

// DefaultProviderResolver 基于当前配置创建提供者
func DefaultProviderResolver(credential string) (llm.Provider, error) {
	cfg := config.GetCurrentConfig()

	llmConfig := make(map[string]string, len(cfg.LLMConfig)+1)
	for k, v := range cfg.LLMConfig {
		llmConfig[k] = v
	}

	if credential != "" {
		llmConfig["api_key"] = credential
	}

	if llmConfig["api_key"] == "" {
		return nil, apperrors.NewAuthQuotaError("未提供API密钥，请在会话中设置凭证", nil)
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, llmConfig)
	if err != nil {
		return nil, apperrors.WrapError(err, "初始化生成客户端失败", apperrors.ErrorTypeError)
	}

	return provider, nil
}
