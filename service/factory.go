package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/rushteam/receval/core"
)

// NewGenerator 根据配置创建 Generator 实例（工厂方法）。
func NewGenerator(config *ServiceConfig) (core.Generator, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	opts := []GenerationOption{
		WithTimeout(timeout),
	}
	if config.ModelVersion != "" {
		opts = append(opts, WithVersion(config.ModelVersion))
	}
	if config.Auth != nil {
		opts = append(opts, WithAuth(config.Auth))
	}

	endpoint := strings.TrimRight(config.Endpoint, "/")
	if config.Type == ServiceTypeRPC {
		opts = append(opts, WithRPCRoutes())
	}
	return NewGenerationClient(endpoint, config.ModelName, opts...), nil
}

// hasHTTPPrefix 检查是否包含 HTTP 前缀
func hasHTTPPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return core.NewConfigError(core.ModuleService, "service: config is required")
	}
	switch config.Type {
	case ServiceTypeTorchServe, ServiceTypeRPC:
	default:
		return core.NewConfigError(core.ModuleService,
			fmt.Sprintf("service: unsupported service type %q (supported: %s, %s)",
				config.Type, ServiceTypeTorchServe, ServiceTypeRPC))
	}
	if config.Endpoint == "" {
		return core.NewConfigError(core.ModuleService, "service: endpoint is required")
	}
	if !hasHTTPPrefix(config.Endpoint) {
		return core.NewConfigError(core.ModuleService,
			fmt.Sprintf("service: endpoint %q must start with http:// or https://", config.Endpoint))
	}
	if config.ModelName == "" && config.Type == ServiceTypeTorchServe {
		return core.NewConfigError(core.ModuleService, "service: model name is required")
	}
	if config.Auth != nil {
		switch config.Auth.Type {
		case "basic", "bearer", "api_key":
		default:
			return core.NewConfigError(core.ModuleService,
				fmt.Sprintf("service: unsupported auth type %q", config.Auth.Type))
		}
	}
	return nil
}
