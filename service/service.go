// Package service 实现 core.Generator：通过 HTTP 调用外部的生成式模型服务。
//
// 模型权重、beam search 与受限解码都在服务端完成，本包只负责协议：
//
//	gen, err := service.NewGenerator(&service.ServiceConfig{
//	    Type:      service.ServiceTypeTorchServe,
//	    Endpoint:  "http://localhost:8080",
//	    ModelName: "lcrec",
//	})
//	info, err := gen.Load(ctx, core.LoadOptions{CheckpointPath: "./ckpt"})
package service

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeTorchServe ServiceType = "torchserve" // TorchServe 风格路径
	ServiceTypeRPC        ServiceType = "rpc"        // 单一端点：/load /generate /ping
)

// ServiceConfig 服务配置
type ServiceConfig struct {
	// Type 服务类型
	Type ServiceType `yaml:"type"`

	// Endpoint 服务端点
	// TorchServe: "http://localhost:8080"
	// RPC: "http://localhost:9000/lcrec"
	Endpoint string `yaml:"endpoint"`

	// ModelName 模型名称（torchserve 必填）
	ModelName string `yaml:"model"`

	// ModelVersion 模型版本
	ModelVersion string `yaml:"version"`

	// Timeout 超时时间（秒）
	Timeout int `yaml:"timeout"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `yaml:"auth"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `yaml:"type"` // "basic", "bearer", "api_key"
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	APIKey   string `yaml:"api_key"`
}
