package core

import "context"

// Generator 是生成式模型服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service）实现
//   - 模型权重、beam search、受限解码都属于外部服务，这里只描述调用契约
//   - 评分与聚合逻辑只依赖该接口，可以用脚本化的 stub 独立测试
//
// 实现：
//   - service.GenerationClient 实现此接口（HTTP）
//   - service.CachedGenerator 在任意 Generator 之上加结果缓存
type Generator interface {
	// Load 加载 checkpoint（可选：base model + adapter 组合），返回模型信息
	Load(ctx context.Context, opts LoadOptions) (*ModelInfo, error)

	// Generate 批量 beam search 生成
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 释放资源
	Close() error
}

// LoadOptions 描述 checkpoint 的加载方式。
type LoadOptions struct {
	// CheckpointPath 微调后的 checkpoint（或 adapter）路径
	CheckpointPath string `json:"ckpt_path"`

	// BaseModel 使用 adapter 时的基座模型路径
	BaseModel string `json:"base_model,omitempty"`

	// Adapter 为 true 时先加载 BaseModel，再叠加 CheckpointPath 下的低秩 adapter
	Adapter bool `json:"lora"`

	// ResizeEmbeddings 加载 adapter 前把词表嵌入扩到该大小（通常为 tokenizer 长度），0 表示不调整
	ResizeEmbeddings int `json:"resize_embeddings,omitempty"`

	// Device 推理设备编号
	Device int `json:"gpu_id"`
}

// ModelInfo 是 Load 的返回信息。
type ModelInfo struct {
	VocabSize int    `json:"vocab_size"`
	Device    string `json:"device,omitempty"`
}

// GenerateRequest 生成请求。InputIDs 与 AttentionMask 按行对齐（左侧补齐）。
type GenerateRequest struct {
	InputIDs      [][]int
	AttentionMask [][]int

	MaxNewTokens int
	NumBeams     int

	// NumReturnSequences 每个样本返回的序列数，评测时等于 NumBeams
	NumReturnSequences int

	// Constraint 受限解码规则（可选）
	Constraint Constraint
}

// GenerateResponse 生成结果。
// Sequences 长度为 batch × NumReturnSequences，同一样本的输出连续排列；Scores 与之一一对应。
type GenerateResponse struct {
	Sequences [][]int
	Scores    []float64
}

// Constraint 描述前缀受限解码：给定已生成的 token 序列，返回下一步允许的 token。
type Constraint interface {
	Allowed(batchID int, sentence []int) []int
}

// SequenceConstraint 是可导出的 Constraint：远程服务可以据此在服务端重建同样的约束。
type SequenceConstraint interface {
	Constraint

	// Sequences 返回全部合法物品标识的 token 序列
	Sequences() [][]int

	// Marker 返回回复起始标记的 token 序列，约束从该标记之后开始生效
	Marker() []int
}

// Tokenizer 是分词器的领域接口。
type Tokenizer interface {
	// Encode 文本 -> token id（按配置添加 BOS）
	Encode(text string) []int

	// EncodePiece 编码片段，不加 BOS，用于构造受限解码的 token 序列
	EncodePiece(text string) []int

	// Decode token id -> 文本；skipSpecial 为 true 时去掉特殊 token
	Decode(ids []int, skipSpecial bool) string

	// BatchDecode 批量 Decode
	BatchDecode(seqs [][]int, skipSpecial bool) []string

	// Len 词表大小（含 added tokens）
	Len() int

	PadID() int
	EOSID() int
}
