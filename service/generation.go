package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rushteam/receval/core"
)

// GenerationClient 是生成式模型服务的 HTTP 客户端。
//
// TorchServe 风格路径：
//   - 健康检查：GET /ping
//   - 加载模型：POST /models/{model_name}/load
//   - 生成：POST /predictions/{model_name}/generate
//
// RPC 风格（WithRPCRoutes）：Endpoint + /ping、/load、/generate。
//
// 受限解码：请求里带上全部合法物品标识的 token 序列与回复标记，
// 服务端据此重建与本地 Trie 相同的前缀约束。
type GenerationClient struct {
	// Endpoint 服务端点
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，通过 ?version= 传递）
	ModelVersion string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	routes     routes
	httpClient *http.Client
}

type routes struct {
	ping, load, generate string
}

func torchServeRoutes(model string) routes {
	m := url.PathEscape(model)
	return routes{
		ping:     "/ping",
		load:     "/models/" + m + "/load",
		generate: "/predictions/" + m + "/generate",
	}
}

// NewGenerationClient 创建客户端，默认使用 TorchServe 风格路径。
func NewGenerationClient(endpoint, modelName string, opts ...GenerationOption) *GenerationClient {
	client := &GenerationClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   30 * time.Second,
		routes:    torchServeRoutes(modelName),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Timeout: client.Timeout,
		}
	}
	return client
}

// GenerationOption 客户端配置选项
type GenerationOption func(*GenerationClient)

// WithVersion 设置模型版本
func WithVersion(version string) GenerationOption {
	return func(c *GenerationClient) {
		c.ModelVersion = version
	}
}

// WithTimeout 设置超时时间；beam 较大时单次生成可能需要数分钟
func WithTimeout(timeout time.Duration) GenerationOption {
	return func(c *GenerationClient) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithAuth 设置认证信息
func WithAuth(auth *AuthConfig) GenerationOption {
	return func(c *GenerationClient) {
		c.Auth = auth
	}
}

// WithHTTPClient 设置自定义 HTTP 客户端
func WithHTTPClient(httpClient *http.Client) GenerationOption {
	return func(c *GenerationClient) {
		c.httpClient = httpClient
	}
}

// WithRPCRoutes 使用单一端点的 /ping、/load、/generate 路径
func WithRPCRoutes() GenerationOption {
	return func(c *GenerationClient) {
		c.routes = routes{ping: "/ping", load: "/load", generate: "/generate"}
	}
}

type generateRequest struct {
	InputIDs           [][]int `json:"input_ids"`
	AttentionMask      [][]int `json:"attention_mask"`
	MaxNewTokens       int     `json:"max_new_tokens"`
	NumBeams           int     `json:"num_beams"`
	NumReturnSequences int     `json:"num_return_sequences"`
	AllowedSequences   [][]int `json:"allowed_sequences,omitempty"`
	ResponseMarker     []int   `json:"response_marker,omitempty"`
}

type generateResponse struct {
	Sequences [][]int   `json:"sequences"`
	Scores    []float64 `json:"sequence_scores"`
}

// Load 请求服务端加载 checkpoint。
func (c *GenerationClient) Load(ctx context.Context, opts core.LoadOptions) (*core.ModelInfo, error) {
	if opts.CheckpointPath == "" {
		return nil, core.NewConfigError(core.ModuleService, "service: checkpoint path is required")
	}
	if opts.Adapter && opts.BaseModel == "" {
		return nil, core.NewConfigError(core.ModuleService, "service: adapter checkpoint requires base model")
	}
	var info core.ModelInfo
	if err := c.post(ctx, "load", c.routes.load, opts, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Generate 批量 beam search 生成。
func (c *GenerationClient) Generate(ctx context.Context, req *core.GenerateRequest) (*core.GenerateResponse, error) {
	if len(req.InputIDs) == 0 {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: input ids are required")
	}
	if len(req.AttentionMask) != len(req.InputIDs) {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput,
			fmt.Sprintf("service: attention mask rows %d != input rows %d", len(req.AttentionMask), len(req.InputIDs)))
	}
	numReturn := req.NumReturnSequences
	if numReturn <= 0 {
		numReturn = 1
	}

	body := generateRequest{
		InputIDs:           req.InputIDs,
		AttentionMask:      req.AttentionMask,
		MaxNewTokens:       req.MaxNewTokens,
		NumBeams:           req.NumBeams,
		NumReturnSequences: numReturn,
	}
	if req.Constraint != nil {
		sc, ok := req.Constraint.(core.SequenceConstraint)
		if !ok {
			return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeNotSupported,
				fmt.Sprintf("service: constraint %T cannot be sent to a remote backend", req.Constraint))
		}
		body.AllowedSequences = sc.Sequences()
		body.ResponseMarker = sc.Marker()
	}

	var out generateResponse
	if err := c.post(ctx, "generate", c.routes.generate, body, &out); err != nil {
		return nil, err
	}

	want := len(req.InputIDs) * numReturn
	if len(out.Sequences) != want || len(out.Scores) != want {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInternalError,
			fmt.Sprintf("service: expected %d sequences and scores, got %d sequences and %d scores",
				want, len(out.Sequences), len(out.Scores)))
	}
	return &core.GenerateResponse{Sequences: out.Sequences, Scores: out.Scores}, nil
}

func (c *GenerationClient) endpointURL(path string) string {
	u := c.Endpoint + path
	if c.ModelVersion != "" {
		u += "?version=" + url.QueryEscape(c.ModelVersion)
	}
	return u
}

func (c *GenerationClient) post(ctx context.Context, op, path string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("service: marshal %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(path), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("service: create %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("service: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("service: read %s response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp.StatusCode, bodyBytes)
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("service: parse %s response: %w (body=%s)", op, err, truncate(bodyBytes))
	}
	return nil
}

func statusError(op string, status int, body []byte) error {
	code := core.ErrorCodeInternalError
	switch {
	case status == http.StatusNotFound:
		code = core.ErrorCodeNotFound
	case status == http.StatusBadRequest:
		code = core.ErrorCodeInvalidInput
	case status >= 500:
		code = core.ErrorCodeUnavailable
	}
	return core.NewDomainError(core.ModuleService, code,
		fmt.Sprintf("service: %s error: status=%d, body=%s", op, status, truncate(body)))
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// addAuth 添加认证信息到 HTTP 请求
func (c *GenerationClient) addAuth(req *http.Request) {
	if c.Auth == nil {
		return
	}

	switch c.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.Auth.APIKey)
	}
}

// Health 健康检查
func (c *GenerationClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+c.routes.ping, nil)
	if err != nil {
		return fmt.Errorf("service: create ping request: %w", err)
	}
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable,
			fmt.Sprintf("service: health check failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable,
			fmt.Sprintf("service: health check failed: status=%d, body=%s", resp.StatusCode, truncate(bodyBytes)))
	}
	return nil
}

// Close 关闭空闲连接
func (c *GenerationClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ core.Generator = (*GenerationClient)(nil)
