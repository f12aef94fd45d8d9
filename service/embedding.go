// Package service 是外部模型服务的 HTTP 客户端。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rushteam/recallkit/core"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `yaml:"type"` // "basic", "bearer", "api_key"
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	APIKey   string `yaml:"api_key"`
}

// EmbeddingClient 调用文本向量化服务，实现 core.Embedder，供检索链路把查询文本转为向量。
//
// 兼容两种响应格式：
//   - OpenAI 风格：{"data": [{"embedding": [...]}]}
//   - llama.cpp 风格：[{"embedding": [[...]]}]
type EmbeddingClient struct {
	// Endpoint 服务端点，例如 "http://localhost:8081"
	Endpoint string

	// Model 模型名称，可为空
	Model string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// EmbeddingOption 客户端配置选项
type EmbeddingOption func(*EmbeddingClient)

func WithEmbeddingTimeout(timeout time.Duration) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.Timeout = timeout
	}
}

func WithEmbeddingAuth(auth *AuthConfig) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.Auth = auth
	}
}

// WithHTTPClient 使用自定义 HTTP 客户端，此时 Timeout 不生效。
func WithHTTPClient(client *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.httpClient = client
	}
}

// NewEmbeddingClient 创建向量化客户端，默认超时 5s。
func NewEmbeddingClient(endpoint, model string, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Model:    model,
		Timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

type embeddingRequest struct {
	Input   string `json:"input"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type llamaEmbeddingResponse []struct {
	Embedding [][]float32 `json:"embedding"`
}

// Embed 实现 core.Embedder。
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewDomainError(core.ModuleRetrieval, core.ErrorCodeInvalidInput, "embedding text is empty")
	}
	body, err := json.Marshal(embeddingRequest{Input: text, Content: text, Model: c.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleRetrieval, core.ErrorCodeUnavailable, "embedding request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewDomainError(core.ModuleRetrieval, core.ErrorCodeUnavailable,
			fmt.Sprintf("embedding service status=%d, body=%s", resp.StatusCode, string(raw)))
	}
	return decodeEmbedding(raw)
}

func decodeEmbedding(raw []byte) ([]float32, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var lr llamaEmbeddingResponse
		if err := json.Unmarshal(trimmed, &lr); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		if len(lr) == 0 || len(lr[0].Embedding) == 0 || len(lr[0].Embedding[0]) == 0 {
			return nil, fmt.Errorf("embedding response was empty")
		}
		return lr[0].Embedding[0], nil
	}
	var or openAIEmbeddingResponse
	if err := json.Unmarshal(trimmed, &or); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(or.Data) == 0 || len(or.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return or.Data[0].Embedding, nil
}

// Health 健康检查
func (c *EmbeddingClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status=%d", resp.StatusCode)
	}
	return nil
}

func (c *EmbeddingClient) addAuth(req *http.Request) {
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

var _ core.Embedder = (*EmbeddingClient)(nil)
