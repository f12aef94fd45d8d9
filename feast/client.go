// Package feast 从 Feast 在线特征服务读取用户特征：
//   - PreferenceService: 用户偏好属性，实现 core.UserPreferenceService，供 U2A2I 通道使用
//   - ProfileService: 用户画像属性，供 engine.ContextFactory 构造用户上下文
package feast

import (
	"context"
	"time"
)

// Client 是 Feast Feature Store 在线特征的客户端接口。
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - features: 特征名称列表，例如 ["user_prefs:top_categories"]
	//   - entityRows: 实体行，例如 [{"user_id": 1001}]
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	Features []string

	EntityRows []map[string]any

	// Project 项目名称（可选）
	Project string
}

// GetOnlineFeaturesResponse 获取在线特征响应
type GetOnlineFeaturesResponse struct {
	// FeatureVectors 特征向量列表，每个元素对应一个实体行
	FeatureVectors []FeatureVector
}

// FeatureVector 特征向量
type FeatureVector struct {
	// Values 特征值：string / int64 / float64 / bool / []string / []float64
	Values map[string]any

	EntityRow map[string]any
}

// ClientOption Feast 客户端配置选项
type ClientOption func(*ClientConfig)

// ClientConfig Feast 客户端配置
type ClientConfig struct {
	Endpoint string
	Project  string

	// Timeout 单次请求超时，<=0 不限制
	Timeout time.Duration

	// Token 静态 Token 认证，为空时使用无认证连接
	Token string

	// TLS 是否启用 TLS（仅在 Token 非空时生效）
	TLS bool
}

// WithTimeout 配置选项：设置超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithToken 配置选项：设置静态 Token 认证
func WithToken(token string, tls bool) ClientOption {
	return func(c *ClientConfig) {
		c.Token = token
		c.TLS = tls
	}
}
