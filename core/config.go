package core

import "time"

// RecallConfig 提供召回通道的默认参数。通道构造时未显式指定的值由它给出。
type RecallConfig interface {
	// DefaultNeighborLimit 返回 U2U 的相似用户数
	DefaultNeighborLimit() int

	// DefaultSeedLimit 返回 I2I / U2I2I 的种子数
	DefaultSeedLimit() int

	// DefaultPerSeedLimit 返回每个种子扩展的相关物品数
	DefaultPerSeedLimit() int

	// DefaultAttributeLimit 返回 U2A2I 读取的偏好属性数
	DefaultAttributeLimit() int

	// DefaultRecentInteractions 返回构造用户上下文时读取的近期交互数
	DefaultRecentInteractions() int

	// DefaultTimeout 返回单通道超时时间
	DefaultTimeout() time.Duration
}

// DefaultRecallConfig 是默认的召回配置实现。
type DefaultRecallConfig struct{}

func (c *DefaultRecallConfig) DefaultNeighborLimit() int { return 50 }

func (c *DefaultRecallConfig) DefaultSeedLimit() int { return 3 }

func (c *DefaultRecallConfig) DefaultPerSeedLimit() int { return 20 }

func (c *DefaultRecallConfig) DefaultAttributeLimit() int { return 10 }

func (c *DefaultRecallConfig) DefaultRecentInteractions() int { return 150 }

func (c *DefaultRecallConfig) DefaultTimeout() time.Duration {
	return 500 * time.Millisecond
}
