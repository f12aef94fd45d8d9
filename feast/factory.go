package feast

import (
	"strconv"
	"strings"
)

// DefaultPort 是 Feast serving 的默认 gRPC 端口。
const DefaultPort = 6566

// NewClient 根据端点创建 gRPC 客户端。
//
//	client, err := feast.NewClient("localhost:6566", "recall", feast.WithTimeout(200*time.Millisecond))
func NewClient(endpoint, project string, opts ...ClientOption) (Client, error) {
	host, port := parseEndpoint(endpoint)
	c, err := NewGrpcClient(host, port, project, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// parseEndpoint 解析端点地址，返回 host 和 port；没有端口时 port 为 0
func parseEndpoint(endpoint string) (string, int) {
	endpoint = strings.TrimPrefix(endpoint, "grpc://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	parts := strings.Split(endpoint, ":")
	if len(parts) == 2 {
		port, err := strconv.Atoi(parts[1])
		if err == nil {
			return parts[0], port
		}
	}
	return endpoint, 0
}
