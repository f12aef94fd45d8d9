package feast

import (
	"context"
	"errors"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
)

// GrpcClient 是基于官方 Feast Go SDK 的 gRPC 客户端实现。
type GrpcClient struct {
	client *feastsdk.GrpcClient
	config ClientConfig
}

// NewGrpcClient 创建一个基于官方 SDK 的 Feast gRPC 客户端，port 为 0 时使用 DefaultPort。
func NewGrpcClient(host string, port int, project string, opts ...ClientOption) (*GrpcClient, error) {
	if port == 0 {
		port = DefaultPort
	}
	config := ClientConfig{
		Endpoint: fmt.Sprintf("%s:%d", host, port),
		Project:  project,
	}
	for _, opt := range opts {
		opt(&config)
	}

	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if config.Token != "" {
		client, err = feastsdk.NewSecureGrpcClient(host, port, feastsdk.SecurityConfig{
			EnableTLS:  config.TLS,
			Credential: feastsdk.NewStaticCredential(config.Token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(host, port)
	}
	if err != nil {
		return nil, fmt.Errorf("connect feast %s: %w", config.Endpoint, err)
	}
	return &GrpcClient{client: client, config: config}, nil
}

func (c *GrpcClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if c.client == nil {
		return nil, errors.New("feast client is closed")
	}
	if len(req.Features) == 0 {
		return nil, errors.New("features are required")
	}
	if len(req.EntityRows) == 0 {
		return nil, errors.New("entity rows are required")
	}
	project := req.Project
	if project == "" {
		project = c.config.Project
	}
	if project == "" {
		return nil, errors.New("project is required")
	}

	entities := make([]feastsdk.Row, len(req.EntityRows))
	for i, row := range req.EntityRows {
		entity := make(feastsdk.Row, len(row))
		for k, v := range row {
			entity[k] = toSDKValue(v)
		}
		entities[i] = entity
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	resp, err := c.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: req.Features,
		Entities: entities,
		Project:  project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) != len(req.EntityRows) {
		return nil, fmt.Errorf("feast response row count mismatch: expected %d, got %d", len(req.EntityRows), len(rows))
	}
	vectors := make([]FeatureVector, len(rows))
	for i, row := range rows {
		values := make(map[string]any, len(req.Features))
		for _, name := range req.Features {
			if v := fromSDKValue(row[name]); v != nil {
				values[name] = v
			}
		}
		vectors[i] = FeatureVector{Values: values, EntityRow: req.EntityRows[i]}
	}
	return &GetOnlineFeaturesResponse{FeatureVectors: vectors}, nil
}

func (c *GrpcClient) Close() error {
	c.client = nil
	return nil
}

// toSDKValue 将实体值转换为 SDK 的 *types.Value
func toSDKValue(v any) *types.Value {
	switch val := v.(type) {
	case string:
		return feastsdk.StrVal(val)
	case int:
		return feastsdk.Int64Val(int64(val))
	case int64:
		return feastsdk.Int64Val(val)
	case int32:
		return feastsdk.Int64Val(int64(val))
	case float64:
		return feastsdk.DoubleVal(val)
	case float32:
		return feastsdk.FloatVal(val)
	case bool:
		return feastsdk.BoolVal(val)
	case []byte:
		return feastsdk.BytesVal(val)
	default:
		return feastsdk.StrVal(fmt.Sprint(val))
	}
}

// fromSDKValue 把 SDK 特征值转为 Go 值；未设置或不支持的类型返回 nil
func fromSDKValue(v *types.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetVal().(type) {
	case *types.Value_StringVal:
		return val.StringVal
	case *types.Value_Int64Val:
		return val.Int64Val
	case *types.Value_Int32Val:
		return int64(val.Int32Val)
	case *types.Value_DoubleVal:
		return val.DoubleVal
	case *types.Value_FloatVal:
		return float64(val.FloatVal)
	case *types.Value_BoolVal:
		return val.BoolVal
	case *types.Value_BytesVal:
		return string(val.BytesVal)
	case *types.Value_StringListVal:
		return append([]string(nil), val.StringListVal.GetVal()...)
	case *types.Value_DoubleListVal:
		return append([]float64(nil), val.DoubleListVal.GetVal()...)
	case *types.Value_FloatListVal:
		out := make([]float64, 0, len(val.FloatListVal.GetVal()))
		for _, f := range val.FloatListVal.GetVal() {
			out = append(out, float64(f))
		}
		return out
	default:
		return nil
	}
}

var _ Client = (*GrpcClient)(nil)
