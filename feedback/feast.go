package feedback

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/dropfeed/core"
)

// FeastProvider 从 Feast 在线特征库读取 (user, item) 亲和度。
//
// 在线特征按实体行 {user_id, item_id} 查询，特征名默认 "user_item_affinity:score"。
// 特征缺失时返回 0；值越界由调用方截断到 [0,1]。
//
// 使用官方 SDK (github.com/feast-dev/feast/sdk/go) 的 gRPC 客户端。
type FeastProvider struct {
	client  *feastsdk.GrpcClient
	Project string
	Feature string

	// fetchRows 执行在线特征查询，默认走 client；测试中可替换
	fetchRows func(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error)
}

// DefaultFeastFeature 是默认的亲和度特征名
const DefaultFeastFeature = "user_item_affinity:score"

// NewFeastProvider 创建一个基于 Feast gRPC 的反馈分服务。
//
// 参数：
//   - host: Feast Feature Server 主机地址
//   - port: gRPC 端口，默认 6565
//   - project: 项目名称
//   - feature: 特征引用，为空时使用 DefaultFeastFeature
func NewFeastProvider(host string, port int, project, feature string) (*FeastProvider, error) {
	if port == 0 {
		port = 6565
	}
	if project == "" {
		return nil, fmt.Errorf("feast project is required")
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("create feast grpc client: %w", err)
	}
	p := &FeastProvider{
		client:  client,
		Project: project,
		Feature: feature,
	}
	p.fetchRows = p.fetchFromClient
	return p, nil
}

func (p *FeastProvider) Name() string { return "feast" }

// Affinity 实现 core.FeedbackProvider。
func (p *FeastProvider) Affinity(ctx context.Context, q core.FeedbackQuery) (float64, error) {
	feature := p.Feature
	if feature == "" {
		feature = DefaultFeastFeature
	}

	req := &feastsdk.OnlineFeaturesRequest{
		Features: []string{feature},
		Entities: []feastsdk.Row{{
			"user_id": feastsdk.StrVal(q.UserID),
			"item_id": feastsdk.StrVal(q.ItemID),
		}},
		Project: p.Project,
	}

	rows, err := p.fetchRows(ctx, req)
	if err != nil {
		return 0, core.WrapDomainError(core.ModuleFeedback, core.ErrorCodeFeedbackLookup, "feast get online features", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return numericValue(rows[0][feature]), nil
}

func (p *FeastProvider) fetchFromClient(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
	if p.client == nil {
		return nil, core.NewDomainError(core.ModuleFeedback, core.ErrorCodeUnavailable, "feast client closed")
	}
	resp, err := p.client.GetOnlineFeatures(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Rows(), nil
}

// Close 释放客户端；连接由 gRPC 库管理。
func (p *FeastProvider) Close() error {
	p.client = nil
	return nil
}

// feastValue 是 SDK 返回的 protobuf Value 上可用的取值方法。
type feastValue interface {
	GetDoubleVal() float64
	GetFloatVal() float32
	GetInt64Val() int64
	GetInt32Val() int32
}

// numericValue 从 SDK 值中取出数值；非数值或缺失返回 0。
func numericValue(val any) float64 {
	v, ok := val.(feastValue)
	if !ok || v == nil {
		return 0
	}
	if d := v.GetDoubleVal(); d != 0 {
		return d
	}
	if f := v.GetFloatVal(); f != 0 {
		return float64(f)
	}
	if i := v.GetInt64Val(); i != 0 {
		return float64(i)
	}
	return float64(v.GetInt32Val())
}

var _ core.FeedbackProvider = (*FeastProvider)(nil)
