package core

import (
	"time"

	"github.com/rushteam/dropfeed/pkg/utils"
)

// ItemKind 是内容类型。
type ItemKind string

const (
	KindArticle ItemKind = "article"
	KindVideo   ItemKind = "video"
)

// Topics 是外部打标流水线给出的主题分类：一个 macro、一个 sub、零或多个 micro tag。
// ID 为 0 表示该层级未分类。
type Topics struct {
	MacroID   int64
	SubID     int64
	MicroTags []string
}

// Item 是推荐链路中的统一承载结构（即 CandidateItem / drop）。
//
// 前半部分字段来自 Candidate Store，打标后不可变，引擎只读；
// 后半部分（Score、Breakdown、Reason、Labels）只在一次排序运行中存在。
type Item struct {
	ID          string
	Kind        ItemKind
	Title       string
	Language    string
	PublishedAt time.Time
	CreatedAt   time.Time

	SourceID   string
	SourceName string

	// 质量信号：Authority/Quality 取值 0-1，Popularity 为非负无上界
	Authority  float64
	Quality    float64
	Popularity float64

	Topics    Topics
	Tagged    bool
	Embedding []float64

	Score     float64
	Breakdown *ScoreBreakdown
	Reason    string
	Labels    map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Labels: make(map[string]utils.Label),
	}
}

// IsVideo 判断是否为视频内容。
func (it *Item) IsVideo() bool {
	return it.Kind == KindVideo
}

// Age 返回相对 now 的内容年龄。发布时间缺失时退化为入库时间。
func (it *Item) Age(now time.Time) time.Duration {
	ts := it.PublishedAt
	if ts.IsZero() {
		ts = it.CreatedAt
	}
	return now.Sub(ts)
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
