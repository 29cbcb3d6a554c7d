package feedback

import (
	"context"
	"errors"
	"testing"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/dropfeed/core"
)

func TestFeastProvider_Affinity(t *testing.T) {
	var gotReq *feastsdk.OnlineFeaturesRequest
	p := &FeastProvider{
		Project: "drops",
		fetchRows: func(_ context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
			gotReq = req
			return []feastsdk.Row{{DefaultFeastFeature: feastsdk.DoubleVal(0.75)}}, nil
		},
	}

	score, err := p.Affinity(context.Background(), core.FeedbackQuery{UserID: "u1", ItemID: "d1"})
	if err != nil {
		t.Fatalf("Affinity() error = %v", err)
	}
	if score != 0.75 {
		t.Errorf("Affinity() = %v, want 0.75", score)
	}
	if gotReq.Project != "drops" || len(gotReq.Features) != 1 || gotReq.Features[0] != DefaultFeastFeature {
		t.Errorf("unexpected request: %+v", gotReq)
	}
	if len(gotReq.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(gotReq.Entities))
	}
}

func TestFeastProvider_MissingFeature(t *testing.T) {
	p := &FeastProvider{
		Project: "drops",
		fetchRows: func(context.Context, *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
			return []feastsdk.Row{{}}, nil
		},
	}
	score, err := p.Affinity(context.Background(), core.FeedbackQuery{UserID: "u1", ItemID: "d1"})
	if err != nil || score != 0 {
		t.Errorf("Affinity() = %v, %v; want 0, nil", score, err)
	}
}

func TestFeastProvider_Error(t *testing.T) {
	p := &FeastProvider{
		Project: "drops",
		fetchRows: func(context.Context, *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
			return nil, errors.New("unavailable")
		},
	}
	_, err := p.Affinity(context.Background(), core.FeedbackQuery{UserID: "u1", ItemID: "d1"})
	if !core.IsFeedbackLookupFailure(err) {
		t.Errorf("expected FEEDBACK_LOOKUP_FAILED, got %v", err)
	}
}
