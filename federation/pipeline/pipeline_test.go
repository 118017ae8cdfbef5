package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/n9te9/federation-router/federation/pipeline"
)

func stage(name string, fn func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error)) pipeline.StageFunc {
	return pipeline.StageFunc{StageName: name, Fn: fn}
}

func TestPipeline_RunsAllStagesInOrder(t *testing.T) {
	var order []string
	p := pipeline.New(
		stage("a", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			order = append(order, "a")
			bag.Set("a", 1)
			return nil, nil
		}),
		stage("b", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			order = append(order, "b")
			if v, ok := bag.Get("a"); !ok || v != 1 {
				t.Errorf("stage b did not see stage a's bag write: %v, %v", v, ok)
			}
			return nil, nil
		}),
	)

	resp, err := p.Run(context.Background(), pipeline.NewBag())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected no short-circuit response, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("stage order = %v, want [a b]", order)
	}
}

func TestPipeline_ShortCircuitsOnResponse(t *testing.T) {
	ran := false
	want := &pipeline.Response{StatusCode: 400, Body: []byte(`{"errors":["bad"]}`)}
	p := pipeline.New(
		stage("reject", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			return want, nil
		}),
		stage("never", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			ran = true
			return nil, nil
		}),
	)

	got, err := p.Run(context.Background(), pipeline.NewBag())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("Run() = %+v, want %+v", got, want)
	}
	if ran {
		t.Error("stage after a short-circuiting response should not run")
	}
}

func TestPipeline_StopsOnError(t *testing.T) {
	wantErr := errors.New("stage failure")
	ran := false
	p := pipeline.New(
		stage("fails", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			return nil, wantErr
		}),
		stage("never", func(ctx context.Context, bag *pipeline.Bag) (*pipeline.Response, error) {
			ran = true
			return nil, nil
		}),
	)

	_, err := p.Run(context.Background(), pipeline.NewBag())
	if err != wantErr {
		t.Fatalf("Run() err = %v, want %v", err, wantErr)
	}
	if ran {
		t.Error("stage after a failing stage should not run")
	}
}

func TestBag_GetMissingKey(t *testing.T) {
	bag := pipeline.NewBag()
	if _, ok := bag.Get("missing"); ok {
		t.Error("Get on an empty bag should report ok=false")
	}
}
