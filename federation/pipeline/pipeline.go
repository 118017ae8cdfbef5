// Package pipeline implements the request pipeline described by the router's
// component design: an ordered chain of stages that each inspect and may
// extend a shared extensions bag, short-circuiting with a response when a
// stage has one.
package pipeline

import "context"

// Bag is a typed extensions bag threaded through every stage of a request's
// processing, analogous to the teacher's pattern of stashing per-request
// values on the context (see federation/executor.SetRequestHeaderToContext)
// but scoped to the pipeline instead of the whole context tree.
type Bag struct {
	values map[string]interface{}
}

// NewBag creates an empty extensions bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]interface{})}
}

// Set stores a value under key.
func (b *Bag) Set(key string, value interface{}) {
	b.values[key] = value
}

// Get retrieves a value stored under key.
func (b *Bag) Get(key string) (interface{}, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Response is a complete result a stage can return to short-circuit the
// remaining pipeline, e.g. a CSRF rejection or a cache hit served directly.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Stage is one link in the pipeline. It receives the context and the
// shared bag, and either returns (nil, nil) to continue to the next stage,
// or a non-nil Response to stop the chain.
type Stage interface {
	Name() string
	Run(ctx context.Context, bag *Bag) (*Response, error)
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, bag *Bag) (*Response, error)
}

func (f StageFunc) Name() string { return f.StageName }

func (f StageFunc) Run(ctx context.Context, bag *Bag) (*Response, error) {
	return f.Fn(ctx, bag)
}

// Pipeline runs a fixed, ordered sequence of stages against a request,
// stopping at the first stage that returns a Response or an error.
type Pipeline struct {
	stages []Stage
}

// New builds a Pipeline from stages, run in the given order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes every stage in order against bag, returning the first
// short-circuiting Response (or error) encountered, or (nil, nil) if every
// stage ran to completion without producing one.
func (p *Pipeline) Run(ctx context.Context, bag *Bag) (*Response, error) {
	for _, stage := range p.stages {
		resp, err := stage.Run(ctx, bag)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}
