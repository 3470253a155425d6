package indicator

import (
	"fmt"
	"sync"

	"rde-engine/internal/model"
)

// Spec specifies a single indicator to compute and the series it reads.
type Spec struct {
	Type   string      `json:"type" yaml:"type"` // "DMA", "SMA", "EMA", "SMMA", "RSI"
	Period int         `json:"period" yaml:"period"`
	Input  model.Input `json:"input" yaml:"input"`
}

// Key identifies the spec, e.g. "RSI_14@intraday".
func (s Spec) Key() string {
	return fmt.Sprintf("%s_%d@%s", s.Type, s.Period, s.Input)
}

// MinPoints is the shortest series that yields a value.
func (s Spec) MinPoints() int {
	if s.Type == "RSI" {
		return s.Period + 1
	}
	return s.Period
}

// instrumentTrackers holds live trackers for one instrument.
type instrumentTrackers struct {
	mu       sync.Mutex
	trackers []*Tracker
}

// Engine computes a fixed set of indicators for many instruments. Each
// instrument keeps its own trackers, so repeated computations over a growing
// series only consume the new points.
type Engine struct {
	specs []Spec

	mu    sync.Mutex
	state map[string]*instrumentTrackers
}

// NewEngine creates an indicator engine for the given specs.
func NewEngine(specs []Spec) *Engine {
	return &Engine{
		specs: specs,
		state: make(map[string]*instrumentTrackers, 16),
	}
}

// Specs returns the configured indicator specs.
func (e *Engine) Specs() []Spec { return e.specs }

// Compute advances every indicator of instrument over its input series and
// returns one result per spec, in spec order. Results with too little
// history have Ready=false. reseeds counts trackers that had to rebuild
// from the start of their series.
func (e *Engine) Compute(instrument string, inputs map[model.Input][]model.Point) (results []model.IndicatorResult, reseeds int) {
	it := e.trackersFor(instrument)
	it.mu.Lock()
	defer it.mu.Unlock()

	results = make([]model.IndicatorResult, 0, len(e.specs))
	for i, spec := range e.specs {
		points := inputs[spec.Input]
		v, ok, reseeded := it.trackers[i].Advance(points)
		if reseeded {
			reseeds++
		}
		r := model.IndicatorResult{
			Name:   spec.Type,
			Period: spec.Period,
			Input:  spec.Input,
			Ready:  ok,
		}
		if ok {
			r.Value = v
		}
		if n := len(points); n > 0 {
			r.TS = points[n-1].TS
		}
		results = append(results, r)
	}
	return results, reseeds
}

// Snapshot returns the tracker states for an instrument, in spec order.
func (e *Engine) Snapshot(instrument string) []State {
	e.mu.Lock()
	it, ok := e.state[instrument]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	out := make([]State, len(it.trackers))
	for i, t := range it.trackers {
		out[i] = t.State()
	}
	return out
}

// Forget drops all state for an instrument.
func (e *Engine) Forget(instrument string) {
	e.mu.Lock()
	delete(e.state, instrument)
	e.mu.Unlock()
}

func (e *Engine) trackersFor(instrument string) *instrumentTrackers {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.state[instrument]
	if !ok {
		it = &instrumentTrackers{trackers: make([]*Tracker, len(e.specs))}
		for i, spec := range e.specs {
			ind, _ := New(spec.Type, spec.Period)
			it.trackers[i] = NewTracker(ind)
		}
		e.state[instrument] = it
	}
	return it
}
