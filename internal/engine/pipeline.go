// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"context"
	"fmt"
	"time"

	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/optimizer"
	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/patterns"
	"grimm.is/flowshape/internal/qos"
)

// Batch carries one cycle's packets through the stages. Each stage reads the
// fields produced before it and fills its own.
type Batch struct {
	Raw      []packet.Record
	Admitted []packet.Record
	Deferred int
	Deduped  []packet.Record
	Shaped   []packet.Shaped
	Policies qos.View
	Usage    optimizer.Usage
	Exceeded []string
	Patterns patterns.Patterns
}

// input returns the most processed record set available.
func (b *Batch) input() []packet.Record {
	switch {
	case b.Deduped != nil:
		return b.Deduped
	case b.Admitted != nil:
		return b.Admitted
	default:
		return b.Raw
	}
}

// shaped returns Shaped, falling back to unshaped records if shaping did not
// run or failed.
func (b *Batch) shaped() []packet.Shaped {
	if b.Shaped == nil {
		in := b.input()
		b.Shaped = make([]packet.Shaped, 0, len(in))
		for _, r := range in {
			if r.Valid() {
				b.Shaped = append(b.Shaped, packet.NewShaped(r))
			}
		}
	}
	return b.Shaped
}

// Stage is one step of a cycle.
type Stage struct {
	Name        string
	Description string
	Run         func(ctx context.Context, b *Batch) error
	Optional    bool // failure counts as a warning instead of an error
}

// CycleResult contains the results of one pipeline execution.
type CycleResult struct {
	StageResults   map[string]*StageResult
	OverallSuccess bool
	Duration       time.Duration
	Timestamp      time.Time
	TotalErrors    int
	TotalWarnings  int
}

// StageResult contains the result of a single stage.
type StageResult struct {
	Success  bool
	Error    error
	Duration time.Duration
}

// Failed returns the names of failed stages.
func (r *CycleResult) Failed() []string {
	var out []string
	for name, sr := range r.StageResults {
		if !sr.Success {
			out = append(out, name)
		}
	}
	return out
}

// Pipeline runs stages in order. A failing stage never stops the stages after
// it; panics inside a stage are recovered and reported as that stage's error.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from stages.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// AddStage appends a stage.
func (p *Pipeline) AddStage(stage Stage) {
	p.stages = append(p.stages, stage)
}

// RemoveStage removes a stage by name.
func (p *Pipeline) RemoveStage(name string) {
	for i, stage := range p.stages {
		if stage.Name == name {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			break
		}
	}
}

// Execute runs every stage over b. It only returns an error when ctx is
// cancelled before all stages ran; stage failures are in the result.
func (p *Pipeline) Execute(ctx context.Context, b *Batch) (*CycleResult, error) {
	result := &CycleResult{
		StageResults: make(map[string]*StageResult, len(p.stages)),
		Timestamp:    time.Now(),
	}

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			result.OverallSuccess = false
			return result, errors.Wrap(ctx.Err(), errors.KindTimeout, "cycle cancelled")
		default:
		}

		stageStart := time.Now()
		err := runStage(ctx, stage, b)
		sr := &StageResult{
			Success:  err == nil,
			Error:    err,
			Duration: time.Since(stageStart),
		}
		result.StageResults[stage.Name] = sr

		if err != nil {
			if stage.Optional {
				result.TotalWarnings++
			} else {
				result.TotalErrors++
			}
		}
	}

	result.OverallSuccess = result.TotalErrors == 0
	return result, nil
}

func runStage(ctx context.Context, stage Stage, b *Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Attr(errors.New(errors.KindInternal, fmt.Sprintf("stage panicked: %v", r)), "stage", stage.Name)
		}
	}()
	if stage.Run == nil {
		return nil
	}
	return stage.Run(ctx, b)
}
