package task

import (
	"sync"

	"splitmix/media"
)

var stageWeights = map[media.Stage]float64{
	media.StageResolving:   5,
	media.StageDownloading: 35,
	media.StageConverting:  15,
	media.StageSeparating:  35,
	media.StageRemixing:    10,
}

// Plan lists the stages a task of kind runs. Local inputs skip resolving
// and downloading.
func Plan(kind Kind, local bool) []media.Stage {
	var stages []media.Stage
	if !local {
		stages = append(stages, media.StageResolving, media.StageDownloading)
	}
	stages = append(stages, media.StageConverting)
	if kind.separates() {
		stages = append(stages, media.StageSeparating)
	}
	if kind == KindMix {
		stages = append(stages, media.StageRemixing)
	}
	return stages
}

// aggregator folds stage-local fractions into one overall percentage. The
// weights of the planned stages are scaled to sum to 100 and the result
// never decreases.
type aggregator struct {
	mu      sync.Mutex
	weight  map[media.Stage]float64
	offset  map[media.Stage]float64
	overall float64
}

func newAggregator(stages []media.Stage) *aggregator {
	var total float64
	for _, s := range stages {
		total += stageWeights[s]
	}
	a := &aggregator{
		weight: make(map[media.Stage]float64, len(stages)),
		offset: make(map[media.Stage]float64, len(stages)),
	}
	var done float64
	for _, s := range stages {
		w := stageWeights[s] / total * 100
		a.offset[s] = done
		a.weight[s] = w
		done += w
	}
	return a
}

// update records fraction of stage and returns the overall percentage.
func (a *aggregator) update(stage media.Stage, fraction float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.weight[stage]
	if !ok {
		return a.overall
	}
	fraction = min(max(fraction, 0), 1)
	a.raise(a.offset[stage] + w*fraction)
	return a.overall
}

func (a *aggregator) complete(stage media.Stage) float64 { return a.update(stage, 1) }

func (a *aggregator) finish() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overall = 100
	return a.overall
}

func (a *aggregator) current() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overall
}

func (a *aggregator) raise(v float64) {
	if v > 100 {
		v = 100
	}
	if v > a.overall {
		a.overall = v
	}
}
