package domain

import "time"

// StepKind identifies one of the build algorithm's steps.
type StepKind string

const (
	StepWorkdir StepKind = "workdir"
	StepInstall StepKind = "install"
	StepCopy    StepKind = "copy"
	StepSeal    StepKind = "seal"
)

// Cacheable reports whether the step produces a reusable layer.
func (k StepKind) Cacheable() bool {
	return k == StepInstall || k == StepCopy
}

// Step is a planned or executed build step.
type Step struct {
	Kind        StepKind
	Description string
	CacheKey    string
	Status      VertexStatus
	Layer       *Layer
}

// Plan is the ordered list of steps for a recipe in a build context.
type Plan struct {
	Recipe     *Recipe
	ContextDir string
	// Output is where the artifact would be sealed.
	Output string
	Steps  []Step
}

// StepRecord persists the outcome of a cacheable step, keyed by its cache key.
type StepRecord struct {
	CacheKey  string    `json:"cache_key"`
	Kind      StepKind  `json:"kind"`
	Layer     Layer     `json:"layer"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}
