package randomize

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// ruleState is the per-rule sampling state. UNSAMPLED until the first
// Advance, SAMPLED while resampling on cadence, FROZEN once a setup-only
// rule has drawn.
type ruleState struct {
	rule           Rule
	lastSampleStep int
	frozen         bool
	groups         [][]float64
}

// Scheduler owns the randomization state for one set of simulated
// instances. It is single-threaded: the caller invokes Advance from its
// simulation-step loop with a non-decreasing step counter.
type Scheduler struct {
	id        string
	instances int
	rng       *rand.Rand

	states   []*ruleState
	lastStep int
}

// Option customizes Scheduler construction.
type Option func(*Scheduler)

// WithSeed fixes the RNG seed so runs replay deterministically.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithInstances sets how many simulated instances share this scheduler.
// Non-bucketed rules draw one value per instance.
func WithInstances(n int) Option {
	return func(s *Scheduler) {
		s.instances = n
	}
}

// New validates every rule and builds a scheduler. Construction is
// all-or-nothing: one invalid rule rejects the whole set.
func New(params Params, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		id:        uuid.NewString(),
		instances: 1,
		lastStep:  -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if s.instances < 1 {
		return nil, fmt.Errorf("randomize: instance count must be >= 1, have %d: %w", s.instances, ErrInvalidRule)
	}
	if len(params.Rules) == 0 {
		return nil, fmt.Errorf("randomize: no rules to schedule: %w", ErrInvalidRule)
	}
	s.states = make([]*ruleState, 0, len(params.Rules))
	for _, rule := range params.Rules {
		if rule.Frequency == 0 {
			rule.Frequency = params.Frequency
		}
		if rule.Frequency == 0 {
			rule.Frequency = 1
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		s.states = append(s.states, &ruleState{rule: rule, lastSampleStep: -1})
	}
	return s, nil
}

// ID returns the handle identity, used to correlate log lines with runs.
func (s *Scheduler) ID() string { return s.id }

// Instances reports how many simulated instances the scheduler serves.
func (s *Scheduler) Instances() int { return s.instances }

// Rules returns the registered rules in registration order.
func (s *Scheduler) Rules() []Rule {
	out := make([]Rule, len(s.states))
	for i, state := range s.states {
		out[i] = state.rule
	}
	return out
}

// Advance moves the step counter forward and returns the override for every
// rule, freshly sampled or cached depending on each rule's cadence. The
// step must never decrease across calls.
func (s *Scheduler) Advance(step int) (map[string]Override, error) {
	if step < 0 {
		return nil, fmt.Errorf("randomize: step must be >= 0, have %d", step)
	}
	if step < s.lastStep {
		return nil, fmt.Errorf("randomize: step counter went backwards: %d after %d", step, s.lastStep)
	}
	s.lastStep = step
	overrides := make(map[string]Override, len(s.states))
	for _, state := range s.states {
		if s.shouldSample(state, step) {
			state.groups = sampleRule(s.rng, state.rule, step, s.instances)
			state.lastSampleStep = step
			if state.rule.SetupOnly {
				state.frozen = true
			}
		}
		overrides[state.rule.Path] = Override{
			Rule:      state.rule,
			SampledAt: state.lastSampleStep,
			groups:    state.groups,
		}
	}
	return overrides, nil
}

func (s *Scheduler) shouldSample(state *ruleState, step int) bool {
	if state.lastSampleStep < 0 {
		return true
	}
	if state.frozen {
		return false
	}
	return step-state.lastSampleStep >= state.rule.Frequency
}

// Override is one rule's sampled perturbation, delivered to the simulator
// once per step.
type Override struct {
	Rule Rule

	// SampledAt is the step the carried sample was drawn on.
	SampledAt int

	groups [][]float64
}

// ValueFor returns the sampled value vector for one simulated instance.
// Bucketed rules map the instance onto its bucket.
func (o Override) ValueFor(instance int) []float64 {
	if len(o.groups) == 0 {
		return nil
	}
	idx := instance % len(o.groups)
	if idx < 0 {
		idx = 0
	}
	return o.groups[idx]
}

// Apply combines the instance's sample with the nominal property value:
// additive adds, scaling multiplies. Missing axes reuse the last sample so
// scalar rules apply cleanly to vector properties.
func (o Override) Apply(nominal []float64, instance int) []float64 {
	sample := o.ValueFor(instance)
	if len(sample) == 0 {
		return append([]float64(nil), nominal...)
	}
	out := make([]float64, len(nominal))
	for i, value := range nominal {
		v := sample[len(sample)-1]
		if i < len(sample) {
			v = sample[i]
		}
		switch o.Rule.Operation {
		case OperationScaling:
			out[i] = value * v
		default:
			out[i] = value + v
		}
	}
	return out
}
