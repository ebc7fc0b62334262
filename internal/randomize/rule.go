package randomize

import (
	"errors"
	"fmt"

	"github.com/dokkev/gymconf/internal/config"
)

// ErrInvalidRule reports a rule rejected at registration time. Sampling
// itself never fails: every malformed attribute is caught here.
var ErrInvalidRule = errors.New("invalid randomization rule")

// Operation selects how a sample combines with the nominal value.
type Operation string

const (
	OperationAdditive Operation = "additive"
	OperationScaling  Operation = "scaling"
)

// Distribution selects the sampling distribution over a rule's range.
type Distribution string

const (
	DistributionGaussian   Distribution = "gaussian"
	DistributionUniform    Distribution = "uniform"
	DistributionLoguniform Distribution = "loguniform"
)

// Schedule selects how sample magnitude ramps over training steps.
type Schedule string

const (
	ScheduleNone   Schedule = ""
	ScheduleLinear Schedule = "linear"
)

// Range bounds one axis of a rule.
type Range struct {
	Lo float64
	Hi float64
}

// Rule describes the randomization of one property path.
type Rule struct {
	// Path identifies the rule inside the randomization_params subtree,
	// e.g. "actor_params.franka.dof_properties.damping" or "observations".
	Path string

	// Actor, Category, and Property are filled for actor_params rules.
	// Category is one of dof_properties, rigid_body_properties,
	// rigid_shape_properties.
	Actor    string
	Category string
	Property string

	// Ranges holds one bound pair per axis; scalar properties have one.
	Ranges []Range

	Operation    Operation
	Distribution Distribution

	// NumBuckets quantizes draws into that many shared levels when > 0.
	NumBuckets int

	// SetupOnly marks properties fixed at instance construction: sampled
	// once, never resampled.
	SetupOnly bool

	Schedule      Schedule
	ScheduleSteps int

	// Frequency is the resample cadence in steps. Zero means "inherit the
	// document-level frequency".
	Frequency int
}

// Params is a parsed randomization_params subtree.
type Params struct {
	// Frequency is the document-level resample cadence in steps.
	Frequency int
	Rules     []Rule
}

// Validate checks everything that must hold before sampling starts.
func (r Rule) Validate() error {
	if len(r.Ranges) == 0 {
		return fmt.Errorf("randomize: %s: range is required: %w", r.Path, ErrInvalidRule)
	}
	switch r.Operation {
	case OperationAdditive, OperationScaling:
	default:
		return fmt.Errorf("randomize: %s: unknown operation %q: %w", r.Path, r.Operation, ErrInvalidRule)
	}
	switch r.Distribution {
	case DistributionGaussian, DistributionUniform:
	case DistributionLoguniform:
		for _, rng := range r.Ranges {
			if rng.Lo <= 0 || rng.Hi <= 0 {
				return fmt.Errorf("randomize: %s: loguniform bounds must be positive: %w", r.Path, ErrInvalidRule)
			}
		}
	default:
		return fmt.Errorf("randomize: %s: unknown distribution %q: %w", r.Path, r.Distribution, ErrInvalidRule)
	}
	for _, rng := range r.Ranges {
		if rng.Hi < rng.Lo {
			return fmt.Errorf("randomize: %s: range [%v, %v] is inverted: %w", r.Path, rng.Lo, rng.Hi, ErrInvalidRule)
		}
	}
	if r.NumBuckets < 0 {
		return fmt.Errorf("randomize: %s: num_buckets must be positive, have %d: %w", r.Path, r.NumBuckets, ErrInvalidRule)
	}
	switch r.Schedule {
	case ScheduleNone:
	case ScheduleLinear:
		if r.ScheduleSteps <= 0 {
			return fmt.Errorf("randomize: %s: linear schedule needs schedule_steps > 0: %w", r.Path, ErrInvalidRule)
		}
	default:
		return fmt.Errorf("randomize: %s: unknown schedule %q: %w", r.Path, r.Schedule, ErrInvalidRule)
	}
	if r.Frequency < 0 {
		return fmt.Errorf("randomize: %s: frequency must be >= 0: %w", r.Path, ErrInvalidRule)
	}
	return nil
}

// actor_params categories the simulator understands.
var actorCategories = map[string]bool{
	"dof_properties":         true,
	"rigid_body_properties":  true,
	"rigid_shape_properties": true,
}

// ParseParams turns a resolved randomization_params subtree into Params.
// Parsing is all-or-nothing: one bad rule fails the whole subtree. Scalar
// attributes that are not rule mappings (e.g. an actor-level "color" flag)
// pass through untouched.
func ParseParams(node *config.Node) (Params, error) {
	if node == nil || node.Kind != config.KindMapping {
		return Params{}, fmt.Errorf("randomize: randomization_params must be a mapping: %w", ErrInvalidRule)
	}
	if node.HasExpressions() {
		return Params{}, fmt.Errorf("randomize: randomization_params still holds unresolved expressions: %w", ErrInvalidRule)
	}
	params := Params{Frequency: 1}
	if freqNode, ok := node.Child("frequency"); ok {
		freq, err := freqNode.Int()
		if err != nil {
			return Params{}, fmt.Errorf("randomize: frequency: %v: %w", err, ErrInvalidRule)
		}
		if freq <= 0 {
			return Params{}, fmt.Errorf("randomize: frequency must be > 0, have %d: %w", freq, ErrInvalidRule)
		}
		params.Frequency = int(freq)
	}
	for _, section := range []string{"observations", "actions"} {
		child, ok := node.Child(section)
		if !ok {
			continue
		}
		rule, err := parseRule(section, child)
		if err != nil {
			return Params{}, err
		}
		params.Rules = append(params.Rules, rule)
	}
	if simParams, ok := node.Child("sim_params"); ok {
		if simParams.Kind != config.KindMapping {
			return Params{}, fmt.Errorf("randomize: sim_params must be a mapping: %w", ErrInvalidRule)
		}
		for _, prop := range simParams.Keys {
			child, _ := simParams.Child(prop)
			if child.Kind != config.KindMapping {
				continue
			}
			rule, err := parseRule("sim_params."+prop, child)
			if err != nil {
				return Params{}, err
			}
			rule.Property = prop
			params.Rules = append(params.Rules, rule)
		}
	}
	if actorParams, ok := node.Child("actor_params"); ok {
		if actorParams.Kind != config.KindMapping {
			return Params{}, fmt.Errorf("randomize: actor_params must be a mapping: %w", ErrInvalidRule)
		}
		rules, err := parseActorParams(actorParams)
		if err != nil {
			return Params{}, err
		}
		params.Rules = append(params.Rules, rules...)
	}
	for i := range params.Rules {
		if params.Rules[i].Frequency == 0 {
			params.Rules[i].Frequency = params.Frequency
		}
		if err := params.Rules[i].Validate(); err != nil {
			return Params{}, err
		}
	}
	return params, nil
}

func parseActorParams(node *config.Node) ([]Rule, error) {
	var rules []Rule
	for _, actor := range node.Keys {
		actorNode, _ := node.Child(actor)
		if actorNode.Kind != config.KindMapping {
			return nil, fmt.Errorf("randomize: actor_params.%s must be a mapping: %w", actor, ErrInvalidRule)
		}
		for _, category := range actorNode.Keys {
			categoryNode, _ := actorNode.Child(category)
			if !actorCategories[category] {
				// Actor-level scalar flags (color, scale passthroughs)
				// are not rules.
				continue
			}
			if categoryNode.Kind != config.KindMapping {
				return nil, fmt.Errorf("randomize: actor_params.%s.%s must be a mapping: %w", actor, category, ErrInvalidRule)
			}
			for _, property := range categoryNode.Keys {
				propertyNode, _ := categoryNode.Child(property)
				if propertyNode.Kind != config.KindMapping {
					continue
				}
				path := fmt.Sprintf("actor_params.%s.%s.%s", actor, category, property)
				rule, err := parseRule(path, propertyNode)
				if err != nil {
					return nil, err
				}
				rule.Actor = actor
				rule.Category = category
				rule.Property = property
				rules = append(rules, rule)
			}
		}
	}
	return rules, nil
}

func parseRule(path string, node *config.Node) (Rule, error) {
	if node == nil || node.Kind != config.KindMapping {
		return Rule{}, fmt.Errorf("randomize: %s must be a mapping: %w", path, ErrInvalidRule)
	}
	rule := Rule{Path: path}
	rangeNode, ok := node.Child("range")
	if !ok {
		return Rule{}, fmt.Errorf("randomize: %s: range is required: %w", path, ErrInvalidRule)
	}
	ranges, err := parseRanges(path, rangeNode)
	if err != nil {
		return Rule{}, err
	}
	rule.Ranges = ranges
	if opNode, ok := node.Child("operation"); ok {
		op, err := opNode.StringValue()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: operation: %v: %w", path, err, ErrInvalidRule)
		}
		rule.Operation = Operation(op)
	}
	if distNode, ok := node.Child("distribution"); ok {
		dist, err := distNode.StringValue()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: distribution: %v: %w", path, err, ErrInvalidRule)
		}
		rule.Distribution = Distribution(dist)
	}
	if bucketsNode, ok := node.Child("num_buckets"); ok {
		buckets, err := bucketsNode.Int()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: num_buckets: %v: %w", path, err, ErrInvalidRule)
		}
		if buckets <= 0 {
			return Rule{}, fmt.Errorf("randomize: %s: num_buckets must be positive, have %d: %w", path, buckets, ErrInvalidRule)
		}
		rule.NumBuckets = int(buckets)
	}
	if setupNode, ok := node.Child("setup_only"); ok {
		setupOnly, err := setupNode.Bool()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: setup_only: %v: %w", path, err, ErrInvalidRule)
		}
		rule.SetupOnly = setupOnly
	}
	if schedNode, ok := node.Child("schedule"); ok {
		sched, err := schedNode.StringValue()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: schedule: %v: %w", path, err, ErrInvalidRule)
		}
		if sched != "none" {
			rule.Schedule = Schedule(sched)
		}
	}
	if stepsNode, ok := node.Child("schedule_steps"); ok {
		steps, err := stepsNode.Int()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: schedule_steps: %v: %w", path, err, ErrInvalidRule)
		}
		rule.ScheduleSteps = int(steps)
	}
	if freqNode, ok := node.Child("frequency"); ok {
		freq, err := freqNode.Int()
		if err != nil {
			return Rule{}, fmt.Errorf("randomize: %s: frequency: %v: %w", path, err, ErrInvalidRule)
		}
		rule.Frequency = int(freq)
	}
	return rule, nil
}

// parseRanges accepts [lo, hi] or [[lo, hi], [lo, hi], ...] for per-axis
// bounds.
func parseRanges(path string, node *config.Node) ([]Range, error) {
	if node == nil || node.Kind != config.KindSequence || node.Len() == 0 {
		return nil, fmt.Errorf("randomize: %s: range must be a non-empty sequence: %w", path, ErrInvalidRule)
	}
	if node.Items[0].Kind == config.KindSequence {
		ranges := make([]Range, 0, node.Len())
		for _, item := range node.Items {
			pair, err := item.Floats()
			if err != nil {
				return nil, fmt.Errorf("randomize: %s: range: %v: %w", path, err, ErrInvalidRule)
			}
			if len(pair) != 2 {
				return nil, fmt.Errorf("randomize: %s: per-axis range needs 2 bounds, have %d: %w", path, len(pair), ErrInvalidRule)
			}
			ranges = append(ranges, Range{Lo: pair[0], Hi: pair[1]})
		}
		return ranges, nil
	}
	pair, err := node.Floats()
	if err != nil {
		return nil, fmt.Errorf("randomize: %s: range: %v: %w", path, err, ErrInvalidRule)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("randomize: %s: range needs 2 bounds, have %d: %w", path, len(pair), ErrInvalidRule)
	}
	return []Range{{Lo: pair[0], Hi: pair[1]}}, nil
}
