package skills

import (
	"context"
	"errors"
	"fmt"

	"github.com/snow-ghost/skillforge/core"
)

var ErrEmptySet = errors.New("skill set has no skills")

// Kind distinguishes the two skill set variants.
type Kind int

const (
	Linear Kind = iota
	Parallel
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "linear":
		return Linear, nil
	case "parallel":
		return Parallel, nil
	default:
		return 0, fmt.Errorf("unknown skill set kind %q", s)
	}
}

// SkillOutput maps a prediction column to the skill producing it.
type SkillOutput struct {
	Field string
	Skill string
}

// Set is an ordered composition of skills. Linear sets run in sequence order
// and pick the first weak skill; parallel sets run in insertion order and
// pick the weakest skill overall.
type Set struct {
	kind     Kind
	skills   map[string]*Skill
	order    []string
	sequence []string
}

func newSet(kind Kind, skills []*Skill) (*Set, error) {
	if len(skills) == 0 {
		return nil, ErrEmptySet
	}
	s := &Set{
		kind:   kind,
		skills: make(map[string]*Skill, len(skills)),
		order:  make([]string, 0, len(skills)),
	}
	for i, sk := range skills {
		if sk == nil {
			return nil, fmt.Errorf("skill #%d is nil", i)
		}
		if _, dup := s.skills[sk.Name]; dup {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateSkill, sk.Name)
		}
		s.skills[sk.Name] = sk
		s.order = append(s.order, sk.Name)
	}
	return s, nil
}

// NewLinear builds a linear set. A nil sequence uses insertion order;
// otherwise it must name every skill exactly once.
func NewLinear(skills []*Skill, sequence []string) (*Set, error) {
	s, err := newSet(Linear, skills)
	if err != nil {
		return nil, err
	}
	if sequence == nil {
		s.sequence = append([]string(nil), s.order...)
		return s, nil
	}

	if len(sequence) != len(s.order) {
		return nil, fmt.Errorf("%w: got %d names for %d skills", core.ErrInvalidSequence, len(sequence), len(s.order))
	}
	seen := make(map[string]bool, len(sequence))
	for _, name := range sequence {
		if _, ok := s.skills[name]; !ok || seen[name] {
			return nil, fmt.Errorf("%w: %q", core.ErrInvalidSequence, name)
		}
		seen[name] = true
	}
	s.sequence = append([]string(nil), sequence...)
	return s, nil
}

// NewParallel builds a parallel set.
func NewParallel(skills []*Skill) (*Set, error) {
	s, err := newSet(Parallel, skills)
	if err != nil {
		return nil, err
	}
	s.sequence = s.order
	return s, nil
}

func (s *Set) Kind() Kind { return s.kind }

// Skill returns the named skill.
func (s *Set) Skill(name string) (*Skill, error) {
	sk, ok := s.skills[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSkillNotFound, name)
	}
	return sk, nil
}

// Names returns the skill names in execution order.
func (s *Set) Names() []string {
	return append([]string(nil), s.sequence...)
}

// Skills returns the skills in execution order.
func (s *Set) Skills() []*Skill {
	out := make([]*Skill, len(s.sequence))
	for i, name := range s.sequence {
		out[i] = s.skills[name]
	}
	return out
}

// Outputs returns the prediction column of every skill in execution order.
func (s *Set) Outputs() []SkillOutput {
	out := make([]SkillOutput, len(s.sequence))
	for i, name := range s.sequence {
		out[i] = SkillOutput{Field: name, Skill: name}
	}
	return out
}

// Apply runs the skills over batch, each skill receiving the previous
// skill's output. For a linear set a non-empty improvedSkill resumes at that
// skill, with batch already carrying the predictions of earlier skills.
func (s *Set) Apply(ctx context.Context, batch core.Batch, rt core.Runtime, improvedSkill string) (core.Batch, error) {
	seq := s.sequence
	if s.kind == Linear && improvedSkill != "" {
		start := -1
		for i, name := range seq {
			if name == improvedSkill {
				start = i
				break
			}
		}
		if start < 0 {
			return core.Batch{}, fmt.Errorf("%w: %s", core.ErrSkillNotFound, improvedSkill)
		}
		seq = seq[start:]
	}

	predictions := batch
	for _, name := range seq {
		out, err := s.skills[name].Apply(ctx, predictions, rt)
		if err != nil {
			return core.Batch{}, err
		}
		predictions = out
	}
	return predictions, nil
}

// SelectSkillToImprove returns the skill to train next, or nil when every
// skill with a known accuracy reaches threshold.
func (s *Set) SelectSkillToImprove(accuracy map[string]float64, threshold float64) *Skill {
	if s.kind == Linear {
		for _, name := range s.sequence {
			if acc, ok := accuracy[name]; ok && acc < threshold {
				return s.skills[name]
			}
		}
		return nil
	}

	var (
		weakest *Skill
		lowest  float64
	)
	for _, name := range s.order {
		acc, ok := accuracy[name]
		if !ok || acc >= threshold {
			continue
		}
		if weakest == nil || acc < lowest {
			weakest, lowest = s.skills[name], acc
		}
	}
	return weakest
}
