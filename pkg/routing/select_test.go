package routing

import (
	"errors"
	"testing"

	"github.com/snow-ghost/skillforge/pkg/registry"
)

func testRegistry() *registry.Registry {
	return &registry.Registry{Models: []registry.ModelConfig{
		{ID: "a:big", Provider: "openai", Tags: []string{"teacher"}, Pricing: registry.Pricing{InputPer1K: 0.005, OutputPer1K: 0.015}},
		{ID: "a:small", Provider: "openai", Tags: []string{"student", "fast"}, Pricing: registry.Pricing{InputPer1K: 0.0002, OutputPer1K: 0.0006}},
		{ID: "b:local", Provider: "ollama", Tags: []string{"Student", "local"}},
		{ID: "b:mid", Provider: "anthropic", Tags: []string{"teacher"}, Pricing: registry.Pricing{InputPer1K: 0.003, OutputPer1K: 0.015}},
	}}
}

func TestResolveByID(t *testing.T) {
	r := NewModelRouter(testRegistry())

	mc, err := r.Resolve("a:small", []string{"teacher"}, StrategyCheapest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mc.ID != "a:small" {
		t.Errorf("Expected a:small, got %s", mc.ID)
	}

	if _, err := r.Resolve("missing", nil, ""); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
}

func TestResolveByTags(t *testing.T) {
	r := NewModelRouter(testRegistry())

	tests := []struct {
		tags     []string
		strategy string
		want     string
	}{
		{[]string{"student"}, "", "a:small"},
		{[]string{"student"}, StrategyCheapest, "b:local"},
		{[]string{"teacher"}, StrategyFirst, "a:big"},
		{[]string{"teacher"}, StrategyCheapest, "b:mid"},
		{[]string{"student", "fast"}, StrategyCheapest, "a:small"},
		{nil, StrategyCheapest, "b:local"},
	}
	for _, tt := range tests {
		mc, err := r.Resolve("", tt.tags, tt.strategy)
		if err != nil {
			t.Fatalf("Resolve(%v, %s) failed: %v", tt.tags, tt.strategy, err)
		}
		if mc.ID != tt.want {
			t.Errorf("Resolve(%v, %s) = %s, want %s", tt.tags, tt.strategy, mc.ID, tt.want)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewModelRouter(testRegistry())

	if _, err := r.Resolve("", []string{"embed"}, ""); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
	if _, err := r.Resolve("", []string{"teacher"}, "random"); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}
