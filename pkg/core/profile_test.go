package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironai/expertmem-go/pkg/core"
)

func floatPtr(v float64) *float64 { return &v }

func validProfile() *core.ExpertRetrievalProfile {
	return &core.ExpertRetrievalProfile{
		ExpertID:              "the_sharp",
		AnalyticalFocus:       map[string]float64{core.DimensionTeams: 0.4, core.DimensionMarket: 0.6},
		DecayHalfLifeDays:     30,
		WorkingMemoryCapacity: 7,
		MaxReasoningMemories:  3,
		MaxContextualMemories: 2,
		MaxMarketMemories:     2,
		MaxLearningMemories:   2,
	}
}

func TestProfileValidate(t *testing.T) {
	assert.NoError(t, validProfile().Validate())
}

func TestProfileValidateFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.ExpertRetrievalProfile)
	}{
		{"missing expert id", func(p *core.ExpertRetrievalProfile) { p.ExpertID = "" }},
		{"zero half-life", func(p *core.ExpertRetrievalProfile) { p.DecayHalfLifeDays = 0 }},
		{"negative half-life", func(p *core.ExpertRetrievalProfile) { p.DecayHalfLifeDays = -30 }},
		{"zero capacity", func(p *core.ExpertRetrievalProfile) { p.WorkingMemoryCapacity = 0 }},
		{"negative type cap", func(p *core.ExpertRetrievalProfile) { p.MaxMarketMemories = -1 }},
		{"negative focus weight", func(p *core.ExpertRetrievalProfile) { p.AnalyticalFocus[core.DimensionTeams] = -0.1 }},
		{"embedding weight out of range", func(p *core.ExpertRetrievalProfile) { p.EmbeddingWeight = floatPtr(1.5) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidProfile))
		})
	}
}

func TestProfileTypeCap(t *testing.T) {
	p := validProfile()
	assert.Equal(t, 3, p.TypeCap(core.MemoryTypePredictionOutcome))
	assert.Equal(t, 2, p.TypeCap(core.MemoryTypeContextual))
	assert.Equal(t, 2, p.TypeCap(core.MemoryTypeMarket))
	assert.Equal(t, 2, p.TypeCap(core.MemoryTypeLearning))
}

func TestProfileTypeCapZeroMeansUncapped(t *testing.T) {
	// A profile that only caps market memories leaves the other types
	// bounded by the working-memory capacity alone.
	p := validProfile()
	p.MaxReasoningMemories = 0
	p.MaxContextualMemories = 0
	p.MaxLearningMemories = 0

	assert.Equal(t, 2, p.TypeCap(core.MemoryTypeMarket))
	assert.Equal(t, p.WorkingMemoryCapacity, p.TypeCap(core.MemoryTypePredictionOutcome))
	assert.Equal(t, p.WorkingMemoryCapacity, p.TypeCap(core.MemoryTypeContextual))
	assert.Equal(t, p.WorkingMemoryCapacity, p.TypeCap(core.MemoryTypeLearning))
}

func TestProfileVectorWeightDefault(t *testing.T) {
	p := validProfile()
	assert.Equal(t, 0.5, p.VectorWeight())

	p.EmbeddingWeight = floatPtr(0.3)
	assert.Equal(t, 0.3, p.VectorWeight())

	// An explicit zero turns the vector component off instead of falling
	// back to the default.
	p.EmbeddingWeight = floatPtr(0)
	assert.Equal(t, 0.0, p.VectorWeight())
}

func TestStaticProfiles(t *testing.T) {
	source := core.StaticProfiles{"the_sharp": validProfile()}

	p, err := source.Profile("the_sharp")
	require.NoError(t, err)
	assert.Equal(t, "the_sharp", p.ExpertID)

	_, err = source.Profile("unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	data := `[
		{
			"expert_id": "the_sharp",
			"analytical_focus": {"teams": 0.4, "market": 0.6},
			"decay_half_life_days": 30,
			"working_memory_capacity": 7,
			"max_reasoning_memories": 3,
			"max_contextual_memories": 2,
			"max_market_memories": 2,
			"max_learning_memories": 2
		},
		{
			"expert_id": "weather_watcher",
			"analytical_focus": {"weather": 0.8, "teams": 0.2},
			"decay_half_life_days": 90,
			"working_memory_capacity": 5
		}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	source, err := core.LoadProfiles(path)
	require.NoError(t, err)
	assert.Len(t, source, 2)

	p, err := source.Profile("weather_watcher")
	require.NoError(t, err)
	assert.Equal(t, 90.0, p.DecayHalfLifeDays)
}

func TestLoadProfilesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	// Second profile has a zero half-life: the whole load must fail so the
	// error surfaces at startup.
	data := `[
		{"expert_id": "ok", "decay_half_life_days": 30, "working_memory_capacity": 7},
		{"expert_id": "broken", "decay_half_life_days": 0, "working_memory_capacity": 7}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	_, err := core.LoadProfiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidProfile))
}

func TestLoadProfilesMissingFile(t *testing.T) {
	_, err := core.LoadProfiles(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
