// Package core provides the shared types, errors, profiles, and configuration
// for the expert memory retrieval engine.
package core

import (
	"encoding/json"

	"github.com/gridironai/expertmem-go/pkg/storage"
)

// ToStorageRecord converts a MemoryRecord into the storage representation,
// JSON-encoding the structured payloads.
func ToStorageRecord(r *MemoryRecord) (*storage.Record, error) {
	rec := &storage.Record{
		ID:                 r.ID,
		ExpertID:           r.ExpertID,
		GameID:             r.GameID,
		MemoryType:         string(r.MemoryType),
		CreatedAt:          r.CreatedAt,
		Lessons:            r.LessonsLearned,
		EmotionalIntensity: clamp01(r.EmotionalIntensity),
		RetrievalCount:     r.RetrievalCount,
	}

	if r.GameContext != nil {
		data, err := json.Marshal(r.GameContext)
		if err != nil {
			return nil, NewEngineError("ToStorageRecord", err)
		}
		rec.GameContext = data
	}
	if r.PredictionData != nil {
		data, err := json.Marshal(r.PredictionData)
		if err != nil {
			return nil, NewEngineError("ToStorageRecord", err)
		}
		rec.PredictionData = data
	}
	if r.OutcomeData != nil {
		data, err := json.Marshal(r.OutcomeData)
		if err != nil {
			return nil, NewEngineError("ToStorageRecord", err)
		}
		rec.OutcomeData = data
	}

	if len(r.Embeddings) > 0 {
		rec.Embeddings = make(map[string][]float64, len(r.Embeddings))
		for ch, vec := range r.Embeddings {
			rec.Embeddings[string(ch)] = vec
		}
	}

	return rec, nil
}

// FromStorageRecord converts a storage record back into a MemoryRecord,
// decoding the structured payloads. Payloads that fail to decode are left
// nil; the caller decides whether the record is still scorable.
func FromStorageRecord(rec *storage.Record) *MemoryRecord {
	r := &MemoryRecord{
		ID:                 rec.ID,
		ExpertID:           rec.ExpertID,
		GameID:             rec.GameID,
		MemoryType:         MemoryType(rec.MemoryType),
		CreatedAt:          rec.CreatedAt,
		LessonsLearned:     rec.Lessons,
		EmotionalIntensity: clamp01(rec.EmotionalIntensity),
		RetrievalCount:     rec.RetrievalCount,
	}

	if len(rec.GameContext) > 0 {
		var gc GameContext
		if err := json.Unmarshal(rec.GameContext, &gc); err == nil {
			r.GameContext = &gc
		}
	}
	if len(rec.PredictionData) > 0 {
		var pd PredictionData
		if err := json.Unmarshal(rec.PredictionData, &pd); err == nil {
			r.PredictionData = &pd
		}
	}
	if len(rec.OutcomeData) > 0 {
		var od OutcomeData
		if err := json.Unmarshal(rec.OutcomeData, &od); err == nil {
			r.OutcomeData = &od
		}
	}

	if len(rec.Embeddings) > 0 {
		r.Embeddings = make(map[Channel][]float64, len(rec.Embeddings))
		for ch, vec := range rec.Embeddings {
			r.Embeddings[Channel(ch)] = vec
		}
	}

	return r
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
