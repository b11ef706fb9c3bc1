package recordhelper

import (
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/schema"
)

func steps() Helper {
	return Helper{
		recordType:     storage.RecordTypeSteps,
		table:          "steps_record_table",
		payloadColumns: []schema.Column{{Name: "count", Type: schema.TypeIntegerNotNull}},
		bind: func(payload storage.Payload) ([]any, error) {
			return []any{payload.(storage.Steps).Count}, nil
		},
		scan: func() ([]any, func() storage.Payload) {
			var count int64
			return []any{&count}, func() storage.Payload { return storage.Steps{Count: count} }
		},
	}
}

func heartRate() Helper {
	return Helper{
		recordType:     storage.RecordTypeHeartRate,
		table:          "heart_rate_record_table",
		payloadColumns: []schema.Column{{Name: "beats_per_minute", Type: schema.TypeIntegerNotNull}},
		bind: func(payload storage.Payload) ([]any, error) {
			return []any{payload.(storage.HeartRate).BeatsPerMinute}, nil
		},
		scan: func() ([]any, func() storage.Payload) {
			var bpm int64
			return []any{&bpm}, func() storage.Payload { return storage.HeartRate{BeatsPerMinute: bpm} }
		},
	}
}

func weight() Helper {
	return Helper{
		recordType:     storage.RecordTypeWeight,
		table:          "weight_record_table",
		payloadColumns: []schema.Column{{Name: "weight_grams", Type: schema.TypeRealNotNull}},
		bind: func(payload storage.Payload) ([]any, error) {
			return []any{payload.(storage.Weight).Grams}, nil
		},
		scan: func() ([]any, func() storage.Payload) {
			var grams float64
			return []any{&grams}, func() storage.Payload { return storage.Weight{Grams: grams} }
		},
	}
}

func activeCaloriesBurned() Helper {
	return Helper{
		recordType:     storage.RecordTypeActiveCaloriesBurned,
		table:          "active_calories_burned_record_table",
		payloadColumns: []schema.Column{{Name: "energy_kcal", Type: schema.TypeRealNotNull}},
		bind: func(payload storage.Payload) ([]any, error) {
			return []any{payload.(storage.ActiveCaloriesBurned).Kilocalories}, nil
		},
		scan: func() ([]any, func() storage.Payload) {
			var kcal float64
			return []any{&kcal}, func() storage.Payload { return storage.ActiveCaloriesBurned{Kilocalories: kcal} }
		},
	}
}

func hydration() Helper {
	return Helper{
		recordType:     storage.RecordTypeHydration,
		table:          "hydration_record_table",
		payloadColumns: []schema.Column{{Name: "volume_ml", Type: schema.TypeRealNotNull}},
		bind: func(payload storage.Payload) ([]any, error) {
			return []any{payload.(storage.Hydration).Milliliters}, nil
		},
		scan: func() ([]any, func() storage.Payload) {
			var ml float64
			return []any{&ml}, func() storage.Payload { return storage.Hydration{Milliliters: ml} }
		},
	}
}
