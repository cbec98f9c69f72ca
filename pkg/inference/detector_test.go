package inference

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestMockDetector_Heuristics(t *testing.T) {
	d := NewMockDetector(1, 0)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		res, err := d.Detect(ctx, "/uploads/my-Cat-photo.jpg")
		if err != nil {
			t.Fatalf("Detect() failed: %v", err)
		}
		count := res[KeyCount].(int)
		conf := res[KeyConfidence].(float64)
		if count < 1 || count > 3 {
			t.Fatalf("cat count = %d, want 1..3", count)
		}
		if conf < 0.85 || conf > 0.95 {
			t.Fatalf("cat confidence = %v, want 0.85..0.95", conf)
		}
	}

	res, err := d.Detect(ctx, "dog.png")
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if res[KeyCount] != 0 || res[KeyConfidence] != 0.9 {
		t.Errorf("dog result = %v", res)
	}
	if res[KeyModelName] != "mock" {
		t.Errorf("modelName = %v, want mock", res[KeyModelName])
	}
	if _, ok := res[KeyProcessingTime].(string); !ok {
		t.Errorf("processingTime = %v, want string", res[KeyProcessingTime])
	}

	res, err = d.Detect(ctx, "IMG_0001.jpg")
	if err != nil {
		t.Fatalf("Detect() failed: %v", err)
	}
	if c := res[KeyCount].(int); c < 0 || c > 2 {
		t.Errorf("unknown image count = %d, want 0..2", c)
	}
}

func TestMockDetector_Deterministic(t *testing.T) {
	a, _ := NewMockDetector(42, 0).Detect(context.Background(), "cat.jpg")
	b, _ := NewMockDetector(42, 0).Detect(context.Background(), "cat.jpg")
	if a[KeyCount] != b[KeyCount] || a[KeyConfidence] != b[KeyConfidence] {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}

func TestMockDetector_LatencyHonoursContext(t *testing.T) {
	d := NewMockDetector(1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := d.Detect(ctx, "cat.jpg"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Detect() error = %v, want DeadlineExceeded", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         map[string]any
		count      any
		confidence any
	}{
		{"native", map[string]any{"count": 2, "confidence": 0.5}, 2, 0.5},
		{"float count", map[string]any{"count": 3.0, "confidence": float32(0.25)}, 3, 0.25},
		{"int64 and json.Number", map[string]any{"count": int64(4), "confidence": json.Number("0.75")}, 4, 0.75},
		{"non-numeric", map[string]any{"count": "three", "confidence": []int{1}}, 0, 0.0},
		{"huge count", map[string]any{"count": 1e30, "confidence": 0.5}, math.MaxInt, 0.5},
		{"uint64 beyond int", map[string]any{"count": uint64(1) << 63, "confidence": 0.5}, math.MaxInt, 0.5},
		{"negative count", map[string]any{"count": -4, "confidence": 0.5}, 0, 0.5},
		{"not finite", map[string]any{"count": math.Inf(1), "confidence": math.NaN()}, 0, 0.0},
		{"absent", map[string]any{"modelName": "m"}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			if got := out["count"]; got != tt.count {
				t.Errorf("count = %#v, want %#v", got, tt.count)
			}
			if got := out["confidence"]; got != tt.confidence {
				t.Errorf("confidence = %#v, want %#v", got, tt.confidence)
			}
		})
	}

	if Normalize(nil) != nil {
		t.Error("Normalize(nil) != nil")
	}
}
