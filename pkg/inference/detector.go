// Package inference is the boundary to the object detector. The worker only
// sees the Detector interface; the detector itself is opaque.
package inference

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Result keys produced by detectors.
const (
	KeyCount          = "count"
	KeyConfidence     = "confidence"
	KeyProcessingTime = "processingTime"
	KeyModelName      = "modelName"
)

// Detector counts cats in an image file.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (map[string]any, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, imagePath string) (map[string]any, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, imagePath string) (map[string]any, error) {
	return f(ctx, imagePath)
}

// MockDetector guesses from the file name: names containing "cat" report
// one to three cats with high confidence, names containing "dog" report
// none, and anything else draws from a distribution biased toward zero.
type MockDetector struct {
	// Latency is slept before answering, to mimic model run time.
	Latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockDetector creates a MockDetector with a fixed seed.
func NewMockDetector(seed int64, latency time.Duration) *MockDetector {
	return &MockDetector{
		Latency: latency,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Detect implements Detector.
func (d *MockDetector) Detect(ctx context.Context, imagePath string) (map[string]any, error) {
	start := time.Now()

	if d.Latency > 0 {
		timer := time.NewTimer(d.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.ToLower(filepath.Base(imagePath))

	d.mu.Lock()
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var (
		count      int
		confidence float64
	)
	switch {
	case strings.Contains(name, "cat"):
		count = 1 + d.rng.Intn(3)
		confidence = 0.85 + d.rng.Float64()*0.1
	case strings.Contains(name, "dog"):
		count = 0
		confidence = 0.9
	default:
		count = []int{0, 0, 0, 1, 1, 2}[d.rng.Intn(6)]
		confidence = 0.6 + d.rng.Float64()*0.3
	}
	d.mu.Unlock()

	return map[string]any{
		KeyCount:          count,
		KeyConfidence:     confidence,
		KeyProcessingTime: fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
		KeyModelName:      "mock",
	}, nil
}

// Normalize converts count to int and confidence to float64 in place.
// Values that are not numbers, or not finite, become 0. A negative count
// becomes 0 and a count beyond the int range saturates at math.MaxInt.
// Absent keys stay absent.
func Normalize(result map[string]any) map[string]any {
	if result == nil {
		return nil
	}
	if v, ok := result[KeyCount]; ok {
		f, ok := toFloat(v)
		if !ok {
			f = 0
		}
		result[KeyCount] = toCount(f)
	}
	if v, ok := result[KeyConfidence]; ok {
		f, ok := toFloat(v)
		if !ok {
			f = 0
		}
		result[KeyConfidence] = f
	}
	return result
}

func toCount(f float64) int {
	switch {
	case f < 0:
		return 0
	case f >= float64(math.MaxInt):
		return math.MaxInt
	}
	return int(f)
}

type float64er interface {
	Float64() (float64, error)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case float64er:
		// json.Number
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
