package cycle

import (
	"fmt"
	"sync"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// CycleFeatureExtractor computes WorkCycle feature fields (peak/avg
// current, energy, balance, baseline deviation) from the raw angle and
// current series for one detected interval. The angle-based extractor
// is the built-in default; non-angle assets (e.g. linear actuators
// bounded by a different leading signal) can register their own.
type CycleFeatureExtractor interface {
	// Name returns the unique registry key (used as config value).
	Name() string

	// Extract computes a WorkCycle's feature fields for the interval
	// [startTs, endTs], given the device's angle/motor1/motor2 series and
	// an optional fitted baseline (nil if none exists yet).
	Extract(deviceID, segmentID string, startTs, endTs int64, angle, motor1, motor2 []Sample, baseline *PolynomialBaseline) model.WorkCycle
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]CycleFeatureExtractor)
)

// RegisterExtractor registers a CycleFeatureExtractor. Panics if the
// name is already registered; call from init() in extractor packages.
func RegisterExtractor(e CycleFeatureExtractor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[e.Name()]; exists {
		panic(fmt.Sprintf("cycle: extractor %q already registered", e.Name()))
	}
	registry[e.Name()] = e
}

// GetExtractor returns the registered extractor with the given name.
func GetExtractor(name string) (CycleFeatureExtractor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("cycle: extractor %q not registered (available: %v)", name, listNames())
	}
	return e, nil
}

// ListExtractors returns the names of all registered extractors.
func ListExtractors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return listNames()
}

func listNames() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	return names
}

// angleExtractor is the built-in default: threshold-crossing detection
// combined with the trapezoidal-energy/balance-ratio/baseline-deviation
// feature computation in detector.go.
type angleExtractor struct{}

func init() {
	RegisterExtractor(&angleExtractor{})
}

func (angleExtractor) Name() string { return "angle" }

func (angleExtractor) Extract(deviceID, segmentID string, startTs, endTs int64, angle, motor1, motor2 []Sample, baseline *PolynomialBaseline) model.WorkCycle {
	durationS := float64(endTs-startTs) / 1000
	return buildCycle(deviceID, segmentID, startTs, endTs, durationS, angle, motor1, motor2, baseline)
}
