// Package main — cmd/intellimaint-sim/main.go
//
// IntelliMaint Telemetry Simulator.
//
// Purpose: drive the running agent's ingest endpoint with synthetic
// device telemetry so the full pipeline (edge filtering, store-and-
// forward, collection segments, alarm evaluation, motor baseline
// learning, health scoring, prognostics) can be exercised end to end
// without real field devices attached.
//
// Degradation model, one random walk per device's wear tag:
//
//	w_{t+1} = w_t + driftRate + N(0, 0.01·noiseSigma)
//
// Where w_t is the wear-tag reading at step t, driftRate models steady
// mechanical wear (set to 0 for a healthy device), and N(0, 0.01·noiseSigma)
// is a small per-step perturbation of the walk; noiseSigma itself is the
// standard deviation of the vibration tag's measurement noise. An anomaly injector independently
// flips a subset of steps into short-lived spikes on the vibration tag,
// at anomalyRate probability per step, to exercise alarm evaluation and
// the edge filter's outlier rejection.
//
// Output: batches POSTed to -ingest-url as the ingest wire format
// (optionally gzip-compressed); a run summary to stderr. With -dry-run,
// no network call is made and the first -dry-run-sample points are
// printed to stdout as CSV instead.
//
// Usage:
//
//	intellimaint-sim [flags]
//	intellimaint-sim -devices 10 -duration 3600 -interval-ms 1000 -ingest-url http://localhost:8080/api/telemetry/batch
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	// ── Flags ────────────────────────────────────────────────────────
	devices := flag.Int("devices", 5, "Number of simulated devices")
	durationS := flag.Int("duration", 3600, "Simulated duration in seconds")
	intervalMs := flag.Int("interval-ms", 1000, "Sample interval in milliseconds")
	ingestURL := flag.String("ingest-url", "http://localhost:8080/api/telemetry/batch", "Ingest batch endpoint")
	batchSize := flag.Int("batch-size", 200, "Points per POST")
	gzipBody := flag.Bool("gzip", false, "Gzip-compress each batch body")
	anomalyRate := flag.Float64("anomaly-rate", 0.005, "Per-step probability of a vibration spike on a device")
	driftRate := flag.Float64("drift-rate", 0.0008, "Per-step wear-tag drift, 0 disables degradation")
	noiseSigma := flag.Float64("noise-sigma", 0.4, "Measurement noise standard deviation")
	alarmThreshold := flag.Float64("alarm-threshold", 80.0, "Informational threshold used only to summarize how many points would trip an alarm")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	dryRun := flag.Bool("dry-run", false, "Skip the network call; print a CSV sample to stdout instead")
	dryRunSample := flag.Int("dry-run-sample", 20, "Rows printed under -dry-run")
	flag.Parse()

	if *devices < 1 {
		fmt.Fprintln(os.Stderr, "ERROR: devices must be >= 1")
		os.Exit(1)
	}
	if *durationS < 1 || *intervalMs < 1 {
		fmt.Fprintln(os.Stderr, "ERROR: duration and interval-ms must be >= 1")
		os.Exit(1)
	}
	if *anomalyRate < 0 || *anomalyRate > 1 {
		fmt.Fprintln(os.Stderr, "ERROR: anomaly-rate must be in [0, 1]")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))

	// ── Simulation ───────────────────────────────────────────────────
	sim := NewSimulator(*devices, *durationS, *intervalMs, *driftRate, *noiseSigma, *anomalyRate, rng)
	points := sim.Run()

	tripCount := 0
	for _, p := range points {
		if p.TagID == tagVibration && p.Value > *alarmThreshold {
			tripCount++
		}
	}

	if *dryRun {
		w := csv.NewWriter(os.Stdout)
		_ = w.Write([]string{"device_id", "tag_id", "ts", "value"})
		n := *dryRunSample
		if n > len(points) {
			n = len(points)
		}
		for _, p := range points[:n] {
			_ = w.Write([]string{p.DeviceID, p.TagID, strconv.FormatInt(p.Ts, 10), strconv.FormatFloat(p.Value, 'f', 4, 64)})
		}
		w.Flush()
	} else {
		sent, err := sendAll(context.Background(), *ingestURL, points, *batchSize, *gzipBody)
		fmt.Fprintf(os.Stderr, "sent %d / %d points to %s\n", sent, len(points), *ingestURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "RESULT: FAIL — %v\n", err)
			os.Exit(2)
		}
	}

	fmt.Fprintf(os.Stderr, "\n=== RUN SUMMARY ===\n")
	fmt.Fprintf(os.Stderr, "devices:               %d\n", *devices)
	fmt.Fprintf(os.Stderr, "points generated:      %d\n", len(points))
	fmt.Fprintf(os.Stderr, "vibration > %.1f:       %d\n", *alarmThreshold, tripCount)
	fmt.Fprintf(os.Stderr, "RESULT: PASS — telemetry generated\n")
}

const (
	tagTemperature = "temperature"
	tagVibration   = "vibration_rms"
	tagCurrent     = "motor_current"
	tagPressure    = "pressure"
)

// simPoint is the subset of model.TelemetryPoint the simulator needs;
// kept local rather than importing internal/model so this binary stays
// a standalone load-generator independent of the agent's module graph.
type simPoint struct {
	DeviceID string
	TagID    string
	Ts       int64
	Seq      int64
	Value    float64
}

// Simulator generates a fixed-size batch of telemetry up front, one
// random walk per device for wear and one for measurement noise.
// Complexity: O(devices * duration/interval). Memory: O(same) for the
// returned point slice.
type Simulator struct {
	devices     int
	steps       int
	intervalMs  int64
	driftRate   float64
	noiseSigma  float64
	anomalyRate float64
	rng         *rand.Rand
}

func NewSimulator(devices, durationS, intervalMs int, driftRate, noiseSigma, anomalyRate float64, rng *rand.Rand) *Simulator {
	steps := durationS * 1000 / intervalMs
	if steps < 1 {
		steps = 1
	}
	return &Simulator{
		devices:     devices,
		steps:       steps,
		intervalMs:  int64(intervalMs),
		driftRate:   driftRate,
		noiseSigma:  noiseSigma,
		anomalyRate: anomalyRate,
		rng:         rng,
	}
}

func (s *Simulator) Run() []simPoint {
	points := make([]simPoint, 0, s.devices*s.steps*4)
	now := time.Now().UnixMilli()

	for d := 0; d < s.devices; d++ {
		deviceID := fmt.Sprintf("sim-device-%02d", d)
		wear := 0.0
		baseTemp := 60.0 + s.rng.Float64()*10.0
		baseVibration := 2.0 + s.rng.Float64()*1.5
		baseCurrent := 15.0 + s.rng.Float64()*5.0
		basePressure := 100.0 + s.rng.Float64()*20.0

		for t := 0; t < s.steps; t++ {
			ts := now + int64(t)*s.intervalMs
			wear += s.driftRate + s.rng.NormFloat64()*s.noiseSigma*0.01

			temp := baseTemp + wear + s.rng.NormFloat64()*1.5
			vibration := baseVibration + wear*0.5 + s.rng.NormFloat64()*s.noiseSigma
			if s.rng.Float64() < s.anomalyRate {
				vibration += 40 + s.rng.Float64()*30
			}
			current := baseCurrent + s.rng.NormFloat64()*0.8
			pressure := basePressure + s.rng.NormFloat64()*2.0

			points = append(points,
				simPoint{DeviceID: deviceID, TagID: tagTemperature, Ts: ts, Seq: 0, Value: round4(temp)},
				simPoint{DeviceID: deviceID, TagID: tagVibration, Ts: ts, Seq: 0, Value: round4(math.Max(vibration, 0))},
				simPoint{DeviceID: deviceID, TagID: tagCurrent, Ts: ts, Seq: 0, Value: round4(math.Max(current, 0))},
				simPoint{DeviceID: deviceID, TagID: tagPressure, Ts: ts, Seq: 0, Value: round4(pressure)},
			)
		}
	}
	return points
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// wirePoint mirrors internal/edge's wirePoint JSON shape; duplicated
// here rather than imported so this binary has no dependency on the
// agent's internal packages.
type wirePoint struct {
	DeviceID  string  `json:"device_id"`
	TagID     string  `json:"tag_id"`
	Ts        int64   `json:"ts"`
	Seq       int64   `json:"seq"`
	ValueType string  `json:"value_type"`
	Value     float64 `json:"value"`
	Quality   int32   `json:"quality"`
	Source    string  `json:"source,omitempty"`
}

const qualityGood int32 = 192

func sendAll(ctx context.Context, url string, points []simPoint, batchSize int, gz bool) (int, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	sent := 0
	for i := 0; i < len(points); i += batchSize {
		end := i + batchSize
		if end > len(points) {
			end = len(points)
		}
		wire := make([]wirePoint, end-i)
		for j, p := range points[i:end] {
			wire[j] = wirePoint{
				DeviceID:  p.DeviceID,
				TagID:     p.TagID,
				Ts:        p.Ts,
				Seq:       p.Seq,
				ValueType: "Float64",
				Value:     p.Value,
				Quality:   qualityGood,
				Source:    "intellimaint-sim",
			}
		}
		body, err := json.Marshal(wire)
		if err != nil {
			return sent, fmt.Errorf("sim: marshal batch: %w", err)
		}

		encoding := ""
		if gz {
			var buf bytes.Buffer
			gw := gzip.NewWriter(&buf)
			if _, err := gw.Write(body); err != nil {
				return sent, fmt.Errorf("sim: gzip batch: %w", err)
			}
			if err := gw.Close(); err != nil {
				return sent, fmt.Errorf("sim: gzip batch: %w", err)
			}
			body = buf.Bytes()
			encoding = "gzip"
		}

		if err := postBatch(ctx, client, url, body, encoding); err != nil {
			return sent, fmt.Errorf("sim: batch at offset %d: %w", i, err)
		}
		sent += end - i
	}
	return sent, nil
}

func postBatch(ctx context.Context, client *http.Client, url string, body []byte, encoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}
	return nil
}
