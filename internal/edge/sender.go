package edge

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/observability"
)

// Transport sends a preprocessed, compressed batch to the central store
// and answers liveness probes. Production wiring implements this over
// net/http against POST /api/telemetry/batch and GET /health/live.
type Transport interface {
	SendBatch(ctx context.Context, payload []byte, contentEncoding string) error
	HealthCheck(ctx context.Context) error
}

// Spiller persists a batch to the local rolling buffer when the
// transport is unavailable. internal/forward.Buffer implements this.
type Spiller interface {
	Spill(ctx context.Context, points []model.TelemetryPoint) error
}

// ReplaySource exposes the local rolling buffer's oldest-first drain
// path. internal/forward.Buffer implements this via NextPending /
// Acknowledge.
type ReplaySource interface {
	NextPending() (id uint64, points []model.TelemetryPoint, ok bool, err error)
	Acknowledge(id uint64) error
}

// ConnState is the Online/Offline state of the S&F transport.
type ConnState int32

const (
	StateOnline ConnState = iota
	StateOffline
)

func (s ConnState) String() string {
	if s == StateOffline {
		return "offline"
	}
	return "online"
}

// SenderConfig configures batching, compression, and health-check
// cadence, drawn from config.NetworkConfig/StoreForwardConfig.
type SenderConfig struct {
	QueueCapacity         int
	SendBatchSize         int
	SendIntervalMs        int64
	CompressionAlgorithm  string
	HealthCheckIntervalMs int64
	HealthCheckTimeoutMs  int64
	OfflineThreshold      int
}

// Sender owns the bounded send channel, the batching/transmit loop, and
// the liveness monitor loop. Producers call Send, which preprocesses
// synchronously then enqueues with blocking backpressure: a full channel
// blocks the caller rather than dropping the point, per the never-drop
// resource-exhaustion policy.
type Sender struct {
	cfg       SenderConfig
	filter    *Filter
	transport Transport
	spiller   Spiller
	replay    ReplaySource
	metrics   *observability.Metrics
	log       *zap.Logger
	codec     Codec

	queue chan model.TelemetryPoint

	state           atomic.Int32
	consecutiveFail atomic.Int32
	sentCount       atomic.Int64
	observedCount   atomic.Int64
	filteredCount   atomic.Int64
}

// NewSender constructs a Sender. ResolveCodec is called eagerly so a
// misconfigured compression algorithm (e.g. Brotli) fails fast at
// startup rather than on the first batch.
func NewSender(cfg SenderConfig, filter *Filter, transport Transport, spiller Spiller, metrics *observability.Metrics, log *zap.Logger) (*Sender, error) {
	codec, err := ResolveCodec(cfg.CompressionAlgorithm)
	if err != nil {
		return nil, err
	}
	qcap := cfg.QueueCapacity * cfg.SendBatchSize
	if qcap <= 0 {
		qcap = 100
	}
	return &Sender{
		cfg:       cfg,
		filter:    filter,
		transport: transport,
		spiller:   spiller,
		metrics:   metrics,
		log:       log,
		codec:     codec,
		queue:     make(chan model.TelemetryPoint, qcap),
	}, nil
}

// Send preprocesses points synchronously then enqueues survivors,
// blocking on a full channel until space is available or ctx is
// cancelled. Returns ctx.Err() on cancellation; never drops silently.
func (s *Sender) Send(ctx context.Context, points []model.TelemetryPoint) error {
	for _, p := range points {
		s.observedCount.Add(1)
		s.metrics.PointsObservedTotal.Inc()
		d := s.filter.Apply(p)
		if !d.Emit {
			s.filteredCount.Add(1)
			s.metrics.PointsFilteredTotal.Inc()
			continue
		}
		select {
		case s.queue <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.metrics.SendQueueDepth.Set(float64(len(s.queue)))
	}
	return nil
}

// SetReplaySource attaches the local buffer drain path used by
// RunReplayLoop. Optional: a Sender with no ReplaySource simply never
// replays spilled batches.
func (s *Sender) SetReplaySource(r ReplaySource) {
	s.replay = r
}

// State returns the sender's current Online/Offline state.
func (s *Sender) State() ConnState {
	return ConnState(s.state.Load())
}

// SentCount is the lifetime count of points successfully delivered.
func (s *Sender) SentCount() int64 { return s.sentCount.Load() }

// FilterRate is filtered/observed over the sender's lifetime.
func (s *Sender) FilterRate() float64 {
	obs := s.observedCount.Load()
	if obs == 0 {
		return 0
	}
	return float64(s.filteredCount.Load()) / float64(obs)
}

// RunSendLoop accumulates a batch up to SendBatchSize or SendIntervalMs,
// then transmits or spills on failure. Blocks until ctx is cancelled; on
// cancellation any partially-accumulated batch is spilled before return,
// per the cancellation semantics in spec.md §5.
func (s *Sender) RunSendLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.SendIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]model.TelemetryPoint, 0, s.cfg.SendBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.transmitOrSpill(ctx, batch)
		batch = make([]model.TelemetryPoint, 0, s.cfg.SendBatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case p := <-s.queue:
			batch = append(batch, p)
			s.metrics.SendQueueDepth.Set(float64(len(s.queue)))
			if len(batch) >= s.cfg.SendBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sender) transmitOrSpill(ctx context.Context, batch []model.TelemetryPoint) {
	payload, err := encodeBatch(batch)
	if err != nil {
		s.log.Error("edge: batch encode failed, spilling", zap.Error(err))
		s.spillBatch(ctx, batch)
		return
	}

	compressed, err := s.codec.Encode(payload)
	contentEncoding := s.codec.Name()
	if err != nil {
		s.log.Warn("edge: compression failed, falling back to uncompressed", zap.Error(err))
		compressed = payload
		contentEncoding = ""
	}

	if s.State() == StateOffline {
		s.spillBatch(ctx, batch)
		return
	}

	if err := s.transport.SendBatch(ctx, compressed, contentEncoding); err != nil {
		s.log.Warn("edge: transmit failed, spilling batch", zap.Error(err))
		s.spillBatch(ctx, batch)
		return
	}
	s.sentCount.Add(int64(len(batch)))
	s.metrics.SentTotal.Add(float64(len(batch)))
}

func (s *Sender) spillBatch(ctx context.Context, batch []model.TelemetryPoint) {
	if err := s.spiller.Spill(ctx, batch); err != nil {
		s.log.Error("edge: spill to local buffer failed", zap.Error(err))
	}
}

// RunMonitorLoop pings the transport's health endpoint on a fixed
// cadence, declaring Offline after OfflineThreshold consecutive failures
// and Online on the first success thereafter. Blocks until ctx is
// cancelled.
func (s *Sender) RunMonitorLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.HealthCheckIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(s.cfg.HealthCheckTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx, timeout)
		}
	}
}

// RunReplayLoop drains the local buffer oldest-batch-first whenever the
// transport is Online, per spec.md §4.2: a batch is only acknowledged
// (deleted) after a successful resend, so a crash mid-replay leaves it
// for the next attempt. Idles on an interval when Offline or when the
// buffer is empty, to avoid busy-looping.
func (s *Sender) RunReplayLoop(ctx context.Context, idleInterval time.Duration) {
	if s.replay == nil {
		return
	}
	if idleInterval <= 0 {
		idleInterval = time.Second
	}
	ticker := time.NewTicker(idleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for s.State() == StateOnline {
				drained, err := s.replayOne(ctx)
				if err != nil {
					s.log.Warn("edge: replay attempt failed", zap.Error(err))
					break
				}
				if !drained {
					break
				}
			}
		}
	}
}

func (s *Sender) replayOne(ctx context.Context) (bool, error) {
	id, points, ok, err := s.replay.NextPending()
	if err != nil || !ok {
		return false, err
	}

	payload, err := encodeBatch(points)
	if err != nil {
		return false, err
	}
	compressed, err := s.codec.Encode(payload)
	contentEncoding := s.codec.Name()
	if err != nil {
		compressed = payload
		contentEncoding = ""
	}

	if err := s.transport.SendBatch(ctx, compressed, contentEncoding); err != nil {
		return false, err
	}
	if err := s.replay.Acknowledge(id); err != nil {
		return false, err
	}
	s.sentCount.Add(int64(len(points)))
	s.metrics.SentTotal.Add(float64(len(points)))
	return true, nil
}

func (s *Sender) probe(ctx context.Context, timeout time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.transport.HealthCheck(probeCtx)
	prev := s.State()
	if err != nil {
		n := s.consecutiveFail.Add(1)
		if prev == StateOnline && int(n) >= s.cfg.OfflineThreshold {
			s.state.Store(int32(StateOffline))
			s.metrics.ConnectionStateTransitionsTotal.WithLabelValues("online", "offline").Inc()
			s.log.Warn("edge: transport declared offline", zap.Int32("consecutive_failures", n))
		}
		return
	}
	s.consecutiveFail.Store(0)
	if prev == StateOffline {
		s.state.Store(int32(StateOnline))
		s.metrics.ConnectionStateTransitionsTotal.WithLabelValues("offline", "online").Inc()
		s.log.Info("edge: transport back online")
	}
}
