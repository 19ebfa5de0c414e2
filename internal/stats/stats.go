package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

const namespace = "ais"

// Persister stores statistics snapshots
type Persister interface {
	StoreSystemStats(stats types.SystemStats) error
}

// Stats tracks pipeline processing statistics
type Stats struct {
	RunID uuid.UUID

	// Ingestion and validation
	Datagrams          uint64
	Sentences          uint64
	ChecksumFailures   uint64
	MalformedSentences uint64
	IgnoredSentences   uint64

	// Decoding
	DecodedMessages uint64
	DecodeFailures  uint64
	RangeViolations uint64
	ExpiredPartials uint64

	// Distribution
	SinkErrors uint64

	// Message type counts, index is the AIS message type
	MessageTypeCounts [types.MessageTypes]uint64

	// Current state
	ActiveVessels   uint64
	PendingPartials uint64

	// Timing
	StartTime       time.Time
	LastMessageTime time.Time
	ProcessingTime  time.Duration

	store Persister

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	now := time.Now()
	return &Stats{
		RunID:           uuid.New(),
		StartTime:       now,
		LastMessageTime: now,
	}
}

// SetStore sets the persistence backend
func (s *Stats) SetStore(store Persister) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return fmt.Errorf("statistics store not set")
	}

	return store.StoreSystemStats(s.Snapshot())
}

// IncrementDatagrams increments the received datagrams counter
func (s *Stats) IncrementDatagrams() {
	atomic.AddUint64(&s.Datagrams, 1)
}

// IncrementSentences increments the valid sentences counter
func (s *Stats) IncrementSentences() {
	atomic.AddUint64(&s.Sentences, 1)
}

// IncrementChecksumFailures increments the checksum mismatch counter
func (s *Stats) IncrementChecksumFailures() {
	atomic.AddUint64(&s.ChecksumFailures, 1)
}

// IncrementMalformed increments the malformed sentences counter
func (s *Stats) IncrementMalformed() {
	atomic.AddUint64(&s.MalformedSentences, 1)
}

// IncrementIgnored increments the ignored sentences counter
func (s *Stats) IncrementIgnored() {
	atomic.AddUint64(&s.IgnoredSentences, 1)
}

// IncrementDecoded increments the decoded messages counter
func (s *Stats) IncrementDecoded() {
	atomic.AddUint64(&s.DecodedMessages, 1)
}

// IncrementDecodeFailures increments the decode failures counter
func (s *Stats) IncrementDecodeFailures() {
	atomic.AddUint64(&s.DecodeFailures, 1)
}

// IncrementRangeViolations increments the out of range positions counter
func (s *Stats) IncrementRangeViolations() {
	atomic.AddUint64(&s.RangeViolations, 1)
}

// IncrementSinkErrors increments the failed sink writes counter
func (s *Stats) IncrementSinkErrors() {
	atomic.AddUint64(&s.SinkErrors, 1)
}

// IncrementMessageType increments the counter for a specific message type
func (s *Stats) IncrementMessageType(msgType int) {
	if msgType >= 0 && msgType < len(s.MessageTypeCounts) {
		atomic.AddUint64(&s.MessageTypeCounts[msgType], 1)
	}
}

// SetActiveVessels sets the number of vessels held by the accumulator
func (s *Stats) SetActiveVessels(count uint64) {
	atomic.StoreUint64(&s.ActiveVessels, count)
}

// SetPendingPartials sets the number of incomplete multipart sequences
func (s *Stats) SetPendingPartials(count uint64) {
	atomic.StoreUint64(&s.PendingPartials, count)
}

// SetExpiredPartials sets the number of sequences aged out so far
func (s *Stats) SetExpiredPartials(count uint64) {
	atomic.StoreUint64(&s.ExpiredPartials, count)
}

// UpdateLastMessageTime updates the last message time
func (s *Stats) UpdateLastMessageTime() {
	s.mu.Lock()
	s.LastMessageTime = time.Now()
	s.mu.Unlock()
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(duration time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += duration
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() types.SystemStats {
	s.mu.RLock()
	processing := s.ProcessingTime
	start := s.StartTime
	s.mu.RUnlock()

	snap := types.SystemStats{
		RunID:              s.RunID.String(),
		Time:               time.Now(),
		Datagrams:          atomic.LoadUint64(&s.Datagrams),
		Sentences:          atomic.LoadUint64(&s.Sentences),
		ChecksumFailures:   atomic.LoadUint64(&s.ChecksumFailures),
		MalformedSentences: atomic.LoadUint64(&s.MalformedSentences),
		IgnoredSentences:   atomic.LoadUint64(&s.IgnoredSentences),
		DecodedMessages:    atomic.LoadUint64(&s.DecodedMessages),
		DecodeFailures:     atomic.LoadUint64(&s.DecodeFailures),
		RangeViolations:    atomic.LoadUint64(&s.RangeViolations),
		ExpiredPartials:    atomic.LoadUint64(&s.ExpiredPartials),
		SinkErrors:         atomic.LoadUint64(&s.SinkErrors),
		ActiveVessels:      atomic.LoadUint64(&s.ActiveVessels),
		PendingPartials:    atomic.LoadUint64(&s.PendingPartials),
		ProcessingTime:     processing,
	}
	snap.Uptime = snap.Time.Sub(start)
	for i := range s.MessageTypeCounts {
		snap.MessageTypes[i] = atomic.LoadUint64(&s.MessageTypeCounts[i])
	}
	return snap
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Datagrams: %d\n"+
			"Sentences: %d\n"+
			"Checksum Failures: %d\n"+
			"Malformed Sentences: %d\n"+
			"Decoded Messages: %d\n"+
			"Decode Failures: %d\n"+
			"Range Violations: %d\n"+
			"Sink Errors: %d\n"+
			"Active Vessels: %d\n"+
			"Pending Partials: %d\n"+
			"Uptime: %s",
		snap.Datagrams,
		snap.Sentences,
		snap.ChecksumFailures,
		snap.MalformedSentences,
		snap.DecodedMessages,
		snap.DecodeFailures,
		snap.RangeViolations,
		snap.SinkErrors,
		snap.ActiveVessels,
		snap.PendingPartials,
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence persists statistics every interval until the context is done
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				log.Warn().Err(err).Msg("Failed to persist final statistics")
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				log.Warn().Err(err).Msg("Failed to persist statistics")
			} else {
				log.Debug().Str("run_id", s.RunID.String()).Msg("Persisted statistics")
			}
		}
	}
}

var (
	counterDescs = map[string]*prometheus.Desc{
		"datagrams":           newDesc("datagrams_received_total", "Datagrams read from the ingestion feed"),
		"sentences":           newDesc("sentences_valid_total", "Sentences that passed validation"),
		"checksum_failures":   newDesc("sentences_checksum_failures_total", "Sentences rejected for a checksum mismatch"),
		"malformed_sentences": newDesc("sentences_malformed_total", "Sentences rejected as malformed"),
		"ignored_sentences":   newDesc("sentences_ignored_total", "Proprietary and alarm sentences dropped"),
		"decoded_messages":    newDesc("messages_decoded_total", "Messages decoded and published"),
		"decode_failures":     newDesc("messages_decode_failures_total", "Payloads the decoder rejected"),
		"range_violations":    newDesc("messages_range_violations_total", "Messages dropped for an out of range position"),
		"expired_partials":    newDesc("partials_expired_total", "Multipart sequences aged out before completion"),
		"sink_errors":         newDesc("sink_errors_total", "Failed sink writes"),
	}
	activeVesselsDesc   = newDesc("vessels_active", "Vessels held by the accumulator")
	pendingPartialsDesc = newDesc("partials_pending", "Incomplete multipart sequences")
	messageTypeDesc     = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "messages_by_type_total"),
		"Decoded messages per AIS message type",
		[]string{"type"}, nil,
	)
)

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
}

// Describe implements prometheus.Collector
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range counterDescs {
		ch <- d
	}
	ch <- activeVesselsDesc
	ch <- pendingPartialsDesc
	ch <- messageTypeDesc
}

// Collect implements prometheus.Collector
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	counters := map[string]uint64{
		"datagrams":           snap.Datagrams,
		"sentences":           snap.Sentences,
		"checksum_failures":   snap.ChecksumFailures,
		"malformed_sentences": snap.MalformedSentences,
		"ignored_sentences":   snap.IgnoredSentences,
		"decoded_messages":    snap.DecodedMessages,
		"decode_failures":     snap.DecodeFailures,
		"range_violations":    snap.RangeViolations,
		"expired_partials":    snap.ExpiredPartials,
		"sink_errors":         snap.SinkErrors,
	}
	for name, v := range counters {
		ch <- prometheus.MustNewConstMetric(counterDescs[name], prometheus.CounterValue, float64(v))
	}
	ch <- prometheus.MustNewConstMetric(activeVesselsDesc, prometheus.GaugeValue, float64(snap.ActiveVessels))
	ch <- prometheus.MustNewConstMetric(pendingPartialsDesc, prometheus.GaugeValue, float64(snap.PendingPartials))
	for msgType, v := range snap.MessageTypes {
		if v == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(messageTypeDesc, prometheus.CounterValue, float64(v), fmt.Sprint(msgType))
	}
}
