/*

This file contains the asynchronous round recorder. Scoring hands finished rounds to the recorder
and moves on; a single writer goroutine persists them. When the buffer is full the record is
dropped and counted, scoring never waits on the database.

*/

package state

import (
	"context"
	"sync"
	"time"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/observability"
	"github.com/elys-network/yieldcore/internal/types"
)

var recorderLogger = logger.GetForComponent("state_recorder")

const (
	DefaultRecorderBuffer = 64
	writeTimeout          = 10 * time.Second
)

// Recorder persists rounds in the background and gives the validator access to scores and the
// round counter.
type Recorder struct {
	records chan types.RoundRecord
	metrics *observability.Metrics
	save    func(ctx context.Context, rec types.RoundRecord) error

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder with a buffer of the given size. metrics may be nil.
func NewRecorder(buffer int, metrics *observability.Metrics) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &Recorder{
		records: make(chan types.RoundRecord, buffer),
		metrics: metrics,
		save:    SaveRound,
	}
}

// Start launches the writer goroutine. It drains the buffer until Close is called.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for rec := range r.records {
			r.write(ctx, rec)
		}
	}()
}

func (r *Recorder) write(ctx context.Context, rec types.RoundRecord) {
	// a cancelled run context must not lose the records still buffered
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.save(wctx, rec); err != nil {
		recorderLogger.Error().Err(err).Str("request_id", rec.RequestID).Msg("Failed to persist round")
		if r.metrics != nil {
			r.metrics.DBWriteErrors.WithLabelValues("save_round").Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecordsWritten.Inc()
	}
}

// RecordRound queues rec for persistence without blocking.
func (r *Recorder) RecordRound(rec types.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		recorderLogger.Warn().Str("request_id", rec.RequestID).Msg("Recorder closed, round not persisted")
		return
	}
	select {
	case r.records <- rec:
	default:
		recorderLogger.Warn().Str("request_id", rec.RequestID).Int("buffer", cap(r.records)).Msg("Recorder buffer full, dropping round")
		if r.metrics != nil {
			r.metrics.RecordsDropped.Inc()
		}
	}
}

// Close stops accepting records and waits for the buffered ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) NextRound(ctx context.Context) (int, error) {
	return IncrementRoundNumber(ctx)
}

func (r *Recorder) SaveScores(ctx context.Context, scores map[types.MinerUID]float64) error {
	err := SaveScores(ctx, scores)
	if err != nil && r.metrics != nil {
		r.metrics.DBWriteErrors.WithLabelValues("save_scores").Inc()
	}
	return err
}

func (r *Recorder) LoadScores(ctx context.Context) (map[types.MinerUID]float64, error) {
	return LoadScores(ctx)
}
