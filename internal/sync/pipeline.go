package sync

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"usersync/internal/event"
)

// PipelineConfig carries the retry policy for one pipeline instance.
type PipelineConfig struct {
	MaxAttempts  int           // total attempts per message, including the first
	RetryBackoff time.Duration // first retry delay, doubled per attempt
}

// Pipeline drives one message through decode, resolution, projection
// and persistence for a single store. It is instantiated once per
// backend with that backend's projector and record store.
//
// Every terminal outcome results in an acknowledge: malformed payloads
// and no-op dispositions are dropped immediately, transient store
// failures are retried with bounded exponential backoff and dropped
// once attempts are exhausted. A poison message therefore never blocks
// the stream.
type Pipeline struct {
	name         string
	store        RecordStore
	projector    Projector
	maxAttempts  int
	retryBackoff time.Duration

	processed          int64
	inserted           int64
	updated            int64
	deleted            int64
	noops              int64
	decodeFailures     int64
	retries            int64
	dropped            int64
	timestampFallbacks int64
}

// PipelineStats is a snapshot of the pipeline counters.
type PipelineStats struct {
	Processed          int64 `json:"processed"`
	Inserted           int64 `json:"inserted"`
	Updated            int64 `json:"updated"`
	Deleted            int64 `json:"deleted"`
	Noops              int64 `json:"noops"`
	DecodeFailures     int64 `json:"decode_failures"`
	Retries            int64 `json:"retries"`
	Dropped            int64 `json:"dropped"`
	TimestampFallbacks int64 `json:"timestamp_fallbacks"`
}

func NewPipeline(name string, store RecordStore, projector Projector, cfg *PipelineConfig) *Pipeline {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Pipeline{
		name:         name,
		store:        store,
		projector:    projector,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
	}
}

func (p *Pipeline) Name() string { return p.name }

// Handle processes one raw message to a terminal outcome. A nil return
// means the message may be acknowledged; a non-nil return only occurs
// when the context is cancelled before an outcome is reached, in which
// case the message must not be acknowledged.
func (p *Pipeline) Handle(ctx context.Context, payload []byte) error {
	ev, err := event.Decode(payload)
	if err != nil {
		atomic.AddInt64(&p.decodeFailures, 1)
		atomic.AddInt64(&p.processed, 1)
		log.Printf("[%s] dropping undecodable message: %v", p.name, err)
		return nil
	}
	if ev.TimestampInferred {
		atomic.AddInt64(&p.timestampFallbacks, 1)
		log.Printf("[%s] event %s for aggregate %s carried an unparsable timestamp, using ingestion time",
			p.name, ev.EventID, ev.AggregateID)
	}

	backoff := p.retryBackoff
	for attempt := 1; ; attempt++ {
		err = p.apply(ctx, ev)
		if err == nil {
			atomic.AddInt64(&p.processed, 1)
			return nil
		}
		if !IsTransient(err) {
			atomic.AddInt64(&p.dropped, 1)
			atomic.AddInt64(&p.processed, 1)
			log.Printf("[%s] dropping event %s after permanent failure: %v", p.name, ev.EventID, err)
			return nil
		}
		if attempt >= p.maxAttempts {
			atomic.AddInt64(&p.dropped, 1)
			atomic.AddInt64(&p.processed, 1)
			log.Printf("[%s] dropping event %s after %d attempts: %v", p.name, ev.EventID, attempt, err)
			return nil
		}

		atomic.AddInt64(&p.retries, 1)
		log.Printf("[%s] attempt %d/%d for event %s failed, retrying in %s: %v",
			p.name, attempt, p.maxAttempts, ev.EventID, backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (p *Pipeline) apply(ctx context.Context, ev *event.CanonicalEvent) error {
	res, err := Resolve(ctx, p.store, ev)
	if err != nil {
		return err
	}

	switch res.Disposition {
	case DispositionNoop:
		atomic.AddInt64(&p.noops, 1)
		log.Printf("[%s] no-op for %s event on key %s", p.name, ev.Type, res.Key)
		return nil

	case DispositionMarkDeleted:
		prov := Provenance{EventID: ev.EventID, EventType: ev.Type.String()}
		if err := p.store.MarkDeleted(ctx, res.Key, prov); err != nil {
			return err
		}
		atomic.AddInt64(&p.deleted, 1)
		log.Printf("[%s] marked key %s deleted", p.name, res.Key)
		return nil

	default:
		// Projection failures are permanent: the same input fails the
		// same way on every retry.
		rec, err := p.projector.Project(ev, res.Existing)
		if err != nil {
			return err
		}
		rec.Key = res.Key
		if err := p.store.Upsert(ctx, rec); err != nil {
			return err
		}
		if res.Disposition == DispositionInsert {
			atomic.AddInt64(&p.inserted, 1)
		} else {
			atomic.AddInt64(&p.updated, 1)
		}
		log.Printf("[%s] applied %s for key %s (event %s)", p.name, res.Disposition, res.Key, ev.EventID)
		return nil
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Processed:          atomic.LoadInt64(&p.processed),
		Inserted:           atomic.LoadInt64(&p.inserted),
		Updated:            atomic.LoadInt64(&p.updated),
		Deleted:            atomic.LoadInt64(&p.deleted),
		Noops:              atomic.LoadInt64(&p.noops),
		DecodeFailures:     atomic.LoadInt64(&p.decodeFailures),
		Retries:            atomic.LoadInt64(&p.retries),
		Dropped:            atomic.LoadInt64(&p.dropped),
		TimestampFallbacks: atomic.LoadInt64(&p.timestampFallbacks),
	}
}
