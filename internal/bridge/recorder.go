// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/directory"
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/journal"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
)

// SessionDirectory publishes which instance owns which session.
type SessionDirectory interface {
	Announce(ctx context.Context, rec directory.Record) error
	Remove(ctx context.Context, sessionID string) error
	Lookup(ctx context.Context, sessionID string) (directory.Record, error)
	List(ctx context.Context) ([]directory.Record, error)
	Ping(ctx context.Context) error
	Instance() string
	TTL() time.Duration
}

const (
	recorderQueueSize = 256
	recorderOpTimeout = 5 * time.Second
	dropLogEvery      = 100
)

// Command outcomes as journaled.
const (
	outcomeSent    = "sent"
	outcomeReplied = "replied"
	outcomeTimeout = "timeout"
	outcomeFailed  = "failed"
)

// record is one unit of work for the recorder goroutine. Exactly one of
// the fields is set.
type record struct {
	entry    *journal.Entry
	announce *directory.Record
	remove   string
}

// recorder moves session facts off the request and session goroutines
// into the journal and the directory. Records are dropped when the
// queue is full so a slow backend never stalls a session.
type recorder struct {
	journal   journal.Store
	dir       SessionDirectory
	live      func() []SessionView
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	queue    chan record
	dropped  atomic.Uint64
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newRecorder(j journal.Store, dir SessionDirectory, retention time.Duration, live func() []SessionView, logger zerolog.Logger) *recorder {
	return &recorder{
		journal:   j,
		dir:       dir,
		live:      live,
		retention: retention,
		now:       time.Now,
		logger:    logger,
		queue:     make(chan record, recorderQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// pruneInterval sweeps about ten times per retention window.
func pruneInterval(retention time.Duration) time.Duration {
	return min(max(retention/10, time.Minute), time.Hour)
}

func (r *recorder) start() { go r.run() }

func (r *recorder) run() {
	defer close(r.done)

	var pruneC, refreshC <-chan time.Time
	if r.journal != nil && r.retention > 0 {
		t := time.NewTicker(pruneInterval(r.retention))
		defer t.Stop()
		pruneC = t.C
	}
	if r.dir != nil && r.dir.TTL() > 0 {
		t := time.NewTicker(r.dir.TTL() / 2)
		defer t.Stop()
		refreshC = t.C
	}

	for {
		select {
		case rec := <-r.queue:
			r.handle(rec)
		case <-pruneC:
			r.prune()
		case <-refreshC:
			r.refresh()
		case <-r.stop:
			for {
				select {
				case rec := <-r.queue:
					r.handle(rec)
				default:
					return
				}
			}
		}
	}
}

// close drains queued records and stops the goroutine.
func (r *recorder) close() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		metrics.IncRecorderDropped()
		if n := r.dropped.Add(1); n%dropLogEvery == 1 {
			r.logger.Warn().Uint64("dropped", n).Msg("recorder queue full, dropping session records")
		}
	}
}

func (r *recorder) handle(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderOpTimeout)
	defer cancel()

	switch {
	case rec.entry != nil:
		err := r.journal.Append(ctx, *rec.entry)
		result := "ok"
		if err != nil {
			result = "error"
			r.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.entry.SessionID).Msg("journal append failed")
		}
		metrics.IncJournalWrite(string(rec.entry.Kind), result)
	case rec.announce != nil:
		if err := r.dir.Announce(ctx, *rec.announce); err != nil {
			r.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.announce.SessionID).Msg("directory announce failed")
		}
	case rec.remove != "":
		if err := r.dir.Remove(ctx, rec.remove); err != nil {
			r.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.remove).Msg("directory remove failed")
		}
	}
}

func (r *recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), recorderOpTimeout)
	defer cancel()
	n, err := r.journal.Prune(ctx, r.now().Add(-r.retention))
	if err != nil {
		r.logger.Warn().Err(err).Msg("journal prune failed")
		return
	}
	metrics.AddJournalPruned(n)
	if n > 0 {
		r.logger.Debug().Int("entries", n).Msg("journal pruned")
	}
}

// refresh re-announces every live session before its record expires.
func (r *recorder) refresh() {
	for _, v := range r.live() {
		r.handle(record{announce: announcement(v.SessionID, v.State, v.Host, v.AuthMode, v.Codec)})
	}
}

func announcement(id string, state model.State, host string, mode model.AuthMode, codec string) *directory.Record {
	return &directory.Record{
		SessionID: id,
		State:     string(state),
		Host:      host,
		AuthMode:  string(mode),
		Codec:     codec,
	}
}

func (r *recorder) journalEntry(e journal.Entry) {
	if r == nil || r.journal == nil {
		return
	}
	e.At = r.now().UTC()
	r.enqueue(record{entry: &e})
}

// sessionRecorder binds a recorder to one session.
type sessionRecorder struct {
	r     *recorder
	id    string
	codec string
	cfg   model.EmbedConfig
}

func (r *recorder) forSession(id, codec string, cfg model.EmbedConfig) sessionRecorder {
	return sessionRecorder{r: r, id: id, codec: codec, cfg: cfg}
}

func (s sessionRecorder) announce(state model.State) {
	if s.r == nil || s.r.dir == nil {
		return
	}
	s.r.enqueue(record{announce: announcement(s.id, state, s.cfg.Host(), s.cfg.AuthMode(), s.codec)})
}

func (s sessionRecorder) opened() {
	s.r.journalEntry(journal.Entry{SessionID: s.id, Kind: journal.KindSession, Event: "opened", Detail: s.codec})
	s.announce(model.StateUninitialized)
}

func (s sessionRecorder) transition(tr lifecycle.Transition) {
	s.r.journalEntry(journal.Entry{
		SessionID: s.id,
		Kind:      journal.KindTransition,
		Event:     string(tr.Event),
		From:      string(tr.From),
		To:        string(tr.To),
	})
	if tr.To != model.StateDisposed {
		s.announce(tr.To)
	}
}

func (s sessionRecorder) command(kind model.HostEventKind, correlationID string, err error) {
	outcome := outcomeSent
	switch {
	case errors.Is(err, model.ErrCommandTimeout):
		outcome = outcomeTimeout
	case err != nil:
		outcome = outcomeFailed
	}
	e := journal.Entry{
		SessionID:     s.id,
		Kind:          journal.KindCommand,
		Event:         string(kind),
		CorrelationID: correlationID,
		Outcome:       outcome,
	}
	if err != nil {
		e.Detail = err.Error()
	}
	s.r.journalEntry(e)
}

func (s sessionRecorder) replied(kind model.HostEventKind, correlationID string) {
	s.r.journalEntry(journal.Entry{
		SessionID:     s.id,
		Kind:          journal.KindCommand,
		Event:         string(kind),
		CorrelationID: correlationID,
		Outcome:       outcomeReplied,
	})
}

func (s sessionRecorder) closed() {
	s.r.journalEntry(journal.Entry{SessionID: s.id, Kind: journal.KindSession, Event: "closed"})
	if s.r != nil && s.r.dir != nil {
		s.r.enqueue(record{remove: s.id})
	}
}
