package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/storage"
	"go.uber.org/zap"
)

// ErrStopped is returned by Flush after Stop.
var ErrStopped = errors.New("persist: writer stopped")

type opKind int

const (
	opSave opKind = iota
	opDelete
	opDeletePlayer
	opStat
	opPlayer
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opSave:
		return "save"
	case opDelete:
		return "delete"
	case opDeletePlayer:
		return "delete_player"
	case opStat:
		return "stat"
	case opPlayer:
		return "player"
	default:
		return "barrier"
	}
}

type op struct {
	kind    opKind
	record  progress.Record
	player  uuid.UUID
	questID string
	name    string
	took    time.Duration
	at      time.Time
	done    chan struct{}
}

// Writer applies storage operations on one background goroutine in the
// order they were submitted.
type Writer struct {
	store   storage.Store
	ch      chan op
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Writer with the given queue size and starts its worker.
// timeout bounds each storage call.
func New(store storage.Store, queue int, timeout time.Duration, logger *zap.Logger) *Writer {
	if queue <= 0 {
		queue = 1024
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:   store,
		ch:      make(chan op, queue),
		stopCh:  make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
	w.wg.Add(1)
	go w.worker()
	return w
}

// Save enqueues an upsert of r.
func (w *Writer) Save(r progress.Record) {
	w.submit(op{kind: opSave, record: r, player: r.PlayerID, questID: r.QuestID})
}

// Delete enqueues removal of one progress row.
func (w *Writer) Delete(player uuid.UUID, questID string) {
	w.submit(op{kind: opDelete, player: player, questID: questID})
}

// DeletePlayer enqueues removal of every row of a player.
func (w *Writer) DeletePlayer(player uuid.UUID) {
	w.submit(op{kind: opDeletePlayer, player: player})
}

// Stat enqueues a completion statistic.
func (w *Writer) Stat(player uuid.UUID, questID string, took time.Duration, at time.Time) {
	w.submit(op{kind: opStat, player: player, questID: questID, took: took, at: at})
}

// Player enqueues an upsert of the player's name and last-seen time.
func (w *Writer) Player(player uuid.UUID, name string, seen time.Time) {
	w.submit(op{kind: opPlayer, player: player, name: name, at: seen})
}

// Flush waits until every operation submitted before the call is applied.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return ErrStopped
	}
	select {
	case w.ch <- op{kind: opBarrier, done: done}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued operations.
func (w *Writer) Pending() int {
	return len(w.ch)
}

// Stop drains the queue and shuts the worker down. Operations submitted
// afterwards run synchronously on the caller.
func (w *Writer) Stop(_ context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()
	w.wg.Wait()
}

// submit never drops an operation. A full queue blocks the caller until
// the worker frees a slot; each storage call is bounded by timeout so the
// wait is too.
func (w *Writer) submit(o op) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.apply(o)
		return
	}
	select {
	case w.ch <- o:
	default:
		w.logger.Warn("persist queue full, waiting",
			zap.Stringer("op", o.kind),
			zap.Stringer("player_id", o.player),
			zap.String("quest_id", o.questID))
		w.ch <- o
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for {
		select {
		case o := <-w.ch:
			w.apply(o)
		case <-w.stopCh:
			for {
				select {
				case o := <-w.ch:
					w.apply(o)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) apply(o op) {
	if o.kind == opBarrier {
		close(o.done)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch o.kind {
	case opSave:
		err = w.store.SaveProgress(ctx, o.record)
	case opDelete:
		err = w.store.DeleteProgress(ctx, o.player, o.questID)
	case opDeletePlayer:
		err = w.store.DeletePlayer(ctx, o.player)
	case opStat:
		err = w.store.RecordCompletionStatistic(ctx, o.player, o.questID, o.took, o.at)
	case opPlayer:
		err = w.store.UpsertPlayer(ctx, o.player, o.name, o.at)
	}
	if err != nil {
		w.logger.Error("persist op failed",
			zap.Stringer("op", o.kind),
			zap.Stringer("player_id", o.player),
			zap.String("quest_id", o.questID),
			zap.Error(err))
	}
}
