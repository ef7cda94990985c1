package scheduler

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// UntilFn is a ticker body that returns false to unschedule itself.
type UntilFn func() bool

// Scheduler manages named periodic and delayed tasks. Names are unique:
// registering a name again replaces the previous task.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*time.Timer
	logger  *zap.Logger
	stopCh  chan struct{}
}

type tickerEntry struct {
	interval time.Duration
	stopCh   chan struct{}
}

// TaskInfo describes a registered ticker.
type TaskInfo struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.addTicker(name, interval, func() bool { fn(); return true })
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddTickerUntil registers a ticker that keeps running while fn returns true.
// A panicking fn counts as true.
func (s *Scheduler) AddTickerUntil(name string, interval time.Duration, fn UntilFn) {
	s.addTicker(name, interval, fn)
	s.logger.Debug("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) addTicker(name string, interval time.Duration, fn UntilFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.run(name, fn) {
					s.removeEntry(name, entry)
					return
				}
			case <-entry.stopCh:
				return
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Scheduler) run(name string, fn UntilFn) (keep bool) {
	keep = true
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	return fn()
}

// removeEntry drops name only if it still maps to entry, so a task that
// unschedules itself never removes its replacement.
func (s *Scheduler) removeEntry(name string, entry *tickerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tickers[name]; ok && cur == entry {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("delay task panicked",
					zap.String("task", name), zap.Any("recover", r))
			}
			s.mu.Lock()
			if s.timers[name] == t {
				delete(s.timers, name)
			}
			s.mu.Unlock()
		}()
		select {
		case <-s.stopCh:
			return
		default:
		}
		fn()
	})
	s.timers[name] = t
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// RemovePrefix removes every ticker and delay whose name starts with prefix
// and returns how many were removed.
func (s *Scheduler) RemovePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.tickers {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	for name := range s.timers {
		if strings.HasPrefix(name, prefix) {
			if _, dup := s.tickers[name]; !dup {
				names = append(names, name)
			}
		}
	}
	for _, name := range names {
		s.removeLocked(name)
	}
	return len(names)
}

// Has reports whether a ticker or delay with the given name is registered.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.tickers[name]
	_, d := s.timers[name]
	return t || d
}

// Stop stops all tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	for name := range s.tickers {
		delete(s.tickers, name)
	}
}

// ListTickers returns the names of all registered ticker tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns every registered ticker with its interval, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tickers))
	for name, e := range s.tickers {
		out = append(out, TaskInfo{Name: name, Interval: e.interval.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
