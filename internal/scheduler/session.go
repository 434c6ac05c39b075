package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cadence/internal/domain"
)

// Store is the backend the session reads history from and writes
// completions to.
type Store interface {
	ListDefinitions(ctx context.Context, userID string, activeOnly bool) ([]domain.TaskDefinition, error)
	ListLogEntries(ctx context.Context, definitionID int64) ([]domain.LogEntry, error)
	CreateLogEntry(ctx context.Context, in domain.NewLogEntry) (domain.LogEntry, error)
}

type Options struct {
	UserID   string
	Location *time.Location
	Now      func() time.Time
	// FetchConcurrency bounds parallel log fetches during a reload.
	FetchConcurrency int
	Logger           *log.Logger
	// OnChange is called after every state transition, outside the lock.
	OnChange func(View)
	Clock    Clock
	NewRef   func() string
}

// View is a read-only rendering of the session.
type View struct {
	Now     time.Time
	Current *Current
	Writing bool
	Err     error
}

// Session owns the scheduling state for one user and serializes all
// transitions through Reduce.
type Session struct {
	store Store
	opts  Options

	mu      sync.Mutex
	state   State
	gen     uint64
	refs    map[Slot]string
	lastErr error

	writing atomic.Bool
}

func NewSession(store Store, opts Options) *Session {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.NewRef == nil {
		opts.NewRef = uuid.NewString
	}
	s := &Session{store: store, opts: opts, refs: map[Slot]string{}}
	s.state = NewState(s.now())
	return s
}

func (s *Session) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Current returns the selected task, or false when idle.
func (s *Session) Current() (Current, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Select(s.state)
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{Now: s.state.Now, Writing: s.writing.Load(), Err: s.lastErr}
	if cur, ok := Select(s.state); ok {
		v.Current = &cur
	}
	return v
}

func (s *Session) apply(ev Event) {
	s.mu.Lock()
	s.state = Reduce(s.state, ev)
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
}

func (s *Session) notify(v View) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(v)
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
}

// Tick advances the session clock to now.
func (s *Session) Tick() {
	s.apply(Tick{Now: s.now()})
}

// Midnight resets the day and reloads history.
func (s *Session) Midnight(ctx context.Context) error {
	s.apply(Midnight{Now: s.now()})
	return s.Reload(ctx)
}

// Restore applies a persisted snapshot.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	s.state = Restore(s.state, snap)
	s.mu.Unlock()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Reload fetches definitions and per-definition history and rebuilds the
// derived state. When reloads overlap only the latest one is applied. A
// failed definitions fetch leaves state untouched; a failed log fetch
// degrades that definition to no history.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	defs, err := s.store.ListDefinitions(ctx, s.opts.UserID, true)
	if err != nil {
		err = asNetworkError("list definitions", 0, err)
		s.opts.Logger.Printf("reload: %v", err)
		s.setErr(err)
		return err
	}
	active := defs[:0:0]
	for _, d := range defs {
		if d.Active {
			active = append(active, d)
		}
	}

	logs, degraded := s.fetchLogs(ctx, active)
	if err := ctx.Err(); err != nil {
		return asNetworkError("list log entries", 0, err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.opts.Logger.Printf("reload %d superseded", gen)
		return nil
	}
	s.state = Reduce(s.state, Reload{Now: s.now(), Definitions: active, Logs: logs, Degraded: degraded})
	s.lastErr = nil
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
	return nil
}

func (s *Session) fetchLogs(ctx context.Context, defs []domain.TaskDefinition) (map[int64][]domain.LogEntry, map[int64]bool) {
	var mu sync.Mutex
	logs := make(map[int64][]domain.LogEntry, len(defs))
	degraded := map[int64]bool{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for _, d := range defs {
		g.Go(func() error {
			entries, err := s.store.ListLogEntries(gctx, d.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				degraded[d.ID] = true
				s.opts.Logger.Printf("reload: %v", asNetworkError("list log entries", d.ID, err))
				return nil
			}
			logs[d.ID] = entries
			return nil
		})
	}
	_ = g.Wait()
	return logs, degraded
}

type CompleteOptions struct {
	// Amount is used only when the definition has no default amount.
	Amount      *float64
	Description string
}

// Complete logs the current task. Local state changes only after the
// backend acknowledges the entry. A retry of the same task reuses the same
// client reference so the backend can deduplicate it.
func (s *Session) Complete(ctx context.Context, opts CompleteOptions) (domain.LogEntry, error) {
	if !s.writing.CompareAndSwap(false, true) {
		return domain.LogEntry{}, ErrWriteInFlight
	}
	defer s.writing.Store(false)

	s.mu.Lock()
	cur, ok := Select(s.state)
	if !ok {
		s.mu.Unlock()
		return domain.LogEntry{}, ErrNoCurrentTask
	}
	def, _ := s.state.definition(cur.DefinitionID)
	ref, ok := s.refs[cur.Slot()]
	if !ok {
		ref = s.opts.NewRef()
		s.refs[cur.Slot()] = ref
	}
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)

	in := domain.NewLogEntry{
		DefinitionID: cur.DefinitionID,
		Name:         def.Name,
		Amount:       EffectiveAmount(def, opts.Amount),
		Description:  Describe(cur, opts.Description, s.now()),
		ClientRef:    ref,
	}
	if cur.Category != "" {
		category := cur.Category
		in.Category = &category
	}

	entry, err := s.store.CreateLogEntry(ctx, in)
	if err != nil {
		werr := WriteError{DefinitionID: cur.DefinitionID, Err: err}
		s.opts.Logger.Printf("complete: %v", werr)
		s.setErr(werr)
		return domain.LogEntry{}, werr
	}

	s.mu.Lock()
	delete(s.refs, cur.Slot())
	s.state = Reduce(s.state, Completed{Task: cur, Entry: entry, At: s.now()})
	s.lastErr = nil
	v = s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
	return entry, nil
}

// Skip dismisses the current task without logging.
func (s *Session) Skip() (Current, error) {
	s.mu.Lock()
	cur, ok := Select(s.state)
	if !ok {
		s.mu.Unlock()
		return Current{}, ErrNoCurrentTask
	}
	s.state = Reduce(s.state, Skipped{Task: cur})
	v := s.viewLocked()
	s.mu.Unlock()
	s.notify(v)
	return cur, nil
}

// Run drives the session from the clock until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	clock := s.opts.Clock
	if clock.Now == nil {
		clock.Now = s.now
	}
	err := clock.Run(ctx,
		func(time.Time) { s.Tick() },
		func(time.Time) {
			if err := s.Midnight(ctx); err != nil {
				s.opts.Logger.Printf("midnight reload: %v", err)
			}
		},
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// EffectiveAmount prefers the definition default over the supplied amount.
func EffectiveAmount(def domain.TaskDefinition, supplied *float64) *float64 {
	if def.DefaultAmount != nil {
		v := *def.DefaultAmount
		return &v
	}
	if supplied != nil {
		v := *supplied
		return &v
	}
	return nil
}

// Describe returns desc, or a generated description when it is blank.
func Describe(cur Current, desc string, at time.Time) string {
	if d := strings.TrimSpace(desc); d != "" {
		return d
	}
	if cur.Kind == KindScheduled {
		return fmt.Sprintf("Completed at %s (%s)", at.Format("15:04"), cur.HHMM)
	}
	return fmt.Sprintf("Completed at %s", at.Format("15:04"))
}
