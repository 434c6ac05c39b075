package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cadence/internal/domain"
)

// 2025-03-10 is a Monday.
func monday(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func scheduled(id int64, priority int, times ...string) domain.TaskDefinition {
	return domain.TaskDefinition{
		ID:        id,
		UserID:    "u1",
		Name:      fmt.Sprintf("task-%d", id),
		Priority:  priority,
		TrackBy:   "count",
		Active:    true,
		Schedules: []domain.ScheduleEntry{{DayOfWeek: int(time.Monday), Times: times}},
	}
}

func unscheduled(id int64, priority int) domain.TaskDefinition {
	return domain.TaskDefinition{
		ID:       id,
		UserID:   "u1",
		Name:     fmt.Sprintf("loop-%d", id),
		Priority: priority,
		TrackBy:  "count",
		Active:   true,
	}
}

func logAt(id, defID int64, at time.Time) domain.LogEntry {
	return domain.LogEntry{ID: id, DefinitionID: defID, CreatedAt: at}
}

func loaded(now time.Time, defs []domain.TaskDefinition, logs map[int64][]domain.LogEntry) State {
	return Reduce(NewState(now), Reload{Now: now, Definitions: defs, Logs: logs})
}

var errUnavailable = errors.New("backend unavailable")

type fakeStore struct {
	mu   sync.Mutex
	now  func() time.Time
	defs []domain.TaskDefinition
	logs map[int64][]domain.LogEntry

	failDefs   error
	failLogs   map[int64]bool
	failCreate error
	// loseAck stores the entry but still reports an error once.
	loseAck bool
	block   chan struct{}
	// stored is closed once an entry is written; hold then delays the ack.
	stored chan struct{}
	hold   chan struct{}

	nextID  int64
	creates int
	refs    []string
}

func newFakeStore(now func() time.Time, defs ...domain.TaskDefinition) *fakeStore {
	return &fakeStore{now: now, defs: defs, logs: map[int64][]domain.LogEntry{}, failLogs: map[int64]bool{}}
}

func (f *fakeStore) ListDefinitions(_ context.Context, userID string, activeOnly bool) ([]domain.TaskDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDefs != nil {
		return nil, f.failDefs
	}
	var out []domain.TaskDefinition
	for _, d := range f.defs {
		if d.UserID == userID && (!activeOnly || d.Active) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListLogEntries(_ context.Context, definitionID int64) ([]domain.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLogs[definitionID] {
		return nil, errUnavailable
	}
	out := append([]domain.LogEntry(nil), f.logs[definitionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) CreateLogEntry(_ context.Context, in domain.NewLogEntry) (domain.LogEntry, error) {
	if f.block != nil {
		<-f.block
	}
	e, err := f.create(in)
	f.mu.Lock()
	stored, hold := f.stored, f.hold
	f.stored, f.hold = nil, nil
	f.mu.Unlock()
	if err == nil && stored != nil {
		close(stored)
		<-hold
	}
	return e, err
}

func (f *fakeStore) create(in domain.NewLogEntry) (domain.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, in.ClientRef)
	if f.failCreate != nil {
		return domain.LogEntry{}, f.failCreate
	}
	for _, e := range f.logs[in.DefinitionID] {
		if in.ClientRef != "" && e.ClientRef == in.ClientRef {
			return e, nil
		}
	}
	f.nextID++
	f.creates++
	e := domain.LogEntry{
		ID:           f.nextID,
		DefinitionID: in.DefinitionID,
		Name:         in.Name,
		Amount:       in.Amount,
		Description:  in.Description,
		Category:     in.Category,
		ClientRef:    in.ClientRef,
		CreatedAt:    f.now(),
	}
	f.logs[in.DefinitionID] = append(f.logs[in.DefinitionID], e)
	if f.loseAck {
		f.loseAck = false
		return domain.LogEntry{}, errUnavailable
	}
	return e, nil
}

func (f *fakeStore) entries(defID int64) []domain.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LogEntry(nil), f.logs[defID]...)
}

// manualClock is a settable time source.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
