package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DysphoDE/nerdquiz/internal/question"
)

//
// Deterministic test rig: a manual clock, a scheduler whose timers fire on
// demand, and a canned question store.
//

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped || t.fired
	t.stopped = true
	return !was
}

type fakeScheduler struct {
	mu     sync.Mutex
	clock  *fakeClock
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// fire runs a timer callback regardless of its stopped flag, simulating a
// callback already in flight when it was cancelled. The clock jumps by the
// timer's delay.
func (s *fakeScheduler) fire(t *fakeTimer) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	s.clock.advance(t.d)
	t.fn()
}

// fireDuration fires the first live timer armed with exactly d.
func (s *fakeScheduler) fireDuration(tt *testing.T, d time.Duration) {
	tt.Helper()
	if t := s.findDuration(d); t != nil {
		s.fire(t)
		return
	}
	tt.Fatalf("no pending timer with duration %v (pending: %v)", d, s.pendingDurations())
}

func (s *fakeScheduler) findDuration(d time.Duration) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.d == d {
			return t
		}
	}
	return nil
}

// firePending fires the oldest live timer and reports whether one existed.
func (s *fakeScheduler) firePending() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	s.fire(next)
	return true
}

func (s *fakeScheduler) pendingDurations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.d)
		}
	}
	return out
}

// --- canned question store ---

type fakeStore struct {
	categories []question.Category
	questions  []question.Question

	randomErr error
}

func newFakeStore() *fakeStore {
	fs := &fakeStore{}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("cat%c", 'A'+i)
		fs.categories = append(fs.categories, question.Category{
			ID: id, Slug: id, Name: "Category " + id, IsActive: true, SortOrder: i,
		})
		for j := 0; j < 10; j++ {
			fs.questions = append(fs.questions, question.Question{
				ID:         fmt.Sprintf("%s-c%d", id, j),
				CategoryID: id,
				Kind:       question.KindChoice,
				Text:       fmt.Sprintf("Choice question %d of %s?", j, id),
				Choice: &question.ChoiceContent{
					CorrectAnswer:    "right",
					IncorrectAnswers: []string{"wrong1", "wrong2", "wrong3"},
				},
			})
		}
		fs.questions = append(fs.questions, question.Question{
			ID:         id + "-est",
			CategoryID: id,
			Kind:       question.KindEstimation,
			Text:       "How many?",
			Estimation: &question.EstimationContent{CorrectValue: 100, Unit: "km"},
		})
	}
	for j := 0; j < 6; j++ {
		fs.questions = append(fs.questions, question.Question{
			ID:   fmt.Sprintf("hb%d", j),
			Kind: question.KindHotButton,
			Text: "Wer schrieb Faust und wurde in Frankfurt geboren, hm?",
			HotButton: &question.HotButtonContent{
				CorrectAnswer:   "Goethe",
				AcceptedAnswers: []string{"Johann Wolfgang von Goethe"},
				PointsCorrect:   200,
				PointsWrong:     -100,
			},
		})
	}
	fs.questions = append(fs.questions, question.Question{
		ID:   "cl1",
		Kind: question.KindCollectiveList,
		CollectiveList: &question.CollectiveListContent{
			Topic: "European capitals",
			Items: []question.ListItem{
				{ID: "berlin", Display: "Berlin"},
				{ID: "paris", Display: "Paris"},
				{ID: "rome", Display: "Rome", Aliases: []string{"Roma"}},
				{ID: "madrid", Display: "Madrid"},
				{ID: "vienna", Display: "Vienna", Aliases: []string{"Wien"}},
				{ID: "lisbon", Display: "Lisbon"},
				{ID: "oslo", Display: "Oslo"},
				{ID: "bern", Display: "Bern"},
				{ID: "dublin", Display: "Dublin"},
				{ID: "athens", Display: "Athens"},
			},
			TimePerTurn:      15,
			PointsPerCorrect: 50,
			FuzzyThreshold:   0.8,
		},
	})
	return fs
}

func (fs *fakeStore) Categories(context.Context) ([]question.Category, error) {
	out := make([]question.Category, len(fs.categories))
	copy(out, fs.categories)
	return out, nil
}

func (fs *fakeStore) Random(_ context.Context, categoryID string, kind question.Kind, n int, exclude map[string]bool) ([]question.Question, error) {
	if fs.randomErr != nil {
		return nil, fs.randomErr
	}
	var out []question.Question
	for _, q := range fs.questions {
		if q.Kind != kind || exclude[q.ID] {
			continue
		}
		if categoryID != "" && q.CategoryID != categoryID {
			continue
		}
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, question.ErrExhausted
	}
	return out, nil
}

func (fs *fakeStore) ByID(_ context.Context, id string) (*question.Question, error) {
	for i := range fs.questions {
		if fs.questions[i].ID == id {
			q := fs.questions[i]
			return &q, nil
		}
	}
	return nil, question.ErrNotFound
}

// --- room rig ---

type rig struct {
	t       *testing.T
	room    *Room
	clock   *fakeClock
	sched   *fakeScheduler
	store   *fakeStore
	clients []*Client
}

func newRig(t *testing.T, settings Settings, names ...string) *rig {
	t.Helper()

	clock := newFakeClock()
	sched := &fakeScheduler{clock: clock}
	store := newFakeStore()

	room := newRoom("ABCD", settings, Deps{
		Clock: clock,
		Sched: sched,
		Store: store,
	}, nil)

	rg := &rig{t: t, room: room, clock: clock, sched: sched, store: store}
	for _, name := range names {
		c := newTestClient()
		room.join(c, name, false)
		if c.playerID == "" {
			t.Fatalf("join failed for %q", name)
		}
		rg.clients = append(rg.clients, c)
	}
	return rg
}

func (rg *rig) player(i int) *Player {
	rg.t.Helper()
	p := rg.room.playerByIDLocked(rg.clients[i].playerID)
	if p == nil {
		rg.t.Fatalf("player %d not found", i)
	}
	return p
}

func (rg *rig) send(i int, msg ClientMessage) {
	rg.room.Dispatch(rg.clients[i], msg)
}

func (rg *rig) sendAll(msg ClientMessage) {
	for i := range rg.clients {
		rg.send(i, msg)
	}
}

// sendByID dispatches on behalf of the client bound to the given player.
func (rg *rig) sendByID(playerID string, msg ClientMessage) {
	rg.t.Helper()
	for _, c := range rg.clients {
		if c.playerID == playerID {
			rg.room.Dispatch(c, msg)
			return
		}
	}
	rg.t.Fatalf("no client bound to player %q", playerID)
}

func (rg *rig) phase() Phase {
	return rg.room.state.Phase
}

func (rg *rig) wantPhase(want Phase) {
	rg.t.Helper()
	if got := rg.phase(); got != want {
		rg.t.Fatalf("phase = %q, want %q", got, want)
	}
}

// drain empties a client's send buffer and returns everything received.
func (rg *rig) drain(i int) []any {
	var out []any
	for {
		select {
		case msg := <-rg.clients[i].send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// lastOfType returns the most recent message of the given wire type.
func lastOfType[T any](msgs []any) (T, bool) {
	var found T
	ok := false
	for _, m := range msgs {
		if v, is := m.(T); is {
			found = v
			ok = true
		}
	}
	return found, ok
}

// questionSettings disables the bonus-round dice so round shapes are
// deterministic under test.
func questionSettings() Settings {
	s := DefaultSettings()
	s.BonusRoundChance = 0
	return s
}

// customBonusSettings pins every round to one bonus type.
func customBonusSettings(bonusType string) Settings {
	s := DefaultSettings()
	s.CustomMode = true
	s.CustomRounds = []CustomRound{{Type: bonusType}}
	return s
}

// startMatch walks a rig from lobby into the first round body.
func (rg *rig) startMatch() {
	rg.t.Helper()
	rg.send(0, ClientMessage{Type: EventTypeStartGame})
	rg.wantPhase(PhaseRoundAnnouncement)
	rg.sendAll(ClientMessage{Type: EventTypeGameStartReady})
}
