package game

import (
	"crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Room codes avoid lookalike characters (I, O, 0, 1).
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 4

// Manager is the process-wide room store: create, lookup, reap.
type Manager struct {
	deps           Deps
	sessionTimeout time.Duration
	graceTimeout   time.Duration

	mu    sync.Mutex
	rooms map[string]*Room

	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(deps Deps, sessionTimeout, graceTimeout time.Duration) *Manager {
	deps.fillDefaults()
	m := &Manager{
		deps:           deps,
		sessionTimeout: sessionTimeout,
		graceTimeout:   graceTimeout,
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
	}
	if sessionTimeout > 0 || graceTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

func (m *Manager) CreateRoom(settings Settings) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := m.newRoomCodeLocked()
	room := newRoom(code, settings, m.deps, m.remove)
	m.rooms[code] = room

	m.deps.Log.Info("room created", zap.String("room", code))
	return room
}

func (m *Manager) Get(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[code]
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Manager) remove(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	m.deps.Log.Info("room removed", zap.String("room", code))
}

// newRoomCodeLocked draws codes uniformly from the unambiguous alphabet and
// re-draws on collision with a live room.
func (m *Manager) newRoomCodeLocked() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}

// reaperLoop removes rooms idle past the session timeout and rooms whose
// players have all been disconnected longer than the grace window.
func (m *Manager) reaperLoop() {
	interval := m.sessionTimeout / 2
	if interval <= 0 || (m.graceTimeout > 0 && m.graceTimeout/2 < interval) {
		interval = m.graceTimeout / 2
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		now := m.deps.Clock.Now()

		m.mu.Lock()
		victims := make([]*Room, 0)
		for _, room := range m.rooms {
			lastActive, emptySince := room.IdleInfo()
			idle := m.sessionTimeout > 0 && now.Sub(lastActive) > m.sessionTimeout
			abandoned := m.graceTimeout > 0 && !emptySince.IsZero() && now.Sub(emptySince) > m.graceTimeout
			if idle || abandoned {
				victims = append(victims, room)
			}
		}
		m.mu.Unlock()

		for _, room := range victims {
			m.deps.Log.Info("reaping idle room", zap.String("room", room.Code()))
			room.Close()
		}
	}
}

func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
}
