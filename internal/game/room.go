package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/question"
)

// Narrator produces audio URLs for narration text. An empty URL means the
// clients skip narration.
type Narrator interface {
	Generate(ctx context.Context, text, cacheID string) string
}

type noopNarrator struct{}

func (noopNarrator) Generate(context.Context, string, string) string { return "" }

// Deps are the room's external collaborators.
type Deps struct {
	Log   *zap.Logger
	Clock Clock
	Sched Scheduler
	Store question.Store
	TTS   Narrator
}

func (d *Deps) fillDefaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.Sched == nil {
		d.Sched = SystemScheduler
	}
	if d.TTS == nil {
		d.TTS = noopNarrator{}
	}
}

// pendingAck tracks a one-shot client acknowledgment with a fallback timer.
// At most one ack is outstanding per room; both paths clear it, so the
// continuation runs exactly once.
type pendingAck struct {
	kind    string // event type that satisfies it
	acked   map[string]bool
	proceed func(*Room)
}

// Room is an isolated match. All state behind mu; every mutation path
// (client messages, timer callbacks, disconnects) locks it, so room logic is
// effectively single-threaded.
type Room struct {
	code string
	deps Deps
	log  *zap.Logger

	onClose func(code string)

	mu      sync.Mutex
	closed  bool
	clients map[*Client]bool

	hostID   string
	players  []*Player // insertion order is turn order and loser tie-break
	settings Settings
	state    *MatchState

	token  int // timer validity token, bumped on every transition
	timers []Timer

	ack *pendingAck

	forcedCategoryMode   CategoryMode
	explainedBonusIntros map[string]bool

	createdAt  time.Time
	lastActive time.Time
	emptySince time.Time // zero while at least one player is connected
}

func newRoom(code string, settings Settings, deps Deps, onClose func(string)) *Room {
	deps.fillDefaults()
	now := deps.Clock.Now()
	return &Room{
		code:                 code,
		deps:                 deps,
		log:                  deps.Log.With(zap.String("room", code)),
		onClose:              onClose,
		clients:              make(map[*Client]bool),
		settings:             settings,
		state:                newMatchState(),
		explainedBonusIntros: make(map[string]bool),
		createdAt:            now,
		lastActive:           now,
		emptySince:           now,
	}
}

func (r *Room) Code() string { return r.code }

// --- timers ---

// scheduleLocked arms a one-shot timer bound to the current validity token.
// A stale fire (token bumped in the meantime) is a no-op by design.
func (r *Room) scheduleLocked(d time.Duration, fn func(*Room)) {
	token := r.token
	t := r.deps.Sched.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || token != r.token {
			return
		}
		r.runGuarded(func() { fn(r) })
	})
	r.timers = append(r.timers, t)
}

// clearTimersLocked cancels every outstanding timer and invalidates callbacks
// already in flight.
func (r *Room) clearTimersLocked() {
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = r.timers[:0]
	r.token++
}

func (r *Room) now() time.Time   { return r.deps.Clock.Now() }
func (r *Room) nowMillis() int64 { return toMillis(r.deps.Clock.Now()) }

func (r *Room) runGuarded(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("room handler panic",
				zap.String("phase", string(r.state.Phase)),
				zap.Any("panic", rec))
		}
	}()
	fn()
}

// --- emit ---

func (r *Room) broadcastLocked(msg any) {
	for c := range r.clients {
		select {
		case c.send <- msg:
		default:
			delete(r.clients, c)
			c.closeSend()
		}
	}
}

func (r *Room) sendToLocked(playerID string, msg any) {
	for c := range r.clients {
		if c.playerID != playerID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(r.clients, c)
			c.closeSend()
		}
		return
	}
}

func (r *Room) sendClientLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(r.clients, c)
		c.closeSend()
	}
}

// broadcastStateLocked publishes the client-facing snapshot. Called after
// every mutation.
func (r *Room) broadcastStateLocked() {
	r.broadcastLocked(r.snapshotLocked())
}

// --- players ---

func (r *Room) playerByIDLocked(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) connectedPlayersLocked() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) connectedCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

// reassignHostLocked gives the host role to the first connected player in
// insertion order. With nobody connected the role is vacated; the next
// reconnecting player claims it.
func (r *Room) reassignHostLocked() {
	for _, p := range r.players {
		if p.IsConnected {
			r.setHostLocked(p.ID)
			return
		}
	}
	r.setHostLocked("")
}

func (r *Room) setHostLocked(id string) {
	r.hostID = id
	for _, p := range r.players {
		p.IsHost = p.ID == id
	}
}

func (r *Room) touchLocked() {
	r.lastActive = r.now()
	if r.connectedCountLocked() > 0 {
		r.emptySince = time.Time{}
	} else if r.emptySince.IsZero() {
		r.emptySince = r.now()
	}
}

// --- join / reconnect / leave ---

func validName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= 24
}

func (r *Room) join(c *Client, name string, isBot bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.sendClientLocked(c, ErrorMessage{Type: EventTypeError, Code: ErrCodeRoomNotFound})
		return
	}
	if !validName(name) {
		r.sendClientLocked(c, ErrorMessage{Type: EventTypeError, Code: ErrCodeInvalidName})
		return
	}
	if r.state.Phase != PhaseLobby {
		r.sendClientLocked(c, ErrorMessage{Type: EventTypeError, Code: ErrCodeGameRunning})
		return
	}
	if len(r.players) >= maxPlayers {
		r.sendClientLocked(c, ErrorMessage{Type: EventTypeError, Code: ErrCodeRoomFull})
		return
	}

	p := &Player{
		ID:          newPlayerID(),
		Name:        strings.TrimSpace(name),
		AvatarSeed:  newPlayerID(),
		IsConnected: true,
		IsBot:       isBot,
	}
	r.players = append(r.players, p)
	if len(r.players) == 1 {
		r.setHostLocked(p.ID)
	}

	c.playerID = p.ID
	r.clients[c] = true
	r.touchLocked()

	r.log.Info("player joined", zap.String("player", p.ID), zap.String("name", p.Name))

	r.sendClientLocked(c, JoinedMessage{Type: EventTypeJoined, Code: r.code, PlayerID: p.ID})
	r.broadcastLocked(PlayerEventMessage{Type: EventTypePlayerJoined, PlayerID: p.ID, Name: p.Name})
	r.broadcastStateLocked()
}

// reconnect binds a new transport identity to an existing player slot. The
// phase is unchanged; the caller observes the current snapshot.
func (r *Room) reconnect(c *Client, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.playerByIDLocked(playerID)
	if r.closed || p == nil {
		r.sendClientLocked(c, ErrorMessage{Type: EventTypeError, Code: ErrCodeRoomNotFound})
		return
	}

	// Drop a lingering client bound to the same slot.
	for old := range r.clients {
		if old != c && old.playerID == playerID {
			delete(r.clients, old)
			old.closeSend()
		}
	}

	c.playerID = p.ID
	r.clients[c] = true
	p.IsConnected = true
	r.touchLocked()

	if r.hostID == "" {
		r.setHostLocked(p.ID)
	}

	r.log.Info("player reconnected", zap.String("player", p.ID))

	r.sendClientLocked(c, JoinedMessage{Type: EventTypeJoined, Code: r.code, PlayerID: p.ID})
	r.broadcastStateLocked()
}

// disconnect marks the player slot detached but keeps it. Phase-specific
// policy treats an absent live-role player like a timeout.
func (r *Room) disconnect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		c.closeSend()
	}
	if c.playerID == "" {
		return
	}

	p := r.playerByIDLocked(c.playerID)
	if p == nil {
		return
	}
	p.IsConnected = false
	r.touchLocked()

	r.log.Info("player disconnected", zap.String("player", p.ID), zap.String("phase", string(r.state.Phase)))

	if p.ID == r.hostID {
		r.reassignHostLocked()
	}

	r.runGuarded(func() { r.applyDisconnectPolicyLocked(p) })
	r.broadcastStateLocked()
}

// applyDisconnectPolicyLocked resolves live roles held by a departing player.
func (r *Room) applyDisconnectPolicyLocked(p *Player) {
	switch r.state.Phase {
	case PhaseQuestion, PhaseEstimation:
		r.maybeRevealEarlyLocked()
	case PhaseCategoryVoting:
		r.maybeResolveVotingEarlyLocked()
	case PhaseCategoryDiceRoyale:
		r.diceRoyaleDropPlayerLocked(p.ID)
	case PhaseCategoryRPSDuel:
		r.rpsDropPlayerLocked(p.ID)
	case PhaseBonusRound:
		r.bonusDropPlayerLocked(p.ID)
	}
}

func (r *Room) leave(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removePlayerLocked(playerID, "left the room")
	r.broadcastStateLocked()
}

// removePlayerLocked deletes the slot entirely (leave, kick, rematch no).
func (r *Room) removePlayerLocked(playerID, reason string) {
	p := r.playerByIDLocked(playerID)
	if p == nil {
		return
	}

	for c := range r.clients {
		if c.playerID == playerID {
			r.sendClientLocked(c, SimpleMessage{Type: EventTypeKicked, Message: reason})
			delete(r.clients, c)
			c.closeSend()
		}
	}

	dst := r.players[:0]
	for _, q := range r.players {
		if q.ID != playerID {
			dst = append(dst, q)
		}
	}
	r.players = dst
	r.touchLocked()

	r.log.Info("player removed", zap.String("player", playerID), zap.String("reason", reason))
	r.broadcastLocked(PlayerEventMessage{Type: EventTypePlayerLeft, PlayerID: playerID, Name: p.Name})

	if len(r.players) == 0 {
		r.closeLocked()
		return
	}
	if playerID == r.hostID {
		r.reassignHostLocked()
	}
	r.runGuarded(func() { r.applyDisconnectPolicyLocked(p) })
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.clearTimersLocked()

	for c := range r.clients {
		delete(r.clients, c)
		c.closeSend()
	}

	r.log.Info("room closed")
	if r.onClose != nil {
		go r.onClose(r.code)
	}
}

// Close tears the room down from outside (reaper).
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// IdleInfo reports the reaper-relevant timestamps.
func (r *Room) IdleInfo() (lastActive, emptySince time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive, r.emptySince
}

// --- dispatch ---

// Dispatch routes an inbound client message. Unknown types and phase
// mismatches are dropped with a log line; errors never take the room down.
func (r *Room) Dispatch(c *Client, msg ClientMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.touchLocked()

	p := r.playerByIDLocked(c.playerID)
	if p == nil || !p.IsConnected {
		r.log.Debug("message from unbound client", zap.String("type", msg.Type))
		return
	}

	r.runGuarded(func() { r.dispatchLocked(p, msg) })
}

func (r *Room) dispatchLocked(p *Player, msg ClientMessage) {
	switch msg.Type {
	case EventTypeStartGame:
		r.handleStartGameLocked(p)
	case EventTypeGameStartReady:
		r.handleAckLocked(p, EventTypeGameStartReady)
	case EventTypeIntroReady:
		r.handleAckLocked(p, EventTypeIntroReady)
	case EventTypeScoreboardReady:
		r.handleAckLocked(p, EventTypeScoreboardReady)
	case EventTypeSubmitVote:
		r.handleSubmitVoteLocked(p, msg.CategoryID)
	case EventTypePickCategory:
		r.handlePickCategoryLocked(p, msg.CategoryID)
	case EventTypeDiceRoyaleRoll:
		r.handleDiceRollLocked(p)
	case EventTypeRPSChoice:
		r.handleRPSChoiceLocked(p, msg.Choice)
	case EventTypeSubmitAnswer:
		r.handleSubmitAnswerLocked(p, msg.AnswerIndex, msg.EstimationValue)
	case EventTypeHotButtonBuzz:
		r.handleHotButtonBuzzLocked(p)
	case EventTypeHotButtonAnswer:
		r.handleHotButtonAnswerLocked(p, msg.Text)
	case EventTypeSubmitBonusAnswer:
		r.handleBonusAnswerLocked(p, msg.Text)
	case EventTypeSkipBonusRound:
		r.handleBonusSkipLocked(p)
	case EventTypeRematchVote:
		r.handleRematchVoteLocked(p, msg.Vote)
	case EventTypeLeaveRoom:
		r.removePlayerLocked(p.ID, "left the room")
		r.broadcastStateLocked()
	case EventTypeKickPlayer:
		r.handleKickLocked(p, msg.TargetPlayerID)
	case EventTypeUpdateSettings:
		r.handleUpdateSettingsLocked(p, msg.Settings)
	case EventTypeForceCategoryMode:
		r.handleForceCategoryModeLocked(p, msg.Mode)
	default:
		r.log.Debug("unknown message type dropped",
			zap.String("type", msg.Type),
			zap.String("phase", string(r.state.Phase)))
	}
}

func (r *Room) handleKickLocked(p *Player, targetID string) {
	if p.ID != r.hostID {
		r.log.Debug("kick from non-host dropped", zap.String("player", p.ID))
		return
	}
	if r.state.Phase != PhaseLobby || targetID == p.ID {
		return
	}
	r.removePlayerLocked(targetID, "You have been removed by the host.")
	r.broadcastStateLocked()
}

func (r *Room) handleUpdateSettingsLocked(p *Player, s *Settings) {
	if p.ID != r.hostID || r.state.Phase != PhaseLobby || s == nil {
		return
	}
	if err := s.Validate(); err != nil {
		r.sendToLocked(p.ID, ErrorMessage{Type: EventTypeError, Code: "INVALID_SETTINGS", Message: err.Error()})
		return
	}
	r.settings = *s
	r.broadcastStateLocked()
}

func (r *Room) handleForceCategoryModeLocked(p *Player, mode string) {
	if p.ID != r.hostID {
		return
	}
	switch CategoryMode(mode) {
	case ModeVoting, ModeWheel, ModeLosersPick, ModeDiceRoyale, ModeRPSDuel:
		r.forcedCategoryMode = CategoryMode(mode)
	case "":
		r.forcedCategoryMode = ""
	}
}

// --- acks ---

// installAckLocked registers a one-shot continuation that runs when every
// connected player has acknowledged, or when the fallback elapses. fallback
// of zero means no timer (solo scoreboard waits for the host).
func (r *Room) installAckLocked(kind string, fallback time.Duration, proceed func(*Room)) {
	r.ack = &pendingAck{
		kind:    kind,
		acked:   make(map[string]bool),
		proceed: proceed,
	}
	if fallback > 0 {
		r.scheduleLocked(fallback, func(r *Room) {
			r.fireAckLocked(kind)
		})
	}
}

func (r *Room) handleAckLocked(p *Player, kind string) {
	if r.ack == nil || r.ack.kind != kind {
		return
	}
	r.ack.acked[p.ID] = true
	for _, q := range r.connectedPlayersLocked() {
		if !r.ack.acked[q.ID] {
			return
		}
	}
	r.fireAckLocked(kind)
}

func (r *Room) fireAckLocked(kind string) {
	if r.ack == nil || r.ack.kind != kind {
		return
	}
	proceed := r.ack.proceed
	r.ack = nil
	proceed(r)
}
