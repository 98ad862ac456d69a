package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// transitionLocked is the single phase-switch point: all timers for the
// previous phase are cancelled before the new phase is entered, and any
// outstanding ack is dropped.
func (r *Room) transitionLocked(phase Phase) {
	r.clearTimersLocked()
	r.ack = nil
	r.state.Phase = phase
	r.state.TimerEnd = 0
	r.state.TTSURL = ""
	r.state.SnippetIndex = rand.Intn(8)

	r.log.Debug("phase transition", zap.String("phase", string(phase)))
	r.broadcastLocked(PhaseChangeMessage{Type: EventTypePhaseChange, Phase: phase})
}

// setDeadlineLocked stamps the broadcast deadline and arms the matching
// server timer.
func (r *Room) setDeadlineLocked(d time.Duration, fn func(*Room)) {
	r.state.TimerEnd = toMillis(r.now().Add(d))
	r.scheduleLocked(d, fn)
}

// narrateLocked asks the TTS collaborator for an audio URL. Runs inline:
// events arriving meanwhile serialise behind the room lock.
func (r *Room) narrateLocked(text, cacheID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	return r.deps.TTS.Generate(ctx, text, cacheID)
}

// --- game start ---

func (r *Room) handleStartGameLocked(p *Player) {
	if p.ID != r.hostID {
		r.log.Debug("start_game from non-host dropped", zap.String("player", p.ID))
		return
	}
	if r.state.Phase != PhaseLobby || len(r.players) == 0 {
		return
	}

	r.log.Info("match starting", zap.Int("players", len(r.players)))

	r.state.CurrentRound = 1
	r.transitionLocked(PhaseRoundAnnouncement)
	r.state.TTSURL = r.narrateLocked(welcomeNarration(r.connectedCountLocked()), "welcome-"+r.code)
	r.broadcastStateLocked()

	// Clients play the intro animation; the round timeline starts on ack or
	// after the fallback.
	r.installAckLocked(EventTypeGameStartReady, gameStartMaxWait, func(r *Room) {
		r.beginRoundBodyLocked()
	})
}

// nextRoundLocked advances after the scoreboard.
func (r *Room) nextRoundLocked() {
	r.state.CurrentRound++
	if r.state.CurrentRound > r.settings.MaxRounds {
		r.enterFinalLocked()
		return
	}

	r.transitionLocked(PhaseRoundAnnouncement)
	text := roundNarration(r.state.CurrentRound, r.state.SnippetIndex)
	r.state.TTSURL = r.narrateLocked(text, fmt.Sprintf("round-%s-%d", r.code, r.state.CurrentRound))
	r.broadcastStateLocked()

	r.scheduleLocked(roundAnnounceHold, func(r *Room) {
		r.beginRoundBodyLocked()
	})
}

// --- round planning ---

type roundPlan struct {
	typ        string
	mode       CategoryMode // optional override for question rounds
	questionID string       // optional pinned bonus question
}

func (r *Room) roundPlanLocked() roundPlan {
	if r.settings.CustomMode && len(r.settings.CustomRounds) > 0 {
		idx := (r.state.CurrentRound - 1) % len(r.settings.CustomRounds)
		cr := r.settings.CustomRounds[idx]
		return roundPlan{typ: cr.Type, mode: cr.CategoryMode, questionID: cr.SpecificQuestionID}
	}

	isLast := r.state.CurrentRound == r.settings.MaxRounds
	bonus := rand.Intn(100) < r.settings.BonusRoundChance
	if isLast && r.settings.FinalRoundAlwaysBonus {
		bonus = true
	}
	if !bonus {
		return roundPlan{typ: RoundTypeQuestion}
	}
	return roundPlan{typ: r.pickBonusTypeLocked()}
}

// pickBonusTypeLocked rotates through the bonus kinds so a match sees both
// before repeating.
func (r *Room) pickBonusTypeLocked() string {
	all := []string{RoundTypeHotButton, RoundTypeCollectiveList}

	used := make(map[string]bool, len(r.state.UsedBonusTypes))
	for _, t := range r.state.UsedBonusTypes {
		used[t] = true
	}

	unused := make([]string, 0, len(all))
	for _, t := range all {
		if !used[t] {
			unused = append(unused, t)
		}
	}
	if len(unused) == 0 {
		r.state.UsedBonusTypes = r.state.UsedBonusTypes[:0]
		unused = all
	}

	choice := unused[rand.Intn(len(unused))]
	r.state.UsedBonusTypes = append(r.state.UsedBonusTypes, choice)
	return choice
}

// beginRoundBodyLocked runs the round shape decided by the plan: a question
// round opens with category selection, a bonus round with its announcement.
func (r *Room) beginRoundBodyLocked() {
	plan := r.roundPlanLocked()

	switch plan.typ {
	case RoundTypeHotButton, RoundTypeCollectiveList:
		r.startBonusAnnouncementLocked(plan.typ, plan.questionID)
	default:
		r.startCategorySelectionLocked(plan.mode)
	}
}

// endRoundLocked routes to the scoreboard, or straight to the final after
// the last round.
func (r *Room) endRoundLocked() {
	if r.state.CurrentRound >= r.settings.MaxRounds {
		r.enterFinalLocked()
		return
	}
	r.enterScoreboardLocked()
}

// abortRoundLocked skips a round that cannot be played (question store came
// up empty) and moves on.
func (r *Room) abortRoundLocked(reason string) {
	r.log.Warn("round aborted", zap.Int("round", r.state.CurrentRound), zap.String("reason", reason))
	r.endRoundLocked()
}
