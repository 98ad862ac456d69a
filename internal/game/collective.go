package game

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/fuzzy"
	"github.com/DysphoDE/nerdquiz/internal/question"
)

// setupCollectiveLocked builds the collective-list state. The turn order is
// fixed for the round: score ascending, ties by join order, so the trailing
// player opens with the easy answers still on the board.
func (r *Room) setupCollectiveLocked(q question.Question) {
	content := q.CollectiveList

	connected := r.connectedPlayersLocked()
	sort.SliceStable(connected, func(i, j int) bool {
		return connected[i].Score < connected[j].Score
	})

	turnOrder := make([]string, len(connected))
	active := make([]string, len(connected))
	for i, p := range connected {
		turnOrder[i] = p.ID
		active[i] = p.ID
	}

	items := make([]CollectiveItem, len(content.Items))
	for i, it := range content.Items {
		items[i] = CollectiveItem{ID: it.ID, Display: it.Display, Aliases: it.Aliases, Group: it.Group}
	}

	timePerTurn := content.TimePerTurn
	if timePerTurn <= 0 {
		timePerTurn = 15
	}
	points := content.PointsPerCorrect
	if points <= 0 {
		points = 50
	}
	threshold := content.FuzzyThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	r.state.Bonus = &BonusState{
		Type: BonusTypeCollectiveList,
		Collective: &CollectiveState{
			Phase:               "intro",
			QuestionID:          q.ID,
			Topic:               content.Topic,
			Description:         content.Description,
			Items:               items,
			GuessedIDs:          make(map[string]bool),
			PlayerCorrectCounts: make(map[string]int),
			TurnOrder:           turnOrder,
			ActivePlayers:       active,
			PointsPerCorrect:    points,
			TimePerTurn:         timePerTurn,
			FuzzyThreshold:      threshold,
		},
	}
}

func (r *Room) collectiveStateLocked() *CollectiveState {
	if r.state.Bonus == nil || r.state.Bonus.Type != BonusTypeCollectiveList {
		return nil
	}
	return r.state.Bonus.Collective
}

func (r *Room) startCollectivePlayingLocked() {
	cs := r.collectiveStateLocked()
	if cs == nil {
		return
	}
	cs.Phase = "playing"
	cs.CurrentTurnIndex = 0
	cs.TurnNumber = 0
	r.startCollectiveTurnLocked()
}

func (r *Room) collectiveCurrentPlayerLocked() string {
	cs := r.collectiveStateLocked()
	if cs == nil || len(cs.ActivePlayers) == 0 {
		return ""
	}
	return cs.ActivePlayers[cs.CurrentTurnIndex%len(cs.ActivePlayers)]
}

func (r *Room) startCollectiveTurnLocked() {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase != "playing" {
		return
	}

	// Players who dropped between turns are folded out as timeouts before
	// the turn starts.
	dropped := false
	for {
		changed := false
		for _, id := range cs.ActivePlayers {
			p := r.playerByIDLocked(id)
			if p == nil || !p.IsConnected {
				r.collectiveEliminateLocked(id, "timeout")
				changed = true
				dropped = true
				break
			}
		}
		if !changed || cs.Phase != "playing" {
			break
		}
	}
	if cs.Phase != "playing" {
		return
	}
	if len(cs.ActivePlayers) == 0 || (dropped && len(cs.TurnOrder) > 1 && len(cs.ActivePlayers) <= 1) {
		r.endCollectiveLocked("last_standing")
		return
	}

	cs.CurrentTurnIndex %= len(cs.ActivePlayers)
	cs.TurnNumber++

	window := time.Duration(cs.TimePerTurn) * time.Second
	r.clearTimersLocked()
	r.setDeadlineLocked(window, func(r *Room) {
		r.collectiveTimeoutLocked()
	})

	current := cs.ActivePlayers[cs.CurrentTurnIndex]
	r.broadcastLocked(BonusTurnMessage{
		Type:       EventTypeBonusRoundTurn,
		PlayerID:   current,
		TurnNumber: cs.TurnNumber,
		TimerEnd:   r.state.TimerEnd,
	})
	r.broadcastStateLocked()
}

func (r *Room) collectiveTimeoutLocked() {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase != "playing" {
		return
	}
	r.collectiveEliminateLocked(r.collectiveCurrentPlayerLocked(), "timeout")
	r.collectiveAfterEliminationLocked()
}

func (r *Room) handleBonusAnswerLocked(p *Player, text string) {
	cs := r.collectiveStateLocked()
	if r.state.Phase != PhaseBonusRound || cs == nil || cs.Phase != "playing" {
		r.log.Debug("bonus answer outside turn dropped", zap.String("player", p.ID))
		return
	}
	if p.ID != r.collectiveCurrentPlayerLocked() {
		return
	}

	r.clearTimersLocked()
	r.state.TimerEnd = 0

	items := make([]fuzzy.Item, len(cs.Items))
	for i, it := range cs.Items {
		items[i] = fuzzy.Item{ID: it.ID, Display: it.Display, Aliases: it.Aliases}
	}

	result := fuzzy.Match(text, items, cs.GuessedIDs, cs.FuzzyThreshold)

	switch {
	case result.AlreadyGuessed:
		r.collectiveEliminateLocked(p.ID, "wrong")
		r.collectiveAfterEliminationLocked()

	case result.IsMatch:
		cs.GuessedIDs[result.MatchedItemID] = true
		for i := range cs.Items {
			if cs.Items[i].ID == result.MatchedItemID {
				cs.Items[i].GuessedBy = p.ID
				break
			}
		}
		cs.PlayerCorrectCounts[p.ID]++
		p.Score += cs.PointsPerCorrect

		r.log.Info("collective list hit",
			zap.String("player", p.ID),
			zap.String("item", result.MatchedItemID),
			zap.Float64("confidence", result.Confidence))

		r.broadcastLocked(BonusCorrectMessage{
			Type:     EventTypeBonusRoundCorrect,
			PlayerID: p.ID,
			ItemID:   result.MatchedItemID,
			Display:  result.MatchedDisplay,
			Points:   cs.PointsPerCorrect,
		})
		r.broadcastStateLocked()

		if len(cs.GuessedIDs) == len(cs.Items) {
			r.endCollectiveLocked("all_guessed")
			return
		}

		cs.CurrentTurnIndex = (cs.CurrentTurnIndex + 1) % len(cs.ActivePlayers)
		r.scheduleLocked(correctAnswerDelay, func(r *Room) {
			r.startCollectiveTurnLocked()
		})

	default:
		r.collectiveEliminateLocked(p.ID, "wrong")
		r.collectiveAfterEliminationLocked()
	}
}

func (r *Room) handleBonusSkipLocked(p *Player) {
	cs := r.collectiveStateLocked()
	if r.state.Phase != PhaseBonusRound || cs == nil || cs.Phase != "playing" {
		return
	}
	if p.ID != r.collectiveCurrentPlayerLocked() {
		return
	}
	r.clearTimersLocked()
	r.state.TimerEnd = 0
	r.collectiveEliminateLocked(p.ID, "skip")
	r.collectiveAfterEliminationLocked()
}

// collectiveEliminateLocked removes the player from the active rotation and
// records the elimination rank. The index is adjusted so the next turn lands
// on the following still-active player.
func (r *Room) collectiveEliminateLocked(playerID, reason string) {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase != "playing" {
		return
	}

	rank := len(cs.TurnOrder) - len(cs.EliminatedPlayers)
	cs.EliminatedPlayers = append(cs.EliminatedPlayers, Elimination{
		PlayerID: playerID,
		Reason:   reason,
		Rank:     rank,
	})

	for i, id := range cs.ActivePlayers {
		if id != playerID {
			continue
		}
		cs.ActivePlayers = append(cs.ActivePlayers[:i], cs.ActivePlayers[i+1:]...)
		if i < cs.CurrentTurnIndex {
			cs.CurrentTurnIndex--
		}
		if len(cs.ActivePlayers) > 0 {
			cs.CurrentTurnIndex %= len(cs.ActivePlayers)
		} else {
			cs.CurrentTurnIndex = 0
		}
		break
	}

	r.log.Info("collective list elimination",
		zap.String("player", playerID),
		zap.String("reason", reason),
		zap.Int("rank", rank))

	r.broadcastLocked(BonusEliminateMessage{
		Type:     EventTypeBonusRoundEliminat,
		PlayerID: playerID,
		Reason:   reason,
		Rank:     rank,
	})
	r.broadcastStateLocked()
}

// collectiveAfterEliminationLocked either closes the round or schedules the
// next turn.
func (r *Room) collectiveAfterEliminationLocked() {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase != "playing" {
		return
	}

	multiStart := len(cs.TurnOrder) > 1
	if (multiStart && len(cs.ActivePlayers) <= 1) || (!multiStart && len(cs.ActivePlayers) == 0) {
		r.endCollectiveLocked("last_standing")
		return
	}

	r.scheduleLocked(correctAnswerDelay, func(r *Room) {
		r.startCollectiveTurnLocked()
	})
}

func (r *Room) collectiveDropPlayerLocked(playerID string) {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase != "playing" || !contains(cs.ActivePlayers, playerID) {
		return
	}

	// The departing player counts as timed out, whether or not it was their
	// turn. The running turn restarts with a fresh window for whoever is up.
	r.clearTimersLocked()
	r.state.TimerEnd = 0
	r.collectiveEliminateLocked(playerID, "timeout")
	r.collectiveAfterEliminationLocked()
}

// endCollectiveLocked pays out winner bonuses and produces the breakdown.
func (r *Room) endCollectiveLocked(reason string) {
	cs := r.collectiveStateLocked()
	if cs == nil || cs.Phase == "finished" {
		return
	}
	r.clearTimersLocked()
	r.state.TimerEnd = 0
	cs.Phase = "finished"
	cs.EndReason = reason

	// Survivors share rank 1. A solo player who ran the list alone is rank 1
	// even after eliminating themselves, and still earns the solo bonus.
	winners := append([]string{}, cs.ActivePlayers...)
	if len(winners) == 0 && len(cs.EliminatedPlayers) > 0 {
		last := cs.EliminatedPlayers[len(cs.EliminatedPlayers)-1]
		if last.Rank == 1 {
			winners = append(winners, last.PlayerID)
		}
	}

	bonus := winnerBonusSolo
	if len(winners) > 1 {
		bonus = winnerBonusMulti
	}

	rankByPlayer := make(map[string]int, len(cs.TurnOrder))
	for _, e := range cs.EliminatedPlayers {
		rankByPlayer[e.PlayerID] = e.Rank
	}
	bonusByPlayer := make(map[string]int, len(winners))
	for _, id := range winners {
		rankByPlayer[id] = 1
		bonusByPlayer[id] = bonus
		if p := r.playerByIDLocked(id); p != nil {
			p.Score += bonus
		}
	}

	breakdown := make([]ScoreBreakdown, 0, len(cs.TurnOrder))
	for _, id := range cs.TurnOrder {
		correct := cs.PlayerCorrectCounts[id]
		correctPoints := correct * cs.PointsPerCorrect
		breakdown = append(breakdown, ScoreBreakdown{
			PlayerID:       id,
			CorrectAnswers: correct,
			CorrectPoints:  correctPoints,
			RankBonus:      bonusByPlayer[id],
			TotalPoints:    correctPoints + bonusByPlayer[id],
			Rank:           rankByPlayer[id],
		})
	}
	sort.SliceStable(breakdown, func(i, j int) bool { return breakdown[i].Rank < breakdown[j].Rank })

	r.log.Info("collective list finished", zap.String("reason", reason))
	r.broadcastLocked(CollectiveListEndMessage{
		Type:      EventTypeCollectiveListEnd,
		Reason:    reason,
		Breakdown: breakdown,
	})
	r.finishBonusRoundLocked()
}
