package game

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// enterScoreboardLocked shows the standings between rounds. With more than
// one player a moderator narration is pre-generated; solo players advance
// the board themselves.
func (r *Room) enterScoreboardLocked() {
	r.transitionLocked(PhaseScoreboard)

	sorted := r.scoreSortedPlayersLocked()
	r.state.TTSURL = ""
	if len(sorted) > 1 {
		text := scoreboardNarration(r.code, r.state.CurrentRound, sorted)
		r.state.TTSURL = r.narrateLocked(text, fmt.Sprintf("scoreboard-%s-%d", r.code, r.state.CurrentRound))
	}

	r.broadcastLocked(ScoreboardMessage{
		Type:   EventTypeScoreboard,
		Round:  r.state.CurrentRound,
		TTSURL: r.state.TTSURL,
	})
	r.broadcastStateLocked()

	fallback := scoreboardFallback
	if r.connectedCountLocked() <= 1 {
		fallback = 0 // solo play: the host advances manually
	}
	r.installAckLocked(EventTypeScoreboardReady, fallback, func(r *Room) {
		r.nextRoundLocked()
	})
}

func (r *Room) scoreSortedPlayersLocked() []*Player {
	sorted := r.connectedPlayersLocked()
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted
}

// --- final ---

func (r *Room) enterFinalLocked() {
	r.transitionLocked(PhaseFinal)

	all := make([]*Player, len(r.players))
	copy(all, r.players)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	rankings := make([]PlayerStatsView, 0, len(all))
	for i, p := range all {
		stats := r.state.Statistics.player(p.ID)
		accuracy := 0.0
		if stats.TotalAnswers > 0 {
			accuracy = 100 * float64(stats.CorrectAnswers) / float64(stats.TotalAnswers)
		}
		rank := i + 1
		if i > 0 && p.Score == all[i-1].Score {
			rank = rankings[i-1].Rank
		}
		rankings = append(rankings, PlayerStatsView{
			PlayerID:            p.ID,
			Name:                p.Name,
			Score:               p.Score,
			Rank:                rank,
			CorrectAnswers:      stats.CorrectAnswers,
			TotalAnswers:        stats.TotalAnswers,
			Accuracy:            accuracy,
			EstimationPoints:    stats.EstimationPoints,
			EstimationQuestions: stats.EstimationQuestions,
			FastestAnswerMS:     stats.FastestAnswer,
			LongestStreak:       stats.LongestStreak,
		})
	}

	msg := GameOverMessage{
		Type:            EventTypeGameOver,
		Rankings:        rankings,
		BestEstimator:   r.bestEstimatorLocked(),
		FastestFingers:  r.fastestFingersLocked(),
		CategoryResults: r.categoryResultsLocked(),
	}
	msg.BestCategory, msg.WorstCategory = bestWorstCategory(msg.CategoryResults)

	r.log.Info("match finished", zap.Int("rounds", r.state.CurrentRound-1))
	r.broadcastLocked(msg)
	r.broadcastStateLocked()

	r.scheduleLocked(finalResultsHold, func(r *Room) {
		r.startRematchVotingLocked()
	})
}

// bestEstimatorLocked: highest estimation points with at least one
// estimation answered.
func (r *Room) bestEstimatorLocked() string {
	best := ""
	bestPoints := -1
	for _, p := range r.players {
		stats := r.state.Statistics.player(p.ID)
		if stats.EstimationQuestions == 0 {
			continue
		}
		if stats.EstimationPoints > bestPoints {
			best, bestPoints = p.ID, stats.EstimationPoints
		}
	}
	return best
}

// fastestFingersLocked: top three by average response time, minimum three
// answers.
func (r *Room) fastestFingersLocked() []string {
	type avg struct {
		id string
		ms float64
	}
	avgs := make([]avg, 0, len(r.players))
	for _, p := range r.players {
		stats := r.state.Statistics.player(p.ID)
		if stats.TotalAnswers < 3 {
			continue
		}
		avgs = append(avgs, avg{id: p.ID, ms: float64(stats.TotalResponseTime) / float64(stats.TotalAnswers)})
	}
	sort.SliceStable(avgs, func(i, j int) bool { return avgs[i].ms < avgs[j].ms })
	if len(avgs) > 3 {
		avgs = avgs[:3]
	}

	out := make([]string, len(avgs))
	for i, a := range avgs {
		out[i] = a.id
	}
	return out
}

func (r *Room) categoryResultsLocked() []CategoryPerformance {
	out := make([]CategoryPerformance, 0, len(r.state.Statistics.Categories))
	for id, cs := range r.state.Statistics.Categories {
		perf := CategoryPerformance{CategoryID: id, Name: cs.Name, Correct: cs.Correct, Total: cs.Total}
		if cs.Total > 0 {
			perf.Accuracy = 100 * float64(cs.Correct) / float64(cs.Total)
		}
		out = append(out, perf)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Accuracy > out[j].Accuracy })
	return out
}

func bestWorstCategory(results []CategoryPerformance) (best, worst *CategoryPerformance) {
	for i := range results {
		if results[i].Total == 0 {
			continue
		}
		if best == nil || results[i].Accuracy > best.Accuracy {
			best = &results[i]
		}
		if worst == nil || results[i].Accuracy < worst.Accuracy {
			worst = &results[i]
		}
	}
	return best, worst
}

// --- rematch ---

func (r *Room) startRematchVotingLocked() {
	r.transitionLocked(PhaseRematchVoting)
	r.state.RematchVotes = make(map[string]string)

	r.broadcastLocked(SimpleMessage{Type: EventTypeRematchStart})
	r.setDeadlineLocked(rematchWindow, func(r *Room) {
		r.resolveRematchLocked()
	})
	r.broadcastStateLocked()
}

func (r *Room) handleRematchVoteLocked(p *Player, vote string) {
	if r.state.Phase != PhaseRematchVoting {
		r.log.Debug("rematch vote outside voting dropped", zap.String("player", p.ID))
		return
	}
	if vote != "yes" && vote != "no" {
		return
	}
	if _, voted := r.state.RematchVotes[p.ID]; voted {
		return
	}

	r.state.RematchVotes[p.ID] = vote
	r.broadcastLocked(RematchUpdateMessage{
		Type:     EventTypeRematchUpdate,
		PlayerID: p.ID,
		Vote:     vote,
		YesVotes: r.countRematchYesLocked(),
		Voted:    len(r.state.RematchVotes),
	})

	if vote == "no" {
		// A no leaves immediately; the vote map keeps the record.
		r.removePlayerLocked(p.ID, "Bis zum nächsten Mal!")
		if r.closed {
			return
		}
	}
	r.broadcastStateLocked()

	for _, q := range r.players {
		if _, voted := r.state.RematchVotes[q.ID]; !voted {
			return
		}
	}
	r.resolveRematchLocked()
}

func (r *Room) countRematchYesLocked() int {
	n := 0
	for _, v := range r.state.RematchVotes {
		if v == "yes" {
			n++
		}
	}
	return n
}

// resolveRematchLocked applies the outcome: non-voters count as no and are
// removed; with at least one yes the room resets to a fresh lobby.
func (r *Room) resolveRematchLocked() {
	if r.state.Phase != PhaseRematchVoting {
		return
	}
	r.clearTimersLocked()
	r.state.TimerEnd = 0

	var continuing []string
	var leaving []string
	for _, p := range r.players {
		if r.state.RematchVotes[p.ID] == "yes" {
			continuing = append(continuing, p.ID)
		} else {
			leaving = append(leaving, p.ID)
		}
	}

	if len(continuing) == 0 {
		r.log.Info("rematch declined, closing room")
		r.broadcastLocked(RematchResultMessage{Type: EventTypeRematchResult, Closed: true})
		r.scheduleLocked(roomCloseDelay, func(r *Room) {
			r.closeLocked()
		})
		return
	}

	for _, id := range leaving {
		r.removePlayerLocked(id, "Bis zum nächsten Mal!")
	}
	if r.closed {
		return
	}

	// Host stays host if they are continuing and connected; otherwise the
	// first continuing player inherits the room.
	host := r.playerByIDLocked(r.hostID)
	if host == nil || !host.IsConnected || r.state.RematchVotes[host.ID] != "yes" {
		r.setHostLocked(continuing[0])
	}

	for _, p := range r.players {
		p.Score = 0
	}
	r.state = newMatchState()
	r.explainedBonusIntros = make(map[string]bool)
	r.clearTimersLocked()

	r.log.Info("rematch starting", zap.Int("players", len(r.players)))
	r.broadcastLocked(RematchResultMessage{
		Type:       EventTypeRematchResult,
		Continuing: continuing,
		HostID:     r.hostID,
	})
	r.broadcastStateLocked()
}
