package game

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/question"
)

// startQuestionLocked presents roundQuestions[idx], or closes the round when
// the index runs off the end.
func (r *Room) startQuestionLocked(idx int) {
	if idx >= len(r.state.RoundQuestions) {
		r.endRoundLocked()
		return
	}

	q := r.state.RoundQuestions[idx]
	r.state.CurrentQuestionIndex = idx
	r.state.CurrentQuestion = &q
	r.state.Answers = make(map[string]*playerAnswer)
	r.state.ShuffledAnswers = nil
	r.state.CorrectIndex = -1

	phase := PhaseQuestion
	switch q.Kind {
	case question.KindEstimation:
		phase = PhaseEstimation
	case question.KindChoice:
		// The answer order is shuffled once on the server; the shuffled
		// correct index never leaves the server before the reveal.
		answers := append([]string{q.Choice.CorrectAnswer}, q.Choice.IncorrectAnswers...)
		rand.Shuffle(len(answers), func(i, j int) { answers[i], answers[j] = answers[j], answers[i] })
		r.state.ShuffledAnswers = answers
		for i, a := range answers {
			if a == q.Choice.CorrectAnswer {
				r.state.CorrectIndex = i
				break
			}
		}
	}

	r.transitionLocked(phase)
	r.state.QuestionStartedAt = r.nowMillis()
	r.state.TTSURL = r.narrateLocked(q.Text, q.ID)

	window := time.Duration(r.settings.TimePerQuestion) * time.Second
	r.setDeadlineLocked(window, func(r *Room) {
		r.revealLocked()
	})

	r.log.Info("question started",
		zap.String("question", q.ID),
		zap.Int("index", idx),
		zap.String("kind", string(q.Kind)))
	r.broadcastStateLocked()
}

func (r *Room) handleSubmitAnswerLocked(p *Player, answerIndex *int, estimationValue *float64) {
	q := r.state.CurrentQuestion
	switch r.state.Phase {
	case PhaseQuestion:
		if answerIndex == nil || q == nil || q.Kind != question.KindChoice {
			return
		}
		if *answerIndex < 0 || *answerIndex >= len(r.state.ShuffledAnswers) {
			return
		}
	case PhaseEstimation:
		if estimationValue == nil || q == nil || q.Kind != question.KindEstimation {
			return
		}
	default:
		r.log.Debug("answer outside window dropped",
			zap.String("player", p.ID),
			zap.String("phase", string(r.state.Phase)))
		return
	}

	if _, dup := r.state.Answers[p.ID]; dup {
		return // first submission wins, repeats are idempotent
	}

	ans := &playerAnswer{ReceivedAt: r.nowMillis()}
	if answerIndex != nil {
		ans.AnswerIndex = *answerIndex
	}
	if estimationValue != nil {
		ans.EstimationValue = *estimationValue
	}
	r.state.Answers[p.ID] = ans

	r.broadcastStateLocked()
	r.maybeRevealEarlyLocked()
}

// maybeRevealEarlyLocked closes the window once every connected player has
// submitted.
func (r *Room) maybeRevealEarlyLocked() {
	if r.state.Phase != PhaseQuestion && r.state.Phase != PhaseEstimation {
		return
	}
	connected := r.connectedPlayersLocked()
	if len(connected) == 0 {
		return
	}
	for _, p := range connected {
		if _, ok := r.state.Answers[p.ID]; !ok {
			return
		}
	}
	r.revealLocked()
}

func (r *Room) revealLocked() {
	q := r.state.CurrentQuestion
	if q == nil {
		return
	}

	switch r.state.Phase {
	case PhaseQuestion:
		r.transitionLocked(PhaseRevealing)
		r.scoreChoiceLocked(q)
	case PhaseEstimation:
		r.transitionLocked(PhaseEstimationReveal)
		r.scoreEstimationLocked(q)
	default:
		return
	}

	r.broadcastStateLocked()
	r.scheduleLocked(revealHold, func(r *Room) {
		r.startQuestionLocked(r.state.CurrentQuestionIndex + 1)
	})
}

func (r *Room) scoreChoiceLocked(q *question.Question) {
	window := float64(r.settings.TimePerQuestion) * 1000
	catID, catName := "", ""
	if r.state.SelectedCategory != nil {
		catID, catName = r.state.SelectedCategory.ID, r.state.SelectedCategory.Name
	}

	awards := make(map[string]int)
	for _, p := range r.players {
		ans, answered := r.state.Answers[p.ID]
		if !answered {
			continue
		}

		stats := r.state.Statistics.player(p.ID)
		stats.TotalAnswers++
		responseTime := ans.ReceivedAt - r.state.QuestionStartedAt
		stats.TotalResponseTime += responseTime
		if stats.FastestAnswer == 0 || responseTime < stats.FastestAnswer {
			stats.FastestAnswer = responseTime
		}

		var catStats *CategoryStats
		if catID != "" {
			catStats = r.state.Statistics.category(catID, catName)
			catStats.Total++
		}

		if ans.AnswerIndex != r.state.CorrectIndex {
			stats.CurrentStreak = 0
			awards[p.ID] = 0
			continue
		}

		remaining := 1 - float64(responseTime)/window
		if remaining < 0 {
			remaining = 0
		}
		points := choiceBasePoints + int(math.Round(choiceSpeedPoints*remaining))
		p.Score += points
		awards[p.ID] = points

		stats.CorrectAnswers++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.LongestStreak {
			stats.LongestStreak = stats.CurrentStreak
		}
		if catStats != nil {
			catStats.Correct++
		}
	}

	correct := r.state.CorrectIndex
	r.broadcastLocked(QuestionRevealMessage{
		Type:         EventTypeQuestionReveal,
		QuestionID:   q.ID,
		CorrectIndex: &correct,
		Explanation:  q.Explanation,
		PlayerAwards: awards,
	})
}

func (r *Room) scoreEstimationLocked(q *question.Question) {
	correct := q.Estimation.CorrectValue

	awards := make(map[string]int)
	values := make(map[string]float64)
	for _, p := range r.players {
		ans, answered := r.state.Answers[p.ID]
		if !answered {
			continue
		}

		points := estimationPoints(ans.EstimationValue, correct)
		p.Score += points
		awards[p.ID] = points
		values[p.ID] = ans.EstimationValue

		stats := r.state.Statistics.player(p.ID)
		stats.EstimationPoints += points
		stats.EstimationQuestions++
	}

	r.broadcastLocked(QuestionRevealMessage{
		Type:          EventTypeQuestionReveal,
		QuestionID:    q.ID,
		CorrectValue:  &correct,
		Unit:          q.Estimation.Unit,
		Explanation:   q.Explanation,
		PlayerAwards:  awards,
		PlayerAnswers: values,
	})
}
