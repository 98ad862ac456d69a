package game

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/fuzzy"
	"github.com/DysphoDE/nerdquiz/internal/question"
)

const hotButtonFuzzyThreshold = 0.85

func (r *Room) setupHotButtonLocked(qs []question.Question) {
	r.state.Bonus = &BonusState{
		Type: BonusTypeHotButton,
		HotButton: &HotButtonState{
			Phase:                "intro",
			Questions:            qs,
			QuestionCount:        len(qs),
			CurrentQuestionIndex: -1,
			BuzzTimestamps:       make(map[string]int64),
			AttemptedPlayerIDs:   make(map[string]bool),
			PlayerScores:         make(map[string]int),
			MaxRebuzzAttempts:    hotButtonMaxRebuzz,
			AllowRebuzz:          true,
		},
	}
}

func (r *Room) hotButtonStateLocked() *HotButtonState {
	if r.state.Bonus == nil || r.state.Bonus.Type != BonusTypeHotButton {
		return nil
	}
	return r.state.Bonus.HotButton
}

func (r *Room) hotButtonQuestionLocked() *question.Question {
	hb := r.hotButtonStateLocked()
	if hb == nil || hb.CurrentQuestionIndex < 0 || hb.CurrentQuestionIndex >= len(hb.Questions) {
		return nil
	}
	return &hb.Questions[hb.CurrentQuestionIndex]
}

func hotButtonRevealInterval(q *question.Question) time.Duration {
	if q.HotButton != nil && q.HotButton.RevealSpeedMS > 0 {
		return time.Duration(q.HotButton.RevealSpeedMS) * time.Millisecond
	}
	return hotButtonRevealSpeed
}

// startHotButtonQuestionLocked opens question idx. With rebuzz set, the
// question keeps its original start time and buzzer deadline: the second
// buzzer window is whatever remains of the first.
func (r *Room) startHotButtonQuestionLocked(idx int, rebuzz bool) {
	hb := r.hotButtonStateLocked()
	if hb == nil {
		return
	}
	if idx >= len(hb.Questions) {
		r.endHotButtonLocked()
		return
	}

	r.clearTimersLocked()
	hb.CurrentQuestionIndex = idx
	hb.Phase = "question_reveal"
	hb.BuzzedPlayerID = ""

	now := r.nowMillis()
	if !rebuzz {
		hb.RevealedChars = 0
		hb.IsFullyRevealed = false
		hb.QuestionStartTime = now
		hb.OriginalBuzzerEnd = now + hotButtonBuzzerWindow.Milliseconds()
		hb.BuzzTimestamps = make(map[string]int64)
		hb.BuzzOrder = nil
		hb.AttemptedPlayerIDs = make(map[string]bool)
	}

	remaining := time.Duration(hb.OriginalBuzzerEnd-now) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	r.state.TimerEnd = hb.OriginalBuzzerEnd
	r.scheduleLocked(remaining, func(r *Room) {
		r.hotButtonBuzzerTimeoutLocked()
	})

	q := &hb.Questions[idx]
	if !hb.IsFullyRevealed {
		r.scheduleLocked(hotButtonRevealInterval(q), func(r *Room) {
			r.hotButtonRevealTickLocked()
		})
	}

	r.log.Info("hot button question",
		zap.String("question", q.ID),
		zap.Int("index", idx),
		zap.Bool("rebuzz", rebuzz))
	r.broadcastStateLocked()
}

// hotButtonRevealTickLocked uncovers one more character and re-arms itself.
func (r *Room) hotButtonRevealTickLocked() {
	hb := r.hotButtonStateLocked()
	q := r.hotButtonQuestionLocked()
	if hb == nil || q == nil || hb.Phase != "question_reveal" || hb.IsFullyRevealed {
		return
	}

	textLen := len([]rune(q.Text))
	hb.RevealedChars++
	if hb.RevealedChars >= textLen {
		hb.RevealedChars = textLen
		hb.IsFullyRevealed = true
	} else {
		r.scheduleLocked(hotButtonRevealInterval(q), func(r *Room) {
			r.hotButtonRevealTickLocked()
		})
	}
	r.broadcastStateLocked()
}

func (r *Room) handleHotButtonBuzzLocked(p *Player) {
	hb := r.hotButtonStateLocked()
	if r.state.Phase != PhaseBonusRound || hb == nil || hb.Phase != "question_reveal" {
		r.log.Debug("buzz outside reveal dropped", zap.String("player", p.ID))
		return
	}
	if hb.AttemptedPlayerIDs[p.ID] {
		return
	}

	r.clearTimersLocked()

	now := r.nowMillis()
	hb.BuzzedPlayerID = p.ID
	hb.BuzzedRevealedChars = hb.RevealedChars
	hb.BuzzTimestamps[p.ID] = now
	hb.BuzzOrder = append(hb.BuzzOrder, p.ID)
	hb.Phase = "answering"

	r.state.TimerEnd = now + hotButtonAnswerWindow.Milliseconds()
	r.scheduleLocked(hotButtonAnswerWindow, func(r *Room) {
		r.hotButtonAnswerTimeoutLocked()
	})

	r.log.Info("hot button buzz", zap.String("player", p.ID), zap.Int("revealedChars", hb.RevealedChars))
	r.broadcastLocked(HotButtonBuzzMessage{
		Type:          EventTypeHotButtonBuzzed,
		PlayerID:      p.ID,
		RevealedChars: hb.RevealedChars,
		AnswerEnd:     r.state.TimerEnd,
	})
	r.broadcastStateLocked()
}

func (r *Room) handleHotButtonAnswerLocked(p *Player, text string) {
	hb := r.hotButtonStateLocked()
	if r.state.Phase != PhaseBonusRound || hb == nil || hb.Phase != "answering" {
		r.log.Debug("hot button answer outside window dropped", zap.String("player", p.ID))
		return
	}
	if p.ID != hb.BuzzedPlayerID {
		return
	}

	r.clearTimersLocked()
	q := r.hotButtonQuestionLocked()
	if q == nil || q.HotButton == nil {
		return
	}

	item := fuzzy.Item{ID: q.ID, Display: q.HotButton.CorrectAnswer, Aliases: q.HotButton.AcceptedAnswers}
	result := fuzzy.Match(text, []fuzzy.Item{item}, nil, hotButtonFuzzyThreshold)

	if result.IsMatch {
		r.hotButtonCorrectLocked(p, q, text)
		return
	}
	r.hotButtonWrongLocked(p, q, text, q.HotButton.PointsWrong)
}

// hotButtonAnswerTimeoutLocked treats silence like a wrong answer, but free
// of charge; the penalty only applies to a submitted wrong answer.
func (r *Room) hotButtonAnswerTimeoutLocked() {
	hb := r.hotButtonStateLocked()
	if hb == nil || hb.Phase != "answering" {
		return
	}
	q := r.hotButtonQuestionLocked()
	p := r.playerByIDLocked(hb.BuzzedPlayerID)
	if q == nil || p == nil {
		return
	}
	r.hotButtonWrongLocked(p, q, "", 0)
}

func (r *Room) hotButtonCorrectLocked(p *Player, q *question.Question, text string) {
	hb := r.hotButtonStateLocked()
	hb.AttemptedPlayerIDs[p.ID] = true

	textLen := len([]rune(q.Text))
	revealedPercent := 1.0
	if textLen > 0 {
		revealedPercent = float64(hb.BuzzedRevealedChars) / float64(textLen)
	}
	points := q.HotButton.PointsCorrect + hotButtonSpeedBonus(revealedPercent)

	p.Score += points
	hb.PlayerScores[p.ID] += points
	hb.Phase = "result"
	hb.QuestionHistory = append(hb.QuestionHistory, HotButtonHistoryEntry{
		QuestionID: q.ID,
		Outcome:    "correct",
		PlayerID:   p.ID,
		Points:     points,
	})

	r.log.Info("hot button correct",
		zap.String("player", p.ID),
		zap.Int("points", points))

	r.broadcastLocked(HotButtonResultMessage{
		Type:          EventTypeHotButtonResult,
		PlayerID:      p.ID,
		Answer:        text,
		Correct:       true,
		Points:        points,
		CorrectAnswer: q.HotButton.CorrectAnswer,
	})
	r.broadcastStateLocked()

	next := hb.CurrentQuestionIndex + 1
	r.scheduleLocked(hotButtonResultDisplay, func(r *Room) {
		r.startHotButtonQuestionLocked(next, false)
	})
}

func (r *Room) hotButtonWrongLocked(p *Player, q *question.Question, text string, penalty int) {
	hb := r.hotButtonStateLocked()
	hb.AttemptedPlayerIDs[p.ID] = true

	p.Score += penalty
	hb.PlayerScores[p.ID] += penalty

	canRebuzz := hb.AllowRebuzz &&
		hb.MaxRebuzzAttempts-len(hb.AttemptedPlayerIDs) > 0 &&
		r.hotButtonSomeoneLeftLocked()

	hb.Phase = "result"

	msg := HotButtonResultMessage{
		Type:      EventTypeHotButtonResult,
		PlayerID:  p.ID,
		Answer:    text,
		Correct:   false,
		Points:    penalty,
		CanRebuzz: canRebuzz,
	}
	// The solution stays hidden while another player can still take over.
	if !canRebuzz {
		msg.CorrectAnswer = q.HotButton.CorrectAnswer
	}

	r.log.Info("hot button wrong",
		zap.String("player", p.ID),
		zap.Bool("canRebuzz", canRebuzz))
	r.broadcastLocked(msg)
	r.broadcastStateLocked()

	if canRebuzz {
		idx := hb.CurrentQuestionIndex
		r.scheduleLocked(hotButtonRebuzzDelay, func(r *Room) {
			r.startHotButtonQuestionLocked(idx, true)
		})
		return
	}

	hb.QuestionHistory = append(hb.QuestionHistory, HotButtonHistoryEntry{
		QuestionID: q.ID,
		Outcome:    "wrong",
		PlayerID:   p.ID,
		Points:     penalty,
	})
	next := hb.CurrentQuestionIndex + 1
	r.scheduleLocked(hotButtonResultDisplay, func(r *Room) {
		r.startHotButtonQuestionLocked(next, false)
	})
}

// hotButtonSomeoneLeftLocked reports whether a connected player has not yet
// attempted the current question.
func (r *Room) hotButtonSomeoneLeftLocked() bool {
	hb := r.hotButtonStateLocked()
	for _, p := range r.connectedPlayersLocked() {
		if !hb.AttemptedPlayerIDs[p.ID] {
			return true
		}
	}
	return false
}

// hotButtonBuzzerTimeoutLocked fires when nobody buzzed inside the window.
func (r *Room) hotButtonBuzzerTimeoutLocked() {
	hb := r.hotButtonStateLocked()
	q := r.hotButtonQuestionLocked()
	if hb == nil || q == nil || hb.Phase != "question_reveal" {
		return
	}

	r.clearTimersLocked()
	r.state.TimerEnd = 0
	hb.RevealedChars = len([]rune(q.Text))
	hb.IsFullyRevealed = true
	hb.Phase = "result"
	hb.QuestionHistory = append(hb.QuestionHistory, HotButtonHistoryEntry{
		QuestionID: q.ID,
		Outcome:    "no_buzz",
	})

	r.log.Info("hot button buzzer timeout", zap.String("question", q.ID))
	r.broadcastLocked(HotButtonTimeoutMessage{
		Type:          EventTypeHotButtonTimeout,
		QuestionID:    q.ID,
		CorrectAnswer: q.HotButton.CorrectAnswer,
	})
	r.broadcastStateLocked()

	next := hb.CurrentQuestionIndex + 1
	r.scheduleLocked(hotButtonResultDisplay, func(r *Room) {
		r.startHotButtonQuestionLocked(next, false)
	})
}

func (r *Room) hotButtonDropPlayerLocked(playerID string) {
	hb := r.hotButtonStateLocked()
	if hb == nil {
		return
	}
	if hb.Phase == "answering" && hb.BuzzedPlayerID == playerID {
		r.clearTimersLocked()
		r.hotButtonAnswerTimeoutLocked()
	}
}

func (r *Room) endHotButtonLocked() {
	hb := r.hotButtonStateLocked()
	if hb == nil || hb.Phase == "finished" {
		return
	}
	r.clearTimersLocked()
	r.state.TimerEnd = 0
	hb.Phase = "finished"

	correctCounts := make(map[string]int)
	for _, h := range hb.QuestionHistory {
		if h.Outcome == "correct" {
			correctCounts[h.PlayerID]++
		}
	}

	type entry struct {
		id     string
		points int
	}
	entries := make([]entry, 0, len(r.players))
	for _, p := range r.players {
		entries = append(entries, entry{id: p.ID, points: hb.PlayerScores[p.ID]})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].points > entries[j].points })

	breakdown := make([]ScoreBreakdown, 0, len(entries))
	for i, e := range entries {
		rank := i + 1
		if i > 0 && e.points == entries[i-1].points {
			rank = breakdown[i-1].Rank
		}
		breakdown = append(breakdown, ScoreBreakdown{
			PlayerID:       e.id,
			CorrectAnswers: correctCounts[e.id],
			CorrectPoints:  e.points,
			TotalPoints:    e.points,
			Rank:           rank,
		})
	}

	r.log.Info("hot button finished")
	r.broadcastLocked(HotButtonEndMessage{Type: EventTypeHotButtonEnd, Breakdown: breakdown})
	r.finishBonusRoundLocked()
}
