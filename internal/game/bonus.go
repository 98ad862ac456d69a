package game

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/question"
)

// startBonusAnnouncementLocked announces a bonus round, loads its questions,
// and hands over to the sub-game intro.
func (r *Room) startBonusAnnouncementLocked(bonusType, questionID string) {
	r.transitionLocked(PhaseBonusRoundAnnouncement)
	text := bonusAnnouncementNarration(bonusType, r.state.SnippetIndex)
	r.state.TTSURL = r.narrateLocked(text, fmt.Sprintf("bonus-announce-%s-%d", r.code, r.state.CurrentRound))
	r.broadcastStateLocked()

	r.scheduleLocked(roundAnnounceHold, func(r *Room) {
		r.startBonusRoundLocked(bonusType, questionID)
	})
}

func (r *Room) startBonusRoundLocked(bonusType, questionID string) {
	switch bonusType {
	case RoundTypeCollectiveList:
		q, ok := r.loadBonusQuestionsLocked(question.KindCollectiveList, 1, questionID)
		if !ok || q[0].CollectiveList == nil {
			r.abortRoundLocked("no collective list question available")
			return
		}
		r.setupCollectiveLocked(q[0])
	case RoundTypeHotButton:
		qs, ok := r.loadBonusQuestionsLocked(question.KindHotButton, r.settings.HotButtonQuestionsPerRound, questionID)
		if !ok {
			r.abortRoundLocked("no hot button questions available")
			return
		}
		r.setupHotButtonLocked(qs)
	default:
		r.abortRoundLocked("unknown bonus type " + bonusType)
		return
	}

	r.transitionLocked(PhaseBonusRound)

	// Rules narration plays only the first time a bonus type appears in the
	// match; the intro screen itself always runs.
	if !r.explainedBonusIntros[bonusType] {
		r.explainedBonusIntros[bonusType] = true
		text := bonusRulesNarration(bonusType)
		r.state.TTSURL = r.narrateLocked(text, "bonus-rules-"+bonusType)
	} else {
		r.state.TTSURL = ""
	}
	r.broadcastStateLocked()

	fallback := introAckFallback
	if bonusType == RoundTypeHotButton {
		fallback = hotButtonIntroHold
	}
	r.installAckLocked(EventTypeIntroReady, fallback, func(r *Room) {
		r.startBonusPlayingLocked()
	})
}

func (r *Room) loadBonusQuestionsLocked(kind question.Kind, n int, questionID string) ([]question.Question, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if questionID != "" {
		q, err := r.deps.Store.ByID(ctx, questionID)
		if err != nil || q.Kind != kind {
			r.log.Warn("pinned bonus question unavailable", zap.String("question", questionID), zap.Error(err))
			return nil, false
		}
		r.state.UsedBonusQuestionIDs[q.ID] = true
		return []question.Question{*q}, true
	}

	qs, err := r.deps.Store.Random(ctx, "", kind, n, r.state.UsedBonusQuestionIDs)
	if err != nil || len(qs) == 0 {
		r.log.Warn("bonus question selection failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, false
	}
	for _, q := range qs {
		r.state.UsedBonusQuestionIDs[q.ID] = true
	}
	return qs, true
}

func (r *Room) startBonusPlayingLocked() {
	bonus := r.state.Bonus
	if bonus == nil {
		return
	}
	switch bonus.Type {
	case BonusTypeCollectiveList:
		r.startCollectivePlayingLocked()
	case BonusTypeHotButton:
		r.startHotButtonQuestionLocked(0, false)
	}
}

// finishBonusRoundLocked shows the result screen, then moves on to the
// scoreboard or the final.
func (r *Room) finishBonusRoundLocked() {
	r.transitionLocked(PhaseBonusRoundResult)
	r.broadcastStateLocked()
	r.scheduleLocked(finalResultsHold, func(r *Room) {
		r.endRoundLocked()
	})
}

// bonusDropPlayerLocked applies the disconnect policy inside a running bonus
// round.
func (r *Room) bonusDropPlayerLocked(playerID string) {
	bonus := r.state.Bonus
	if bonus == nil || r.state.Phase != PhaseBonusRound {
		return
	}
	switch bonus.Type {
	case BonusTypeCollectiveList:
		r.collectiveDropPlayerLocked(playerID)
	case BonusTypeHotButton:
		r.hotButtonDropPlayerLocked(playerID)
	}
}
