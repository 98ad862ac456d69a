package game

import (
	"github.com/DysphoDE/nerdquiz/internal/question"
)

//
// The client-facing projection. Socket ids, timer handles, unguessed list
// items and the correct answer of an open question never leave the server;
// the reveal broadcast is the first message carrying the solution.
//

type PlayerSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarSeed  string `json:"avatarSeed"`
	Score       int    `json:"score"`
	IsHost      bool   `json:"isHost"`
	IsConnected bool   `json:"isConnected"`
}

type QuestionView struct {
	ID           string        `json:"id"`
	Kind         question.Kind `json:"type"`
	Text         string        `json:"text"`
	Answers      []string      `json:"answers,omitempty"` // shuffled
	Unit         string        `json:"unit,omitempty"`
	CorrectIndex *int          `json:"correctIndex,omitempty"` // reveal only
	CorrectValue *float64      `json:"correctValue,omitempty"` // reveal only
	Explanation  string        `json:"explanation,omitempty"`  // reveal only
	AnsweredIDs  []string      `json:"answeredPlayerIds"`
}

type CollectiveView struct {
	Phase               string           `json:"phase"`
	Topic               string           `json:"topic"`
	Description         string           `json:"description,omitempty"`
	TotalItems          int              `json:"totalItems"`
	Items               []CollectiveItem `json:"items"` // guessed only until finished
	PlayerCorrectCounts map[string]int   `json:"playerCorrectCounts"`
	TurnOrder           []string         `json:"turnOrder"`
	ActivePlayers       []string         `json:"activePlayers"`
	CurrentTurnIndex    int              `json:"currentTurnIndex"`
	TurnNumber          int              `json:"turnNumber"`
	EliminatedPlayers   []Elimination    `json:"eliminatedPlayers"`
	PointsPerCorrect    int              `json:"pointsPerCorrect"`
	TimePerTurn         int              `json:"timePerTurn"`
	EndReason           string           `json:"endReason,omitempty"`
}

type HotButtonView struct {
	Phase                string                  `json:"phase"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	QuestionCount        int                     `json:"questionCount"`
	RevealedText         string                  `json:"revealedText"`
	RevealedChars        int                     `json:"revealedChars"`
	IsFullyRevealed      bool                    `json:"isFullyRevealed"`
	BuzzedPlayerID       string                  `json:"buzzedPlayerId,omitempty"`
	BuzzOrder            []string                `json:"buzzOrder,omitempty"`
	AttemptedPlayerIDs   []string                `json:"attemptedPlayerIds,omitempty"`
	PlayerScores         map[string]int          `json:"playerScores"`
	QuestionHistory      []HotButtonHistoryEntry `json:"questionHistory,omitempty"`
}

type BonusView struct {
	Type       string          `json:"type"`
	Collective *CollectiveView `json:"collective,omitempty"`
	HotButton  *HotButtonView  `json:"hotButton,omitempty"`
}

type RoomSnapshot struct {
	Type       string           `json:"type"` // "room_update"
	Code       string           `json:"code"`
	HostID     string           `json:"hostId"`
	Phase      Phase            `json:"phase"`
	ServerTime int64            `json:"serverTime"`
	TimerEnd   *int64           `json:"timerEnd"`
	Players    []PlayerSnapshot `json:"players"`
	Settings   Settings         `json:"settings"`

	CurrentRound  int `json:"currentRound"`
	QuestionIndex int `json:"currentQuestionIndex"`
	QuestionCount int `json:"questionCount"`
	SnippetIndex  int `json:"snippetIndex"`

	TTSURL string `json:"ttsUrl,omitempty"`

	CategoryMode      CategoryMode        `json:"categoryMode,omitempty"`
	VotingCategories  []question.Category `json:"votingCategories,omitempty"`
	CategoryVotes     map[string]string   `json:"categoryVotes,omitempty"`
	SelectedCategory  *question.Category  `json:"selectedCategory,omitempty"`
	WheelIndex        *int                `json:"wheelSelectedIndex,omitempty"`
	LoserPickPlayerID string              `json:"loserPickPlayerId,omitempty"`
	DiceRoyale        *DiceRoyaleState    `json:"diceRoyale,omitempty"`
	RPSDuel           *RPSDuelState       `json:"rpsDuel,omitempty"`

	Question *QuestionView `json:"question,omitempty"`
	Bonus    *BonusView    `json:"bonusRound,omitempty"`

	RematchVotes map[string]string `json:"rematchVotes,omitempty"`
}

// snapshotLocked builds the public projection, stamped with the server time.
// timerEnd is null unless strictly in the future.
func (r *Room) snapshotLocked() RoomSnapshot {
	now := r.nowMillis()

	snap := RoomSnapshot{
		Type:          EventTypeRoomUpdate,
		Code:          r.code,
		HostID:        r.hostID,
		Phase:         r.state.Phase,
		ServerTime:    now,
		Settings:      r.settings,
		CurrentRound:  r.state.CurrentRound,
		QuestionIndex: r.state.CurrentQuestionIndex,
		QuestionCount: len(r.state.RoundQuestions),
		SnippetIndex:  r.state.SnippetIndex,
		TTSURL:        r.state.TTSURL,
	}

	if r.state.TimerEnd > now {
		end := r.state.TimerEnd
		snap.TimerEnd = &end
	}

	snap.Players = make([]PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			AvatarSeed:  p.AvatarSeed,
			Score:       p.Score,
			IsHost:      p.IsHost,
			IsConnected: p.IsConnected,
		})
	}

	switch r.state.Phase {
	case PhaseCategoryAnnouncement, PhaseCategoryVoting, PhaseCategoryWheel,
		PhaseCategoryLosersPick, PhaseCategoryDiceRoyale, PhaseCategoryRPSDuel:
		snap.CategoryMode = r.state.CategoryMode
		snap.VotingCategories = r.state.VotingCategories
		snap.CategoryVotes = r.state.CategoryVotes
		snap.LoserPickPlayerID = r.state.LoserPickPlayerID
		snap.DiceRoyale = r.state.DiceRoyale
		snap.RPSDuel = r.state.RPSDuel
		if r.state.Phase == PhaseCategoryWheel {
			idx := r.state.WheelIndex
			snap.WheelIndex = &idx
		}

	case PhaseQuestion, PhaseEstimation, PhaseRevealing, PhaseEstimationReveal:
		snap.SelectedCategory = r.state.SelectedCategory
		snap.Question = r.questionViewLocked()

	case PhaseBonusRound, PhaseBonusRoundResult:
		snap.Bonus = r.bonusViewLocked()

	case PhaseRematchVoting:
		snap.RematchVotes = r.state.RematchVotes
	}

	return snap
}

func (r *Room) questionViewLocked() *QuestionView {
	q := r.state.CurrentQuestion
	if q == nil {
		return nil
	}

	view := &QuestionView{
		ID:          q.ID,
		Kind:        q.Kind,
		Text:        q.Text,
		Answers:     r.state.ShuffledAnswers,
		AnsweredIDs: make([]string, 0, len(r.state.Answers)),
	}
	if q.Kind == question.KindEstimation {
		view.Unit = q.Estimation.Unit
	}
	for _, p := range r.players {
		if _, ok := r.state.Answers[p.ID]; ok {
			view.AnsweredIDs = append(view.AnsweredIDs, p.ID)
		}
	}

	revealed := r.state.Phase == PhaseRevealing || r.state.Phase == PhaseEstimationReveal
	if revealed {
		view.Explanation = q.Explanation
		if q.Kind == question.KindChoice {
			idx := r.state.CorrectIndex
			view.CorrectIndex = &idx
		}
		if q.Kind == question.KindEstimation {
			val := q.Estimation.CorrectValue
			view.CorrectValue = &val
		}
	}
	return view
}

func (r *Room) bonusViewLocked() *BonusView {
	bonus := r.state.Bonus
	if bonus == nil {
		return nil
	}

	view := &BonusView{Type: bonus.Type}
	switch bonus.Type {
	case BonusTypeCollectiveList:
		cs := bonus.Collective
		cv := &CollectiveView{
			Phase:               cs.Phase,
			Topic:               cs.Topic,
			Description:         cs.Description,
			TotalItems:          len(cs.Items),
			PlayerCorrectCounts: cs.PlayerCorrectCounts,
			TurnOrder:           cs.TurnOrder,
			ActivePlayers:       cs.ActivePlayers,
			CurrentTurnIndex:    cs.CurrentTurnIndex,
			TurnNumber:          cs.TurnNumber,
			EliminatedPlayers:   cs.EliminatedPlayers,
			PointsPerCorrect:    cs.PointsPerCorrect,
			TimePerTurn:         cs.TimePerTurn,
			EndReason:           cs.EndReason,
		}
		// The board only ever shows what has been guessed; the full list
		// appears once the round is over.
		for _, item := range cs.Items {
			if cs.Phase == "finished" || item.GuessedBy != "" {
				cv.Items = append(cv.Items, item)
			}
		}
		view.Collective = cv

	case BonusTypeHotButton:
		hb := bonus.HotButton
		hv := &HotButtonView{
			Phase:                hb.Phase,
			CurrentQuestionIndex: hb.CurrentQuestionIndex,
			QuestionCount:        hb.QuestionCount,
			RevealedChars:        hb.RevealedChars,
			IsFullyRevealed:      hb.IsFullyRevealed,
			BuzzedPlayerID:       hb.BuzzedPlayerID,
			BuzzOrder:            hb.BuzzOrder,
			PlayerScores:         hb.PlayerScores,
			QuestionHistory:      hb.QuestionHistory,
		}
		if q := r.hotButtonQuestionLocked(); q != nil {
			runes := []rune(q.Text)
			n := hb.RevealedChars
			if n > len(runes) {
				n = len(runes)
			}
			hv.RevealedText = string(runes[:n])
		}
		for id := range hb.AttemptedPlayerIDs {
			hv.AttemptedPlayerIDs = append(hv.AttemptedPlayerIDs, id)
		}
		view.HotButton = hv
	}
	return view
}
