package game

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/question"
)

// startCategorySelectionLocked seeds the voting pool and enters the selected
// sub-mode via a short announcement phase.
func (r *Room) startCategorySelectionLocked(override CategoryMode) {
	if !r.seedVotingCategoriesLocked() {
		r.abortRoundLocked("no categories available")
		return
	}

	mode := override
	if mode == "" {
		mode = r.forcedCategoryMode
	}
	if mode == "" {
		mode = r.pickCategoryModeLocked()
	}
	if requiresOpponents(mode) && r.connectedCountLocked() < 2 {
		mode = ModeVoting
	}

	r.state.CategoryMode = mode
	r.state.SelectedCategory = nil
	r.state.CategoryVotes = make(map[string]string)
	r.state.LoserPickPlayerID = ""
	r.state.DiceRoyale = nil
	r.state.RPSDuel = nil

	r.transitionLocked(PhaseCategoryAnnouncement)
	r.broadcastLocked(CategoryModeMessage{Type: EventTypeCategoryMode, Mode: mode})
	r.broadcastStateLocked()

	r.scheduleLocked(categoryModeHold, func(r *Room) {
		switch mode {
		case ModeWheel:
			r.enterWheelLocked()
		case ModeLosersPick:
			r.enterLosersPickLocked()
		case ModeDiceRoyale:
			r.enterDiceRoyaleLocked()
		case ModeRPSDuel:
			r.enterRPSDuelLocked()
		default:
			r.enterVotingLocked()
		}
	})
}

func requiresOpponents(mode CategoryMode) bool {
	return mode == ModeDiceRoyale || mode == ModeRPSDuel || mode == ModeLosersPick
}

// pickCategoryModeLocked draws uniformly among the currently eligible modes.
// Loser's pick sits out for a cooldown after each use.
func (r *Room) pickCategoryModeLocked() CategoryMode {
	eligible := []CategoryMode{ModeVoting, ModeWheel}

	if r.connectedCountLocked() >= 2 {
		if r.state.CurrentRound-r.state.LastLoserPickRound > loserPickCooldown {
			eligible = append(eligible, ModeLosersPick)
		}
		eligible = append(eligible, ModeDiceRoyale, ModeRPSDuel)
	}

	return eligible[rand.Intn(len(eligible))]
}

func (r *Room) seedVotingCategoriesLocked() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cats, err := r.deps.Store.Categories(ctx)
	if err != nil || len(cats) == 0 {
		r.log.Warn("category listing failed", zap.Error(err))
		return false
	}

	rand.Shuffle(len(cats), func(i, j int) { cats[i], cats[j] = cats[j], cats[i] })
	if len(cats) > 8 {
		cats = cats[:8]
	}
	r.state.VotingCategories = cats
	return true
}

func (r *Room) votingCategoryByIDLocked(id string) *question.Category {
	for i := range r.state.VotingCategories {
		if r.state.VotingCategories[i].ID == id {
			return &r.state.VotingCategories[i]
		}
	}
	return nil
}

func (r *Room) randomVotingCategoryLocked() *question.Category {
	if len(r.state.VotingCategories) == 0 {
		return nil
	}
	return &r.state.VotingCategories[rand.Intn(len(r.state.VotingCategories))]
}

// --- voting ---

func (r *Room) enterVotingLocked() {
	r.transitionLocked(PhaseCategoryVoting)
	r.setDeadlineLocked(votingWindow, func(r *Room) {
		r.resolveVotingLocked()
	})
	r.broadcastStateLocked()
}

func (r *Room) handleSubmitVoteLocked(p *Player, categoryID string) {
	if r.state.Phase != PhaseCategoryVoting {
		r.log.Debug("vote outside voting phase dropped", zap.String("player", p.ID))
		return
	}
	if r.votingCategoryByIDLocked(categoryID) == nil {
		return
	}

	r.state.CategoryVotes[p.ID] = categoryID
	r.broadcastStateLocked()
	r.maybeResolveVotingEarlyLocked()
}

func (r *Room) maybeResolveVotingEarlyLocked() {
	if r.state.Phase != PhaseCategoryVoting {
		return
	}
	for _, p := range r.connectedPlayersLocked() {
		if _, ok := r.state.CategoryVotes[p.ID]; !ok {
			return
		}
	}
	r.resolveVotingLocked()
}

func (r *Room) resolveVotingLocked() {
	counts := make(map[string]int)
	for _, catID := range r.state.CategoryVotes {
		counts[catID]++
	}

	if len(counts) == 0 {
		if cat := r.randomVotingCategoryLocked(); cat != nil {
			r.selectCategoryLocked(*cat)
		} else {
			r.abortRoundLocked("empty voting pool")
		}
		return
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	tied := make([]string, 0, len(counts))
	for catID, n := range counts {
		if n == max {
			tied = append(tied, catID)
		}
	}
	sort.Strings(tied)

	if len(tied) == 1 {
		r.selectCategoryLocked(*r.votingCategoryByIDLocked(tied[0]))
		return
	}

	// Tie: the server picks the winner first, the clients spin a roulette
	// that lands on it.
	winnerID := tied[rand.Intn(len(tied))]
	r.clearTimersLocked()
	r.broadcastLocked(VotingTiebreakerMessage{
		Type:           EventTypeVotingTiebreaker,
		TiedCategories: tied,
		WinnerID:       winnerID,
	})
	r.scheduleLocked(tiebreakerHold, func(r *Room) {
		r.selectCategoryLocked(*r.votingCategoryByIDLocked(winnerID))
	})
}

// --- wheel ---

func (r *Room) enterWheelLocked() {
	r.state.WheelIndex = rand.Intn(len(r.state.VotingCategories))
	r.transitionLocked(PhaseCategoryWheel)
	r.broadcastStateLocked()

	// The client wheel animation runs 5s; land, hold briefly, then go.
	r.scheduleLocked(wheelSpinHold, func(r *Room) {
		r.selectCategoryLocked(r.state.VotingCategories[r.state.WheelIndex])
	})
}

// --- loser's pick ---

func (r *Room) enterLosersPickLocked() {
	loser := r.lowestScoreConnectedLocked()
	if loser == nil {
		r.enterVotingLocked()
		return
	}

	r.state.LoserPickPlayerID = loser.ID
	r.state.LastLoserPickRound = r.state.CurrentRound
	r.transitionLocked(PhaseCategoryLosersPick)
	r.setDeadlineLocked(pickWindow, func(r *Room) {
		r.fallbackPickLocked()
	})
	r.broadcastStateLocked()
}

// lowestScoreConnectedLocked returns the entitled player: lowest score, ties
// broken by earliest join (players are kept in insertion order).
func (r *Room) lowestScoreConnectedLocked() *Player {
	var loser *Player
	for _, p := range r.players {
		if !p.IsConnected {
			continue
		}
		if loser == nil || p.Score < loser.Score {
			loser = p
		}
	}
	return loser
}

func (r *Room) fallbackPickLocked() {
	if cat := r.randomVotingCategoryLocked(); cat != nil {
		r.selectCategoryLocked(*cat)
	} else {
		r.abortRoundLocked("empty voting pool")
	}
}

// handlePickCategoryLocked serves loser's pick and the dice/rps winner pick
// windows; only the entitled player may pick.
func (r *Room) handlePickCategoryLocked(p *Player, categoryID string) {
	switch r.state.Phase {
	case PhaseCategoryLosersPick:
	case PhaseCategoryDiceRoyale:
		if r.state.DiceRoyale == nil || r.state.DiceRoyale.Phase != "result" {
			return
		}
	case PhaseCategoryRPSDuel:
		if r.state.RPSDuel == nil || r.state.RPSDuel.Phase != "finished" {
			return
		}
	default:
		r.log.Debug("pick outside pick window dropped", zap.String("player", p.ID))
		return
	}

	if p.ID != r.state.LoserPickPlayerID {
		return
	}
	cat := r.votingCategoryByIDLocked(categoryID)
	if cat == nil {
		return
	}
	r.selectCategoryLocked(*cat)
}

// --- dice royale ---

func (r *Room) enterDiceRoyaleLocked() {
	eligible := make([]string, 0)
	for _, p := range r.connectedPlayersLocked() {
		eligible = append(eligible, p.ID)
	}
	if len(eligible) < 2 {
		r.enterVotingLocked()
		return
	}

	r.state.DiceRoyale = &DiceRoyaleState{
		Phase:       "rolling",
		Round:       1,
		Eligible:    eligible,
		PlayerRolls: make(map[string][2]int),
	}

	r.transitionLocked(PhaseCategoryDiceRoyale)
	r.broadcastLocked(DiceRoyaleStartMessage{Type: EventTypeDiceRoyaleStart, PlayerIDs: eligible, Round: 1})
	r.setDeadlineLocked(diceRollWindow, func(r *Room) {
		r.diceAutoRollLocked()
	})
	r.broadcastLocked(DiceRoyaleReadyMessage{Type: EventTypeDiceRoyaleReady, Round: 1, TimerEnd: r.state.TimerEnd})
	r.broadcastStateLocked()
}

// rollTwoDice is a hook so tests can script the dice.
var rollTwoDice = func() [2]int {
	return [2]int{rand.Intn(6) + 1, rand.Intn(6) + 1}
}

func (r *Room) handleDiceRollLocked(p *Player) {
	dr := r.state.DiceRoyale
	if r.state.Phase != PhaseCategoryDiceRoyale || dr == nil || dr.Phase == "result" {
		r.log.Debug("dice roll outside rolling phase dropped", zap.String("player", p.ID))
		return
	}
	if !contains(dr.Eligible, p.ID) {
		return
	}
	if _, rolled := dr.PlayerRolls[p.ID]; rolled {
		return // one roll per player and round
	}

	r.diceRollForLocked(p.ID)
	r.maybeEvaluateDiceLocked()
}

// diceRollForLocked generates the dice server-side and broadcasts the result.
func (r *Room) diceRollForLocked(playerID string) {
	dr := r.state.DiceRoyale
	rolls := rollTwoDice()
	dr.PlayerRolls[playerID] = rolls
	r.broadcastLocked(DiceRoyaleRollMessage{Type: EventTypeDiceRoyaleRolled, PlayerID: playerID, Rolls: rolls})
	r.broadcastStateLocked()
}

func (r *Room) diceAutoRollLocked() {
	dr := r.state.DiceRoyale
	if dr == nil || dr.Phase == "result" {
		return
	}
	for _, id := range dr.Eligible {
		if _, rolled := dr.PlayerRolls[id]; !rolled {
			r.diceRollForLocked(id)
		}
	}
	r.maybeEvaluateDiceLocked()
}

func (r *Room) maybeEvaluateDiceLocked() {
	dr := r.state.DiceRoyale
	for _, id := range dr.Eligible {
		if _, rolled := dr.PlayerRolls[id]; !rolled {
			return
		}
	}

	best := -1
	var leaders []string
	for _, id := range dr.Eligible {
		rolls := dr.PlayerRolls[id]
		sum := rolls[0] + rolls[1]
		switch {
		case sum > best:
			best = sum
			leaders = []string{id}
		case sum == best:
			leaders = append(leaders, id)
		}
	}

	if len(leaders) > 1 {
		// Re-roll only the tied players; loops until a unique winner falls
		// out, however long the dice insist.
		dr.Phase = "reroll"
		dr.Round++
		dr.TiedIDs = leaders
		dr.Eligible = leaders
		dr.PlayerRolls = make(map[string][2]int)
		r.clearTimersLocked()
		r.state.TimerEnd = 0

		r.broadcastLocked(DiceRoyaleTieMessage{Type: EventTypeDiceRoyaleTie, TiedPlayerIDs: leaders, Round: dr.Round})
		r.broadcastStateLocked()

		r.scheduleLocked(diceTieHold, func(r *Room) {
			dr := r.state.DiceRoyale
			if dr == nil {
				return
			}
			dr.Phase = "rolling"
			r.setDeadlineLocked(diceRerollWindow, func(r *Room) {
				r.diceAutoRollLocked()
			})
			r.broadcastLocked(DiceRoyaleReadyMessage{Type: EventTypeDiceRoyaleReady, Round: dr.Round, TimerEnd: r.state.TimerEnd})
			r.broadcastStateLocked()
		})
		return
	}

	winner := leaders[0]
	dr.Phase = "result"
	dr.WinnerID = winner
	dr.TiedIDs = nil
	r.state.LoserPickPlayerID = winner
	r.clearTimersLocked()

	r.log.Info("dice royale decided", zap.String("winner", winner), zap.Int("sum", best))
	r.broadcastLocked(DiceRoyaleWinnerMessage{Type: EventTypeDiceRoyaleWinner, PlayerID: winner, Sum: best})
	r.setDeadlineLocked(pickWindow, func(r *Room) {
		r.fallbackPickLocked()
	})
	r.broadcastLocked(PickWindowMessage{Type: EventTypeDiceRoyalePick, PlayerID: winner, TimerEnd: r.state.TimerEnd})
	r.broadcastStateLocked()
}

// diceRoyaleDropPlayerLocked auto-rolls a disconnecting player still due to
// roll, so the royale never stalls on them.
func (r *Room) diceRoyaleDropPlayerLocked(playerID string) {
	dr := r.state.DiceRoyale
	if dr == nil || dr.Phase != "rolling" || !contains(dr.Eligible, playerID) {
		return
	}
	if _, rolled := dr.PlayerRolls[playerID]; rolled {
		return
	}
	r.diceRollForLocked(playerID)
	r.maybeEvaluateDiceLocked()
}

// --- rock / paper / scissors duel ---

var rpsChoices = []string{"rock", "paper", "scissors"}

// rpsBeats says whether a beats b.
func rpsBeats(a, b string) bool {
	return (a == "rock" && b == "scissors") ||
		(a == "paper" && b == "rock") ||
		(a == "scissors" && b == "paper")
}

func (r *Room) enterRPSDuelLocked() {
	connected := r.connectedPlayersLocked()
	if len(connected) < 2 {
		r.enterVotingLocked()
		return
	}

	rand.Shuffle(len(connected), func(i, j int) { connected[i], connected[j] = connected[j], connected[i] })
	a, b := connected[0].ID, connected[1].ID

	r.state.RPSDuel = &RPSDuelState{
		Phase:   "choosing",
		PlayerA: a,
		PlayerB: b,
		Round:   1,
		Wins:    map[string]int{a: 0, b: 0},
		Choices: make(map[string]string),
	}

	r.transitionLocked(PhaseCategoryRPSDuel)
	r.broadcastLocked(RPSDuelStartMessage{Type: EventTypeRPSDuelStart, PlayerA: a, PlayerB: b})
	r.startRPSRoundLocked()
}

func (r *Room) startRPSRoundLocked() {
	duel := r.state.RPSDuel
	duel.Phase = "choosing"
	duel.Choices = make(map[string]string)

	r.broadcastLocked(RPSRoundStartMessage{Type: EventTypeRPSRoundStart, Round: duel.Round})
	r.setDeadlineLocked(rpsRoundWindow, func(r *Room) {
		r.rpsAutoChooseLocked()
	})
	r.broadcastStateLocked()
}

func (r *Room) handleRPSChoiceLocked(p *Player, choice string) {
	duel := r.state.RPSDuel
	if r.state.Phase != PhaseCategoryRPSDuel || duel == nil || duel.Phase != "choosing" {
		r.log.Debug("rps choice outside duel dropped", zap.String("player", p.ID))
		return
	}
	if p.ID != duel.PlayerA && p.ID != duel.PlayerB {
		return
	}
	if !contains(rpsChoices, choice) {
		return
	}
	if _, chosen := duel.Choices[p.ID]; chosen {
		return
	}

	duel.Choices[p.ID] = choice
	r.broadcastLocked(RPSChoiceMadeMessage{Type: EventTypeRPSChoiceMade, PlayerID: p.ID})

	if len(duel.Choices) == 2 {
		r.resolveRPSRoundLocked()
	}
}

func (r *Room) rpsAutoChooseLocked() {
	duel := r.state.RPSDuel
	if duel == nil || duel.Phase != "choosing" {
		return
	}
	for _, id := range []string{duel.PlayerA, duel.PlayerB} {
		if _, chosen := duel.Choices[id]; !chosen {
			duel.Choices[id] = rpsChoices[rand.Intn(len(rpsChoices))]
		}
	}
	r.resolveRPSRoundLocked()
}

func (r *Room) resolveRPSRoundLocked() {
	duel := r.state.RPSDuel
	r.clearTimersLocked()
	r.state.TimerEnd = 0

	a, b := duel.PlayerA, duel.PlayerB
	ca, cb := duel.Choices[a], duel.Choices[b]

	var roundWinner string
	switch {
	case rpsBeats(ca, cb):
		roundWinner = a
	case rpsBeats(cb, ca):
		roundWinner = b
	}
	if roundWinner != "" {
		duel.Wins[roundWinner]++
	}

	r.broadcastLocked(RPSRoundResultMessage{
		Type:     EventTypeRPSRoundResult,
		Round:    duel.Round,
		Choices:  map[string]string{a: ca, b: cb},
		WinnerID: roundWinner,
		Wins:     map[string]int{a: duel.Wins[a], b: duel.Wins[b]},
	})

	// Best of three: first to two, or the leader after three rounds; dead
	// even after three plays extra rounds until someone wins one.
	var duelWinner string
	switch {
	case duel.Wins[a] >= 2:
		duelWinner = a
	case duel.Wins[b] >= 2:
		duelWinner = b
	case duel.Round >= 3 && duel.Wins[a] != duel.Wins[b]:
		if duel.Wins[a] > duel.Wins[b] {
			duelWinner = a
		} else {
			duelWinner = b
		}
	}

	if duelWinner == "" {
		duel.Round++
		r.scheduleLocked(2*time.Second, func(r *Room) {
			r.startRPSRoundLocked()
		})
		r.broadcastStateLocked()
		return
	}

	duel.Phase = "finished"
	duel.WinnerID = duelWinner
	r.state.LoserPickPlayerID = duelWinner

	r.log.Info("rps duel decided", zap.String("winner", duelWinner))
	r.broadcastLocked(RPSDuelWinnerMessage{Type: EventTypeRPSDuelWinner, PlayerID: duelWinner})
	r.setDeadlineLocked(pickWindow, func(r *Room) {
		r.fallbackPickLocked()
	})
	r.broadcastLocked(PickWindowMessage{Type: EventTypeRPSDuelPick, PlayerID: duelWinner, TimerEnd: r.state.TimerEnd})
	r.broadcastStateLocked()
}

// rpsDropPlayerLocked picks a random choice for a duelist who disconnects
// while a round is open, and resolves the round once both choices are in.
func (r *Room) rpsDropPlayerLocked(playerID string) {
	duel := r.state.RPSDuel
	if duel == nil || duel.Phase != "choosing" {
		return
	}
	if playerID != duel.PlayerA && playerID != duel.PlayerB {
		return
	}
	duel.Choices[playerID] = rpsChoices[rand.Intn(len(rpsChoices))]
	if len(duel.Choices) == 2 {
		r.resolveRPSRoundLocked()
	}
}

// --- selection epilogue ---

func (r *Room) selectCategoryLocked(cat question.Category) {
	r.state.SelectedCategory = &cat
	r.state.Statistics.category(cat.ID, cat.Name)
	r.clearTimersLocked()
	r.state.TimerEnd = 0

	r.log.Info("category selected", zap.String("category", cat.ID), zap.Int("round", r.state.CurrentRound))
	r.broadcastLocked(CategorySelectedMessage{Type: EventTypeCategorySelected, Category: cat})
	r.broadcastStateLocked()

	if !r.loadRoundQuestionsLocked(cat) {
		r.abortRoundLocked("question store empty for category " + cat.ID)
		return
	}

	r.scheduleLocked(categoryChosenHold, func(r *Room) {
		r.startQuestionLocked(0)
	})
}

// loadRoundQuestionsLocked fills roundQuestions with N-1 choice questions and
// one estimation when available; ids go into the used set before anything is
// presented.
func (r *Room) loadRoundQuestionsLocked(cat question.Category) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := r.settings.QuestionsPerRound
	choiceCount := n

	var estQ []question.Question
	if n > 1 {
		var err error
		estQ, err = r.deps.Store.Random(ctx, cat.ID, question.KindEstimation, 1, r.state.UsedQuestionIDs)
		if err == nil && len(estQ) == 1 {
			choiceCount = n - 1
		} else {
			estQ = nil
		}
	}

	choiceQ, err := r.deps.Store.Random(ctx, cat.ID, question.KindChoice, choiceCount, r.state.UsedQuestionIDs)
	if err != nil || len(choiceQ) == 0 {
		r.log.Warn("question selection failed",
			zap.String("category", cat.ID),
			zap.Error(err))
		return false
	}

	r.state.RoundQuestions = append(choiceQ, estQ...)
	r.state.CurrentQuestionIndex = 0
	for _, q := range r.state.RoundQuestions {
		r.state.UsedQuestionIDs[q.ID] = true
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
