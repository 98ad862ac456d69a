package game

import (
	"testing"
	"time"
)

func enterCategoryMode(t *testing.T, rg *rig, mode CategoryMode) {
	t.Helper()
	rg.room.forcedCategoryMode = mode
	rg.startMatch()
	rg.wantPhase(PhaseCategoryAnnouncement)
	rg.sched.fireDuration(t, categoryModeHold)
}

// Boundary scenario: three players vote three different categories; with all
// votes in, voting resolves early through a server-seeded tiebreaker, and 3s
// later the winner is selected and the first question opens with a full
// answer window.
func TestVotingTieBreaker(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben", "Cleo")
	enterCategoryMode(t, rg, ModeVoting)
	rg.wantPhase(PhaseCategoryVoting)

	rg.send(0, ClientMessage{Type: EventTypeSubmitVote, CategoryID: rg.room.state.VotingCategories[0].ID})
	rg.send(1, ClientMessage{Type: EventTypeSubmitVote, CategoryID: rg.room.state.VotingCategories[1].ID})

	for i := range rg.clients {
		rg.drain(i)
	}
	rg.send(2, ClientMessage{Type: EventTypeSubmitVote, CategoryID: rg.room.state.VotingCategories[2].ID})

	// All connected voted, so the tie resolves without waiting for the
	// deadline.
	msgs := rg.drain(0)
	tb, ok := lastOfType[VotingTiebreakerMessage](msgs)
	if !ok {
		t.Fatal("expected voting_tiebreaker broadcast")
	}
	if len(tb.TiedCategories) != 3 {
		t.Fatalf("tied categories = %v, want 3 entries", tb.TiedCategories)
	}
	if !contains(tb.TiedCategories, tb.WinnerID) {
		t.Fatalf("winner %q not among tied %v", tb.WinnerID, tb.TiedCategories)
	}

	rg.sched.fireDuration(t, tiebreakerHold)

	sel, ok := lastOfType[CategorySelectedMessage](rg.drain(0))
	if !ok {
		t.Fatal("expected category_selected broadcast")
	}
	if sel.Category.ID != tb.WinnerID {
		t.Fatalf("selected %q, want tiebreak winner %q", sel.Category.ID, tb.WinnerID)
	}

	rg.sched.fireDuration(t, categoryChosenHold)
	rg.wantPhase(PhaseQuestion)

	wantEnd := rg.room.nowMillis() + int64(rg.room.settings.TimePerQuestion)*1000
	if rg.room.state.TimerEnd != wantEnd {
		t.Fatalf("timerEnd = %d, want %d", rg.room.state.TimerEnd, wantEnd)
	}
}

func TestVotingClearWinner(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben", "Cleo")
	enterCategoryMode(t, rg, ModeVoting)

	target := rg.room.state.VotingCategories[4].ID
	rg.send(0, ClientMessage{Type: EventTypeSubmitVote, CategoryID: target})
	rg.send(1, ClientMessage{Type: EventTypeSubmitVote, CategoryID: target})
	rg.send(2, ClientMessage{Type: EventTypeSubmitVote, CategoryID: rg.room.state.VotingCategories[0].ID})

	if rg.room.state.SelectedCategory == nil || rg.room.state.SelectedCategory.ID != target {
		t.Fatalf("majority category %q not selected", target)
	}
}

func TestVotingDeadlineNoVotes(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeVoting)

	rg.sched.fireDuration(t, votingWindow)

	if rg.room.state.SelectedCategory == nil {
		t.Fatal("deadline without votes should fall back to a random category")
	}
}

func TestWheel(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeWheel)
	rg.wantPhase(PhaseCategoryWheel)

	idx := rg.room.state.WheelIndex
	if idx < 0 || idx >= len(rg.room.state.VotingCategories) {
		t.Fatalf("wheel index %d out of range", idx)
	}

	rg.sched.fireDuration(t, wheelSpinHold)

	want := rg.room.state.VotingCategories[idx].ID
	if rg.room.state.SelectedCategory.ID != want {
		t.Fatalf("wheel landed on %q but selected %q", want, rg.room.state.SelectedCategory.ID)
	}
}

func TestLosersPickEntitlement(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben", "Cleo")
	rg.player(0).Score = 300
	rg.player(1).Score = 100
	rg.player(2).Score = 100

	enterCategoryMode(t, rg, ModeLosersPick)
	rg.wantPhase(PhaseCategoryLosersPick)

	// Ben and Cleo tie on the lowest score; Ben joined earlier.
	if rg.room.state.LoserPickPlayerID != rg.player(1).ID {
		t.Fatalf("pick should go to the earliest-joined of the tied losers")
	}
	if rg.room.state.LastLoserPickRound != rg.room.state.CurrentRound {
		t.Fatal("loser pick cooldown round not recorded")
	}

	// Nobody else may pick.
	rg.send(0, ClientMessage{Type: EventTypePickCategory, CategoryID: rg.room.state.VotingCategories[0].ID})
	if rg.room.state.SelectedCategory != nil {
		t.Fatal("non-entitled pick must be ignored")
	}

	rg.send(1, ClientMessage{Type: EventTypePickCategory, CategoryID: rg.room.state.VotingCategories[3].ID})
	if rg.room.state.SelectedCategory.ID != rg.room.state.VotingCategories[3].ID {
		t.Fatal("entitled pick not applied")
	}
}

func TestLosersPickFallback(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeLosersPick)

	rg.sched.fireDuration(t, pickWindow)
	if rg.room.state.SelectedCategory == nil {
		t.Fatal("pick window expiry should fall back to a random category")
	}
}

func TestLoserPickCooldown(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	rg.room.state.CurrentRound = 3
	rg.room.state.LastLoserPickRound = 2

	for i := 0; i < 50; i++ {
		if rg.room.pickCategoryModeLocked() == ModeLosersPick {
			t.Fatal("losers pick drawn during cooldown")
		}
	}

	rg.room.state.LastLoserPickRound = -10
	seen := false
	for i := 0; i < 200; i++ {
		if rg.room.pickCategoryModeLocked() == ModeLosersPick {
			seen = true
			break
		}
	}
	if !seen {
		t.Fatal("losers pick never drawn after cooldown")
	}
}

func TestSoloFallsBackToVoting(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna")
	enterCategoryMode(t, rg, ModeDiceRoyale)
	rg.wantPhase(PhaseCategoryVoting)
}

// Boundary scenario: four players roll, two tie at 7, the reroll includes
// only the tied pair and produces a unique winner who receives the pick.
func TestDiceRoyaleDoubleTie(t *testing.T) {
	script := [][2]int{
		{3, 4}, // p1 = 7
		{1, 6}, // p2 = 7
		{2, 2}, // p3 = 4
		{5, 1}, // p4 = 6
		{1, 1}, // p1 reroll = 2
		{3, 3}, // p2 reroll = 6
	}
	restore := rollTwoDice
	i := 0
	rollTwoDice = func() [2]int {
		r := script[i]
		i++
		return r
	}
	defer func() { rollTwoDice = restore }()

	rg := newRig(t, questionSettings(), "P1", "P2", "P3", "P4")
	enterCategoryMode(t, rg, ModeDiceRoyale)
	rg.wantPhase(PhaseCategoryDiceRoyale)

	for i := range rg.clients {
		rg.drain(i)
	}
	for i := 0; i < 4; i++ {
		rg.send(i, ClientMessage{Type: EventTypeDiceRoyaleRoll})
	}

	msgs := rg.drain(0)
	tie, ok := lastOfType[DiceRoyaleTieMessage](msgs)
	if !ok {
		t.Fatal("expected dice_royale_tie broadcast")
	}
	if tie.Round != 2 {
		t.Fatalf("tie round = %d, want 2", tie.Round)
	}
	wantTied := []string{rg.player(0).ID, rg.player(1).ID}
	if len(tie.TiedPlayerIDs) != 2 || !contains(tie.TiedPlayerIDs, wantTied[0]) || !contains(tie.TiedPlayerIDs, wantTied[1]) {
		t.Fatalf("tied players = %v, want %v", tie.TiedPlayerIDs, wantTied)
	}

	// Re-open rolling for the tied pair only.
	rg.sched.fireDuration(t, diceTieHold)

	// A non-tied player's roll must be ignored.
	rg.send(2, ClientMessage{Type: EventTypeDiceRoyaleRoll})
	if _, rolled := rg.room.state.DiceRoyale.PlayerRolls[rg.player(2).ID]; rolled {
		t.Fatal("non-tied player must not roll in the reroll round")
	}

	rg.send(0, ClientMessage{Type: EventTypeDiceRoyaleRoll})
	rg.send(1, ClientMessage{Type: EventTypeDiceRoyaleRoll})

	winner, ok := lastOfType[DiceRoyaleWinnerMessage](rg.drain(0))
	if !ok {
		t.Fatal("expected dice_royale_winner broadcast")
	}
	if winner.PlayerID != rg.player(1).ID || winner.Sum != 6 {
		t.Fatalf("winner = %+v, want P2 with sum 6", winner)
	}
	if rg.room.state.LoserPickPlayerID != rg.player(1).ID {
		t.Fatal("dice winner should hold the pick")
	}
	if rg.room.state.TimerEnd == 0 {
		t.Fatal("pick window deadline missing")
	}
}

func TestDiceRoyaleRollIdempotent(t *testing.T) {
	restore := rollTwoDice
	rolls := 0
	rollTwoDice = func() [2]int {
		rolls++
		return [2]int{2, 3}
	}
	defer func() { rollTwoDice = restore }()

	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeDiceRoyale)

	rg.send(0, ClientMessage{Type: EventTypeDiceRoyaleRoll})
	rg.send(0, ClientMessage{Type: EventTypeDiceRoyaleRoll})

	if rolls != 1 {
		t.Fatalf("dice rolled %d times for one player, want 1", rolls)
	}
}

func TestDiceRoyaleAutoRollOnDeadline(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben", "Cleo")
	enterCategoryMode(t, rg, ModeDiceRoyale)

	rg.send(0, ClientMessage{Type: EventTypeDiceRoyaleRoll})
	rg.sched.fireDuration(t, diceRollWindow)

	dr := rg.room.state.DiceRoyale
	if dr.Phase == "rolling" {
		t.Fatal("deadline should auto-roll the stragglers and evaluate")
	}
}

func TestRPSDuelBestOfThree(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeRPSDuel)
	rg.wantPhase(PhaseCategoryRPSDuel)

	duel := rg.room.state.RPSDuel
	a, b := duel.PlayerA, duel.PlayerB
	idxOf := func(id string) int {
		for i := range rg.clients {
			if rg.clients[i].playerID == id {
				return i
			}
		}
		t.Fatalf("no client for %q", id)
		return -1
	}

	// Round 1: tie advances neither count.
	rg.send(idxOf(a), ClientMessage{Type: EventTypeRPSChoice, Choice: "rock"})
	rg.send(idxOf(b), ClientMessage{Type: EventTypeRPSChoice, Choice: "rock"})
	if duel.Wins[a] != 0 || duel.Wins[b] != 0 {
		t.Fatal("tied round must not score")
	}
	rg.sched.fireDuration(t, 2*time.Second)

	// Round 2: a wins.
	rg.send(idxOf(a), ClientMessage{Type: EventTypeRPSChoice, Choice: "paper"})
	rg.send(idxOf(b), ClientMessage{Type: EventTypeRPSChoice, Choice: "rock"})
	if duel.Wins[a] != 1 {
		t.Fatalf("wins[a] = %d, want 1", duel.Wins[a])
	}
	rg.sched.fireDuration(t, 2*time.Second)

	// Round 3: a wins again and takes the duel.
	rg.send(idxOf(a), ClientMessage{Type: EventTypeRPSChoice, Choice: "scissors"})
	rg.send(idxOf(b), ClientMessage{Type: EventTypeRPSChoice, Choice: "paper"})

	if duel.Phase != "finished" || duel.WinnerID != a {
		t.Fatalf("duel should finish with %q as winner, got %+v", a, duel)
	}
	if rg.room.state.LoserPickPlayerID != a {
		t.Fatal("duel winner should hold the pick")
	}
}

func TestRPSAutoChoiceOnDeadline(t *testing.T) {
	rg := newRig(t, questionSettings(), "Anna", "Ben")
	enterCategoryMode(t, rg, ModeRPSDuel)

	duel := rg.room.state.RPSDuel
	rg.sched.fireDuration(t, rpsRoundWindow)

	if len(duel.Choices) != 2 {
		t.Fatal("deadline should auto-pick for both duelists")
	}
}
