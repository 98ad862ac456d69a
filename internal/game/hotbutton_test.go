package game

import (
	"testing"
	"time"
)

func hotButtonOf(t *testing.T, rg *rig) *HotButtonState {
	t.Helper()
	hb := rg.room.hotButtonStateLocked()
	if hb == nil {
		t.Fatal("no hot button state")
	}
	return hb
}

func enterHotButton(t *testing.T, rg *rig) *HotButtonState {
	t.Helper()
	enterBonusRound(t, rg)
	hb := hotButtonOf(t, rg)
	if hb.Phase != "question_reveal" || hb.CurrentQuestionIndex != 0 {
		t.Fatalf("expected question 0 revealing, got %q idx %d", hb.Phase, hb.CurrentQuestionIndex)
	}
	return hb
}

func revealChars(t *testing.T, rg *rig, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		rg.sched.fireDuration(t, hotButtonRevealSpeed)
	}
}

func TestHotButtonSpeedBonusSteps(t *testing.T) {
	cases := []struct {
		percent float64
		want    int
	}{
		{0.10, 500},
		{0.25, 500},
		{0.40, 300},
		{0.60, 150},
		{0.90, 50},
		{1.00, 50},
	}
	for _, tc := range cases {
		if got := hotButtonSpeedBonus(tc.percent); got != tc.want {
			t.Errorf("hotButtonSpeedBonus(%v) = %d, want %d", tc.percent, got, tc.want)
		}
	}
}

func TestHotButtonCorrectAnswerScores(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna", "Ben")
	hb := enterHotButton(t, rg)

	revealChars(t, rg, 3)
	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	if hb.Phase != "answering" || hb.BuzzedPlayerID != rg.player(0).ID {
		t.Fatalf("buzz not registered: %q/%q", hb.Phase, hb.BuzzedPlayerID)
	}

	rg.send(0, ClientMessage{Type: EventTypeHotButtonAnswer, Text: "goethe"})

	// 3 of ~53 chars revealed: earliest bonus band.
	want := 200 + 500
	if got := rg.player(0).Score; got != want {
		t.Fatalf("score = %d, want %d", got, want)
	}
	if hb.PlayerScores[rg.player(0).ID] != want {
		t.Fatal("round score not tracked")
	}
	if len(hb.QuestionHistory) != 1 || hb.QuestionHistory[0].Outcome != "correct" {
		t.Fatalf("history = %+v", hb.QuestionHistory)
	}

	// Result display leads into question 2.
	rg.sched.fireDuration(t, hotButtonResultDisplay)
	if hb.CurrentQuestionIndex != 1 || hb.Phase != "question_reveal" {
		t.Fatalf("next question not started: idx %d phase %q", hb.CurrentQuestionIndex, hb.Phase)
	}
}

// Boundary scenario: a wrong answer opens a rebuzz whose buzzer window is
// the remainder of the original one, with the reveal resuming where it
// stopped.
func TestHotButtonRebuzzPreservesRemainingTime(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna", "Ben")
	hb := enterHotButton(t, rg)

	questionStart := hb.QuestionStartTime
	originalEnd := hb.OriginalBuzzerEnd
	if originalEnd != questionStart+hotButtonBuzzerWindow.Milliseconds() {
		t.Fatalf("original buzzer end = %d, want start+25s", originalEnd)
	}

	revealChars(t, rg, 50)
	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	if hb.BuzzedRevealedChars != 50 {
		t.Fatalf("revealed at buzz = %d, want 50", hb.BuzzedRevealedChars)
	}

	rg.clock.advance(500 * time.Millisecond)
	scoreBefore := rg.player(0).Score
	rg.send(0, ClientMessage{Type: EventTypeHotButtonAnswer, Text: "Schiller"})

	if got := rg.player(0).Score - scoreBefore; got != -100 {
		t.Fatalf("wrong answer penalty = %d, want -100", got)
	}
	result, ok := lastOfType[HotButtonResultMessage](rg.drain(1))
	if !ok {
		t.Fatal("expected hot_button_answer_result")
	}
	if !result.CanRebuzz {
		t.Fatal("rebuzz should be open")
	}
	if result.CorrectAnswer != "" {
		t.Fatal("correct answer must stay hidden while a rebuzz is possible")
	}

	rg.sched.fireDuration(t, hotButtonRebuzzDelay)

	// The rebuzz keeps the original clock.
	if hb.QuestionStartTime != questionStart {
		t.Fatal("rebuzz must preserve the question start time")
	}
	if hb.OriginalBuzzerEnd != originalEnd {
		t.Fatal("rebuzz must preserve the original buzzer deadline")
	}
	if rg.room.state.TimerEnd != originalEnd {
		t.Fatalf("rebuzz deadline = %d, want original %d", rg.room.state.TimerEnd, originalEnd)
	}
	if hb.RevealedChars != 50 || hb.IsFullyRevealed {
		t.Fatalf("reveal should resume from char 50, got %d", hb.RevealedChars)
	}

	// The first buzzer cannot rebuzz; the second player can.
	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	if hb.Phase != "question_reveal" {
		t.Fatal("attempted player must not buzz again")
	}

	revealChars(t, rg, 3)
	rg.send(1, ClientMessage{Type: EventTypeHotButtonBuzz})
	if hb.Phase != "answering" || hb.BuzzedPlayerID != rg.player(1).ID {
		t.Fatal("second player should be able to rebuzz")
	}
	// The later buzz uses its own revealed percentage for the speed bonus.
	if hb.BuzzedRevealedChars != 53 {
		t.Fatalf("revealed at second buzz = %d, want 53", hb.BuzzedRevealedChars)
	}
}

func TestHotButtonNoRebuzzRevealsAnswer(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna")
	hb := enterHotButton(t, rg)

	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	rg.send(0, ClientMessage{Type: EventTypeHotButtonAnswer, Text: "Schiller"})

	// Solo room: nobody left to rebuzz.
	result, ok := lastOfType[HotButtonResultMessage](rg.drain(0))
	if !ok {
		t.Fatal("expected hot_button_answer_result")
	}
	if result.CanRebuzz {
		t.Fatal("no rebuzz possible without remaining players")
	}
	if result.CorrectAnswer != "Goethe" {
		t.Fatalf("correct answer = %q, want revealed", result.CorrectAnswer)
	}
	if len(hb.QuestionHistory) != 1 || hb.QuestionHistory[0].Outcome != "wrong" {
		t.Fatalf("history = %+v", hb.QuestionHistory)
	}
}

func TestHotButtonAnswerTimeoutNoPenalty(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna", "Ben")
	hb := enterHotButton(t, rg)

	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	rg.sched.fireDuration(t, hotButtonAnswerWindow)

	// Silence costs nothing, unlike a submitted wrong answer.
	if rg.player(0).Score != 0 {
		t.Fatalf("timeout penalty = %d, want 0", rg.player(0).Score)
	}
	if !hb.AttemptedPlayerIDs[rg.player(0).ID] {
		t.Fatal("timed-out player still counts as attempted")
	}
	if hb.Phase != "result" {
		t.Fatalf("phase = %q, want result pending rebuzz", hb.Phase)
	}
}

func TestHotButtonBuzzerTimeout(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna", "Ben")
	hb := enterHotButton(t, rg)

	rg.sched.fireDuration(t, hotButtonBuzzerWindow)

	if len(hb.QuestionHistory) != 1 || hb.QuestionHistory[0].Outcome != "no_buzz" {
		t.Fatalf("history = %+v, want no_buzz", hb.QuestionHistory)
	}
	if !hb.IsFullyRevealed {
		t.Fatal("timeout should reveal the full text")
	}
	if _, ok := lastOfType[HotButtonTimeoutMessage](rg.drain(0)); !ok {
		t.Fatal("expected hot_button_timeout broadcast")
	}
}

// Boundary scenario: the answer timer of a finished question fires late and
// must not touch the next question.
func TestHotButtonStaleAnswerTimerIsNoop(t *testing.T) {
	rg := newRig(t, customBonusSettings(RoundTypeHotButton), "Anna", "Ben")
	hb := enterHotButton(t, rg)

	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	stale := rg.sched.findDuration(hotButtonAnswerWindow)
	if stale == nil {
		t.Fatal("answer timer not armed")
	}

	rg.send(0, ClientMessage{Type: EventTypeHotButtonAnswer, Text: "goethe"})
	rg.sched.fireDuration(t, hotButtonResultDisplay)
	if hb.CurrentQuestionIndex != 1 {
		t.Fatal("question 2 should be running")
	}

	scoreBefore := rg.player(0).Score
	phaseBefore := hb.Phase
	revealedBefore := hb.RevealedChars

	// The stale callback fires anyway; the validity token makes it a no-op.
	rg.sched.fire(stale)

	if rg.player(0).Score != scoreBefore || hb.Phase != phaseBefore || hb.RevealedChars != revealedBefore {
		t.Fatal("stale timer mutated room state")
	}
}

func TestHotButtonRoundEndBreakdown(t *testing.T) {
	settings := DefaultSettings()
	settings.CustomMode = true
	settings.CustomRounds = []CustomRound{{Type: RoundTypeHotButton}}
	settings.HotButtonQuestionsPerRound = 2

	rg := newRig(t, settings, "Anna", "Ben")
	hb := enterHotButton(t, rg)

	// Anna takes question 1.
	rg.send(0, ClientMessage{Type: EventTypeHotButtonBuzz})
	rg.send(0, ClientMessage{Type: EventTypeHotButtonAnswer, Text: "goethe"})
	rg.sched.fireDuration(t, hotButtonResultDisplay)

	// Nobody buzzes question 2.
	rg.sched.fireDuration(t, hotButtonBuzzerWindow)
	rg.sched.fireDuration(t, hotButtonResultDisplay)

	if hb.Phase != "finished" {
		t.Fatalf("phase = %q, want finished", hb.Phase)
	}
	rg.wantPhase(PhaseBonusRoundResult)

	end, ok := lastOfType[HotButtonEndMessage](rg.drain(1))
	if !ok {
		t.Fatal("expected hot_button_end broadcast")
	}
	if len(end.Breakdown) != 2 {
		t.Fatalf("breakdown size = %d, want 2", len(end.Breakdown))
	}
	if end.Breakdown[0].PlayerID != rg.player(0).ID || end.Breakdown[0].Rank != 1 {
		t.Fatalf("breakdown[0] = %+v, want Anna rank 1", end.Breakdown[0])
	}
	if end.Breakdown[0].CorrectAnswers != 1 {
		t.Fatalf("correct answers = %d, want 1", end.Breakdown[0].CorrectAnswers)
	}
}
