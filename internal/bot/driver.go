// Package bot simulates players for development: a bot joins a room through
// an in-process connection and reacts to snapshots with randomized delays.
// Not meant for production use.
package bot

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DysphoDE/nerdquiz/internal/game"
)

var firstNames = []string{"Robo", "Blecho", "Chipsi", "Bitty", "Servo", "Quizzy"}

type Bot struct {
	name string
	conn *game.BotConn
	log  *zap.Logger

	// seq invalidates delayed reactions when the phase moves on.
	mu        sync.Mutex
	seq       int
	lastPhase game.Phase
}

func (b *Bot) bumpSeq() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

func (b *Bot) curSeq() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

func (b *Bot) Name() string { return b.name }

// Join attaches a new bot to the room and starts its reaction loop.
func Join(room *game.Room, log *zap.Logger) (*Bot, error) {
	name := fmt.Sprintf("%s-%s", firstNames[rand.Intn(len(firstNames))], uuid.NewString()[:4])

	conn, err := room.ConnectBot(name)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		name: name,
		conn: conn,
		log:  log.With(zap.String("bot", name), zap.String("room", room.Code())),
	}
	go b.run()

	b.log.Info("bot joined")
	return b, nil
}

func (b *Bot) run() {
	for ev := range b.conn.Events {
		snap, ok := ev.(game.RoomSnapshot)
		if !ok {
			continue
		}
		b.react(snap)
	}
	b.log.Debug("bot connection closed")
}

// react runs for every snapshot; the action sequence is bumped on each phase
// change, so actions scheduled in an earlier phase are dropped.
func (b *Bot) react(snap game.RoomSnapshot) {
	if snap.Phase != b.lastPhase {
		b.lastPhase = snap.Phase
		b.bumpSeq()
	}
	seq := b.curSeq()

	switch snap.Phase {
	case game.PhaseRoundAnnouncement:
		b.after(seq, jitter(500, 1500), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeGameStartReady})
		})

	case game.PhaseScoreboard:
		b.after(seq, jitter(1000, 3000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeScoreboardReady})
		})

	case game.PhaseCategoryVoting:
		if len(snap.VotingCategories) == 0 {
			return
		}
		if _, voted := snap.CategoryVotes[b.conn.PlayerID]; voted {
			return
		}
		cat := snap.VotingCategories[rand.Intn(len(snap.VotingCategories))]
		b.after(seq, jitter(1000, 5000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeSubmitVote, CategoryID: cat.ID})
		})

	case game.PhaseCategoryLosersPick:
		b.maybePick(seq, snap)

	case game.PhaseCategoryDiceRoyale:
		dr := snap.DiceRoyale
		if dr == nil {
			return
		}
		if dr.Phase == "result" {
			b.maybePick(seq, snap)
			return
		}
		if _, rolled := dr.PlayerRolls[b.conn.PlayerID]; !rolled {
			b.after(seq, jitter(800, 4000), func() {
				b.conn.Send(game.ClientMessage{Type: game.EventTypeDiceRoyaleRoll})
			})
		}

	case game.PhaseCategoryRPSDuel:
		duel := snap.RPSDuel
		if duel == nil {
			return
		}
		if duel.Phase == "finished" {
			b.maybePick(seq, snap)
			return
		}
		if duel.PlayerA == b.conn.PlayerID || duel.PlayerB == b.conn.PlayerID {
			choice := []string{"rock", "paper", "scissors"}[rand.Intn(3)]
			b.after(seq, jitter(800, 4000), func() {
				b.conn.Send(game.ClientMessage{Type: game.EventTypeRPSChoice, Choice: choice})
			})
		}

	case game.PhaseQuestion:
		if snap.Question == nil || len(snap.Question.Answers) == 0 {
			return
		}
		idx := rand.Intn(len(snap.Question.Answers))
		b.after(seq, jitter(1500, 8000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeSubmitAnswer, AnswerIndex: &idx})
		})

	case game.PhaseEstimation:
		value := float64(rand.Intn(1000))
		b.after(seq, jitter(1500, 8000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeSubmitAnswer, EstimationValue: &value})
		})

	case game.PhaseBonusRound:
		b.reactBonus(snap)

	case game.PhaseRematchVoting:
		vote := "yes"
		if rand.Intn(4) == 0 {
			vote = "no"
		}
		b.after(seq, jitter(1000, 5000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeRematchVote, Vote: vote})
		})
	}
}

func (b *Bot) reactBonus(snap game.RoomSnapshot) {
	bonus := snap.Bonus
	if bonus == nil {
		return
	}

	switch {
	case bonus.Collective != nil && bonus.Collective.Phase == "intro",
		bonus.HotButton != nil && bonus.HotButton.Phase == "intro":
		b.after(b.curSeq(), jitter(500, 1500), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeIntroReady})
		})

	case bonus.Collective != nil && bonus.Collective.Phase == "playing":
		cs := bonus.Collective
		if len(cs.ActivePlayers) == 0 || cs.ActivePlayers[cs.CurrentTurnIndex%len(cs.ActivePlayers)] != b.conn.PlayerID {
			return
		}
		seq := b.bumpSeq()
		b.after(seq, jitter(2000, 8000), func() {
			// Bots don't know the answers; half the time they pass, the
			// rest they guess into the void.
			if rand.Intn(2) == 0 {
				b.conn.Send(game.ClientMessage{Type: game.EventTypeSkipBonusRound})
				return
			}
			b.conn.Send(game.ClientMessage{Type: game.EventTypeSubmitBonusAnswer, Text: "keine Ahnung"})
		})

	case bonus.HotButton != nil && bonus.HotButton.Phase == "question_reveal":
		if rand.Intn(3) != 0 {
			return
		}
		seq := b.bumpSeq()
		b.after(seq, jitter(2000, 9000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeHotButtonBuzz})
		})

	case bonus.HotButton != nil && bonus.HotButton.Phase == "answering":
		if bonus.HotButton.BuzzedPlayerID != b.conn.PlayerID {
			return
		}
		seq := b.bumpSeq()
		b.after(seq, jitter(1000, 5000), func() {
			b.conn.Send(game.ClientMessage{Type: game.EventTypeHotButtonAnswer, Text: "keine Ahnung"})
		})
	}
}

// maybePick picks a random category when this bot holds the pick.
func (b *Bot) maybePick(seq int, snap game.RoomSnapshot) {
	if snap.LoserPickPlayerID != b.conn.PlayerID || len(snap.VotingCategories) == 0 {
		return
	}
	cat := snap.VotingCategories[rand.Intn(len(snap.VotingCategories))]
	b.after(seq, jitter(1000, 6000), func() {
		b.conn.Send(game.ClientMessage{Type: game.EventTypePickCategory, CategoryID: cat.ID})
	})
}

// after runs fn once the delay elapses, unless the bot has moved on.
func (b *Bot) after(seq int, d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		if b.curSeq() != seq {
			return
		}
		fn()
	})
}

func jitter(minMS, maxMS int) time.Duration {
	return time.Duration(minMS+rand.Intn(maxMS-minMS)) * time.Millisecond
}
