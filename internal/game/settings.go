package game

import "fmt"

// RoundType is an entry kind in a custom match schedule.
const (
	RoundTypeQuestion       = "question_round"
	RoundTypeHotButton      = "hot_button"
	RoundTypeCollectiveList = "collective_list"
)

type CustomRound struct {
	Type               string       `json:"type"`
	CategoryMode       CategoryMode `json:"categoryMode,omitempty"`
	SpecificQuestionID string       `json:"specificQuestionId,omitempty"`
}

// Settings is the immutable-per-match configuration. A new copy is validated
// on room creation and on lobby updates; the running match never sees edits.
type Settings struct {
	MaxRounds                  int           `json:"maxRounds"`
	QuestionsPerRound          int           `json:"questionsPerRound"`
	TimePerQuestion            int           `json:"timePerQuestion"` // seconds
	BonusRoundChance           int           `json:"bonusRoundChance"` // percent
	FinalRoundAlwaysBonus      bool          `json:"finalRoundAlwaysBonus"`
	HotButtonQuestionsPerRound int           `json:"hotButtonQuestionsPerRound"`
	CustomMode                 bool          `json:"customMode"`
	CustomRounds               []CustomRound `json:"customRounds,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxRounds:                  5,
		QuestionsPerRound:          4,
		TimePerQuestion:            20,
		BonusRoundChance:           25,
		FinalRoundAlwaysBonus:      false,
		HotButtonQuestionsPerRound: 3,
	}
}

func (s *Settings) Validate() error {
	if s.MaxRounds < 1 || s.MaxRounds > 20 {
		return fmt.Errorf("maxRounds out of range: %d", s.MaxRounds)
	}
	if s.QuestionsPerRound < 1 || s.QuestionsPerRound > 20 {
		return fmt.Errorf("questionsPerRound out of range: %d", s.QuestionsPerRound)
	}
	if s.TimePerQuestion < 5 || s.TimePerQuestion > 60 {
		return fmt.Errorf("timePerQuestion out of range: %d", s.TimePerQuestion)
	}
	if s.BonusRoundChance < 0 || s.BonusRoundChance > 100 {
		return fmt.Errorf("bonusRoundChance out of range: %d", s.BonusRoundChance)
	}
	if s.HotButtonQuestionsPerRound < 1 || s.HotButtonQuestionsPerRound > 10 {
		return fmt.Errorf("hotButtonQuestionsPerRound out of range: %d", s.HotButtonQuestionsPerRound)
	}
	if s.CustomMode {
		if len(s.CustomRounds) == 0 {
			return fmt.Errorf("customMode without customRounds")
		}
		for i, cr := range s.CustomRounds {
			switch cr.Type {
			case RoundTypeQuestion, RoundTypeHotButton, RoundTypeCollectiveList:
			default:
				return fmt.Errorf("customRounds[%d]: unknown type %q", i, cr.Type)
			}
		}
	}
	return nil
}
