package game

import (
	"github.com/DysphoDE/nerdquiz/internal/question"
)

//
// This file contains all event names and structs that are shared with
// clients over the websocket transport.
//

// Events that are incoming from the client.
const (
	EventTypeCreateRoom        = "create_room"
	EventTypeJoinRoom          = "join_room"
	EventTypeReconnect         = "reconnect"
	EventTypeStartGame         = "start_game"
	EventTypeGameStartReady    = "game_start_ready"
	EventTypeSubmitVote        = "submit_vote"
	EventTypePickCategory      = "pick_category"
	EventTypeDiceRoyaleRoll    = "dice_royale_roll"
	EventTypeRPSChoice         = "rps_choice"
	EventTypeSubmitAnswer      = "submit_answer"
	EventTypeHotButtonBuzz     = "hot_button_buzz"
	EventTypeHotButtonAnswer   = "hot_button_answer"
	EventTypeSubmitBonusAnswer = "submit_bonus_round_answer"
	EventTypeSkipBonusRound    = "skip_bonus_round"
	EventTypeIntroReady        = "intro_ready"
	EventTypeScoreboardReady   = "scoreboard_ready"
	EventTypeRematchVote       = "rematch_vote"
	EventTypeLeaveRoom         = "leave_room"
	EventTypeKickPlayer        = "kick_player"
	EventTypeUpdateSettings    = "update_settings"
	EventTypeForceCategoryMode = "force_category_mode"
)

// Events that are outgoing only.
const (
	EventTypeRoomUpdate         = "room_update"
	EventTypePhaseChange        = "phase_change"
	EventTypeRoomCreated        = "room_created"
	EventTypeJoined             = "joined"
	EventTypePlayerJoined       = "player_joined"
	EventTypePlayerLeft         = "player_left"
	EventTypeCategoryMode       = "category_mode"
	EventTypeVotingTiebreaker   = "voting_tiebreaker"
	EventTypeCategorySelected   = "category_selected"
	EventTypeDiceRoyaleStart    = "dice_royale_start"
	EventTypeDiceRoyaleReady    = "dice_royale_ready"
	EventTypeDiceRoyaleRolled   = "dice_royale_roll"
	EventTypeDiceRoyaleTie      = "dice_royale_tie"
	EventTypeDiceRoyaleWinner   = "dice_royale_winner"
	EventTypeDiceRoyalePick     = "dice_royale_pick"
	EventTypeRPSDuelStart       = "rps_duel_start"
	EventTypeRPSRoundStart      = "rps_round_start"
	EventTypeRPSChoiceMade      = "rps_choice_made"
	EventTypeRPSRoundResult     = "rps_round_result"
	EventTypeRPSDuelWinner      = "rps_duel_winner"
	EventTypeRPSDuelPick        = "rps_duel_pick"
	EventTypeQuestionReveal     = "question_reveal"
	EventTypeBonusRoundTurn     = "bonus_round_turn"
	EventTypeBonusRoundCorrect  = "bonus_round_correct"
	EventTypeBonusRoundEliminat = "bonus_round_eliminate"
	EventTypeCollectiveListEnd  = "collective_list_end"
	EventTypeHotButtonBuzzed    = "hot_button_buzz"
	EventTypeHotButtonResult    = "hot_button_answer_result"
	EventTypeHotButtonTimeout   = "hot_button_timeout"
	EventTypeHotButtonEnd       = "hot_button_end"
	EventTypeScoreboard         = "scoreboard_announcement"
	EventTypeGameOver           = "game_over"
	EventTypeRematchStart       = "rematch_voting_start"
	EventTypeRematchUpdate      = "rematch_vote_update"
	EventTypeRematchResult      = "rematch_result"
	EventTypeKicked             = "kicked_from_room"
	EventTypeError              = "error"
)

// Join failure codes replied to the sender.
const (
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	ErrCodeRoomFull     = "ROOM_FULL"
	ErrCodeGameRunning  = "ROOM_GAME_RUNNING"
	ErrCodeInvalidName  = "INVALID_NAME"
)

// ClientMessage is the single inbound envelope; fields are set depending on
// Type.
type ClientMessage struct {
	Type string `json:"type"`

	Code     string    `json:"code,omitempty"`     // join_room / reconnect
	Name     string    `json:"name,omitempty"`     // create_room / join_room
	PlayerID string    `json:"playerId,omitempty"` // reconnect
	Settings *Settings `json:"settings,omitempty"` // create_room / update_settings

	CategoryID      string   `json:"categoryId,omitempty"`      // submit_vote / pick_category
	Choice          string   `json:"choice,omitempty"`          // rps_choice
	AnswerIndex     *int     `json:"answerIndex,omitempty"`     // submit_answer (choice)
	EstimationValue *float64 `json:"estimationValue,omitempty"` // submit_answer (estimation)
	Text            string   `json:"text,omitempty"`            // hot_button_answer / submit_bonus_round_answer
	Vote            string   `json:"vote,omitempty"`            // rematch_vote: "yes" | "no"
	Mode            string   `json:"mode,omitempty"`            // force_category_mode
	TargetPlayerID  string   `json:"targetPlayerId,omitempty"`  // kick_player
}

// ErrorMessage is a targeted reply for recoverable request failures.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type RoomCreatedMessage struct {
	Type     string `json:"type"` // "room_created"
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type JoinedMessage struct {
	Type     string `json:"type"` // "joined"
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type PhaseChangeMessage struct {
	Type  string `json:"type"` // "phase_change"
	Phase Phase  `json:"phase"`
}

type PlayerEventMessage struct {
	Type     string `json:"type"` // "player_joined" | "player_left"
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type CategoryModeMessage struct {
	Type string       `json:"type"` // "category_mode"
	Mode CategoryMode `json:"mode"`
}

type VotingTiebreakerMessage struct {
	Type           string   `json:"type"` // "voting_tiebreaker"
	TiedCategories []string `json:"tiedCategories"`
	WinnerID       string   `json:"winnerId"`
}

type CategorySelectedMessage struct {
	Type     string            `json:"type"` // "category_selected"
	Category question.Category `json:"category"`
}

type DiceRoyaleStartMessage struct {
	Type      string   `json:"type"` // "dice_royale_start"
	PlayerIDs []string `json:"playerIds"`
	Round     int      `json:"round"`
}

// DiceRoyaleReadyMessage opens a rolling window.
type DiceRoyaleReadyMessage struct {
	Type     string `json:"type"` // "dice_royale_ready"
	Round    int    `json:"round"`
	TimerEnd int64  `json:"timerEnd"`
}

// PickWindowMessage announces that the named player may pick the category.
type PickWindowMessage struct {
	Type     string `json:"type"` // "dice_royale_pick" | "rps_duel_pick"
	PlayerID string `json:"playerId"`
	TimerEnd int64  `json:"timerEnd"`
}

type DiceRoyaleRollMessage struct {
	Type     string `json:"type"` // "dice_royale_roll"
	PlayerID string `json:"playerId"`
	Rolls    [2]int `json:"rolls"`
}

type DiceRoyaleTieMessage struct {
	Type          string   `json:"type"` // "dice_royale_tie"
	TiedPlayerIDs []string `json:"tiedPlayerIds"`
	Round         int      `json:"round"`
}

type DiceRoyaleWinnerMessage struct {
	Type     string `json:"type"` // "dice_royale_winner"
	PlayerID string `json:"playerId"`
	Sum      int    `json:"sum"`
}

type RPSDuelStartMessage struct {
	Type    string `json:"type"` // "rps_duel_start"
	PlayerA string `json:"playerA"`
	PlayerB string `json:"playerB"`
}

type RPSRoundStartMessage struct {
	Type  string `json:"type"` // "rps_round_start"
	Round int    `json:"round"`
}

type RPSChoiceMadeMessage struct {
	Type     string `json:"type"` // "rps_choice_made"
	PlayerID string `json:"playerId"`
}

type RPSRoundResultMessage struct {
	Type     string            `json:"type"` // "rps_round_result"
	Round    int               `json:"round"`
	Choices  map[string]string `json:"choices"`
	WinnerID string            `json:"winnerId,omitempty"` // empty on a tied round
	Wins     map[string]int    `json:"wins"`
}

type RPSDuelWinnerMessage struct {
	Type     string `json:"type"` // "rps_duel_winner"
	PlayerID string `json:"playerId"`
}

// QuestionRevealMessage is the first broadcast carrying the correct answer.
type QuestionRevealMessage struct {
	Type          string             `json:"type"` // "question_reveal"
	QuestionID    string             `json:"questionId"`
	CorrectIndex  *int               `json:"correctIndex,omitempty"`  // choice
	CorrectValue  *float64           `json:"correctValue,omitempty"`  // estimation
	Unit          string             `json:"unit,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	PlayerAwards  map[string]int     `json:"playerAwards"`
	PlayerAnswers map[string]float64 `json:"playerAnswers,omitempty"` // estimation values
}

type BonusTurnMessage struct {
	Type       string `json:"type"` // "bonus_round_turn"
	PlayerID   string `json:"playerId"`
	TurnNumber int    `json:"turnNumber"`
	TimerEnd   int64  `json:"timerEnd"`
}

type BonusCorrectMessage struct {
	Type     string `json:"type"` // "bonus_round_correct"
	PlayerID string `json:"playerId"`
	ItemID   string `json:"itemId"`
	Display  string `json:"display"`
	Points   int    `json:"points"`
}

type BonusEliminateMessage struct {
	Type     string `json:"type"` // "bonus_round_eliminate"
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"` // "wrong" | "skip" | "timeout"
	Rank     int    `json:"rank"`
}

type ScoreBreakdown struct {
	PlayerID       string `json:"playerId"`
	CorrectAnswers int    `json:"correctAnswers"`
	CorrectPoints  int    `json:"correctPoints"`
	RankBonus      int    `json:"rankBonus"`
	TotalPoints    int    `json:"totalPoints"`
	Rank           int    `json:"rank"`
}

type CollectiveListEndMessage struct {
	Type      string           `json:"type"` // "collective_list_end"
	Reason    string           `json:"reason"` // "all_guessed" | "last_standing"
	Breakdown []ScoreBreakdown `json:"playerScoreBreakdown"`
}

type HotButtonBuzzMessage struct {
	Type          string `json:"type"` // "hot_button_buzz"
	PlayerID      string `json:"playerId"`
	RevealedChars int    `json:"revealedChars"`
	AnswerEnd     int64  `json:"answerEnd"`
}

type HotButtonResultMessage struct {
	Type          string `json:"type"` // "hot_button_answer_result"
	PlayerID      string `json:"playerId"`
	Answer        string `json:"answer"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	CorrectAnswer string `json:"correctAnswer,omitempty"` // only when no rebuzz follows
	CanRebuzz     bool   `json:"canRebuzz"`
}

type HotButtonTimeoutMessage struct {
	Type          string `json:"type"` // "hot_button_timeout"
	QuestionID    string `json:"questionId"`
	CorrectAnswer string `json:"correctAnswer"`
}

type HotButtonEndMessage struct {
	Type      string           `json:"type"` // "hot_button_end"
	Breakdown []ScoreBreakdown `json:"playerScoreBreakdown"`
}

type ScoreboardMessage struct {
	Type   string `json:"type"` // "scoreboard_announcement"
	Round  int    `json:"round"`
	TTSURL string `json:"ttsUrl,omitempty"`
}

type PlayerStatsView struct {
	PlayerID            string  `json:"playerId"`
	Name                string  `json:"name"`
	Score               int     `json:"score"`
	Rank                int     `json:"rank"`
	CorrectAnswers      int     `json:"correctAnswers"`
	TotalAnswers        int     `json:"totalAnswers"`
	Accuracy            float64 `json:"accuracy"`
	EstimationPoints    int     `json:"estimationPoints"`
	EstimationQuestions int     `json:"estimationQuestions"`
	FastestAnswerMS     int64   `json:"fastestAnswer"`
	LongestStreak       int     `json:"longestStreak"`
}

type CategoryPerformance struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Accuracy   float64 `json:"accuracy"`
}

type GameOverMessage struct {
	Type            string                `json:"type"` // "game_over"
	Rankings        []PlayerStatsView     `json:"rankings"`
	BestEstimator   string                `json:"bestEstimator,omitempty"`
	FastestFingers  []string              `json:"fastestFingers,omitempty"`
	BestCategory    *CategoryPerformance  `json:"bestCategory,omitempty"`
	WorstCategory   *CategoryPerformance  `json:"worstCategory,omitempty"`
	CategoryResults []CategoryPerformance `json:"categoryResults"`
}

type RematchUpdateMessage struct {
	Type     string `json:"type"` // "rematch_vote_update"
	PlayerID string `json:"playerId"`
	Vote     string `json:"vote"`
	YesVotes int    `json:"yesVotes"`
	Voted    int    `json:"voted"`
}

type RematchResultMessage struct {
	Type       string   `json:"type"` // "rematch_result"
	Continuing []string `json:"continuing"`
	HostID     string   `json:"hostId,omitempty"`
	Closed     bool     `json:"closed"`
}
