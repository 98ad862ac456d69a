package question

import (
	"context"
	"errors"
)

// Kind discriminates the question content variants.
type Kind string

const (
	KindChoice         Kind = "choice"
	KindEstimation     Kind = "estimation"
	KindHotButton      Kind = "hot_button"
	KindCollectiveList Kind = "collective_list"
)

var (
	ErrNotFound  = errors.New("question not found")
	ErrExhausted = errors.New("no unused questions left")
)

type Category struct {
	ID        string `json:"id" yaml:"id"`
	Slug      string `json:"slug" yaml:"slug"`
	Name      string `json:"name" yaml:"name"`
	Icon      string `json:"icon" yaml:"icon"`
	IsActive  bool   `json:"isActive" yaml:"active"`
	SortOrder int    `json:"sortOrder" yaml:"sort"`
}

// Question content is a tagged sum: exactly one of the content pointers is
// non-nil, matching Kind.
type Question struct {
	ID          string `json:"id" yaml:"id"`
	CategoryID  string `json:"categoryId" yaml:"category"`
	Kind        Kind   `json:"type" yaml:"type"`
	Text        string `json:"text" yaml:"text"`
	Difficulty  int    `json:"difficulty" yaml:"difficulty"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation"`

	Choice         *ChoiceContent         `json:"choice,omitempty" yaml:"choice"`
	Estimation     *EstimationContent     `json:"estimation,omitempty" yaml:"estimation"`
	HotButton      *HotButtonContent      `json:"hotButton,omitempty" yaml:"hot_button"`
	CollectiveList *CollectiveListContent `json:"collectiveList,omitempty" yaml:"collective_list"`
}

type ChoiceContent struct {
	CorrectAnswer    string   `json:"correctAnswer" yaml:"correct"`
	IncorrectAnswers []string `json:"incorrectAnswers" yaml:"incorrect"`
}

type EstimationContent struct {
	CorrectValue float64 `json:"correctValue" yaml:"value"`
	Unit         string  `json:"unit" yaml:"unit"`
}

type HotButtonContent struct {
	CorrectAnswer   string   `json:"correctAnswer" yaml:"correct"`
	AcceptedAnswers []string `json:"acceptedAnswers" yaml:"accepted"`
	RevealSpeedMS   int      `json:"revealSpeed,omitempty" yaml:"reveal_speed"`
	PointsCorrect   int      `json:"pointsCorrect" yaml:"points_correct"`
	PointsWrong     int      `json:"pointsWrong" yaml:"points_wrong"`
}

type ListItem struct {
	ID      string   `json:"id" yaml:"id"`
	Display string   `json:"display" yaml:"display"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
	Group   string   `json:"group,omitempty" yaml:"group"`
}

type CollectiveListContent struct {
	Topic            string     `json:"topic" yaml:"topic"`
	Description      string     `json:"description,omitempty" yaml:"description"`
	Items            []ListItem `json:"items" yaml:"items"`
	TimePerTurn      int        `json:"timePerTurn" yaml:"time_per_turn"`
	PointsPerCorrect int        `json:"pointsPerCorrect" yaml:"points_per_correct"`
	FuzzyThreshold   float64    `json:"fuzzyThreshold" yaml:"fuzzy_threshold"`
}

// Store is the question source the game core consumes. Random never returns
// a question whose id is in exclude; categoryID may be empty for kinds that
// are not category-bound (bonus rounds).
type Store interface {
	Categories(ctx context.Context) ([]Category, error)
	Random(ctx context.Context, categoryID string, kind Kind, n int, exclude map[string]bool) ([]Question, error)
	ByID(ctx context.Context, id string) (*Question, error)
}

// Fallback tries the primary store and falls through to the secondary on
// error. Used to back a redis store with a file pack.
type Fallback struct {
	Primary   Store
	Secondary Store
}

func (f *Fallback) Categories(ctx context.Context) ([]Category, error) {
	cats, err := f.Primary.Categories(ctx)
	if err != nil || len(cats) == 0 {
		return f.Secondary.Categories(ctx)
	}
	return cats, nil
}

func (f *Fallback) Random(ctx context.Context, categoryID string, kind Kind, n int, exclude map[string]bool) ([]Question, error) {
	qs, err := f.Primary.Random(ctx, categoryID, kind, n, exclude)
	if err != nil {
		return f.Secondary.Random(ctx, categoryID, kind, n, exclude)
	}
	return qs, nil
}

func (f *Fallback) ByID(ctx context.Context, id string) (*Question, error) {
	q, err := f.Primary.ByID(ctx, id)
	if err != nil {
		return f.Secondary.ByID(ctx, id)
	}
	return q, nil
}
