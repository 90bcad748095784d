package classifier

import (
	"context"
	"errors"
)

// ErrInsufficientText is returned when the input is too short to classify.
var ErrInsufficientText = errors.New("not enough text to classify")

// Input contains the text gathered from an activity and its evidence.
type Input struct {
	Title string
	Text  string
}

// Result is a classifier verdict. Risk is a percentage in [0,100].
type Result struct {
	Risk   int    `json:"risk"`
	Reason string `json:"reason,omitempty"`
	Model  string `json:"model,omitempty"`
}

// ContentClassifier estimates how likely a text was machine generated.
type ContentClassifier interface {
	Classify(ctx context.Context, input Input) (Result, error)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
