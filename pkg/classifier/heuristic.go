package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
)

const heuristicModel = "lexical-heuristic-v1"

// minWords is the smallest body the heuristic will score.
const minWords = 20

var stockPhrases = []string{
	"delve", "furthermore", "moreover", "additionally", "in conclusion", "it is important to note",
	"tapestry", "leverage", "plays a crucial role", "in today's", "a testament to", "navigate the",
	"multifaceted", "seamless", "foster", "underscore", "pivotal", "holistic",
}

// Heuristic is a deterministic lexical classifier used when no model backend is configured.
// It combines stock-phrase density, sentence length uniformity and vocabulary diversity.
type Heuristic struct{}

// NewHeuristic constructs the lexical classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Classify scores the input. Identical input always yields the identical result.
func (h *Heuristic) Classify(ctx context.Context, input Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := strings.ToLower(input.Text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(words) < minWords {
		return Result{}, ErrInsufficientText
	}

	phraseHits := 0
	for _, phrase := range stockPhrases {
		phraseHits += strings.Count(text, phrase)
	}
	phraseScore := math.Min(1, float64(phraseHits)*100/float64(len(words))/3)

	uniformity := 1 - math.Min(1, sentenceLengthSpread(input.Text))

	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[w] = struct{}{}
	}
	ttr := float64(len(distinct)) / float64(len(words))
	// Human prose tends to sit between 0.4 and 0.7; very flat vocab reads as templated.
	diversityScore := 0.0
	if ttr < 0.4 {
		diversityScore = (0.4 - ttr) / 0.4
	}

	score := 0.5*phraseScore + 0.35*uniformity + 0.15*diversityScore
	risk := clamp(int(math.Round(score * 100)))

	return Result{
		Risk:   risk,
		Model:  heuristicModel,
		Reason: fmt.Sprintf("phrases=%d uniformity=%.2f ttr=%.2f", phraseHits, uniformity, ttr),
	}, nil
}

// sentenceLengthSpread returns the coefficient of variation of sentence lengths in words.
func sentenceLengthSpread(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	lengths := make([]float64, 0, len(sentences))
	for _, s := range sentences {
		if n := len(strings.Fields(s)); n > 0 {
			lengths = append(lengths, float64(n))
		}
	}
	if len(lengths) < 2 {
		return 1
	}
	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))
	return math.Sqrt(variance) / mean
}
