package domain

import (
	"math"
	"time"
)

// Winner marks which side of a paired comparison won. The empty value means
// undecided: either no ground truth has arrived yet, or both sides scored
// equally close to it.
type Winner string

const (
	// WinnerA marks version A as the winner.
	WinnerA Winner = "A"

	// WinnerB marks version B as the winner.
	WinnerB Winner = "B"

	// WinnerNone marks an undecided comparison.
	WinnerNone Winner = ""
)

// AlgorithmTest is one paired evaluation of two versions of the same
// algorithm type against a single input. Records are append-only; the only
// mutation permitted after creation is supplying the confirmed outcome,
// which re-derives Winner.
type AlgorithmTest struct {
	// ID uniquely identifies this test (UUID).
	ID string `json:"id"`

	// Type is the algorithm type both versions belong to.
	Type AlgorithmType `json:"algorithm_type"`

	// VersionAID and VersionBID reference the compared versions. By
	// convention A is the currently active version and B the candidate.
	VersionAID string `json:"version_a_id"`
	VersionBID string `json:"version_b_id"`

	// ScoreA and ScoreB are the two versions' scores for the input.
	ScoreA float64 `json:"score_a"`
	ScoreB float64 `json:"score_b"`

	// ActualScore is the confirmed ground-truth outcome, when available.
	ActualScore *float64 `json:"actual_score,omitempty"`

	// Winner is derived from the scores and the actual outcome; it is
	// never set directly by a caller.
	Winner Winner `json:"winner,omitempty"`

	// CreatedAt records when the comparison ran.
	CreatedAt time.Time `json:"created_at"`
}

// DeriveWinner computes the winner for a pair of scores against a confirmed
// outcome: the side with the strictly smaller absolute error wins, equal
// errors leave the comparison undecided. A nil outcome always yields
// WinnerNone.
func DeriveWinner(scoreA, scoreB float64, actual *float64) Winner {
	if actual == nil {
		return WinnerNone
	}
	errA := math.Abs(scoreA - *actual)
	errB := math.Abs(scoreB - *actual)
	switch {
	case errA < errB:
		return WinnerA
	case errB < errA:
		return WinnerB
	default:
		return WinnerNone
	}
}

// TestResults aggregates stored comparisons for one algorithm type.
// Undecided tests count toward totals and error averages but not wins.
type TestResults struct {
	// Type is the algorithm type the aggregation covers.
	Type AlgorithmType `json:"algorithm_type"`

	// TotalTests counts every comparison in the window.
	TotalTests int `json:"total_tests"`

	// WinsA and WinsB count decided comparisons per side.
	WinsA int `json:"wins_a"`
	WinsB int `json:"wins_b"`

	// AvgErrorA and AvgErrorB are mean absolute errors against confirmed
	// outcomes, over tests that have one.
	AvgErrorA float64 `json:"avg_error_a"`
	AvgErrorB float64 `json:"avg_error_b"`
}
