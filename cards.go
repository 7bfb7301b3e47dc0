package main

import (
	"math"
	"strconv"
)

// Card is one estimation token: a numeric value from the fixed scale,
// or one of the two non-numeric symbols.
type Card string

const (
	CardUncertain Card = "?"
	CardCoffee    Card = "coffee"
)

// cardScale is the fixed estimation scale, in ascending order.
var cardScale = []int{1, 2, 3, 5, 8, 13, 21, 34, 55, 89}

// parseCard validates a raw vote value against the accepted card set.
func parseCard(value string) (Card, bool) {
	card := Card(value)
	if card == CardUncertain || card == CardCoffee {
		return card, true
	}
	if _, ok := card.points(); ok {
		return card, true
	}
	return "", false
}

// points returns the numeric value of a card, or false for the
// non-numeric symbols and anything outside the scale.
func (c Card) points() (int, bool) {
	n, err := strconv.Atoi(string(c))
	if err != nil {
		return 0, false
	}
	for _, v := range cardScale {
		if v == n {
			return n, true
		}
	}
	return 0, false
}

// MemberVote pairs a username with the card they played.
type MemberVote struct {
	Username string `json:"username"`
	Vote     Card   `json:"vote"`
}

// RoundResult is broadcast to the room when a round completes, either
// automatically or by host action.
//
// Average is always 0 when no numeric votes were cast; consumers must
// check HasNumericVotes to tell "zero average" apart from "no numeric
// data". ClosestCard is omitted in that case.
type RoundResult struct {
	Type            string       `json:"type"`
	Votes           []MemberVote `json:"votes"`
	Average         float64      `json:"average"`
	HasNumericVotes bool         `json:"hasNumericVotes"`
	ClosestCard     int          `json:"closestCard,omitempty"`
	UncertainCount  int          `json:"uncertainCount"`
	BreakCount      int          `json:"breakCount"`
}

// closestCard returns the scale value nearest to average. The scale is
// scanned in ascending order keeping only strictly smaller distances,
// so ties resolve to the smaller card.
func closestCard(average float64) int {
	best := cardScale[0]
	bestDist := math.Abs(float64(best) - average)

	for _, c := range cardScale[1:] {
		if d := math.Abs(float64(c) - average); d < bestDist {
			best = c
			bestDist = d
		}
	}

	return best
}

// computeResult aggregates the recorded votes of a finished round.
func computeResult(votes []MemberVote) RoundResult {
	result := RoundResult{
		Type:  "round_completed",
		Votes: votes,
	}

	sum := 0
	numeric := 0

	for _, v := range votes {
		switch v.Vote {
		case CardUncertain:
			result.UncertainCount++
		case CardCoffee:
			result.BreakCount++
		default:
			if n, ok := v.Vote.points(); ok {
				sum += n
				numeric++
			}
		}
	}

	if numeric > 0 {
		result.HasNumericVotes = true
		result.Average = math.Round(float64(sum)/float64(numeric)*10) / 10
		result.ClosestCard = closestCard(result.Average)
	}

	return result
}
