package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCard(t *testing.T) {
	for _, value := range []string{"1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "coffee"} {
		card, ok := parseCard(value)
		assert.True(t, ok, "expected %q to be accepted", value)
		assert.Equal(t, Card(value), card)
	}

	for _, value := range []string{"", "0", "4", "7", "100", "-5", "fib", "☕", "Coffee", "8.5"} {
		_, ok := parseCard(value)
		assert.False(t, ok, "expected %q to be rejected", value)
	}
}

func TestCardPoints(t *testing.T) {
	n, ok := Card("13").points()
	assert.True(t, ok)
	assert.Equal(t, 13, n)

	_, ok = CardUncertain.points()
	assert.False(t, ok)

	_, ok = CardCoffee.points()
	assert.False(t, ok)
}

func TestClosestCard(t *testing.T) {
	// Exact scale values map to themselves.
	for _, v := range cardScale {
		assert.Equal(t, v, closestCard(float64(v)))
	}

	// Ties break to the smaller card.
	assert.Equal(t, 5, closestCard(6.5))
	assert.Equal(t, 1, closestCard(1.5))

	// Values beyond the scale clamp to its ends.
	assert.Equal(t, 89, closestCard(200))
	assert.Equal(t, 1, closestCard(0))
}

func TestComputeResultAverage(t *testing.T) {
	result := computeResult([]MemberVote{
		{Username: "Bob", Vote: "5"},
		{Username: "Alice", Vote: "8"},
	})

	assert.True(t, result.HasNumericVotes)
	assert.Equal(t, 6.5, result.Average)
	assert.Equal(t, 5, result.ClosestCard)
	assert.Zero(t, result.UncertainCount)
	assert.Zero(t, result.BreakCount)
}

func TestComputeResultRoundsToOneDecimal(t *testing.T) {
	result := computeResult([]MemberVote{
		{Username: "a", Vote: "1"},
		{Username: "b", Vote: "1"},
		{Username: "c", Vote: "2"},
	})

	assert.Equal(t, 1.3, result.Average)
}

func TestComputeResultExcludesSymbols(t *testing.T) {
	result := computeResult([]MemberVote{
		{Username: "a", Vote: "3"},
		{Username: "b", Vote: "3"},
		{Username: "c", Vote: CardCoffee},
	})

	assert.True(t, result.HasNumericVotes)
	assert.Equal(t, 3.0, result.Average)
	assert.Equal(t, 3, result.ClosestCard)
	assert.Equal(t, 1, result.BreakCount)
	assert.Zero(t, result.UncertainCount)
}

func TestComputeResultNoNumericVotes(t *testing.T) {
	result := computeResult([]MemberVote{
		{Username: "a", Vote: CardCoffee},
		{Username: "b", Vote: CardUncertain},
		{Username: "c", Vote: CardUncertain},
	})

	assert.False(t, result.HasNumericVotes)
	assert.Zero(t, result.Average)
	assert.Zero(t, result.ClosestCard)
	assert.Equal(t, 2, result.UncertainCount)
	assert.Equal(t, 1, result.BreakCount)
}

func TestComputeResultEmpty(t *testing.T) {
	result := computeResult(nil)

	assert.False(t, result.HasNumericVotes)
	assert.Zero(t, result.Average)
	assert.Empty(t, result.Votes)
}
