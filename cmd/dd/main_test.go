package main

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliberation/internal/engine"
	"deliberation/internal/vector"
)

func TestParseContributions(t *testing.T) {
	got, err := parseContributions([]string{
		"character-1=Time: 1, Money: 1",
		"character-5=Time: 1",
		"character-5=Labor: 2, Bogus: 9",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Contributions{
		"character-1": {Time: 1, Money: 1},
		"character-5": {Time: 1, Labor: 2},
	}, got)
}

func TestParseContributionsRejectsMissingID(t *testing.T) {
	for _, in := range []string{"Time: 1", "=Time: 1", " =Money: 2"} {
		_, err := parseContributions([]string{in})
		assert.Error(t, err, in)
	}
}

func TestParseContributionsRejectsOverflow(t *testing.T) {
	big := fmt.Sprintf("character-1=Time: %d", math.MaxInt)
	_, err := parseContributions([]string{big, big})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestFormatOutcome(t *testing.T) {
	assert.Equal(t, vector.FormatOutcome(vector.Outcome{vector.Environment: 2, vector.Welfare: 1}),
		formatOutcome(map[string]int{"environment": 2, "welfare": 1}))
}
