package vector_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliberation/internal/vector"
)

func TestParseResources(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want vector.Resources
	}{
		{"full", "Time: 3, Money: 2, Labor: 1", vector.Resources{Time: 3, Money: 2, Labor: 1}},
		{"defaults missing kinds", "Time: 5", vector.Resources{Time: 5}},
		{"empty", "", vector.Resources{}},
		{"case folded", "TIME: 1, money: 2, LaBoR: 3", vector.Resources{Time: 1, Money: 2, Labor: 3}},
		{"plus sign", "Time: +4", vector.Resources{Time: 4}},
		{"missing separator skipped", "Time:3, Money: 2", vector.Resources{Money: 2}},
		{"non integer skipped", "Time: lots, Labor: 2", vector.Resources{Labor: 2}},
		{"unknown kind skipped", "Energy: 9, Money: 1", vector.Resources{Money: 1}},
		{"last duplicate wins", "Time: 1, Time: 7", vector.Resources{Time: 7}},
		{"extra whitespace", "  Time: 2 ,Money: 1  ", vector.Resources{Time: 2, Money: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, vector.ParseResources(tc.in))
		})
	}
}

func TestParseOutcomeOnlyPresentKeys(t *testing.T) {
	got := vector.ParseOutcome("Environment: +2, Economy: -1")
	want := vector.Outcome{vector.Environment: 2, vector.Economy: -1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	_, ok := got[vector.Welfare]
	assert.False(t, ok, "welfare must not be defaulted")
}

func TestParseOutcomeKeepsUnknownMetrics(t *testing.T) {
	got := vector.ParseOutcome("Culture: +3, bogus, Welfare: 1")
	want := vector.Outcome{"culture": 3, vector.Welfare: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, vector.ParseOutcome(""))
}

func TestFormatRoundTrip(t *testing.T) {
	r := vector.Resources{Time: 3, Money: 0, Labor: 2}
	assert.Equal(t, "Time: 3, Money: 0, Labor: 2", vector.FormatResources(r))
	assert.Equal(t, r, vector.ParseResources(vector.FormatResources(r)))

	o := vector.Outcome{vector.Welfare: 1, "culture": -2, vector.Environment: 2}
	s := vector.FormatOutcome(o)
	assert.Equal(t, "Environment: +2, Welfare: +1, Culture: -2", s)
	assert.Equal(t, o, vector.ParseOutcome(s))
}

func TestDeductFloor(t *testing.T) {
	bal := vector.Resources{Time: 5, Money: 3, Labor: 4}
	got := bal.DeductFloor(vector.Resources{Time: 2, Money: 1, Labor: 10})
	assert.Equal(t, vector.Resources{Time: 3, Money: 2, Labor: 0}, got)
}

func TestAddClampsOverflow(t *testing.T) {
	sum, clamped := vector.Resources{Time: 2, Money: 1}.AddChecked(vector.Resources{Time: 3, Labor: 4})
	assert.False(t, clamped)
	assert.Equal(t, vector.Resources{Time: 5, Money: 1, Labor: 4}, sum)

	sum, clamped = vector.Resources{Time: math.MaxInt, Money: 1}.AddChecked(vector.Resources{Time: math.MaxInt, Money: 1})
	assert.True(t, clamped)
	assert.Equal(t, vector.Resources{Time: math.MaxInt, Money: 2}, sum)

	low := vector.Resources{Labor: math.MinInt}.Add(vector.Resources{Labor: -1})
	assert.Equal(t, math.MinInt, low.Labor)
}

func TestKinds(t *testing.T) {
	for _, k := range vector.Kinds() {
		parsed, ok := vector.ParseKind(vector.Title(k.String()))
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	_, ok := vector.ParseKind("energy")
	assert.False(t, ok)

	var r vector.Resources
	r.Set(vector.Money, -1)
	k, neg := r.Negative()
	assert.True(t, neg)
	assert.Equal(t, vector.Money, k)
	assert.Equal(t, vector.Resources{Time: 1, Money: 1, Labor: 1}, vector.Resources{Time: 1}.Add(vector.Resources{Money: 1, Labor: 1}))
}
