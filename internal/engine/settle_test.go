package engine

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliberation/internal/domain"
	"deliberation/internal/repo"
	"deliberation/internal/vector"
)

type memLedger map[string]vector.Resources

func (l memLedger) Balance(_ context.Context, id string) (vector.Resources, error) {
	r, ok := l[id]
	if !ok {
		return vector.Resources{}, fmt.Errorf("character %s: %w", id, repo.ErrNotFound)
	}
	return r, nil
}

func (l memLedger) Deduct(ctx context.Context, id string, amount vector.Resources) error {
	r, err := l.Balance(ctx, id)
	if err != nil {
		return err
	}
	l[id] = r.DeductFloor(amount)
	return nil
}

type memBoard map[vector.Metric]int

func (b memBoard) Apply(_ context.Context, o vector.Outcome) error {
	for m, v := range o {
		b[m] += v
	}
	return nil
}

func res(t, m, l int) vector.Resources {
	return vector.Resources{Time: t, Money: m, Labor: l}
}

func TestClassify(t *testing.T) {
	req := vector.ParseResources("Time: 2, Money: 1")
	cases := []struct {
		name string
		got  vector.Resources
		want Verdict
	}{
		{"exact", res(2, 1, 0), Sufficient},
		{"short on time", res(1, 1, 0), NotEnough},
		{"over on time", res(3, 1, 0), TooMuch},
		{"over and under", res(3, 0, 0), TooMuch},
		{"labor on a project needing none", res(2, 1, 1), TooMuch},
		{"nothing", res(0, 0, 0), NotEnough},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.got, req))
		})
	}
}

func TestVerdictMessages(t *testing.T) {
	assert.Equal(t, "Contributions are appropriate. Project succeeded!", Sufficient.Message())
	assert.Contains(t, NotEnough.Message(), "not enough")
	assert.Contains(t, TooMuch.Message(), "exceed")
	assert.Empty(t, Verdict("bogus").Message())
}

func twoParticipants() (memLedger, memBoard, *domain.Project, Contributions) {
	ledger := memLedger{"c1": res(5, 3, 2), "c2": res(4, 2, 3)}
	board := memBoard{vector.Environment: 5, vector.Economy: 5}
	p := &domain.Project{
		ID:                "p1",
		RequiredResources: "Time: 6, Money: 4, Labor: 4",
		Outcomes:          "Environment: +2, Economy: +1",
	}
	contrib := Contributions{
		"c1": vector.ParseResources("Time: 3, Money: 2, Labor: 1"),
		"c2": vector.ParseResources("Time: 3, Money: 2, Labor: 3"),
	}
	return ledger, board, p, contrib
}

func TestSettleSufficient(t *testing.T) {
	ledger, board, p, contrib := twoParticipants()

	v, err := Settle(context.Background(), contrib, p, ledger, board)
	require.NoError(t, err)
	require.Equal(t, Sufficient, v)
	assert.True(t, p.Completed)
	if diff := cmp.Diff(memLedger{"c1": res(2, 1, 1), "c2": res(1, 0, 0)}, ledger); diff != "" {
		t.Fatalf("balances (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(memBoard{vector.Environment: 7, vector.Economy: 6}, board); diff != "" {
		t.Fatalf("metrics (-want +got):\n%s", diff)
	}
}

func TestSettleRejectedLeavesStateAlone(t *testing.T) {
	ledger, board, p, contrib := twoParticipants()
	contrib["c2"] = res(3, 2, 2)

	v, err := Settle(context.Background(), contrib, p, ledger, board)
	require.NoError(t, err)
	require.Equal(t, NotEnough, v)
	assert.False(t, p.Completed)
	assert.Equal(t, memLedger{"c1": res(5, 3, 2), "c2": res(4, 2, 3)}, ledger)
	assert.Equal(t, memBoard{vector.Environment: 5, vector.Economy: 5}, board)
}

func TestSettleUnknownContributor(t *testing.T) {
	ledger, board, p, contrib := twoParticipants()
	contrib["ghost"] = res(0, 0, 0)

	_, err := Settle(context.Background(), contrib, p, ledger, board)
	require.ErrorIs(t, err, repo.ErrNotFound)
	assert.False(t, p.Completed)
	assert.Equal(t, res(5, 3, 2), ledger["c1"])
	assert.Equal(t, 5, board[vector.Environment])
}

func TestSettleFloorsAtZero(t *testing.T) {
	ledger := memLedger{"c1": res(4, 0, 0)}
	board := memBoard{}
	p := &domain.Project{ID: "p", RequiredResources: "Time: 10", Outcomes: "Culture: +1"}

	v, err := Settle(context.Background(), Contributions{"c1": res(10, 0, 0)}, p, ledger, board)
	require.NoError(t, err)
	require.Equal(t, Sufficient, v)
	assert.Equal(t, res(0, 0, 0), ledger["c1"])
	// a metric seen for the first time starts at zero
	assert.Equal(t, memBoard{"culture": 1}, board)
}

func TestSettleOverflowingTotalIsTooMuch(t *testing.T) {
	cases := []struct {
		name    string
		require string
		contrib Contributions
	}{
		{"wraps to the requirement", "Time: 3", Contributions{
			"a": res(math.MaxInt, 0, 0), "b": res(math.MaxInt, 0, 0), "c": res(5, 0, 0),
		}},
		{"clamps to the requirement", fmt.Sprintf("Time: %d", math.MaxInt), Contributions{
			"a": res(math.MaxInt, 0, 0), "b": res(1, 0, 0),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := memLedger{"a": res(5, 0, 0), "b": res(5, 0, 0), "c": res(5, 0, 0)}
			board := memBoard{vector.Environment: 5}
			p := &domain.Project{ID: "p", RequiredResources: tc.require, Outcomes: "Environment: +2"}

			v, err := Settle(context.Background(), tc.contrib, p, ledger, board)
			require.NoError(t, err)
			assert.Equal(t, TooMuch, v)
			assert.False(t, p.Completed)
			assert.Equal(t, memLedger{"a": res(5, 0, 0), "b": res(5, 0, 0), "c": res(5, 0, 0)}, ledger)
			assert.Equal(t, memBoard{vector.Environment: 5}, board)
		})
	}
}

func TestSettleRejectsNegativeAmounts(t *testing.T) {
	ledger, board, p, contrib := twoParticipants()
	contrib["c2"] = res(9, -3, 3)

	_, err := Settle(context.Background(), contrib, p, ledger, board)
	require.ErrorIs(t, err, ErrInvalidContribution)
	assert.False(t, p.Completed)
	assert.Equal(t, res(5, 3, 2), ledger["c1"])
}

func TestSettleLeavesCompletionGuardToCaller(t *testing.T) {
	ledger, board, p, contrib := twoParticipants()
	p.Completed = true

	v, err := Settle(context.Background(), contrib, p, ledger, board)
	require.NoError(t, err)
	assert.Equal(t, Sufficient, v)
	assert.Equal(t, 7, board[vector.Environment])
}

func TestContributionIDsSorted(t *testing.T) {
	c := Contributions{"b": {}, "c": {}, "a": {}}
	assert.Equal(t, []string{"a", "b", "c"}, c.IDs())
}

func TestClassifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	amount := gen.IntRange(0, 50)

	properties.Property("a requirement always satisfies itself", prop.ForAll(
		func(t, m, l int) bool {
			r := res(t, m, l)
			return Classify(r, r) == Sufficient
		},
		amount, amount, amount,
	))

	properties.Property("any excess is TooMuch, even alongside a shortfall", prop.ForAll(
		func(t, m, l, over int) bool {
			req := res(t, m, l)
			got := res(t+over, 0, 0)
			return Classify(got, req) == TooMuch
		},
		amount, gen.IntRange(1, 50), gen.IntRange(1, 50), gen.IntRange(1, 20),
	))

	properties.Property("a pure shortfall is NotEnough", prop.ForAll(
		func(t, m, l, under int) bool {
			req := res(t+under, m, l)
			return Classify(res(t, m, l), req) == NotEnough
		},
		amount, amount, amount, gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestAggregateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate is the per-kind sum", prop.ForAll(
		func(times []int) bool {
			c := Contributions{}
			want := 0
			for i, v := range times {
				c[fmt.Sprintf("c%d", i)] = res(v, 2*v, 0)
				want += v
			}
			total := Aggregate(c)
			return total.Time == want && total.Money == 2*want && total.Labor == 0
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
