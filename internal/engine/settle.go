package engine

import (
	"context"
	"fmt"
	"sort"

	"deliberation/internal/domain"
	"deliberation/internal/vector"
)

// Verdict is the classification of pooled contributions against a
// requirement.
type Verdict string

const (
	Sufficient Verdict = "SUFFICIENT"
	NotEnough  Verdict = "NOT_ENOUGH"
	TooMuch    Verdict = "TOO_MUCH"
)

// Message is the text shown to participants for a verdict.
func (v Verdict) Message() string {
	switch v {
	case Sufficient:
		return "Contributions are appropriate. Project succeeded!"
	case NotEnough:
		return "The contributions are not enough to meet the project requirements. Please adjust."
	case TooMuch:
		return "The contributions exceed the required resources. Please adjust."
	}
	return ""
}

// Contributions maps character ids to the resources each puts in.
type Contributions map[string]vector.Resources

// IDs returns the contributing character ids in sorted order.
func (c Contributions) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ledger owns character balances.
type Ledger interface {
	Balance(ctx context.Context, characterID string) (vector.Resources, error)
	Deduct(ctx context.Context, characterID string, amount vector.Resources) error
}

// Board owns the shared metric values.
type Board interface {
	Apply(ctx context.Context, outcome vector.Outcome) error
}

// Aggregate sums contributions per kind. A sum past math.MaxInt clamps
// there.
func Aggregate(c Contributions) vector.Resources {
	total, _ := aggregate(c)
	return total
}

// aggregate is Aggregate that also reports whether a kind was clamped.
func aggregate(c Contributions) (vector.Resources, bool) {
	var total vector.Resources
	clamped := false
	for _, id := range c.IDs() {
		var hit bool
		if total, hit = total.AddChecked(c[id]); hit {
			clamped = true
		}
	}
	return total, clamped
}

// Classify compares contributed against required, looking only at the kinds
// of required. Excess is checked before shortfall: a vector that is over on
// one kind and under on another is TooMuch.
func Classify(contributed, required vector.Resources) Verdict {
	kinds := vector.Kinds()
	for _, k := range kinds {
		if contributed.Get(k) > required.Get(k) {
			return TooMuch
		}
	}
	for _, k := range kinds {
		if contributed.Get(k) < required.Get(k) {
			return NotEnough
		}
	}
	return Sufficient
}

// Settle checks every contributor exists, classifies the pooled total against
// the project requirement and, only when Sufficient, deducts each
// contribution from the ledger, applies the project outcome to the board and
// marks the project completed.
//
// A rejected verdict is returned with a nil error and no side effects. Settle
// does not look at project.Completed; refusing to settle a completed project
// is the caller's job. All-or-nothing behaviour when a ledger or board call
// fails midway comes from the caller running Settle inside one transaction.
//
// Amounts must be non-negative. A pooled total too large for an int exceeds
// every requirement and is TooMuch.
func Settle(ctx context.Context, contributions Contributions, project *domain.Project, ledger Ledger, board Board) (Verdict, error) {
	ids := contributions.IDs()
	for _, id := range ids {
		if k, neg := contributions[id].Negative(); neg {
			return "", fmt.Errorf("%w: character %s contributes negative %s", ErrInvalidContribution, id, k)
		}
		if _, err := ledger.Balance(ctx, id); err != nil {
			return "", err
		}
	}
	verdict := TooMuch
	if total, clamped := aggregate(contributions); !clamped {
		verdict = Classify(total, project.Requirement())
	}
	if verdict != Sufficient {
		return verdict, nil
	}
	for _, id := range ids {
		if err := ledger.Deduct(ctx, id, contributions[id]); err != nil {
			return "", err
		}
	}
	if err := board.Apply(ctx, project.Outcome()); err != nil {
		return "", err
	}
	project.Completed = true
	return Sufficient, nil
}
