// Package vector holds the resource and outcome vectors exchanged between
// characters, projects and the metric board, plus the lenient
// "Key: value, Key: value" codec used to store them.
package vector

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is a resource a character can hold and contribute.
type Kind int

const (
	Time Kind = iota
	Money
	Labor
)

var kindNames = [...]string{Time: "time", Money: "money", Labor: "labor"}

// Kinds returns every resource kind in canonical order.
func Kinds() []Kind {
	return []Kind{Time, Money, Labor}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Resources carries one amount per Kind. The zero value is a valid empty vector.
type Resources struct {
	Time  int `json:"time" yaml:"time"`
	Money int `json:"money" yaml:"money"`
	Labor int `json:"labor" yaml:"labor"`
}

// Get returns the amount held for k.
func (r Resources) Get(k Kind) int {
	switch k {
	case Time:
		return r.Time
	case Money:
		return r.Money
	case Labor:
		return r.Labor
	}
	return 0
}

// Set stores v for k. Unknown kinds are ignored.
func (r *Resources) Set(k Kind, v int) {
	switch k {
	case Time:
		r.Time = v
	case Money:
		r.Money = v
	case Labor:
		r.Labor = v
	}
}

// Add returns the per-kind sum of r and o. Sums outside the int range clamp
// to math.MaxInt or math.MinInt.
func (r Resources) Add(o Resources) Resources {
	out, _ := r.AddChecked(o)
	return out
}

// AddChecked is Add that also reports whether any kind was clamped.
func (r Resources) AddChecked(o Resources) (Resources, bool) {
	var out Resources
	clamped := false
	for _, k := range Kinds() {
		v, ok := addInt(r.Get(k), o.Get(k))
		if !ok {
			clamped = true
		}
		out.Set(k, v)
	}
	return out, clamped
}

func addInt(a, b int) (int, bool) {
	s := a + b
	switch {
	case b > 0 && s < a:
		return math.MaxInt, false
	case b < 0 && s > a:
		return math.MinInt, false
	}
	return s, true
}

// DeductFloor subtracts o from r per kind, never going below zero.
func (r Resources) DeductFloor(o Resources) Resources {
	var out Resources
	for _, k := range Kinds() {
		out.Set(k, max(r.Get(k)-o.Get(k), 0))
	}
	return out
}

// Negative reports the first kind holding a negative amount.
func (r Resources) Negative() (Kind, bool) {
	for _, k := range Kinds() {
		if r.Get(k) < 0 {
			return k, true
		}
	}
	return 0, false
}

// IsZero reports whether every amount is zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

func (r Resources) String() string {
	return FormatResources(r)
}

// Metric names a shared board value. The set is open; these are the
// conventional ones.
type Metric string

const (
	Environment Metric = "environment"
	Economy     Metric = "economy"
	Welfare     Metric = "welfare"
)

var metricOrder = map[Metric]int{Environment: 0, Economy: 1, Welfare: 2}

// Outcome maps metrics to signed deltas. Only metrics named by the source
// string are present.
type Outcome map[Metric]int

// Metrics returns the keys of o, conventional metrics first, then lexical.
func (o Outcome) Metrics() []Metric {
	keys := make([]Metric, 0, len(o))
	for m := range o {
		keys = append(keys, m)
	}
	SortMetrics(keys)
	return keys
}

func (o Outcome) String() string {
	return FormatOutcome(o)
}

// SortMetrics orders metrics the way boards and outcomes are displayed.
func SortMetrics(ms []Metric) {
	sort.Slice(ms, func(i, j int) bool {
		oi, iok := metricOrder[ms[i]]
		oj, jok := metricOrder[ms[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		}
		return ms[i] < ms[j]
	})
}

// ParseResources decodes "Time: 2, Money: 1, Labor: 3". Kinds missing from
// the string are zero. Segments without ": ", with a non-integer value or an
// unknown kind are skipped.
func ParseResources(s string) Resources {
	var r Resources
	eachPair(s, func(key string, v int) {
		if k, ok := ParseKind(key); ok {
			r.Set(k, v)
		}
	})
	return r
}

// ParseOutcome decodes "Environment: +2, Economy: -1". Unlike ParseResources
// there are no defaults: only keys present in s are returned.
func ParseOutcome(s string) Outcome {
	out := Outcome{}
	eachPair(s, func(key string, v int) {
		out[Metric(key)] = v
	})
	return out
}

func eachPair(s string, fn func(key string, v int)) {
	for _, seg := range strings.Split(s, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(seg), ": ")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		fn(key, v)
	}
}

// FormatResources renders r in the stored string form.
func FormatResources(r Resources) string {
	title := cases.Title(language.English)
	parts := make([]string, 0, 3)
	for _, k := range Kinds() {
		parts = append(parts, title.String(k.String())+": "+strconv.Itoa(r.Get(k)))
	}
	return strings.Join(parts, ", ")
}

// FormatOutcome renders o with explicit signs, e.g. "Environment: +2".
func FormatOutcome(o Outcome) string {
	title := cases.Title(language.English)
	parts := make([]string, 0, len(o))
	for _, m := range o.Metrics() {
		v := o[m]
		sign := ""
		if v >= 0 {
			sign = "+"
		}
		parts = append(parts, title.String(string(m))+": "+sign+strconv.Itoa(v))
	}
	return strings.Join(parts, ", ")
}

// Title returns the display name of a metric or kind.
func Title(name string) string {
	return cases.Title(language.English).String(name)
}
