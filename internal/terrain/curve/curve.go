// Package curve evaluates keyframed response curves used by stages to map a
// normalized input (height in band, slope, distance from a centre) to a value.
package curve

import (
	"fmt"
	"sort"
)

type Key struct {
	T float64 `yaml:"t" json:"t"`
	V float64 `yaml:"v" json:"v"`
}

// Curve is piecewise linear between keys, or smoothstep-eased when Smooth is
// set. Inputs outside the key range clamp to the first/last value. A curve
// without keys evaluates to zero.
type Curve struct {
	Keys   []Key `yaml:"keys" json:"keys"`
	Smooth bool  `yaml:"smooth,omitempty" json:"smooth,omitempty"`
}

func Constant(v float64) Curve {
	return Curve{Keys: []Key{{T: 0, V: v}, {T: 1, V: v}}}
}

func Linear(from, to float64) Curve {
	return Curve{Keys: []Key{{T: 0, V: from}, {T: 1, V: to}}}
}

func (c Curve) IsZero() bool { return len(c.Keys) == 0 }

// Normalize sorts keys by T. Keys sharing a T keep their authored order.
func (c *Curve) Normalize() {
	sort.SliceStable(c.Keys, func(i, j int) bool { return c.Keys[i].T < c.Keys[j].T })
}

func (c Curve) Validate() error {
	for i := 1; i < len(c.Keys); i++ {
		if c.Keys[i].T < c.Keys[i-1].T {
			return fmt.Errorf("curve keys not sorted at index %d", i)
		}
	}
	return nil
}

func (c Curve) Evaluate(t float64) float64 {
	n := len(c.Keys)
	switch {
	case n == 0:
		return 0
	case n == 1 || t <= c.Keys[0].T:
		return c.Keys[0].V
	case t >= c.Keys[n-1].T:
		return c.Keys[n-1].V
	}
	i := sort.Search(n, func(i int) bool { return c.Keys[i].T > t })
	a, b := c.Keys[i-1], c.Keys[i]
	span := b.T - a.T
	if span <= 0 {
		return b.V
	}
	f := (t - a.T) / span
	if c.Smooth {
		f = f * f * (3 - 2*f)
	}
	return a.V + (b.V-a.V)*f
}
