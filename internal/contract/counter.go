package contract

import (
	"fmt"
	"math"
	"strings"
)

// OverflowPolicy decides what the counter does when a step would leave the
// int8 range.
type OverflowPolicy int

const (
	// Wrap moves across the boundary: 127+1 is -128 and -128-1 is 127.
	Wrap OverflowPolicy = iota
	// Saturate pins the value at the boundary it would have crossed.
	Saturate
)

func (p OverflowPolicy) String() string {
	switch p {
	case Wrap:
		return "wrap"
	case Saturate:
		return "saturate"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy accepts "wrap" or "saturate" (case-insensitive).
// The empty string selects Wrap.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wrap":
		return Wrap, nil
	case "saturate":
		return Saturate, nil
	default:
		return Wrap, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Counter is a signed 8-bit value.
type Counter struct {
	val int8
}

// Get returns the current value.
func (c Counter) Get() int8 {
	return c.val
}

// Increment adds one under policy and returns the new value.
func (c *Counter) Increment(policy OverflowPolicy) int8 {
	return c.step(1, policy)
}

// Decrement subtracts one under policy and returns the new value.
func (c *Counter) Decrement(policy OverflowPolicy) int8 {
	return c.step(-1, policy)
}

// Reset sets the value to zero regardless of what it held.
func (c *Counter) Reset() {
	c.val = 0
}

func (c *Counter) step(delta int, policy OverflowPolicy) int8 {
	next := int(c.val) + delta
	switch {
	case next > math.MaxInt8:
		if policy == Saturate {
			next = math.MaxInt8
		} else {
			next -= 1 << 8
		}
	case next < math.MinInt8:
		if policy == Saturate {
			next = math.MinInt8
		} else {
			next += 1 << 8
		}
	}
	c.val = int8(next)
	return c.val
}
