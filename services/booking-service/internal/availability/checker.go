package availability

import (
	"context"
	"time"
)

// SlotProbe is the single storage question the checker asks.
type SlotProbe interface {
	SlotTaken(ctx context.Context, providerID string, slot time.Time) (bool, error)
}

// Checker answers whether a provider/slot pair is bookable. It reads and
// the caller later writes, so two concurrent bookings can both see a free
// slot; the storage layer's unique index is the authoritative backstop and
// this check is a fast path only.
type Checker struct {
	probe SlotProbe
}

func NewChecker(probe SlotProbe) *Checker {
	return &Checker{probe: probe}
}

func (c *Checker) IsFree(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	taken, err := c.probe.SlotTaken(ctx, providerID, slot)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
