package customer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rschio/billing/internal/web"
)

// ChargeStatus is the state of a charge.
type ChargeStatus string

// Set of charge statuses. Pending becomes overdue once its due date passes;
// paid is only ever set from outside the aging process.
const (
	StatusPending ChargeStatus = "pending"
	StatusOverdue ChargeStatus = "overdue"
	StatusPaid    ChargeStatus = "paid"
)

// ParseChargeStatus converts s to a ChargeStatus, rejecting unknown values.
func ParseChargeStatus(s string) (ChargeStatus, error) {
	switch st := ChargeStatus(s); st {
	case StatusPending, StatusOverdue, StatusPaid:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown charge status %q", ErrInvalidArgument, s)
}

// Outstanding reports whether the charge still has to be paid.
func (s ChargeStatus) Outstanding() bool {
	return s == StatusPending || s == StatusOverdue
}

func (s ChargeStatus) String() string {
	return string(s)
}

// Partition classifies the customers found in rows.
//
// A customer with at least one outstanding charge is a defaulter, and its
// status is the one of the outstanding charge with the lowest ID. Every
// other customer is current, and its status is the one of its earliest
// charge, or nil when it has none. Each customer appears once in the result,
// ordered by ID.
func Partition(rows []StatusRow) Classification {
	type summary struct {
		customer   Customer
		earliestID int
		earliest   ChargeStatus
		openID     int
		open       ChargeStatus
	}

	byID := make(map[int]*summary)
	for _, r := range rows {
		s, ok := byID[r.Customer.ID]
		if !ok {
			s = &summary{customer: r.Customer}
			byID[r.Customer.ID] = s
		}

		if r.ChargeID == 0 {
			continue
		}

		if s.earliestID == 0 || r.ChargeID < s.earliestID {
			s.earliestID = r.ChargeID
			s.earliest = r.Status
		}

		if r.Status.Outstanding() && (s.openID == 0 || r.ChargeID < s.openID) {
			s.openID = r.ChargeID
			s.open = r.Status
		}
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	cl := Classification{
		Current:    make([]CustomerView, 0),
		Defaulters: make([]CustomerView, 0),
	}
	for _, id := range ids {
		s := byID[id]

		if s.openID != 0 {
			status := s.open
			cl.Defaulters = append(cl.Defaulters, CustomerView{Customer: s.customer, Status: &status})
			continue
		}

		v := CustomerView{Customer: s.customer}
		if s.earliestID != 0 {
			status := s.earliest
			v.Status = &status
		}
		cl.Current = append(cl.Current, v)
	}

	return cl
}

// AgeCharges marks every pending charge due before now as overdue and
// returns how many charges changed. Calling it again with the same now
// changes nothing.
func (c *Core) AgeCharges(ctx context.Context, now time.Time) (int, error) {
	release, err := c.locker.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire aging lock: %w: %w", ErrStorage, err)
	}
	// The lock expires by itself if release fails.
	defer release(context.WithoutCancel(ctx))

	n, err := c.store.AgeCharges(ctx, now.UTC())
	if err != nil {
		return 0, wrapStore("age charges", err)
	}

	return n, nil
}

// Classify ages the charges at the request time and classifies every
// customer.
func (c *Core) Classify(ctx context.Context) (Classification, error) {
	if _, err := c.AgeCharges(ctx, web.GetTime(ctx)); err != nil {
		return Classification{}, err
	}

	rows, err := c.store.QueryStatusRows(ctx)
	if err != nil {
		return Classification{}, wrapStore("query status rows", err)
	}

	return Partition(rows), nil
}

// CountCurrent returns the number of customers without outstanding charges.
func (c *Core) CountCurrent(ctx context.Context) (int, error) {
	cl, err := c.Classify(ctx)
	if err != nil {
		return 0, err
	}
	return len(cl.Current), nil
}

// CountDefaulters returns the number of customers with outstanding charges.
func (c *Core) CountDefaulters(ctx context.Context) (int, error) {
	cl, err := c.Classify(ctx)
	if err != nil {
		return 0, err
	}
	return len(cl.Defaulters), nil
}

// List returns the current customers followed by the defaulters.
func (c *Core) List(ctx context.Context) ([]CustomerView, error) {
	cl, err := c.Classify(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]CustomerView, 0, len(cl.Current)+len(cl.Defaulters))
	views = append(views, cl.Current...)
	views = append(views, cl.Defaulters...)

	return views, nil
}
