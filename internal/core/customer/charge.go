package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/billing/internal/web"
)

// AddCharge issues a charge to the customer.
func (c *Core) AddCharge(ctx context.Context, customerID int, nc NewCharge) (Charge, error) {
	if nc.Status == "" {
		nc.Status = StatusPending
	}

	ch := Charge{
		Reference:   uuid.New(),
		CustomerID:  customerID,
		Description: nc.Description,
		Amount:      nc.Amount,
		DueDate:     nc.DueDate.UTC().Round(time.Microsecond),
		Status:      nc.Status,
		DateCreated: web.GetTime(ctx).Round(time.Microsecond),
	}
	if err := ch.validate(); err != nil {
		return Charge{}, err
	}

	fn := func(tx Store) error {
		if _, err := tx.QueryByID(ctx, customerID); err != nil {
			return err
		}

		var err error
		ch, err = tx.AddCharge(ctx, ch)
		if err != nil {
			return fmt.Errorf("failed to add charge: %w", err)
		}

		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Charge{}, wrapStore("add charge", err)
	}

	return ch, nil
}

// QueryCharges returns the charges of the customer ordered by ID, after
// aging them at the request time.
func (c *Core) QueryCharges(ctx context.Context, customerID int) ([]Charge, error) {
	if !isValidID(customerID) {
		return nil, ErrNotFound
	}

	if _, err := c.AgeCharges(ctx, web.GetTime(ctx)); err != nil {
		return nil, err
	}

	if _, err := c.store.QueryByID(ctx, customerID); err != nil {
		return nil, wrapStore("query by id", err)
	}

	charges, err := c.store.QueryCharges(ctx, customerID)
	if err != nil {
		return nil, wrapStore("query charges", err)
	}

	return charges, nil
}

func (ch Charge) validate() error {
	if _, err := ParseChargeStatus(string(ch.Status)); err != nil {
		return err
	}

	switch {
	case ch.Reference.Variant() == uuid.Invalid:
		return fmt.Errorf("%w: invalid reference", ErrInvalidArgument)
	case !isValidID(ch.CustomerID):
		return ErrNotFound
	case ch.Status == StatusOverdue:
		return fmt.Errorf("%w: charges only become overdue by aging", ErrInvalidArgument)
	case ch.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	case len(ch.Description) < 1 || len(ch.Description) > 255:
		return fmt.Errorf("%w: description must have 1 to 255 characters", ErrInvalidArgument)
	case ch.DueDate.IsZero():
		return fmt.Errorf("%w: due date is required", ErrInvalidArgument)
	}

	return nil
}
