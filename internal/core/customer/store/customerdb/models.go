package customerdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/billing/internal/core/customer"
)

type dbCustomer struct {
	ID           int       `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	CPF          string    `db:"cpf"`
	Phone        string    `db:"phone"`
	Zipcode      string    `db:"zipcode"`
	Street       string    `db:"street"`
	Complement   string    `db:"complement"`
	Neighborhood string    `db:"neighborhood"`
	City         string    `db:"city"`
	State        string    `db:"state"`
	DateCreated  time.Time `db:"date_created"`
	DateUpdated  time.Time `db:"date_updated"`
}

func toDBCustomer(c customer.Customer) dbCustomer {
	return dbCustomer(c)
}

func toCustomer(c dbCustomer) customer.Customer {
	cust := customer.Customer(c)
	cust.DateCreated = c.DateCreated.In(time.UTC)
	cust.DateUpdated = c.DateUpdated.In(time.UTC)
	return cust
}

func toCustomers(cs []dbCustomer) []customer.Customer {
	slice := make([]customer.Customer, len(cs))
	for i, c := range cs {
		slice[i] = toCustomer(c)
	}
	return slice
}

type dbCharge struct {
	ID          int       `db:"id"`
	Reference   uuid.UUID `db:"reference"`
	CustomerID  int       `db:"customer_id"`
	Description string    `db:"description"`
	Amount      int       `db:"amount"`
	DueDate     time.Time `db:"due_date"`
	Status      string    `db:"status"`
	DateCreated time.Time `db:"date_created"`
}

func toDBCharge(ch customer.Charge) dbCharge {
	return dbCharge{
		ID:          ch.ID,
		Reference:   ch.Reference,
		CustomerID:  ch.CustomerID,
		Description: ch.Description,
		Amount:      ch.Amount,
		DueDate:     ch.DueDate,
		Status:      string(ch.Status),
		DateCreated: ch.DateCreated,
	}
}

func toCharge(ch dbCharge) (customer.Charge, error) {
	status, err := customer.ParseChargeStatus(ch.Status)
	if err != nil {
		return customer.Charge{}, fmt.Errorf("charge[%d]: unexpected status %q", ch.ID, ch.Status)
	}

	return customer.Charge{
		ID:          ch.ID,
		Reference:   ch.Reference,
		CustomerID:  ch.CustomerID,
		Description: ch.Description,
		Amount:      ch.Amount,
		DueDate:     ch.DueDate.In(time.UTC),
		Status:      status,
		DateCreated: ch.DateCreated.In(time.UTC),
	}, nil
}

func toCharges(chs []dbCharge) ([]customer.Charge, error) {
	slice := make([]customer.Charge, len(chs))
	for i, ch := range chs {
		c, err := toCharge(ch)
		if err != nil {
			return nil, err
		}
		slice[i] = c
	}
	return slice, nil
}

// dbStatusRow is a customer joined with one of its charges. The charge
// columns are NULL for customers without charges.
type dbStatusRow struct {
	ID           int       `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	CPF          string    `db:"cpf"`
	Phone        string    `db:"phone"`
	Zipcode      string    `db:"zipcode"`
	Street       string    `db:"street"`
	Complement   string    `db:"complement"`
	Neighborhood string    `db:"neighborhood"`
	City         string    `db:"city"`
	State        string    `db:"state"`
	DateCreated  time.Time `db:"date_created"`
	DateUpdated  time.Time `db:"date_updated"`
	ChargeID     *int      `db:"charge_id"`
	ChargeStatus *string   `db:"charge_status"`
}

func toStatusRows(rows []dbStatusRow) ([]customer.StatusRow, error) {
	slice := make([]customer.StatusRow, len(rows))
	for i, r := range rows {
		sr := customer.StatusRow{
			Customer: toCustomer(dbCustomer{
				ID:           r.ID,
				Name:         r.Name,
				Email:        r.Email,
				CPF:          r.CPF,
				Phone:        r.Phone,
				Zipcode:      r.Zipcode,
				Street:       r.Street,
				Complement:   r.Complement,
				Neighborhood: r.Neighborhood,
				City:         r.City,
				State:        r.State,
				DateCreated:  r.DateCreated,
				DateUpdated:  r.DateUpdated,
			}),
		}

		if r.ChargeID != nil && r.ChargeStatus != nil {
			status, err := customer.ParseChargeStatus(*r.ChargeStatus)
			if err != nil {
				return nil, fmt.Errorf("charge[%d]: unexpected status %q", *r.ChargeID, *r.ChargeStatus)
			}
			sr.ChargeID = *r.ChargeID
			sr.Status = status
		}

		slice[i] = sr
	}
	return slice, nil
}
