package customer

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a registered customer. Email and CPF are unique across all
// customers.
type Customer struct {
	ID           int
	Name         string
	Email        string
	CPF          string
	Phone        string
	Zipcode      string
	Street       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	DateCreated  time.Time
	DateUpdated  time.Time
}

// NewCustomer is the data required to register a customer.
type NewCustomer struct {
	Name         string
	Email        string
	CPF          string
	Phone        string
	Zipcode      string
	Street       string
	Complement   string
	Neighborhood string
	City         string
	State        string
}

// UpdateCustomer replaces every editable field of a customer.
type UpdateCustomer NewCustomer

// Charge is a billable obligation of a customer. IDs grow with each charge
// issued, so the lowest ID of a customer is its earliest charge.
type Charge struct {
	ID          int
	Reference   uuid.UUID
	CustomerID  int
	Description string
	Amount      int
	DueDate     time.Time
	Status      ChargeStatus
	DateCreated time.Time
}

// NewCharge is the data required to issue a charge. An empty Status means
// StatusPending.
type NewCharge struct {
	Description string
	Amount      int
	DueDate     time.Time
	Status      ChargeStatus
}

// CustomerView is a customer plus a representative charge status. Status is
// nil for customers without charges.
type CustomerView struct {
	Customer
	Status *ChargeStatus
}

// Classification splits every customer into the current and defaulters
// populations. A customer is in exactly one of them.
type Classification struct {
	Current    []CustomerView
	Defaulters []CustomerView
}

// StatusRow is one customer joined with one of its charges. A customer
// without charges yields a single row with ChargeID zero.
type StatusRow struct {
	Customer Customer
	ChargeID int
	Status   ChargeStatus
}
