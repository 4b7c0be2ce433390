// Package customer provides the business logic of customers and their
// charges: registration, charge aging and the current/defaulter
// classification.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rschio/billing/internal/web"
)

// Set of errors for customer API.
var (
	ErrNotFound        = errors.New("customer not found")
	ErrInvalidArgument = errors.New("customer invalid argument")
	ErrConflict        = errors.New("customer conflict")
	ErrStorage         = errors.New("customer storage failure")
)

// FieldError describes a uniqueness rule broken by one field.
type FieldError struct {
	Field   string
	Message string
}

// ConflictError lists the unique fields that collide with other customers.
type ConflictError struct {
	Fields []FieldError
}

func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "customer conflict: " + strings.Join(msgs, "; ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict messages by field.
var (
	ConflictEmail = FieldError{Field: "email", Message: "a customer with this email already exists"}
	ConflictCPF   = FieldError{Field: "cpf", Message: "a customer with this cpf already exists"}
	ConflictPhone = FieldError{Field: "phone", Message: "a customer with this phone already exists"}
)

// Store is used to persist customers and charges.
type Store interface {
	// ExecUnderTx executes the fn function under a transaction. If fn returns
	// an error the transaction is rolled back and the error is returned.
	ExecUnderTx(ctx context.Context, fn func(tx Store) error) error

	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) error
	QueryByID(ctx context.Context, customerID int) (Customer, error)
	QueryByEmail(ctx context.Context, email string) (Customer, error)
	QueryByCPF(ctx context.Context, cpf string) (Customer, error)
	QueryByPhone(ctx context.Context, phone string) ([]Customer, error)

	AddCharge(ctx context.Context, ch Charge) (Charge, error)
	QueryCharges(ctx context.Context, customerID int) ([]Charge, error)
	AgeCharges(ctx context.Context, now time.Time) (int, error)
	QueryStatusRows(ctx context.Context) ([]StatusRow, error)
}

// Locker serialises charge aging between service instances.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// NopLocker is a Locker that never blocks.
type NopLocker struct{}

// Acquire returns immediately.
func (NopLocker) Acquire(context.Context) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// Core deals with customer's business logic.
type Core struct {
	store  Store
	locker Locker
}

// NewCore constructs a Core. A nil locker means no coordination between
// instances when aging charges.
func NewCore(store Store, locker Locker) *Core {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Core{store: store, locker: locker}
}

// Create registers a customer. The email is checked before the CPF and only
// the first collision is reported.
func (c *Core) Create(ctx context.Context, nc NewCustomer) (Customer, error) {
	nc.CPF = normalizeCPF(nc.CPF)
	if err := nc.validate(); err != nil {
		return Customer{}, err
	}

	now := web.GetTime(ctx).Round(time.Microsecond)
	if _, err := c.AgeCharges(ctx, now); err != nil {
		return Customer{}, err
	}

	_, err := c.store.QueryByEmail(ctx, nc.Email)
	switch {
	case err == nil:
		return Customer{}, &ConflictError{Fields: []FieldError{ConflictEmail}}
	case !errors.Is(err, ErrNotFound):
		return Customer{}, wrapStore("query by email", err)
	}

	_, err = c.store.QueryByCPF(ctx, nc.CPF)
	switch {
	case err == nil:
		return Customer{}, &ConflictError{Fields: []FieldError{ConflictCPF}}
	case !errors.Is(err, ErrNotFound):
		return Customer{}, wrapStore("query by cpf", err)
	}

	cust := Customer{
		Name:         nc.Name,
		Email:        nc.Email,
		CPF:          nc.CPF,
		Phone:        nc.Phone,
		Zipcode:      nc.Zipcode,
		Street:       nc.Street,
		Complement:   nc.Complement,
		Neighborhood: nc.Neighborhood,
		City:         nc.City,
		State:        nc.State,
		DateCreated:  now,
		DateUpdated:  now,
	}

	cust, err = c.store.Create(ctx, cust)
	if err != nil {
		return Customer{}, wrapStore("create", err)
	}

	return cust, nil
}

// Update replaces the customer's fields. Email, CPF and phone are checked
// against every other customer and all collisions are reported together.
func (c *Core) Update(ctx context.Context, customerID int, uc UpdateCustomer) (Customer, error) {
	uc.CPF = normalizeCPF(uc.CPF)
	if err := NewCustomer(uc).validate(); err != nil {
		return Customer{}, err
	}
	if !isValidID(customerID) {
		return Customer{}, ErrNotFound
	}

	var updated Customer
	fn := func(tx Store) error {
		cur, err := tx.QueryByID(ctx, customerID)
		if err != nil {
			return err
		}

		conflicts, err := findConflicts(ctx, tx, customerID, uc)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Fields: conflicts}
		}

		updated = Customer{
			ID:           cur.ID,
			Name:         uc.Name,
			Email:        uc.Email,
			CPF:          uc.CPF,
			Phone:        uc.Phone,
			Zipcode:      uc.Zipcode,
			Street:       uc.Street,
			Complement:   uc.Complement,
			Neighborhood: uc.Neighborhood,
			City:         uc.City,
			State:        uc.State,
			DateCreated:  cur.DateCreated,
			DateUpdated:  web.GetTime(ctx).Round(time.Microsecond),
		}

		return tx.Update(ctx, updated)
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Customer{}, wrapStore("update", err)
	}

	return updated, nil
}

func findConflicts(ctx context.Context, s Store, customerID int, uc UpdateCustomer) ([]FieldError, error) {
	var conflicts []FieldError

	other, err := s.QueryByEmail(ctx, uc.Email)
	switch {
	case err == nil:
		if other.ID != customerID {
			conflicts = append(conflicts, ConflictEmail)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	other, err = s.QueryByCPF(ctx, uc.CPF)
	switch {
	case err == nil:
		if other.ID != customerID {
			conflicts = append(conflicts, ConflictCPF)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if uc.Phone != "" {
		others, err := s.QueryByPhone(ctx, uc.Phone)
		if err != nil {
			return nil, err
		}
		for _, o := range others {
			if o.ID != customerID {
				conflicts = append(conflicts, ConflictPhone)
				break
			}
		}
	}

	return conflicts, nil
}

// QueryByID returns the customer with the given id.
func (c *Core) QueryByID(ctx context.Context, customerID int) (Customer, error) {
	if !isValidID(customerID) {
		return Customer{}, ErrNotFound
	}

	cust, err := c.store.QueryByID(ctx, customerID)
	if err != nil {
		return Customer{}, wrapStore("query by id", err)
	}

	return cust, nil
}

// wrapStore passes the errors of this package through and reports anything
// else as a storage failure.
func wrapStore(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrStorage):
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func (nc NewCustomer) validate() error {
	switch {
	case strings.TrimSpace(nc.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case !isValidEmail(nc.Email):
		return fmt.Errorf("%w: invalid email %q", ErrInvalidArgument, nc.Email)
	case !isValidCPF(nc.CPF):
		return fmt.Errorf("%w: cpf must have 11 digits", ErrInvalidArgument)
	case len(nc.State) > 2:
		return fmt.Errorf("%w: state must be a two letter code", ErrInvalidArgument)
	}
	return nil
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// normalizeCPF strips the usual "000.000.000-00" punctuation.
func normalizeCPF(cpf string) string {
	return strings.NewReplacer(".", "", "-", "", " ", "").Replace(cpf)
}

func isValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	for _, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidID(id int) bool {
	return id > 0
}
