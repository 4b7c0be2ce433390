// Package customerdb contains customer and charge related CRUD
// functionality backed by PostgreSQL.
package customerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rschio/billing/internal/core/customer"
	db "github.com/rschio/billing/internal/data/dbsql/pgx"
)

// Store manages the set of APIs for customer database access.
type Store struct {
	log *slog.Logger
	db  db.DB
}

// NewStore constructs the api for data access.
func NewStore(log *slog.Logger, database db.DB) *Store {
	return &Store{
		log: log,
		db:  database,
	}
}

// ExecUnderTx runs fn with a Store bound to a new transaction.
func (s *Store) ExecUnderTx(ctx context.Context, fn func(txStore customer.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(s.log, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Create inserts a new customer and returns it with its id.
func (s *Store) Create(ctx context.Context, c customer.Customer) (customer.Customer, error) {
	const q = `
	INSERT INTO customers
		(name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated)
	VALUES
		(@name, @email, @cpf, @phone, @zipcode, @street, @complement, @neighborhood, @city, @state, @date_created, @date_updated)
	RETURNING
		id, name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated`

	dbc, err := db.NamedQueryStruct[dbCustomer](ctx, s.log, s.db, q, toDBCustomer(c))
	if err != nil {
		return customer.Customer{}, mapUniqueError(err)
	}

	return toCustomer(dbc), nil
}

// Update replaces the data of the customer with the same id.
func (s *Store) Update(ctx context.Context, c customer.Customer) error {
	const q = `
	UPDATE
		customers
	SET
		name = @name,
		email = @email,
		cpf = @cpf,
		phone = @phone,
		zipcode = @zipcode,
		street = @street,
		complement = @complement,
		neighborhood = @neighborhood,
		city = @city,
		state = @state,
		date_updated = @date_updated
	WHERE
		id = @id`

	n, err := db.NamedExecAffected(ctx, s.log, s.db, q, toDBCustomer(c))
	if err != nil {
		return mapUniqueError(err)
	}
	if n == 0 {
		return customer.ErrNotFound
	}

	return nil
}

// QueryByID gets the customer with the given id.
func (s *Store) QueryByID(ctx context.Context, customerID int) (customer.Customer, error) {
	data := struct {
		ID int `db:"id"`
	}{
		ID: customerID,
	}

	const q = `
	SELECT
		id, name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated
	FROM
		customers
	WHERE
		id = @id`

	return s.queryOne(ctx, q, data)
}

// QueryByEmail gets the customer with the given email.
func (s *Store) QueryByEmail(ctx context.Context, email string) (customer.Customer, error) {
	data := struct {
		Email string `db:"email"`
	}{
		Email: email,
	}

	const q = `
	SELECT
		id, name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated
	FROM
		customers
	WHERE
		email = @email`

	return s.queryOne(ctx, q, data)
}

// QueryByCPF gets the customer with the given cpf.
func (s *Store) QueryByCPF(ctx context.Context, cpf string) (customer.Customer, error) {
	data := struct {
		CPF string `db:"cpf"`
	}{
		CPF: cpf,
	}

	const q = `
	SELECT
		id, name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated
	FROM
		customers
	WHERE
		cpf = @cpf`

	return s.queryOne(ctx, q, data)
}

// QueryByPhone gets every customer using the phone. Phones are not unique.
func (s *Store) QueryByPhone(ctx context.Context, phone string) ([]customer.Customer, error) {
	data := struct {
		Phone string `db:"phone"`
	}{
		Phone: phone,
	}

	const q = `
	SELECT
		id, name, email, cpf, phone, zipcode, street, complement, neighborhood, city, state, date_created, date_updated
	FROM
		customers
	WHERE
		phone = @phone
	ORDER BY
		id`

	cs, err := db.NamedQuerySlice[dbCustomer](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toCustomers(cs), nil
}

func (s *Store) queryOne(ctx context.Context, q string, data any) (customer.Customer, error) {
	c, err := db.NamedQueryStruct[dbCustomer](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return customer.Customer{}, customer.ErrNotFound
		}
		return customer.Customer{}, fmt.Errorf("namedquerystruct: %w", err)
	}

	return toCustomer(c), nil
}

// AddCharge inserts a charge and returns it with its id.
func (s *Store) AddCharge(ctx context.Context, ch customer.Charge) (customer.Charge, error) {
	const q = `
	INSERT INTO charges
		(reference, customer_id, description, amount, due_date, status, date_created)
	VALUES
		(@reference, @customer_id, @description, @amount, @due_date, @status, @date_created)
	RETURNING
		id, reference, customer_id, description, amount, due_date, status, date_created`

	dbch, err := db.NamedQueryStruct[dbCharge](ctx, s.log, s.db, q, toDBCharge(ch))
	if err != nil {
		if errors.Is(err, db.ErrDBForeignKey) {
			return customer.Charge{}, customer.ErrNotFound
		}
		return customer.Charge{}, fmt.Errorf("namedquerystruct: %w", err)
	}

	return toCharge(dbch)
}

// QueryCharges gets the charges of the customer ordered by id.
func (s *Store) QueryCharges(ctx context.Context, customerID int) ([]customer.Charge, error) {
	data := struct {
		CustomerID int `db:"customer_id"`
	}{
		CustomerID: customerID,
	}

	const q = `
	SELECT
		id, reference, customer_id, description, amount, due_date, status, date_created
	FROM
		charges
	WHERE
		customer_id = @customer_id
	ORDER BY
		id`

	chs, err := db.NamedQuerySlice[dbCharge](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toCharges(chs)
}

// AgeCharges marks the pending charges due before now as overdue. Each row
// is updated atomically by the single statement.
func (s *Store) AgeCharges(ctx context.Context, now time.Time) (int, error) {
	data := struct {
		Now     time.Time `db:"now"`
		Pending string    `db:"pending"`
		Overdue string    `db:"overdue"`
	}{
		Now:     now,
		Pending: string(customer.StatusPending),
		Overdue: string(customer.StatusOverdue),
	}

	const q = `
	UPDATE
		charges
	SET
		status = @overdue
	WHERE
		status = @pending AND due_date < @now`

	n, err := db.NamedExecAffected(ctx, s.log, s.db, q, data)
	if err != nil {
		return 0, fmt.Errorf("namedexec: %w", err)
	}

	return int(n), nil
}

// QueryStatusRows returns every customer joined with each of its charges.
func (s *Store) QueryStatusRows(ctx context.Context) ([]customer.StatusRow, error) {
	const q = `
	SELECT
		c.id, c.name, c.email, c.cpf, c.phone, c.zipcode, c.street, c.complement,
		c.neighborhood, c.city, c.state, c.date_created, c.date_updated,
		ch.id AS charge_id,
		ch.status AS charge_status
	FROM
		customers AS c
		LEFT JOIN charges AS ch ON ch.customer_id = c.id
	ORDER BY
		c.id, ch.id`

	rows, err := db.NamedQuerySlice[dbStatusRow](ctx, s.log, s.db, q, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toStatusRows(rows)
}

// mapUniqueError reports which unique field a duplicated entry error
// refers to.
func mapUniqueError(err error) error {
	if !errors.Is(err, db.ErrDBDuplicatedEntry) {
		return err
	}

	switch msg := err.Error(); {
	case strings.Contains(msg, "customers_email_key"):
		return &customer.ConflictError{Fields: []customer.FieldError{customer.ConflictEmail}}
	case strings.Contains(msg, "customers_cpf_key"):
		return &customer.ConflictError{Fields: []customer.FieldError{customer.ConflictCPF}}
	}

	return fmt.Errorf("%w: %w", customer.ErrConflict, err)
}
