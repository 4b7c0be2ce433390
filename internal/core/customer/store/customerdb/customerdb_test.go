package customerdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rschio/billing/internal/core/customer"
	"github.com/rschio/billing/internal/data/dbtest"
)

func TestCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	want := genCustomer("ana@email.com", "11111111111")
	want.Phone = "11999990000"
	got, err := store.Create(ctx, want)
	if err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}
	if got.ID < 1 {
		t.Fatalf("got id %d, want a positive id", got.ID)
	}
	want.ID = got.ID

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong created customer (-want +got):\n%s", diff)
	}

	for name, query := range map[string]func() (customer.Customer, error){
		"id":    func() (customer.Customer, error) { return store.QueryByID(ctx, got.ID) },
		"email": func() (customer.Customer, error) { return store.QueryByEmail(ctx, want.Email) },
		"cpf":   func() (customer.Customer, error) { return store.QueryByCPF(ctx, want.CPF) },
	} {
		c, err := query()
		if err != nil {
			t.Fatalf("query by %s: %v", name, err)
		}
		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("query by %s (-want +got):\n%s", name, diff)
		}
	}

	cs, err := store.QueryByPhone(ctx, want.Phone)
	if err != nil {
		t.Fatalf("query by phone: %v", err)
	}
	if len(cs) != 1 || cs[0].ID != want.ID {
		t.Errorf("got %+v by phone, want only customer %d", cs, want.ID)
	}

	if _, err := store.QueryByID(ctx, 999); !errors.Is(err, customer.ErrNotFound) {
		t.Errorf("got err %v, want %v", err, customer.ErrNotFound)
	}
}

func TestCreateDuplicated(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	if _, err := store.Create(ctx, genCustomer("a@email.com", "11111111111")); err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}

	_, err := store.Create(ctx, genCustomer("a@email.com", "22222222222"))
	var cerr *customer.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got err %v, want a conflict error", err)
	}
	if diff := cmp.Diff([]customer.FieldError{customer.ConflictEmail}, cerr.Fields); diff != "" {
		t.Errorf("wrong conflicts (-want +got):\n%s", diff)
	}

	_, err = store.Create(ctx, genCustomer("b@email.com", "11111111111"))
	if !errors.As(err, &cerr) {
		t.Fatalf("got err %v, want a conflict error", err)
	}
	if diff := cmp.Diff([]customer.FieldError{customer.ConflictCPF}, cerr.Fields); diff != "" {
		t.Errorf("wrong conflicts (-want +got):\n%s", diff)
	}
}

func TestAgeCharges(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	c, err := store.Create(ctx, genCustomer("a@email.com", "11111111111"))
	if err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	charges := []customer.Charge{
		genCharge(c.ID, yesterday, customer.StatusPending),
		genCharge(c.ID, yesterday, customer.StatusPaid),
		genCharge(c.ID, tomorrow, customer.StatusPending),
		genCharge(c.ID, yesterday, customer.StatusPending),
	}
	for _, ch := range charges {
		if _, err := store.AddCharge(ctx, ch); err != nil {
			t.Fatalf("failed to add charge: %v", err)
		}
	}

	n, err := store.AgeCharges(ctx, now)
	if err != nil {
		t.Fatalf("failed to age charges: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d aged charges, want %d", n, 2)
	}

	n, err = store.AgeCharges(ctx, now)
	if err != nil {
		t.Fatalf("failed to age charges a 2nd time: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d aged charges on 2nd call, want 0", n)
	}

	got, err := store.QueryCharges(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to query charges: %v", err)
	}

	want := []customer.ChargeStatus{
		customer.StatusOverdue,
		customer.StatusPaid,
		customer.StatusPending,
		customer.StatusOverdue,
	}
	if diff := cmp.Diff(want, statuses(got)); diff != "" {
		t.Errorf("wrong statuses (-want +got):\n%s", diff)
	}
}

func TestQueryStatusRows(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	withCharges, err := store.Create(ctx, genCustomer("a@email.com", "11111111111"))
	if err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}
	withoutCharges, err := store.Create(ctx, genCustomer("b@email.com", "22222222222"))
	if err != nil {
		t.Fatalf("failed to create customer: %v", err)
	}

	due := time.Now().UTC().AddDate(0, 1, 0)
	paid, err := store.AddCharge(ctx, genCharge(withCharges.ID, due, customer.StatusPaid))
	if err != nil {
		t.Fatalf("failed to add charge: %v", err)
	}
	pending, err := store.AddCharge(ctx, genCharge(withCharges.ID, due, customer.StatusPending))
	if err != nil {
		t.Fatalf("failed to add charge: %v", err)
	}

	got, err := store.QueryStatusRows(ctx)
	if err != nil {
		t.Fatalf("failed to query status rows: %v", err)
	}

	want := []customer.StatusRow{
		{Customer: withCharges, ChargeID: paid.ID, Status: customer.StatusPaid},
		{Customer: withCharges, ChargeID: pending.ID, Status: customer.StatusPending},
		{Customer: withoutCharges},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong rows (-want +got):\n%s", diff)
	}
}

func TestAddChargeUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	_, err := store.AddCharge(ctx, genCharge(42, time.Now(), customer.StatusPending))
	if !errors.Is(err, customer.ErrNotFound) {
		t.Fatalf("got err %v, want %v", err, customer.ErrNotFound)
	}
}

func genCustomer(email, cpf string) customer.Customer {
	now := time.Now().UTC().Round(time.Microsecond)
	return customer.Customer{
		Name:        "Customer",
		Email:       email,
		CPF:         cpf,
		City:        "Recife",
		State:       "PE",
		DateCreated: now,
		DateUpdated: now,
	}
}

func genCharge(customerID int, due time.Time, status customer.ChargeStatus) customer.Charge {
	return customer.Charge{
		Reference:   uuid.New(),
		CustomerID:  customerID,
		Description: "monthly fee",
		Amount:      1500,
		DueDate:     due.UTC().Round(time.Microsecond),
		Status:      status,
		DateCreated: time.Now().UTC().Round(time.Microsecond),
	}
}

func statuses(chs []customer.Charge) []customer.ChargeStatus {
	out := make([]customer.ChargeStatus, len(chs))
	for i, ch := range chs {
		out[i] = ch.Status
	}
	return out
}
