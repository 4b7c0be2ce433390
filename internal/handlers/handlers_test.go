package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rschio/billing/internal/core/customer"
	"github.com/rschio/billing/internal/core/customer/store/customerdb"
	db "github.com/rschio/billing/internal/data/dbsql/pgx"
	"github.com/rschio/billing/internal/data/dbtest"
	"go.opentelemetry.io/otel"
)

const contentType = "application/json"

func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()

	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations())
	t.Cleanup(teardown)

	core := customer.NewCore(customerdb.NewStore(log, database), nil)
	check := func(ctx context.Context) error { return db.StatusCheck(ctx, database) }
	server := NewServer(log, core, check)

	httpServer := httptest.NewServer(APIMux(server, otel.GetTracerProvider().Tracer("")))
	t.Cleanup(httpServer.Close)

	return httpServer
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
	}

	return resp.StatusCode
}

func customerReq(n int) CustomerReq {
	return CustomerReq{
		Name:  fmt.Sprintf("Customer %d", n),
		Email: fmt.Sprintf("c%d@email.com", n),
		CPF:   strings.Repeat(fmt.Sprint(n), 11),
		Phone: fmt.Sprintf("8190000000%d", n),
		City:  "Recife",
		State: "PE",
	}
}

func TestCustomersFlow(t *testing.T) {
	httpServer := newHTTPServer(t)
	base := httpServer.URL + "/customers"

	var c1, c2 CustomerResp
	if code := do(t, http.MethodPost, base, customerReq(1), &c1); code != http.StatusCreated {
		t.Fatalf("create c1: got status %d", code)
	}
	if code := do(t, http.MethodPost, base, customerReq(2), &c2); code != http.StatusCreated {
		t.Fatalf("create c2: got status %d", code)
	}

	charge := ChargeReq{
		Description: "monthly fee",
		Amount:      9990,
		DueDate:     time.Now().UTC().AddDate(0, 0, -1),
	}
	var ch ChargeResp
	path := fmt.Sprintf("%s/%d/charges", base, c1.ID)
	if code := do(t, http.MethodPost, path, charge, &ch); code != http.StatusCreated {
		t.Fatalf("add charge: got status %d", code)
	}
	if ch.Status != "pending" {
		t.Errorf("got new charge status %q, want %q", ch.Status, "pending")
	}

	var charges ChargesResp
	if code := do(t, http.MethodGet, path, nil, &charges); code != http.StatusOK {
		t.Fatalf("list charges: got status %d", code)
	}
	if len(charges.Charges) != 1 || charges.Charges[0].Status != "overdue" {
		t.Errorf("got charges %+v, want one overdue charge", charges.Charges)
	}

	var metrics MetricsResp
	if code := do(t, http.MethodGet, base+"/metrics", nil, &metrics); code != http.StatusOK {
		t.Fatalf("metrics: got status %d", code)
	}
	if metrics.Current.Total != 1 || metrics.Defaulters.Total != 1 {
		t.Fatalf("got totals %d/%d, want 1/1", metrics.Current.Total, metrics.Defaulters.Total)
	}
	if metrics.Current.List[0].ID != c2.ID || metrics.Current.List[0].Status != nil {
		t.Errorf("got current %+v, want customer %d without status", metrics.Current.List[0], c2.ID)
	}
	if metrics.Defaulters.List[0].ID != c1.ID || *metrics.Defaulters.List[0].Status != "overdue" {
		t.Errorf("got defaulter %+v, want customer %d overdue", metrics.Defaulters.List[0], c1.ID)
	}

	var list ListResp
	if code := do(t, http.MethodGet, base, nil, &list); code != http.StatusOK {
		t.Fatalf("list: got status %d", code)
	}
	var got []int
	for _, c := range list.Customers {
		got = append(got, c.ID)
	}
	if diff := cmp.Diff([]int{c2.ID, c1.ID}, got); diff != "" {
		t.Errorf("wrong list (-want +got):\n%s", diff)
	}

	var detail CustomerResp
	if code := do(t, http.MethodGet, fmt.Sprintf("%s/%d", base, c1.ID), nil, &detail); code != http.StatusOK {
		t.Fatalf("detail: got status %d", code)
	}
	if diff := cmp.Diff(c1, detail); diff != "" {
		t.Errorf("wrong detail (-want +got):\n%s", diff)
	}
}

func TestConflicts(t *testing.T) {
	httpServer := newHTTPServer(t)
	base := httpServer.URL + "/customers"

	var c4 CustomerResp
	if code := do(t, http.MethodPost, base, customerReq(4), &c4); code != http.StatusCreated {
		t.Fatalf("create: got status %d", code)
	}
	for _, n := range []int{5, 6} {
		if code := do(t, http.MethodPost, base, customerReq(n), nil); code != http.StatusCreated {
			t.Fatalf("create %d: got status %d", n, code)
		}
	}

	dup := customerReq(7)
	dup.Email = customerReq(5).Email
	dup.CPF = customerReq(6).CPF
	var conflict ConflictResp
	if code := do(t, http.MethodPost, base, dup, &conflict); code != http.StatusConflict {
		t.Fatalf("create duplicated: got status %d", code)
	}
	want := ConflictResp{Errors: []FieldErrorResp{{Field: "email", Message: customer.ConflictEmail.Message}}}
	if diff := cmp.Diff(want, conflict); diff != "" {
		t.Errorf("wrong create conflicts (-want +got):\n%s", diff)
	}

	upd := customerReq(4)
	upd.Email = customerReq(5).Email
	upd.Phone = customerReq(6).Phone
	conflict = ConflictResp{}
	if code := do(t, http.MethodPut, fmt.Sprintf("%s/%d", base, c4.ID), upd, &conflict); code != http.StatusConflict {
		t.Fatalf("update: got status %d", code)
	}
	want = ConflictResp{Errors: []FieldErrorResp{
		{Field: "email", Message: customer.ConflictEmail.Message},
		{Field: "phone", Message: customer.ConflictPhone.Message},
	}}
	if diff := cmp.Diff(want, conflict); diff != "" {
		t.Errorf("wrong update conflicts (-want +got):\n%s", diff)
	}
}

func TestCustomerID(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantedCode int
	}{
		{"invalid string", "not_number", 404},
		{"invalid id", "-1", 404},
		{"id not found", "6", 404},
		{"good id", "1", 200},
	}

	httpServer := newHTTPServer(t)
	if code := do(t, http.MethodPost, httpServer.URL+"/customers", customerReq(1), nil); code != http.StatusCreated {
		t.Fatalf("create: got status %d", code)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := httpServer.URL + fmt.Sprintf("/customers/%s/charges", tt.id)
			if code := do(t, http.MethodGet, path, nil, nil); code != tt.wantedCode {
				t.Fatalf("got wrong status code: %v, want: %v", code, tt.wantedCode)
			}
		})
	}
}

func TestBadRequests(t *testing.T) {
	httpServer := newHTTPServer(t)
	base := httpServer.URL + "/customers"

	resp, err := http.Post(base, "text/plain", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("got status %d for text body, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
	}

	resp, err = http.Post(base, contentType, strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d for broken json, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	invalid := customerReq(1)
	invalid.Email = "not an email"
	if code := do(t, http.MethodPost, base, invalid, nil); code != http.StatusBadRequest {
		t.Errorf("got status %d for invalid email, want %d", code, http.StatusBadRequest)
	}

	var c CustomerResp
	if code := do(t, http.MethodPost, base, customerReq(2), &c); code != http.StatusCreated {
		t.Fatalf("create: got status %d", code)
	}
	charge := ChargeReq{Description: "fee", Amount: 10, DueDate: time.Now(), Status: "vencido"}
	if code := do(t, http.MethodPost, fmt.Sprintf("%s/%d/charges", base, c.ID), charge, nil); code != http.StatusBadRequest {
		t.Errorf("got status %d for unknown charge status, want %d", code, http.StatusBadRequest)
	}

	if code := do(t, http.MethodGet, httpServer.URL+"/health", nil, nil); code != http.StatusOK {
		t.Errorf("got health status %d, want %d", code, http.StatusOK)
	}
}
