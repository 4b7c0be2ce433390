package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/rschio/billing/internal/core/customer"
)

type CustomerReq struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	CPF          string `json:"cpf"`
	Phone        string `json:"phone"`
	Zipcode      string `json:"zipcode"`
	Street       string `json:"street"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

func (r CustomerReq) toNewCustomer() customer.NewCustomer {
	return customer.NewCustomer(r)
}

type CustomerResp struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CPF          string    `json:"cpf"`
	Phone        string    `json:"phone"`
	Zipcode      string    `json:"zipcode"`
	Street       string    `json:"street"`
	Complement   string    `json:"complement"`
	Neighborhood string    `json:"neighborhood"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	DateCreated  time.Time `json:"created_at"`
	DateUpdated  time.Time `json:"updated_at"`
}

func toCustomerResp(c customer.Customer) CustomerResp {
	return CustomerResp(c)
}

// CustomerViewResp is a customer with its representative charge status,
// null when the customer has no charges.
type CustomerViewResp struct {
	CustomerResp
	Status *string `json:"status"`
}

func toCustomerViews(vs []customer.CustomerView) []CustomerViewResp {
	slice := make([]CustomerViewResp, len(vs))
	for i, v := range vs {
		slice[i] = CustomerViewResp{CustomerResp: toCustomerResp(v.Customer)}
		if v.Status != nil {
			s := v.Status.String()
			slice[i].Status = &s
		}
	}
	return slice
}

type ListResp struct {
	Customers []CustomerViewResp `json:"customers"`
}

type Group struct {
	Total int                `json:"total"`
	List  []CustomerViewResp `json:"list"`
}

type MetricsResp struct {
	Current    Group `json:"current"`
	Defaulters Group `json:"defaulters"`
}

func toMetricsResp(cl customer.Classification) MetricsResp {
	return MetricsResp{
		Current: Group{
			Total: len(cl.Current),
			List:  toCustomerViews(cl.Current),
		},
		Defaulters: Group{
			Total: len(cl.Defaulters),
			List:  toCustomerViews(cl.Defaulters),
		},
	}
}

type ChargeReq struct {
	Description string    `json:"description"`
	Amount      int       `json:"amount"`
	DueDate     time.Time `json:"due_date"`
	Status      string    `json:"status"`
}

func (r ChargeReq) toNewCharge() (customer.NewCharge, error) {
	nc := customer.NewCharge{
		Description: r.Description,
		Amount:      r.Amount,
		DueDate:     r.DueDate,
	}

	if r.Status != "" {
		status, err := customer.ParseChargeStatus(r.Status)
		if err != nil {
			return customer.NewCharge{}, err
		}
		nc.Status = status
	}

	return nc, nil
}

type ChargeResp struct {
	ID          int       `json:"id"`
	Reference   uuid.UUID `json:"reference"`
	CustomerID  int       `json:"customer_id"`
	Description string    `json:"description"`
	Amount      int       `json:"amount"`
	DueDate     time.Time `json:"due_date"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"created_at"`
}

func toChargeResp(ch customer.Charge) ChargeResp {
	return ChargeResp{
		ID:          ch.ID,
		Reference:   ch.Reference,
		CustomerID:  ch.CustomerID,
		Description: ch.Description,
		Amount:      ch.Amount,
		DueDate:     ch.DueDate,
		Status:      ch.Status.String(),
		DateCreated: ch.DateCreated,
	}
}

type ChargesResp struct {
	Charges []ChargeResp `json:"charges"`
}

func toChargesResp(chs []customer.Charge) ChargesResp {
	slice := make([]ChargeResp, len(chs))
	for i, ch := range chs {
		slice[i] = toChargeResp(ch)
	}
	return ChargesResp{Charges: slice}
}

type FieldErrorResp struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ConflictResp struct {
	Errors []FieldErrorResp `json:"errors"`
}

func toConflictResp(err *customer.ConflictError) ConflictResp {
	slice := make([]FieldErrorResp, len(err.Fields))
	for i, f := range err.Fields {
		slice[i] = FieldErrorResp(f)
	}
	return ConflictResp{Errors: slice}
}

type ErrorResp struct {
	Error string `json:"error"`
}
