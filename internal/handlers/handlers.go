// Package handlers exposes the customer core over HTTP with JSON bodies.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rschio/billing/internal/core/customer"
	"github.com/rschio/billing/internal/web"
	"go.opentelemetry.io/otel/trace"
)

// APIMux routes the customer API.
func APIMux(s *Server, tracer trace.Tracer) *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middlewareWeb(s.log, tracer, h))
	}

	handle("GET /health", s.Health)
	handle("GET /customers", s.List)
	handle("POST /customers", s.Create)
	handle("GET /customers/metrics", s.Metrics)
	handle("GET /customers/{id}", s.Detail)
	handle("PUT /customers/{id}", s.Update)
	handle("GET /customers/{id}/charges", s.Charges)
	handle("POST /customers/{id}/charges", s.AddCharge)

	return mux
}

// Server holds the dependencies of the handlers.
type Server struct {
	log      *slog.Logger
	customer *customer.Core
	check    func(ctx context.Context) error
}

// NewServer constructs a Server. check reports whether the database is
// reachable.
func NewServer(log *slog.Logger, c *customer.Core, check func(ctx context.Context) error) *Server {
	return &Server{log: log, customer: c, check: check}
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ *http.Request, _ struct{}) (map[string]string, error) {
			if err := s.check(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", customer.ErrStorage, err)
			}
			return map[string]string{"status": "ok"}, nil
		},
	)
}

func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ *http.Request, _ struct{}) (ListResp, error) {
			views, err := s.customer.List(ctx)
			if err != nil {
				return ListResp{}, err
			}
			return ListResp{Customers: toCustomerViews(views)}, nil
		},
	)
}

func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ *http.Request, _ struct{}) (MetricsResp, error) {
			cl, err := s.customer.Classify(ctx)
			if err != nil {
				return MetricsResp{}, err
			}
			return toMetricsResp(cl), nil
		},
	)
}

func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, _ *http.Request, req CustomerReq) (CustomerResp, error) {
			c, err := s.customer.Create(ctx, req.toNewCustomer())
			if err != nil {
				return CustomerResp{}, err
			}
			return toCustomerResp(c), nil
		},
	)
}

func (s *Server) Detail(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, r *http.Request, _ struct{}) (CustomerResp, error) {
			id, err := getID(r)
			if err != nil {
				return CustomerResp{}, err
			}

			c, err := s.customer.QueryByID(ctx, id)
			if err != nil {
				return CustomerResp{}, err
			}
			return toCustomerResp(c), nil
		},
	)
}

func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, r *http.Request, req CustomerReq) (CustomerResp, error) {
			id, err := getID(r)
			if err != nil {
				return CustomerResp{}, err
			}

			c, err := s.customer.Update(ctx, id, customer.UpdateCustomer(req.toNewCustomer()))
			if err != nil {
				return CustomerResp{}, err
			}
			return toCustomerResp(c), nil
		},
	)
}

func (s *Server) Charges(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, r *http.Request, _ struct{}) (ChargesResp, error) {
			id, err := getID(r)
			if err != nil {
				return ChargesResp{}, err
			}

			chs, err := s.customer.QueryCharges(ctx, id)
			if err != nil {
				return ChargesResp{}, err
			}
			return toChargesResp(chs), nil
		},
	)
}

func (s *Server) AddCharge(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, r *http.Request, req ChargeReq) (ChargeResp, error) {
			id, err := getID(r)
			if err != nil {
				return ChargeResp{}, err
			}

			nc, err := req.toNewCharge()
			if err != nil {
				return ChargeResp{}, err
			}

			ch, err := s.customer.AddCharge(ctx, id, nc)
			if err != nil {
				return ChargeResp{}, err
			}
			return toChargeResp(ch), nil
		},
	)
}

func getID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", customer.ErrNotFound, r.PathValue("id"))
	}
	return id, nil
}

func serveJSON[Req any, Resp any](
	w http.ResponseWriter,
	r *http.Request,
	s *Server,
	status int,
	fn func(ctx context.Context, r *http.Request, req Req) (Resp, error),
) {
	ctx := r.Context()

	var req Req
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			s.log.ErrorContext(ctx, "request must be a json", "content-type", r.Header.Get("Content-Type"))
			respond(ctx, w, s, http.StatusUnsupportedMediaType, ErrorResp{Error: "request must be a json"})
			return
		}

		err = json.NewDecoder(r.Body).Decode(&req)
		r.Body.Close()
		if err != nil {
			s.log.ErrorContext(ctx, "decoding json", "ERROR", err)
			respond(ctx, w, s, http.StatusBadRequest, ErrorResp{Error: "bad request"})
			return
		}
	}

	resp, err := fn(ctx, r, req)
	if err != nil {
		respondError(ctx, w, s, err)
		return
	}

	respond(ctx, w, s, status, resp)
}

func respondError(ctx context.Context, w http.ResponseWriter, s *Server, err error) {
	var cerr *customer.ConflictError

	switch {
	case errors.As(err, &cerr):
		s.log.InfoContext(ctx, "conflict", "ERROR", err)
		respond(ctx, w, s, http.StatusConflict, toConflictResp(cerr))

	case errors.Is(err, customer.ErrConflict):
		s.log.InfoContext(ctx, "conflict", "ERROR", err)
		respond(ctx, w, s, http.StatusConflict, ConflictResp{Errors: []FieldErrorResp{}})

	case errors.Is(err, customer.ErrNotFound):
		s.log.InfoContext(ctx, "not found", "ERROR", err)
		respond(ctx, w, s, http.StatusNotFound, ErrorResp{Error: customer.ErrNotFound.Error()})

	case errors.Is(err, customer.ErrInvalidArgument):
		s.log.InfoContext(ctx, "invalid argument", "ERROR", err)
		respond(ctx, w, s, http.StatusBadRequest, ErrorResp{Error: err.Error()})

	default:
		s.log.ErrorContext(ctx, "internal", "ERROR", err)
		respond(ctx, w, s, http.StatusInternalServerError, ErrorResp{Error: "internal error"})
	}
}

func respond(ctx context.Context, w http.ResponseWriter, s *Server, status int, data any) {
	web.SetStatusCode(ctx, status)

	bs, err := json.Marshal(data)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to encode response", "ERROR", err)
		web.SetStatusCode(ctx, http.StatusInternalServerError)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bs)
}
