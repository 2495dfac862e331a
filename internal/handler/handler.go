package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/auth"
	"github.com/iurnickita/loanmanager/internal/gzip"
	"github.com/iurnickita/loanmanager/internal/handler/config"
	"github.com/iurnickita/loanmanager/internal/logger"
	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Serve обслуживает HTTP API до отмены ctx.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		zaplog.Info("http server started", zap.String("address", cfg.ServerAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/client/createClient", gzip.GzipMiddleware(logger.RequestLogMdlw(h.CreateClient, h.zaplog)))
	mux.HandleFunc("POST /api/v1/subscribe", gzip.GzipMiddleware(logger.RequestLogMdlw(h.Subscribe, h.zaplog)))
	mux.HandleFunc("POST /api/v1/loan/request", gzip.GzipMiddleware(logger.RequestLogMdlw(h.RequestLoan, h.zaplog)))
	mux.HandleFunc("GET /api/v1/loan/status/{id}", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetLoanStatus, h.zaplog)))
	mux.HandleFunc("GET /api/v1/transactions/{number}", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.GetTransactions), h.zaplog)))
	mux.HandleFunc("GET /api/v1/scoring/initiateQueryScore/{number}", gzip.GzipMiddleware(logger.RequestLogMdlw(h.InitiateQueryScore, h.zaplog)))
	mux.HandleFunc("GET /api/v1/scoring/queryScore/{token}", gzip.GzipMiddleware(logger.RequestLogMdlw(h.QueryScore, h.zaplog)))
	mux.HandleFunc("GET /api/v1/gateways", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetGateways, h.zaplog)))

	return mux
}

type ErrorJSONResponse struct {
	Error string `json:"error"`
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

func (h *handler) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, ErrorJSONResponse{Error: err.Error()})
}

func (h *handler) readJSON(r *http.Request, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return err
	}
	return json.Unmarshal(buf.Bytes(), v)
}

type CreateClientJSONRequest struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateClientJSONResponse struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (h *handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var request CreateClientJSONRequest
	if err := h.readJSON(r, &request); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	registered, err := h.service.RegisterClient(r.Context(), model.ClientRegistration{
		URL:      request.URL,
		Name:     request.Name,
		Username: request.Username,
		Password: request.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientData):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, CreateClientJSONResponse{
		ID:    registered.ClientID,
		URL:   registered.URL,
		Name:  registered.Name,
		Token: registered.Token,
	})
}

type SubscribeJSONRequest struct {
	CustomerNumber string `json:"customer_number"`
}

type SubscribeJSONResponse struct {
	Message    string `json:"message"`
	CustomerID int64  `json:"customer_id"`
}

func (h *handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var request SubscribeJSONRequest
	if err := h.readJSON(r, &request); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := h.service.Subscribe(r.Context(), request.CustomerNumber)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientData),
			errors.Is(err, service.ErrCustomerNotFound):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, SubscribeJSONResponse{
		Message:    "Subscription successful",
		CustomerID: customer.ID,
	})
}

type RequestLoanJSONRequest struct {
	CustomerNumber string          `json:"customer_number"`
	Amount         decimal.Decimal `json:"amount"`
}

type RequestLoanJSONResponse struct {
	Message string `json:"message"`
	LoanID  string `json:"loan_id"`
}

func (h *handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var request RequestLoanJSONRequest
	if err := h.readJSON(r, &request); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	loan, err := h.service.RequestLoan(r.Context(), request.CustomerNumber, request.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientData),
			errors.Is(err, service.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, service.ErrCustomerNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, service.ErrActiveLoan):
			h.writeError(w, http.StatusConflict, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, RequestLoanJSONResponse{
		Message: "Loan application submitted successfully",
		LoanID:  loan.ID,
	})
}

type GetLoanStatusJSONResponse struct {
	ID        string    `json:"id"`
	Customer  string    `json:"customer"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *handler) GetLoanStatus(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.GetLoan(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLoanNotFound):
			h.writeError(w, http.StatusNotFound, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, GetLoanStatusJSONResponse{
		ID:        loan.ID,
		Customer:  loan.CustomerNumber,
		Amount:    loan.Amount.StringFixed(2),
		Status:    string(loan.Status),
		CreatedAt: loan.CreatedAt,
		UpdatedAt: loan.UpdatedAt,
	})
}

type TransactionJSONResponse struct {
	AccountNumber                  string    `json:"accountNumber"`
	MonthlyBalance                 string    `json:"monthlyBalance"`
	CreditTransactionsAmount       string    `json:"credittransactionsAmount"`
	MonthlyDebitTransactionsAmount string    `json:"monthlydebittransactionsAmount"`
	LastTransactionDate            time.Time `json:"lastTransactionDate"`
}

func (h *handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.GetTransactions(r.Context(), r.PathValue("number"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCustomerNotFound):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	transactionsJSON := make([]TransactionJSONResponse, 0, len(transactions))
	for _, transaction := range transactions {
		transactionsJSON = append(transactionsJSON, TransactionJSONResponse{
			AccountNumber:                  transaction.AccountNumber,
			MonthlyBalance:                 transaction.MonthlyBalance.StringFixed(2),
			CreditTransactionsAmount:       transaction.CreditTransactionsAmount.StringFixed(2),
			MonthlyDebitTransactionsAmount: transaction.MonthlyDebitTransactionsAmount.StringFixed(2),
			LastTransactionDate:            transaction.LastTransactionDate,
		})
	}
	h.writeJSON(w, http.StatusOK, transactionsJSON)
}

type InitiateQueryScoreJSONResponse struct {
	Token string `json:"token"`
}

func (h *handler) InitiateQueryScore(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.InitiateQueryScore(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, InitiateQueryScoreJSONResponse{Token: token})
}

type QueryScoreJSONResponse struct {
	CustomerNumber  string `json:"customerNumber"`
	Status          string `json:"status"`
	Approved        bool   `json:"approved"`
	Score           int    `json:"score"`
	LimitAmount     string `json:"limitAmount"`
	Exclusion       string `json:"exclusion"`
	ExclusionReason string `json:"exclusionReason"`
}

func (h *handler) QueryScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.service.QueryScore(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, QueryScoreJSONResponse{
		CustomerNumber:  score.CustomerNumber,
		Status:          string(score.Status),
		Approved:        score.Approved,
		Score:           score.Score,
		LimitAmount:     score.LimitAmount.StringFixed(2),
		Exclusion:       score.Exclusion,
		ExclusionReason: score.ExclusionReason,
	})
}

func (h *handler) GetGateways(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.GatewayModes())
}
