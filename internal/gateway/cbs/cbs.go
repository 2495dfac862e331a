// Package cbs - шлюз к основной банковской системе (KYC и история транзакций).
package cbs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/gateway"
	"github.com/iurnickita/loanmanager/internal/gateway/cbs/config"
	"github.com/iurnickita/loanmanager/internal/model"
)

type Client interface {
	GetCustomerInfo(ctx context.Context, customer string) (model.CustomerInfo, error)
	GetTransactionHistory(ctx context.Context, customer string) ([]model.Transaction, error)
	Mode() gateway.Mode
}

// ErrCustomerNotFound - номера нет в CBS. Ошибка данных, не транспорта.
var ErrCustomerNotFound = errors.New("customer not found")

type client struct {
	sw   *gateway.Switch
	rest *resty.Client
}

func NewClient(cfg config.Config, zaplog *zap.Logger) Client {
	mode := gateway.ModeLive
	if cfg.UseLocal {
		mode = gateway.ModeLocal
	}
	return &client{
		sw: gateway.NewSwitch("cbs", mode, zaplog),
		rest: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout),
	}
}

func (c *client) Mode() gateway.Mode {
	return c.sw.Mode()
}

func (c *client) GetCustomerInfo(ctx context.Context, customer string) (model.CustomerInfo, error) {
	return gateway.Call(ctx, c.sw, "GetCustomerInfo",
		func(ctx context.Context) (model.CustomerInfo, error) {
			return c.liveCustomerInfo(ctx, customer)
		},
		func(context.Context) (model.CustomerInfo, error) {
			return localCustomerInfo(customer)
		})
}

func (c *client) GetTransactionHistory(ctx context.Context, customer string) ([]model.Transaction, error) {
	return gateway.Call(ctx, c.sw, "GetTransactionHistory",
		func(ctx context.Context) ([]model.Transaction, error) {
			return c.liveTransactionHistory(ctx, customer)
		},
		func(context.Context) ([]model.Transaction, error) {
			return localTransactionHistory(customer)
		})
}

// JSON ответы CBS

type customerInfoAnswer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type transactionAnswer struct {
	AccountNumber                  string          `json:"accountNumber"`
	MonthlyBalance                 decimal.Decimal `json:"monthlyBalance"`
	CreditTransactionsAmount       decimal.Decimal `json:"credittransactionsAmount"`
	MonthlyDebitTransactionsAmount decimal.Decimal `json:"monthlydebittransactionsAmount"`
	LastTransactionDate            string          `json:"lastTransactionDate"`
}

// get запрашивает данные клиента. Номер подставляется в путь с экранированием.
func (c *client) get(ctx context.Context, path, customer string) ([]byte, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("number", customer).
		Get(path)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return resp.Body(), nil
	default:
		return nil, fmt.Errorf("cbs request status: %d", resp.StatusCode())
	}
}

func (c *client) liveCustomerInfo(ctx context.Context, customer string) (model.CustomerInfo, error) {
	body, err := c.get(ctx, "/customers/{number}", customer)
	if err != nil {
		return model.CustomerInfo{}, err
	}
	var answer customerInfoAnswer
	if err = json.Unmarshal(body, &answer); err != nil {
		return model.CustomerInfo{}, fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
	}
	return model.CustomerInfo{FirstName: answer.FirstName, LastName: answer.LastName}, nil
}

func (c *client) liveTransactionHistory(ctx context.Context, customer string) ([]model.Transaction, error) {
	body, err := c.get(ctx, "/customers/{number}/transactions", customer)
	if err != nil {
		return nil, err
	}
	var answers []transactionAnswer
	if err = json.Unmarshal(body, &answers); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
	}
	transactions := make([]model.Transaction, 0, len(answers))
	for _, answer := range answers {
		date, err := parseDate(answer.LastTransactionDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedResponse, err)
		}
		transactions = append(transactions, model.Transaction{
			AccountNumber:                  answer.AccountNumber,
			MonthlyBalance:                 answer.MonthlyBalance,
			CreditTransactionsAmount:       answer.CreditTransactionsAmount,
			MonthlyDebitTransactionsAmount: answer.MonthlyDebitTransactionsAmount,
			LastTransactionDate:            date,
		})
	}
	return transactions, nil
}

// CBS отдает дату как с временем, так и без
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, value)
}
