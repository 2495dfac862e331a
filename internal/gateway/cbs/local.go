package cbs

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/loanmanager/internal/model"
)

// Тестовые клиенты локального режима
var localCustomers = map[string]model.CustomerInfo{
	"234774784": {FirstName: "John", LastName: "Regular"},
	"318411216": {FirstName: "Alice", LastName: "HighValue"},
	"340397370": {FirstName: "Bob", LastName: "New"},
	"366585630": {FirstName: "Charlie", LastName: "Existing"},
	"397178638": {FirstName: "David", LastName: "Rejected"},
}

func localCustomerInfo(customer string) (model.CustomerInfo, error) {
	info, ok := localCustomers[customer]
	if !ok {
		return model.CustomerInfo{}, ErrCustomerNotFound
	}
	return info, nil
}

func localTransactionHistory(customer string) ([]model.Transaction, error) {
	if _, ok := localCustomers[customer]; !ok {
		return nil, ErrCustomerNotFound
	}
	return []model.Transaction{{
		AccountNumber:                  "ACC-" + customer,
		MonthlyBalance:                 decimal.RequireFromString("100000.00"),
		CreditTransactionsAmount:       decimal.RequireFromString("50000.00"),
		MonthlyDebitTransactionsAmount: decimal.RequireFromString("30000.00"),
		LastTransactionDate:            time.Date(2024, time.March, 21, 0, 0, 0, 0, time.UTC),
	}}, nil
}
