package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Клиенты

type Customer struct {
	ID        int64
	Number    string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Данные KYC из CBS
type CustomerInfo struct {
	FirstName string
	LastName  string
}

// Заявки на кредит

type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "PENDING"
	LoanStatusProcessing LoanStatus = "PROCESSING"
	LoanStatusApproved   LoanStatus = "APPROVED"
	LoanStatusRejected   LoanStatus = "REJECTED"
	LoanStatusFailed     LoanStatus = "FAILED"
)

var (
	LoanAmountMin = decimal.NewFromInt(1)
	LoanAmountMax = decimal.NewFromInt(1_000_000)
)

type LoanApplication struct {
	ID             string
	CustomerNumber string
	Amount         decimal.Decimal
	Status         LoanStatus
	ScoringToken   string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Скоринг

// Регистрация клиента в скоринговом движке
type ScoringEngineConfig struct {
	ClientID  int
	URL       string
	Name      string
	Username  string
	Password  string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ClientRegistration struct {
	URL      string
	Name     string
	Username string
	Password string
}

type ScoreStatus string

const (
	ScoreStatusPending   ScoreStatus = "PENDING"
	ScoreStatusCompleted ScoreStatus = "COMPLETED"
)

type ScoreResult struct {
	Status          ScoreStatus
	Approved        bool
	Score           int
	LimitAmount     decimal.Decimal
	CustomerNumber  string
	Exclusion       string
	ExclusionReason string
}

// Транзакции

type Transaction struct {
	AccountNumber                  string
	MonthlyBalance                 decimal.Decimal
	CreditTransactionsAmount       decimal.Decimal
	MonthlyDebitTransactionsAmount decimal.Decimal
	LastTransactionDate            time.Time
}
