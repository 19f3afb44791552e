package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session agrupa las apuestas de un ledger. Las sesiones de test contienen apuestas paper.
type Session struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"started_at"`
	TestMode       bool            `json:"test_mode"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}
