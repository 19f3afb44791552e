package domain

import "github.com/shopspring/decimal"

// DayFormat es la clave de día de los buckets diarios.
const DayFormat = "2006-01-02"

// DailyStats es un día natural de actividad.
type DailyStats struct {
	Date       string          `json:"date"`
	Spins      int             `json:"spins"`
	Bets       int             `json:"bets"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Voids      int             `json:"voids"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

// GaleStats agrupa las apuestas liquidadas por el paso de gale en que se colocaron.
type GaleStats struct {
	Step       int             `json:"gale_step"`
	Bets       int             `json:"bets"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

// StrategyStats agrupa las apuestas liquidadas por nombre de estrategia.
type StrategyStats struct {
	Strategy   string          `json:"strategy"`
	Bets       int             `json:"bets"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	CyclesLost int             `json:"cycles_lost"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

// WinRate devuelve victorias sobre apuestas decididas, 0 si no hubo ninguna.
func (s StrategyStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided)
}

// Report agrupa todas las vistas de estadísticas.
type Report struct {
	Daily    []DailyStats    `json:"daily"`
	Gale     []GaleStats     `json:"gale"`
	Strategy []StrategyStats `json:"strategy"`
}
