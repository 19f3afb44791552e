package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RiskConfig contiene las reglas de protección de capital.
type RiskConfig struct {
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	StopLoss         decimal.Decimal `json:"stop_loss"`
	GuaranteeFundPct decimal.Decimal `json:"guarantee_fund_percentage"`
}

var hundred = decimal.NewFromInt(100)

// Validate comprueba los rangos. Aquí no se exige InitialBalance por encima de
// StopLoss: en ese caso el orquestador se niega a arrancar y dice por qué.
func (r RiskConfig) Validate() error {
	var problems []string
	if r.InitialBalance.IsNegative() {
		problems = append(problems, "initial_balance must be >= 0")
	}
	if r.StopLoss.IsNegative() {
		problems = append(problems, "stop_loss must be >= 0")
	}
	if r.GuaranteeFundPct.IsNegative() || r.GuaranteeFundPct.GreaterThan(hundred) {
		problems = append(problems, "guarantee_fund_percentage must be in 0..100")
	}
	if len(problems) > 0 {
		return Errorf(KindConfiguration, "risk.Validate", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// SpendableFraction es la parte del balance que pueden usar las apuestas normales.
func (r RiskConfig) SpendableFraction() decimal.Decimal {
	return hundred.Sub(r.GuaranteeFundPct).Div(hundred)
}

// Balance es una vista de solo lectura derivada del ledger.
type Balance struct {
	Current decimal.Decimal `json:"current"`
	Initial decimal.Decimal `json:"initial"`
}

// ProfitLoss es el resultado de la sesión hasta ahora.
func (b Balance) ProfitLoss() decimal.Decimal {
	return b.Current.Sub(b.Initial)
}

func (b Balance) String() string {
	return fmt.Sprintf("%s (initial %s)", b.Current.StringFixed(2), b.Initial.StringFixed(2))
}
