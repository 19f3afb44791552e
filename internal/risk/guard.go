// Package risk decides whether a proposed stake may be exposed given the
// balance and the capital protection rules. It has no side effects.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Deny reasons.
const (
	ReasonStopLossReached = "stop_loss_reached"
	ReasonInvalidAmount   = "invalid_amount"
	ReasonStopLossBreach  = "stop_loss_breach"
	ReasonGuaranteeFund   = "guarantee_fund"
)

// Verdict is the outcome of an authorization. Denials always carry a reason.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Fatal reports whether the denial means the bot must stop betting altogether.
func (v Verdict) Fatal() bool {
	return !v.Allowed && v.Reason == ReasonStopLossReached
}

// Err converts a denial into a domain error, nil when allowed.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	kind := domain.KindRiskViolation
	if v.Fatal() {
		kind = domain.KindStopLossReached
	}
	return domain.Errorf(kind, "risk.Authorize", "%s: %s", v.Reason, v.Detail)
}

func allow() Verdict { return Verdict{Allowed: true} }

func deny(reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Authorize evaluates a stake against the balance. Keepalive stakes are
// exempt from the guarantee fund rule only.
func Authorize(amount decimal.Decimal, keepalive bool, bal domain.Balance, cfg domain.RiskConfig) Verdict {
	if bal.Current.LessThanOrEqual(cfg.StopLoss) {
		return deny(ReasonStopLossReached, "balance %s is at or below stop loss %s",
			bal.Current.StringFixed(2), cfg.StopLoss.StringFixed(2))
	}
	if !amount.IsPositive() {
		return deny(ReasonInvalidAmount, "amount %s must be positive", amount.String())
	}
	if bal.Current.Sub(amount).LessThan(cfg.StopLoss) {
		return deny(ReasonStopLossBreach, "losing %s would leave %s, below stop loss %s",
			amount.StringFixed(2), bal.Current.Sub(amount).StringFixed(2), cfg.StopLoss.StringFixed(2))
	}
	if !keepalive {
		limit := bal.Current.Mul(cfg.SpendableFraction())
		if amount.GreaterThan(limit) {
			return deny(ReasonGuaranteeFund, "amount %s exceeds %s available outside the %s%% guarantee fund",
				amount.StringFixed(2), limit.StringFixed(2), cfg.GuaranteeFundPct.String())
		}
	}
	return allow()
}

// CanStart reports whether betting may begin with the given balance.
func CanStart(bal domain.Balance, cfg domain.RiskConfig) Verdict {
	if bal.Current.LessThanOrEqual(cfg.StopLoss) {
		return deny(ReasonStopLossReached, "balance %s is at or below stop loss %s",
			bal.Current.StringFixed(2), cfg.StopLoss.StringFixed(2))
	}
	return allow()
}
