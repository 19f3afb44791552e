package ports

import "github.com/alejandrodnm/galebot/internal/domain"

// ConfigStore persiste los cambios aceptados de strategy y risk para que
// sobrevivan a un reinicio.
type ConfigStore interface {
	SaveStrategy(cfg domain.StrategyConfig, risk domain.RiskConfig) error
}
