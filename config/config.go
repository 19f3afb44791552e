package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/galebot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Source   SourceConfig   `yaml:"source"`
	Executor ExecutorConfig `yaml:"executor"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Events   EventsConfig   `yaml:"events"`
}

// BotConfig controla el loop del orquestador.
type BotConfig struct {
	Mode                string        `yaml:"mode" validate:"oneof=full_auto detect_only maintenance manual_analysis"`
	TestMode            bool          `yaml:"test_mode"`
	Autostart           bool          `yaml:"autostart"`
	Resume              bool          `yaml:"resume"` // recarga la última sesión con el mismo test_mode
	KeepaliveEverySpins int           `yaml:"keepalive_every_spins" validate:"min=0"`
	PlacementTimeout    time.Duration `yaml:"placement_timeout" validate:"min=0"`
	OutcomeTimeout      time.Duration `yaml:"outcome_timeout" validate:"min=0"`
	ReconnectBase       time.Duration `yaml:"reconnect_base" validate:"min=0"`
	ReconnectMax        time.Duration `yaml:"reconnect_max" validate:"min=0"`
	HistorySize         int           `yaml:"history_size" validate:"min=0"`
	Timezone            string        `yaml:"timezone"` // corte de día de las estadísticas diarias
}

// StrategyConfig refleja domain.StrategyConfig con los importes como texto para
// que los decimales sobrevivan al ida y vuelta por YAML.
type StrategyConfig struct {
	Name           string            `yaml:"name" validate:"required"`
	BaseBet        string            `yaml:"base_bet" validate:"required,numeric"`
	MaxGales       int               `yaml:"max_gales" validate:"min=0,max=30"`
	Multiplier     string            `yaml:"multiplier" validate:"omitempty,numeric"`
	StreakLength   int               `yaml:"streak_length" validate:"min=1"`
	ZeroPolicy     string            `yaml:"zero_policy" validate:"oneof=neutral count_as_loss reset_streak"`
	Pattern        string            `yaml:"bet_color_pattern" validate:"oneof=opposite same custom"`
	Market         string            `yaml:"market" validate:"oneof=parity color"`
	Progression    string            `yaml:"progression" validate:"oneof=martingale fibonacci custom"`
	Sequence       []string          `yaml:"sequence,omitempty" validate:"dive,numeric"`
	CustomRules    map[string]string `yaml:"custom_rules,omitempty"`
	KeepaliveStake string            `yaml:"keepalive_stake,omitempty" validate:"omitempty,numeric"`
	KeepaliveBet   string            `yaml:"keepalive_bet,omitempty"`
}

// RiskConfig contiene las reglas de protección de capital.
type RiskConfig struct {
	InitialBalance   string `yaml:"initial_balance" validate:"required,numeric"`
	StopLoss         string `yaml:"stop_loss" validate:"omitempty,numeric"`
	GuaranteeFundPct string `yaml:"guarantee_fund_percentage" validate:"omitempty,numeric"`
}

// SourceConfig elige de dónde llegan los resultados.
type SourceConfig struct {
	Kind        string        `yaml:"kind" validate:"oneof=simulator replay detector"`
	Interval    time.Duration `yaml:"interval" validate:"min=0"`
	Seed        uint64        `yaml:"seed"`
	ReplayPath  string        `yaml:"replay_path" validate:"required_if=Kind replay"`
	DetectorURL string        `yaml:"detector_url" validate:"required_if=Kind detector,omitempty,url"`
}

// ExecutorConfig elige cómo se colocan las apuestas reales. En test_mode siempre
// se usa el executor paper.
type ExecutorConfig struct {
	Kind         string        `yaml:"kind" validate:"oneof=paper table"`
	URL          string        `yaml:"url" validate:"required_if=Kind table,omitempty,url"`
	APIKey       string        `yaml:"-"` // solo desde GALEBOT_EXECUTOR_KEY
	PaperLatency time.Duration `yaml:"paper_latency" validate:"min=0"`
}

// APIConfig controla la API HTTP de control.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta del archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	File       string `yaml:"file"` // copia opcional del log con rotación
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

// EventsConfig controla el broadcaster y el log de eventos JSON-lines.
type EventsConfig struct {
	QueueSize   int    `yaml:"queue_size" validate:"min=0"`
	Retention   int    `yaml:"retention" validate:"min=0"`
	MaxAttempts int    `yaml:"max_attempts" validate:"min=0"`
	LogPath     string `yaml:"log_path"`
	MaxSizeMB   int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups  int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays  int    `yaml:"max_age_days" validate:"min=0"`
	Compress    bool   `yaml:"compress"`
	Journal     bool   `yaml:"journal"` // guarda también cada evento en SQLite
}

var validate = validator.New()

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba primero las reglas del struct y luego las reglas de dominio
// que necesitan decimales.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
			}
			return domain.Errorf(domain.KindConfiguration, "config.Validate", "%s", strings.Join(msgs, "; "))
		}
		return domain.NewError(domain.KindConfiguration, "config.Validate", err)
	}
	st, err := c.Strategy.Domain()
	if err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return err
	}
	rk, err := c.Risk.Domain()
	if err != nil {
		return err
	}
	if err := rk.Validate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return domain.Errorf(domain.KindConfiguration, "config.Validate", "timezone %q: %v", c.Bot.Timezone, err)
	}
	return nil
}

// Location devuelve la zona horaria del corte de día de las estadísticas.
func (c *Config) Location() (*time.Location, error) {
	if c.Bot.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Bot.Timezone)
}

// Domain convierte la sección strategy.
func (s StrategyConfig) Domain() (domain.StrategyConfig, error) {
	const op = "config.Strategy"
	out := domain.StrategyConfig{
		Name:         s.Name,
		MaxGales:     s.MaxGales,
		StreakLength: s.StreakLength,
		ZeroPolicy:   domain.ZeroPolicy(s.ZeroPolicy),
		Pattern:      domain.Pattern(s.Pattern),
		Market:       domain.Market(s.Market),
		Progression:  domain.Progression(s.Progression),
		KeepaliveBet: domain.BetType(s.KeepaliveBet),
	}
	var err error
	if out.BaseBet, err = parseDecimal(s.BaseBet, "0"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "base_bet: %v", err)
	}
	if out.Multiplier, err = parseDecimal(s.Multiplier, "2"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "multiplier: %v", err)
	}
	if out.KeepaliveStake, err = parseDecimal(s.KeepaliveStake, "0"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "keepalive_stake: %v", err)
	}
	for i, f := range s.Sequence {
		d, err := decimal.NewFromString(f)
		if err != nil {
			return out, domain.Errorf(domain.KindConfiguration, op, "sequence[%d]: %v", i, err)
		}
		out.Sequence = append(out.Sequence, d)
	}
	if len(s.CustomRules) > 0 {
		out.CustomRules = make(map[domain.Class]domain.BetType, len(s.CustomRules))
		for class, bt := range s.CustomRules {
			out.CustomRules[domain.Class(class)] = domain.BetType(bt)
		}
	}
	return out, nil
}

// FromDomainStrategy convierte una estrategia de dominio para el archivo YAML.
func FromDomainStrategy(d domain.StrategyConfig) StrategyConfig {
	out := StrategyConfig{
		Name:         d.Name,
		BaseBet:      d.BaseBet.String(),
		MaxGales:     d.MaxGales,
		Multiplier:   d.Multiplier.String(),
		StreakLength: d.StreakLength,
		ZeroPolicy:   string(d.ZeroPolicy),
		Pattern:      string(d.Pattern),
		Market:       string(d.Market),
		Progression:  string(d.Progression),
		KeepaliveBet: string(d.KeepaliveBet),
	}
	if !d.KeepaliveStake.IsZero() {
		out.KeepaliveStake = d.KeepaliveStake.String()
	}
	for _, f := range d.Sequence {
		out.Sequence = append(out.Sequence, f.String())
	}
	if len(d.CustomRules) > 0 {
		out.CustomRules = make(map[string]string, len(d.CustomRules))
		for class, bt := range d.CustomRules {
			out.CustomRules[string(class)] = string(bt)
		}
	}
	return out
}

// Domain convierte la sección risk.
func (r RiskConfig) Domain() (domain.RiskConfig, error) {
	const op = "config.Risk"
	var (
		out domain.RiskConfig
		err error
	)
	if out.InitialBalance, err = parseDecimal(r.InitialBalance, "0"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "initial_balance: %v", err)
	}
	if out.StopLoss, err = parseDecimal(r.StopLoss, "0"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "stop_loss: %v", err)
	}
	if out.GuaranteeFundPct, err = parseDecimal(r.GuaranteeFundPct, "0"); err != nil {
		return out, domain.Errorf(domain.KindConfiguration, op, "guarantee_fund_percentage: %v", err)
	}
	return out, nil
}

// FromDomainRisk convierte las reglas de riesgo de dominio para el archivo YAML.
func FromDomainRisk(d domain.RiskConfig) RiskConfig {
	return RiskConfig{
		InitialBalance:   d.InitialBalance.String(),
		StopLoss:         d.StopLoss.String(),
		GuaranteeFundPct: d.GuaranteeFundPct.String(),
	}
}

func parseDecimal(s, def string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GALEBOT_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("GALEBOT_DETECTOR_URL"); v != "" {
		cfg.Source.DetectorURL = v
	}
	if v := os.Getenv("GALEBOT_EXECUTOR_URL"); v != "" {
		cfg.Executor.URL = v
	}
	if v := os.Getenv("GALEBOT_EXECUTOR_KEY"); v != "" {
		cfg.Executor.APIKey = v
	}
	if v := os.Getenv("GALEBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = string(domain.ModeDetectOnly)
	}
	if cfg.Bot.PlacementTimeout <= 0 {
		cfg.Bot.PlacementTimeout = 5 * time.Second
	}
	if cfg.Bot.OutcomeTimeout <= 0 {
		cfg.Bot.OutcomeTimeout = 90 * time.Second
	}
	if cfg.Bot.ReconnectBase <= 0 {
		cfg.Bot.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.Bot.ReconnectMax <= 0 {
		cfg.Bot.ReconnectMax = 30 * time.Second
	}
	if cfg.Bot.HistorySize <= 0 {
		cfg.Bot.HistorySize = 500
	}

	def := domain.DefaultStrategyConfig()
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = def.Name
	}
	if cfg.Strategy.BaseBet == "" {
		cfg.Strategy.BaseBet = def.BaseBet.String()
	}
	if cfg.Strategy.Multiplier == "" {
		cfg.Strategy.Multiplier = def.Multiplier.String()
	}
	if cfg.Strategy.StreakLength == 0 {
		cfg.Strategy.StreakLength = def.StreakLength
	}
	if cfg.Strategy.ZeroPolicy == "" {
		cfg.Strategy.ZeroPolicy = string(def.ZeroPolicy)
	}
	if cfg.Strategy.Pattern == "" {
		cfg.Strategy.Pattern = string(def.Pattern)
	}
	if cfg.Strategy.Market == "" {
		cfg.Strategy.Market = string(def.Market)
	}
	if cfg.Strategy.Progression == "" {
		cfg.Strategy.Progression = string(def.Progression)
	}
	if cfg.Strategy.KeepaliveBet == "" {
		cfg.Strategy.KeepaliveBet = string(def.KeepaliveBet)
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "simulator"
	}
	if cfg.Source.Interval <= 0 {
		cfg.Source.Interval = 2 * time.Second
	}
	if cfg.Executor.Kind == "" {
		cfg.Executor.Kind = "paper"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = "127.0.0.1:8080"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "galebot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Events.MaxSizeMB == 0 {
		cfg.Events.MaxSizeMB = 100
	}
}
