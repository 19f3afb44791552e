package domain

import (
	"fmt"
	"time"
)

// Mode selects what the orchestrator does with each outcome.
type Mode string

const (
	ModeFullAuto       Mode = "full_auto"
	ModeDetectOnly     Mode = "detect_only"
	ModeMaintenance    Mode = "maintenance"
	ModeManualAnalysis Mode = "manual_analysis"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFullAuto, ModeDetectOnly, ModeMaintenance, ModeManualAnalysis:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// PlacesRealBets reports whether the mode sends wagers to the executor.
func (m Mode) PlacesRealBets() bool {
	return m == ModeFullAuto || m == ModeMaintenance
}

// Status is the bot-level state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping" // draining the in-flight bet before idle
	StatusError    Status = "error"
)

// Snapshot is the read-only view handed to the command and query surfaces.
type Snapshot struct {
	Status        Status    `json:"status"`
	Mode          Mode      `json:"mode"`
	Running       bool      `json:"running"`
	TestMode      bool      `json:"test_mode"`
	SessionID     string    `json:"session_id"`
	Balance       Balance   `json:"balance"`
	ActiveBet     *Bet      `json:"active_bet"`
	Phase         string    `json:"phase"`
	Gale          GaleState `json:"gale"`
	LastSpin      int64     `json:"last_spin"`
	PendingMode   *Mode     `json:"pending_mode,omitempty"`
	ConfigPending bool      `json:"config_pending"`
	Reason        string    `json:"reason,omitempty"`
	TotalBets     int       `json:"total_bets"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	UpdatedAt     time.Time `json:"updated_at"`
}
