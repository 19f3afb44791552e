package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/galebot/config"
	"github.com/alejandrodnm/galebot/internal/adapters/notify"
	"github.com/alejandrodnm/galebot/internal/adapters/storage"
	"github.com/alejandrodnm/galebot/internal/application/stats"
	"github.com/alejandrodnm/galebot/internal/ledger"
)

const reportRecentBets = 20

// runReport prints the latest session from storage without starting the bot.
func runReport(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
	sess, ok, err := store.LatestSession(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no sessions recorded yet")
		return nil
	}

	led, err := ledger.Open(ctx, store, sess.InitialBalance, sess.TestMode, true)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	outcomes, err := store.OutcomesBetween(ctx, sess.StartedAt, time.Now())
	if err != nil {
		return err
	}

	recent, _ := led.History(0, reportRecentBets)
	notify.NewConsole(false).PrintReport(notify.ReportInput{
		Session: sess,
		Balance: led.Balance(),
		Report:  stats.FromLedger(led.Bets(), outcomes, loc),
		Recent:  recent,
	})
	return nil
}
