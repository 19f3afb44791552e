package eventlog_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/galebot/internal/adapters/eventlog"
	"github.com/alejandrodnm/galebot/internal/domain"
)

func TestWriter_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := eventlog.New(eventlog.Config{Path: path, MaxSize: 1})
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, w.Handle(ctx, domain.Event{Seq: 1, Time: now, Payload: domain.StatusChange{Status: domain.StatusRunning, Previous: domain.StatusIdle, Mode: domain.ModeFullAuto}}))
	require.NoError(t, w.Handle(ctx, domain.Event{Seq: 2, Time: now, Payload: domain.NewResult{Outcome: domain.NewOutcome(9, 14, now)}}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "status_change", lines[0]["type"])
	assert.Equal(t, float64(1), lines[0]["sequence"])
	assert.Equal(t, "new_result", lines[1]["type"])
	payload := lines[1]["payload"].(map[string]any)
	outcome := payload["outcome"].(map[string]any)
	assert.Equal(t, float64(14), outcome["value"])
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := eventlog.New(eventlog.Config{})
	assert.Error(t, err)
}
