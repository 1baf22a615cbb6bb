package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/config"
)

func givenDaemonConfig() config.Config {
	cfg := config.Defaults()
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Scan.Schedule = "@every 1h"

	return cfg
}

func givenStartedDaemon(t *testing.T, cfg config.Config, logs io.Writer) *daemon {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	d, err := buildDaemon(context.Background(), cfg, logger, io.Discard)
	require.NoError(t, err)
	require.NoError(t, d.start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, d.shutdown(ctx))
	})

	return d
}

func givenLoan(t *testing.T, engine *circulation.Engine) {
	t.Helper()
	ctx := context.Background()

	item, err := engine.RegisterItem(ctx, uuid.Nil, circulation.ItemDetails{Title: "Clean Code", Creator: "Robert Martin", Category: "Programming"})
	require.NoError(t, err)

	holder, err := engine.RegisterHolder(ctx, uuid.Nil,
		circulation.Contact{Name: "Alice Johnson", Email: "alice@email.com", Phone: "+1234567890"},
		circulation.CategoryStudent,
	)
	require.NoError(t, err)

	_, err = engine.Issue(ctx, item.ID, holder.ID)
	require.NoError(t, err)
	require.NoError(t, engine.Flush(ctx))
}

func Test_Daemon_ServesEngineMetrics(t *testing.T) {
	// arrange
	d := givenStartedDaemon(t, givenDaemonConfig(), io.Discard)
	givenLoan(t, d.engine)

	// act
	resp, err := http.Get("http://" + d.metricsAddr + metricsPath)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `circulation_operations_total{error_type="",operation="issue",status="success"} 1`)
	assert.Contains(t, string(body), "circulation_items_on_loan 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func Test_Daemon_LogsIssueNoticesAndSchedulesTheScan(t *testing.T) {
	// arrange
	var logs bytes.Buffer
	d := givenStartedDaemon(t, givenDaemonConfig(), &logs)

	// act
	givenLoan(t, d.engine)

	// assert
	require.NotNil(t, d.scanner)
	assert.False(t, d.scanner.NextRun().IsZero())
	assert.Contains(t, logs.String(), `msg="issue notice"`)
	assert.Contains(t, logs.String(), `msg="overdue scanner started"`)
}

func Test_BuildDaemon_WithoutJournalOrSchedule(t *testing.T) {
	// arrange
	cfg := givenDaemonConfig()
	cfg.Journal.Driver = config.JournalNone
	cfg.Scan.Schedule = ""
	cfg.Tracing.Enabled = true

	// act
	d := givenStartedDaemon(t, cfg, io.Discard)

	// assert
	assert.Nil(t, d.scanner)
	givenLoan(t, d.engine)
}

func Test_BuildDaemon_RejectsAnInvalidSchedule(t *testing.T) {
	// arrange
	cfg := givenDaemonConfig()
	cfg.Scan.Schedule = "every now and then"

	// act
	d, err := buildDaemon(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)

	// assert
	assert.Error(t, err)
	assert.Nil(t, d)
}

func Test_NewLogger_HonorsLevelAndFormat(t *testing.T) {
	// arrange
	var out bytes.Buffer

	// act
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &out)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")

	// assert
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"msg":"shown"`)
}

func Test_ServeCommand_SaysTheCatalogIsFilledByAnEmbeddingProgram(t *testing.T) {
	// act
	cmd := newServeCmd(&cli{})

	// assert
	assert.Contains(t, cmd.Long, "catalog starts and stays empty")
	assert.Contains(t, cmd.Long, "embedding the circulation package")
}
