package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/repo"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// isolate points every state path at a temp dir and turns off the network
// facing pieces.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LEDGER_PATH", filepath.Join(dir, "processed_items.json"))
	t.Setenv("QUOTA_PATH", filepath.Join(dir, "quota_state.json"))
	t.Setenv("DB_PATH", filepath.Join(dir, "journal.db"))
	t.Setenv("TARGET_ACCOUNTS", "")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("STATUS_ENABLED", "false")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	prev, lvl := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(lvl)
	})
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || out != version+"\n" {
		t.Fatalf("version: out=%q err=%v", out, err)
	}
}

func TestOnce_NoAccountsIsNothingToDo(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "once")
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	var o services.Outcome
	if err := json.Unmarshal([]byte(out), &o); err != nil {
		t.Fatalf("outcome json %q: %v", out, err)
	}
	if o.Kind != services.OutcomeNothingToDo || o.CycleID == "" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	// The gate check rolled the day over and persisted it.
	if st := repo.NewQuotaFile(filepath.Join(dir, "quota_state.json")).Load(); st.Date == "" {
		t.Fatalf("quota file not written: %+v", st)
	}
}

func TestStatus_ReadsStateFiles(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MAX_ACTIONS_PER_DAY", "4")

	ledger := repo.OpenLedger(filepath.Join(dir, "processed_items.json"))
	for _, id := range []string{"a", "b"} {
		if err := ledger.Record(id); err != nil {
			t.Fatal(err)
		}
	}
	quota := `{"actions_taken_today":1,"total_actions":6,"last_reset_date":"2026-05-04"}`
	if err := os.WriteFile(filepath.Join(dir, "quota_state.json"), []byte(quota), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "status", "--attempts", "5")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var rep statusReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("json %q: %v", out, err)
	}
	if rep.ProcessedItems != 2 || rep.TotalActions != 6 || rep.MaxPerDay != 4 || rep.Date != "2026-05-04" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestStatus_ItemReport(t *testing.T) {
	dir := isolate(t)

	ledger := repo.OpenLedger(filepath.Join(dir, "processed_items.json"))
	if err := ledger.Record("p1"); err != nil {
		t.Fatal(err)
	}
	db, err := repo.OpenSQLite(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := repo.CreateAttempt(ctx, db, domain.Attempt{CycleID: "c1", ItemID: "p1", Account: "acct", Outcome: domain.AttemptPublished}); err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	for _, tc := range []struct {
		id        string
		processed bool
		outcome   string
	}{
		{"p1", true, domain.AttemptPublished},
		{"unknown", false, ""},
	} {
		out, err := execute(t, "status", "--item", tc.id)
		if err != nil {
			t.Fatalf("status --item %s: %v", tc.id, err)
		}
		var rep statusReport
		if err := json.Unmarshal([]byte(out), &rep); err != nil {
			t.Fatalf("json %q: %v", out, err)
		}
		if rep.Item == nil || rep.Item.ID != tc.id || rep.Item.Processed != tc.processed {
			t.Fatalf("item report for %s = %+v", tc.id, rep.Item)
		}
		got := ""
		if rep.Item.LastAttempt != nil {
			got = rep.Item.LastAttempt.Outcome
		}
		if got != tc.outcome {
			t.Fatalf("last attempt outcome for %s = %q, want %q", tc.id, got, tc.outcome)
		}
	}
}

func TestConfigFileOverridesEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_ACTIONS_PER_DAY", "4")
	cfgPath := filepath.Join(t.TempDir(), "replybot.yaml")
	if err := os.WriteFile(cfgPath, []byte("MAX_ACTIONS_PER_DAY: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var rep statusReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rep.MaxPerDay != 2 {
		t.Fatalf("max per day = %d; want 2 from the config file", rep.MaxPerDay)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_ACTIONS_PER_DAY", "0")
	if _, err := execute(t, "status"); err == nil {
		t.Fatal("expected configuration error")
	}
}
