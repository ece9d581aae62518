package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Mode != ModePaper {
		t.Errorf("default mode = %q, want paper", cfg.Mode)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Slot.DurationMinutes = 7
	cfg.Strategy.PairDifferenceThreshold = 0.5
	cfg.Resolution.Source = "psychic"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("error should wrap ErrInvalidConfig: %v", err)
	}
	for _, want := range []string{"mode", "duration_minutes", "pair_difference_threshold", "resolution: source"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateTradeNeedsWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeTrade
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "wallet") {
		t.Fatalf("expected wallet error, got %v", err)
	}
	cfg.Wallet.PrivateKey = "0xabc"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMonitorNeedsWork(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeMonitor
	cfg.Resolution.Source = ResolutionPull
	cfg.Goldsky.URL = "https://example.com/subgraph"
	cfg.Server.Enabled = false
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "monitor:") {
		t.Fatalf("expected monitor error, got %v", err)
	}
	cfg.Server.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Server.Enabled = false
	cfg.Resolution.Source = ResolutionPush
	cfg.Chain.RPCURL = "wss://polygon.example"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("push monitor without server: %v", err)
	}
}

func TestValidateSlotDurations(t *testing.T) {
	for _, m := range []int{1, 5, 15, 30, 60} {
		cfg := Defaults()
		cfg.Slot.DurationMinutes = m
		if err := cfg.Validate(); err != nil {
			t.Errorf("%d minutes: %v", m, err)
		}
	}
	for _, m := range []int{0, -15, 7, 45, 120} {
		cfg := Defaults()
		cfg.Slot.DurationMinutes = m
		if err := cfg.Validate(); err == nil {
			t.Errorf("%d minutes: expected error", m)
		}
	}
}

func TestValidatePartialAPICreds(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.ApiKey = "k"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_passphrase") {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairbot.toml")
	body := `
mode = "monitor"

[slot]
tick_interval = "250ms"

[strategy]
order_size = 25
pair_difference_threshold = 2.0

[resolution]
source = "pull"
poll_interval = "3s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("PAIRBOT_STRATEGY_ORDER_SIZE", "40")
	t.Setenv("PAIRBOT_NOTIFY_EVENTS", "error, window_settle ,")
	t.Setenv("PAIRBOT_SLOT_DURATION_MINUTES", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeMonitor {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Slot.TickInterval.Duration != 250*time.Millisecond {
		t.Errorf("tick = %v", cfg.Slot.TickInterval.Duration)
	}
	if cfg.Strategy.OrderSize != 40 {
		t.Errorf("order size = %v, env should win", cfg.Strategy.OrderSize)
	}
	if cfg.Strategy.PairDifferenceThreshold != 2.0 {
		t.Errorf("threshold = %v", cfg.Strategy.PairDifferenceThreshold)
	}
	if cfg.Resolution.Source != ResolutionPull || cfg.Resolution.PollInterval.Duration != 3*time.Second {
		t.Errorf("resolution = %+v", cfg.Resolution)
	}
	if cfg.Slot.DurationMinutes != 15 {
		t.Errorf("unparseable override should be ignored, got %d", cfg.Slot.DurationMinutes)
	}
	if got := strings.Join(cfg.Notify.Events, "|"); got != "error|window_settle" {
		t.Errorf("events = %q", got)
	}
	if cfg.Chain.ChainID != 137 {
		t.Errorf("untouched default lost: chain_id = %d", cfg.Chain.ChainID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Supabase.Password = "pw"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	if out.Wallet.PrivateKey != redacted || out.Supabase.Password != redacted || out.Notify.TelegramToken != redacted {
		t.Errorf("secrets not redacted: %+v", out.Wallet)
	}
	if out.S3.SecretKey != "" {
		t.Errorf("empty secrets should stay empty")
	}
	if cfg.Wallet.PrivateKey != "0xsecret" {
		t.Error("original mutated")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] == "changed" {
		t.Error("slices alias the original")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load("../../config.example.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != ModePaper || cfg.Strategy.OrderSize != 10 || cfg.Settle.Timeout.Duration != 2*time.Hour {
		t.Errorf("cfg = %+v", cfg)
	}
}
