package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func loadInTempDir(t *testing.T) string {
	t.Helper()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	if err := LoadConfig(); err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return dir
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	dir := loadInTempDir(t)

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Errorf("expected a default config.json: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	loadInTempDir(t)

	if got := viper.GetInt("api_port"); got != 9003 {
		t.Errorf("api_port = %d, want 9003", got)
	}
	if got := viper.GetString("vasp_domain"); got != "spark-wallet.com" {
		t.Errorf("vasp_domain = %s", got)
	}
	if got := viper.GetInt64("uma_min_sendable_msats"); got != 1000 {
		t.Errorf("uma_min_sendable_msats = %d", got)
	}
	if got := viper.GetInt64("uma_max_sendable_msats"); got != 100000000000 {
		t.Errorf("uma_max_sendable_msats = %d", got)
	}
	if got := viper.GetFloat64("usd_to_btc_rate"); got != 0.000025 {
		t.Errorf("usd_to_btc_rate = %v", got)
	}
	if got := viper.GetInt64("payreq_conversion_rate"); got != 40000 {
		t.Errorf("payreq_conversion_rate = %d", got)
	}
	if got := viper.GetInt64("receiver_fees_msats"); got != 500 {
		t.Errorf("receiver_fees_msats = %d", got)
	}
	if got := viper.GetInt64("max_payment_fee_msats"); got != 1000 {
		t.Errorf("max_payment_fee_msats = %d", got)
	}
	if got := viper.GetFloat64("fee_network"); got != 0.001 {
		t.Errorf("fee_network = %v", got)
	}
	if got := viper.GetFloat64("fee_service"); got != 0.002 {
		t.Errorf("fee_service = %v", got)
	}
	if got := viper.GetString("confirm_failure_policy"); got != "abandon" {
		t.Errorf("confirm_failure_policy = %s", got)
	}
	if got := viper.GetString("balance_refresh_interval"); got != "30s" {
		t.Errorf("balance_refresh_interval = %s", got)
	}
}

func TestEnvBindings(t *testing.T) {
	t.Setenv("LIGHTSPARK_CLIENT_ID", "client-from-env")
	t.Setenv("UMA_PRIVATE_KEY_HEX", "abcd1234")
	t.Setenv("UMA_NOSTR_PUBKEY", "npub-from-env")

	loadInTempDir(t)

	if got := viper.GetString("lightspark_client_id"); got != "client-from-env" {
		t.Errorf("lightspark_client_id = %s", got)
	}
	if got := viper.GetString("uma_private_key_hex"); got != "abcd1234" {
		t.Errorf("uma_private_key_hex = %s", got)
	}
	if got := viper.GetString("uma_nostr_pubkey"); got != "npub-from-env" {
		t.Errorf("uma_nostr_pubkey = %s", got)
	}
}
