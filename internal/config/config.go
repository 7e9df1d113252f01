package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig loads the configuration and sets default values for development/production
func LoadConfig() error {
	// Secrets (Lightspark credentials, UMA signing material) come from the
	// environment; a local .env is honored when present.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".") // Path to look for the config file in

	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create a default one
			return createDefaultConfig()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Ensure we have sensible defaults in case they are not in the config file
	setDefaults()

	return nil
}

// bindEnvVars wires the environment-only settings into viper
func bindEnvVars() {
	viper.BindEnv("lightspark_client_id", "LIGHTSPARK_CLIENT_ID")
	viper.BindEnv("lightspark_client_secret", "LIGHTSPARK_CLIENT_SECRET")
	viper.BindEnv("lightspark_node_id", "LIGHTSPARK_NODE_ID")
	viper.BindEnv("uma_certificate", "UMA_CERTIFICATE")
	viper.BindEnv("uma_private_key", "UMA_PRIVATE_KEY")
	viper.BindEnv("uma_private_key_hex", "UMA_PRIVATE_KEY_HEX")
	viper.BindEnv("uma_nostr_pubkey", "UMA_NOSTR_PUBKEY")
	viper.BindEnv("app_url", "APP_URL")
}

// setDefaults sets default configuration values based on the environment
func setDefaults() {
	// Check the current environment (default is development)
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	// Set defaults for development and production environments
	if env == "development" {
		viper.SetDefault("app_url", "http://localhost:3000")
		viper.SetDefault("spark_service_url", "http://localhost:9735")
		viper.SetDefault("lightspark_api_url", "https://api.lightspark.com/graphql/server/rc")
		viper.SetDefault("allowed_origin", "http://localhost:3000")
		viper.SetDefault("wallet_db_path", "./dev_wallet.db")
		viper.SetDefault("log_level", "debug")
	} else if env == "production" {
		viper.SetDefault("app_url", "https://spark-wallet.com")
		viper.SetDefault("spark_service_url", "https://spark.spark-wallet.com")
		viper.SetDefault("lightspark_api_url", "https://api.lightspark.com/graphql/server/2023-09-13")
		viper.SetDefault("allowed_origin", "https://spark-wallet.com")
		viper.SetDefault("wallet_db_path", "/var/lib/spark-wallet/wallet.db")
		viper.SetDefault("log_level", "info")
	}

	// Common defaults for both environments
	viper.SetDefault("network", "mainnet") // or "testnet" or "regtest"
	viper.SetDefault("vasp_domain", "spark-wallet.com")
	viper.SetDefault("wallet_name", "")
	viper.SetDefault("api_port", 9003)
	viper.SetDefault("use_https", false)
	viper.SetDefault("cert_file", "server.crt")
	viper.SetDefault("key_file", "server.key")
	viper.SetDefault("log_file", "wallet.log")
	viper.SetDefault("db_backend", "graviton") // or "sqlite"
	viper.SetDefault("wallet_dir", "./wallets")
	viper.SetDefault("jwt_keys_dir", "./jwtkeys")
	viper.SetDefault("wallet_api_key", "")
	viper.SetDefault("server_mode", true)

	// UMA protocol settings
	viper.SetDefault("uma_min_sendable_msats", 1000)          // 1 sat minimum
	viper.SetDefault("uma_max_sendable_msats", 100000000000)  // 1 BTC maximum
	viper.SetDefault("usd_to_btc_rate", 0.000025)             // 1 USD = 0.000025 BTC
	viper.SetDefault("payreq_conversion_rate", 40000)         // msats per receiving-currency unit
	viper.SetDefault("receiver_fees_msats", 500)
	viper.SetDefault("max_payment_fee_msats", 1000)
	viper.SetDefault("fee_network", 0.001)
	viper.SetDefault("fee_service", 0.002)
	viper.SetDefault("confirm_failure_policy", "abandon") // or "return_to_confirm"

	// Timers and limits
	viper.SetDefault("balance_refresh_interval", "30s")
	viper.SetDefault("http_timeout", "15s")
	viper.SetDefault("max_retained_items", 100)
}

// createDefaultConfig creates a new configuration file if it doesn't exist
func createDefaultConfig() error {
	setDefaults()

	// Write the default configuration to a file
	err := viper.SafeWriteConfig()
	if err != nil {
		if os.IsExist(err) {
			// If the config already exists, attempt to overwrite it
			err = viper.WriteConfig()
			if err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}
