package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/api"
	"github.com/sparkuma/spark-wallet/internal/certs"
	"github.com/sparkuma/spark-wallet/internal/config"
	walletstatedb "github.com/sparkuma/spark-wallet/internal/database"
	"github.com/sparkuma/spark-wallet/internal/lightspark"
	"github.com/sparkuma/spark-wallet/internal/logger"
	"github.com/sparkuma/spark-wallet/internal/spark"
	"github.com/sparkuma/spark-wallet/internal/uma"
	"github.com/sparkuma/spark-wallet/internal/wallet"
)

var rootCmd = &cobra.Command{
	Use:   "spark-wallet",
	Short: "Spark UMA Wallet CLI",
	Long:  `A Spark wallet with UMA payments, in both interactive and CLI modes.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createWalletCmd)
	rootCmd.AddCommand(openWalletCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(depositAddressCmd)
	rootCmd.AddCommand(prepareEnvCmd)
}

func initConfig() {
	err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := logger.Init(viper.GetString("log_file")); err != nil {
		log.Printf("Error initializing logger: %s", err.Error())
	}
}

func main() {
	initConfig()
	if len(os.Args) > 1 {
		// CLI mode
		if err := rootCmd.Execute(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	} else {
		// Interactive mode
		interactiveMode()
	}
}

// app bundles the wired components shared by the commands.
type app struct {
	flat    *walletstatedb.GravitonStore
	indexed *walletstatedb.SQLiteStore
	session *wallet.Session
	uma     *uma.Service
}

func buildApp() (*app, error) {
	flat, err := walletstatedb.OpenGravitonStore(viper.GetString("wallet_db_path"))
	if err != nil {
		return nil, fmt.Errorf("opening wallet state store: %w", err)
	}

	indexPath := viper.GetString("index_db_path")
	if indexPath == "" {
		indexPath = viper.GetString("wallet_db_path") + "-index.db"
	}
	indexed, err := walletstatedb.OpenSQLiteStore(indexPath)
	if err != nil {
		return nil, fmt.Errorf("opening wallet index store: %w", err)
	}

	sparkClient := spark.NewHTTPClient(
		viper.GetString("spark_service_url"),
		viper.GetString("wallet_api_key"),
		viper.GetDuration("http_timeout"),
	)
	session := wallet.NewSession(sparkClient, flat, 0)

	protocol := uma.NewProtocolClient(viper.GetString("app_url"))
	umaService := uma.NewService(flat, indexed, protocol)

	return &app{
		flat:    flat,
		indexed: indexed,
		session: session,
		uma:     umaService,
	}, nil
}

func interactiveMode() {
	reader := bufio.NewReader(os.Stdin)

	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error setting up wallet: %v", err)
	}

	for {
		fmt.Println("\nSpark UMA Wallet")
		fmt.Println("1. Create a new wallet")
		fmt.Println("2. Open an existing wallet")
		fmt.Println("3. Send a UMA payment")
		fmt.Println("4. Show balance")
		fmt.Println("5. Deposit address")
		fmt.Println("6. Start API server")
		fmt.Println("7. Sign out")
		fmt.Println("8. Exit")
		fmt.Print("\nEnter your choice (1-8): ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)

		switch choice {
		case "1":
			if err := createWalletInteractive(reader, a); err != nil {
				log.Printf("Error creating wallet: %s", err)
			}
		case "2":
			if err := a.session.Restore(context.Background()); err != nil {
				log.Printf("Error opening wallet: %s", err)
			} else {
				fmt.Println("Wallet opened.")
				fmt.Println("Spark address:", a.session.SparkAddress())
			}
		case "3":
			if err := sendPaymentInteractive(reader, a); err != nil {
				log.Printf("Error sending payment: %s", err)
			}
		case "4":
			showBalance(a)
		case "5":
			showDepositAddress(a)
		case "6":
			if err := runServer(a); err != nil {
				log.Printf("Server error: %s", err)
			}
		case "7":
			if err := a.session.SignOut(); err != nil {
				log.Printf("Error signing out: %s", err)
				break
			}
			if err := a.uma.ClearAccount(); err != nil {
				log.Printf("Error clearing account: %s", err)
			}
			fmt.Println("Signed out.")
		case "8":
			fmt.Println("Exiting program. Goodbye!")
			return
		default:
			fmt.Println("Invalid choice. Please try again.")
		}
	}
}

func createWalletInteractive(reader *bufio.Reader, a *app) error {
	fmt.Print("Enter a username for your UMA address: ")
	username, _ := reader.ReadString('\n')

	mnemonic, err := a.session.Initialize(context.Background(), "")
	if err != nil {
		return err
	}

	account, err := a.uma.CreateAccount(strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if err := a.uma.SeedDefaultRecipients(); err != nil {
		logger.Warn("failed to seed recipients:", err)
	}

	fmt.Println("\nWallet created.")
	fmt.Println("UMA address:", account.Address)
	fmt.Println("\nYour recovery phrase (write it down and keep it safe):")
	fmt.Println(mnemonic)

	if err := clipboard.WriteAll(account.Address); err == nil {
		fmt.Println("\nUMA address copied to clipboard.")
	}
	return nil
}

func sendPaymentInteractive(reader *bufio.Reader, a *app) error {
	if !a.session.Initialized() {
		return fmt.Errorf("open a wallet first")
	}

	flow := a.uma.StartSendPayment()
	fmt.Println("Payment started:", flow.ID)

	recipients, err := a.uma.Recipients()
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no saved recipients")
	}
	fmt.Println("\nRecipients:")
	for i, r := range recipients {
		fmt.Printf("%d. %s (%s)\n", i+1, r.Name, r.Address)
	}
	fmt.Print("Choose a recipient: ")
	choice, _ := reader.ReadString('\n')
	idx, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || idx < 1 || idx > len(recipients) {
		return fmt.Errorf("invalid recipient choice")
	}
	if _, err := a.uma.SelectRecipient(recipients[idx-1].Address); err != nil {
		return err
	}

	fmt.Print("Amount (USD): ")
	amountStr, _ := reader.ReadString('\n')
	amount, err := strconv.ParseFloat(strings.TrimSpace(amountStr), 64)
	if err != nil {
		return fmt.Errorf("invalid amount: %v", err)
	}
	flow, err = a.uma.SetPaymentAmount(amount, "USD")
	if err != nil {
		return err
	}

	fmt.Printf("\nSending $%.2f to %s\n", flow.Amount, flow.Recipient.Address)
	fmt.Printf("Receiving amount: %.8f BTC\n", flow.ReceivingAmount)
	fmt.Printf("Fees: network %.3f + service %.3f = %.3f\n",
		flow.Fees.Network, flow.Fees.Service, flow.Fees.Total)
	fmt.Print("Confirm? (y/n): ")
	confirm, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(confirm)) != "y" {
		return a.uma.CancelPayment()
	}

	if _, err := a.uma.ConfirmPayment(context.Background()); err != nil {
		return err
	}
	fmt.Println("Payment complete.")
	return nil
}

func showBalance(a *app) {
	if !a.session.Initialized() {
		fmt.Println("Open a wallet first.")
		return
	}
	if err := a.session.RefreshBalance(context.Background()); err != nil {
		log.Printf("Error refreshing balance: %s", err)
	}
	balance := a.session.Balance()
	fmt.Printf("Balance: %d sats\n", balance.Sats)
	for token, amount := range balance.TokenBalances {
		fmt.Printf("  %s: %d\n", token, amount)
	}
}

func showDepositAddress(a *app) {
	if !a.session.Initialized() {
		fmt.Println("Open a wallet first.")
		return
	}
	addr, err := a.session.SingleUseDepositAddress(context.Background())
	if err != nil && addr == "" {
		log.Printf("Error generating deposit address: %s", err)
		return
	}
	fmt.Println("Deposit address:", addr)
	if err := clipboard.WriteAll(addr); err == nil {
		fmt.Println("Copied to clipboard.")
	}
}

func runServer(a *app) error {
	var ls *lightspark.Client
	lsClient, err := lightspark.NewClient(
		viper.GetString("lightspark_api_url"),
		viper.GetString("lightspark_client_id"),
		viper.GetString("lightspark_client_secret"),
		viper.GetDuration("http_timeout"),
	)
	if err != nil {
		logger.Warn("lightspark not configured, UMA endpoints degraded:", err)
	} else {
		ls = lsClient
	}

	material := certs.Load()
	if material == nil {
		logger.Warn("UMA certificates not configured, pay requests will fail")
	}

	walletName := viper.GetString("wallet_name")
	if walletName == "" {
		walletName = "default"
	}
	if err := api.EnsureJWTKey(walletName); err != nil {
		return fmt.Errorf("initializing JWT key: %w", err)
	}

	server := api.NewAPI(a.session, a.uma, ls, a.indexed, material, walletName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.session.RunBalanceRefresher(ctx)

	return server.StartServer(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet API server",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}
		if err := a.session.Restore(context.Background()); err != nil {
			log.Printf("No stored wallet, serving unauthenticated endpoints only: %s", err)
		}
		if err := runServer(a); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	},
}

var createWalletCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Create a new wallet and UMA account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}

		mnemonic, err := a.session.Initialize(context.Background(), "")
		if err != nil {
			log.Fatalf("Error creating wallet: %v", err)
		}
		account, err := a.uma.CreateAccount(args[0])
		if err != nil {
			log.Fatalf("Error creating account: %v", err)
		}
		if err := a.uma.SeedDefaultRecipients(); err != nil {
			logger.Warn("failed to seed recipients:", err)
		}

		fmt.Println("UMA address:", account.Address)
		fmt.Println("Recovery phrase:", mnemonic)
	},
}

var openWalletCmd = &cobra.Command{
	Use:   "open [mnemonic]",
	Short: "Open a wallet from the stored or a provided recovery phrase",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}

		if len(args) == 1 {
			_, err = a.session.Initialize(context.Background(), args[0])
		} else {
			err = a.session.Restore(context.Background())
		}
		if err != nil {
			log.Fatalf("Error opening wallet: %v", err)
		}
		fmt.Println("Wallet opened.")
		fmt.Println("Spark address:", a.session.SparkAddress())
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Get the current wallet balance",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}
		if err := a.session.Restore(context.Background()); err != nil {
			log.Fatalf("Error opening wallet: %v", err)
		}
		showBalance(a)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [receiver-spark-address] [amount-sats]",
	Short: "Send sats to a Spark address",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}
		if err := a.session.Restore(context.Background()); err != nil {
			log.Fatalf("Error opening wallet: %v", err)
		}

		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("Invalid amount: %v", err)
		}
		transfer, err := a.session.Transfer(context.Background(), args[0], amount)
		if err != nil {
			log.Fatalf("Error sending transfer: %v", err)
		}
		fmt.Printf("Sent %d sats to %s (id %s)\n",
			transfer.AmountSats, transfer.ReceiverAddress, transfer.ID)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transfer history",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}
		if err := a.session.Restore(context.Background()); err != nil {
			log.Fatalf("Error opening wallet: %v", err)
		}

		transfers, err := a.session.RefreshTransfers(context.Background(), 0, 0)
		if err != nil {
			// Fall back to the persisted view.
			transfers = a.session.Transfers()
		}
		for _, t := range transfers {
			fmt.Printf("%s  %8d sats  %-10s %s\n",
				t.Timestamp.Format("2006-01-02 15:04:05"), t.AmountSats, t.Status, t.ReceiverAddress)
		}
	},
}

var depositAddressCmd = &cobra.Command{
	Use:   "deposit-address",
	Short: "Generate a single-use deposit address",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			log.Fatalf("Error setting up wallet: %v", err)
		}
		if err := a.session.Restore(context.Background()); err != nil {
			log.Fatalf("Error opening wallet: %v", err)
		}
		showDepositAddress(a)
	},
}

var prepareEnvCmd = &cobra.Command{
	Use:   "prepare-env",
	Short: "Print UMA certificate environment values for deployment",
	Run: func(cmd *cobra.Command, args []string) {
		values, err := certs.PrepareEnvValues()
		if err != nil {
			log.Fatalf("Error preparing environment values: %v", err)
		}
		for key, value := range values {
			fmt.Printf("%s=%s\n", key, value)
		}
	},
}
