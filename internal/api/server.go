package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/viper"

	"github.com/sparkuma/spark-wallet/internal/logger"
)

// Router builds the HTTP routes. The UMA protocol endpoints are public,
// the wallet endpoints sit behind the challenge login.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return a.CORSMiddleware(next.ServeHTTP)
	})

	r.Route("/api/uma", func(r chi.Router) {
		r.Get("/lnurlp", a.HandleLNURLP)
		r.Post("/lnurlp", a.HandleLNURLPCallback)
		r.Post("/payreq", a.HandlePayReq)
		r.Post("/send-payment", a.HandleSendPayment)
	})

	r.Get("/challenge", a.HandleChallengeRequest)
	r.Post("/verify", a.VerifyChallenge)

	r.Route("/api/wallet", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return a.JWTMiddleware(next.ServeHTTP)
		})
		r.Get("/balance", a.HandleBalance)
		r.Get("/transfers", a.HandleTransfers)
		r.Post("/transfer", a.HandleTransfer)
		r.Post("/invoice", a.HandleCreateInvoice)
		r.Post("/pay-invoice", a.HandlePayInvoice)
		r.Post("/deposit-address", a.HandleDepositAddress)
		r.Get("/deposit-addresses/unused", a.HandleUnusedDepositAddresses)
		r.Post("/withdraw", a.HandleWithdraw)

		r.Get("/uma/account", a.HandleUMAAccount)
		r.Post("/uma/account", a.HandleCreateUMAAccount)
		r.Get("/uma/transactions", a.HandleUMATransactions)
		r.Get("/uma/activities", a.HandleActivities)
		r.Get("/uma/recipients", a.HandleRecipients)
		r.Post("/uma/recipients", a.HandleAddRecipient)
	})

	return r
}

// StartServer runs the API until the context is cancelled, then shuts
// down gracefully.
func (a *API) StartServer(ctx context.Context) error {
	port := viper.GetInt("api_port")
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: a.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening on port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
