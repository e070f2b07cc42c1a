package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/reporting"
	"solana-fund-dao/internal/sweeper"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the expiry sweeper and the metrics/status HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if migrate {
				if err := runMigrations(ctx, cfg, log); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			done := make(chan struct{})
			defer close(done)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					log.Info("Received signal %v, initiating graceful shutdown...", sig)
					cancel()
				case <-done:
					return
				}

				// Wait for second signal for immediate shutdown
				select {
				case sig := <-sigCh:
					log.Warn("Received second signal %v, forcing immediate shutdown", sig)
					os.Exit(1)
				case <-time.After(30 * time.Second):
					log.Warn("Graceful shutdown timed out after 30s, forcing exit")
					os.Exit(1)
				case <-done:
				}
			}()

			return a.serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply storage migrations before serving")
	return cmd
}

// serve blocks until ctx is cancelled or the HTTP server fails.
func (a *app) serve(ctx context.Context) error {
	if a.cfg.Sweeper.Enabled {
		sw, err := sweeper.New(sweeper.Options{
			Schedule:    a.cfg.Sweeper.Schedule,
			Finalizer:   a.proposals,
			AutoExecute: a.cfg.Sweeper.AutoExecute,
			Approved:    a.ledger,
			Executor:    a.dispatcher,
			Metrics:     a.metrics,
			Logger:      a.log,
		})
		if err != nil {
			return err
		}
		if err := sw.Start(ctx); err != nil {
			return err
		}
		defer sw.Stop()
	} else {
		a.log.Info("Sweeper disabled; deadlines are enforced on access only")
	}

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("HTTP shutdown: %v", err)
	}
	a.log.Info("Shutdown complete")
	return nil
}

// fundStatus is one row of the /status response.
type fundStatus struct {
	ID            string            `json:"id"`
	Status        domain.FundStatus `json:"status"`
	Balance       uint64            `json:"balance"`
	ShareSupply   uint64            `json:"share_supply"`
	TotalExecuted uint64            `json:"total_executed"`
	Reserved      uint64            `json:"reserved"`
}

func (a *app) httpHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("GET /metrics", observability.HandlerFor(a.registry))

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		funds, err := a.funds.ListFunds(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		rows := make([]fundStatus, 0, len(funds))
		for _, f := range funds {
			rows = append(rows, fundStatus{
				ID:            f.ID,
				Status:        f.Status,
				Balance:       f.Balance,
				ShareSupply:   f.ShareSupply,
				TotalExecuted: f.TotalExecuted,
				Reserved:      a.funds.Registry().Reserved(f.ID),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"funds": rows})
	})

	mux.HandleFunc("GET /funds/{id}/statement", func(w http.ResponseWriter, r *http.Request) {
		report, err := a.reports.Generate(r.Context(), r.PathValue("id"))
		if errors.Is(err, domain.ErrFundNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte(reporting.RenderJournalCSV(report.Entries)))
		default:
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(reporting.RenderMarkdown(report)))
		}
	})

	return mux
}
