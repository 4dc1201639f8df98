package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nwehbe/waterops/internal/api"
	"github.com/nwehbe/waterops/internal/auth"
	"github.com/nwehbe/waterops/internal/billing"
	"github.com/nwehbe/waterops/internal/config"
	"github.com/nwehbe/waterops/internal/cron"
	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/migrate"
	"github.com/nwehbe/waterops/internal/notify"
	"github.com/nwehbe/waterops/internal/pump"
	"github.com/nwehbe/waterops/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:   "waterops",
		Short: "Water-utility back office: pump dispatch, usage billing, notifications",
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with an in-process billing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.AutoMigrate {
				if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
					log.Printf("auto-migration failed: %v", err)
				}
			}

			st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer st.Close()

			authSvc, err := auth.NewService(st)
			if err != nil {
				return err
			}

			var mailer *notify.Mailer
			var billMailer billing.Mailer
			if emailCfg := notify.EmailConfigFromEnv(); emailCfg.Enabled {
				mailer = notify.NewMailer(emailCfg)
				billMailer = mailer
			}
			hub := notify.NewHub()
			notifySvc := notify.NewService(st, hub)
			hw := hardware.NewHTTPClient(cfg.HardwareURL, cfg.HardwareTimeout)
			dispatcher := pump.NewDispatcher(st, hw, notifySvc)
			runner := billing.NewRunner(st, notifySvc, billMailer)

			worker := cron.NewWorker(st, runner, cfg.BillingInterval)
			go func() {
				if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("billing worker stopped: %v", err)
				}
			}()

			server := api.NewServer(st, authSvc, cfg.AuthEnabled, notifySvc, dispatcher, hw, mailer)
			srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.NewMux()}

			go func() {
				<-ctx.Done()
				_ = srv.Shutdown(context.Background())
			}()

			log.Printf("waterops listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the billing reconciliation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
			if err != nil {
				return err
			}
			defer st.Close()

			hub := notify.NewHub()
			notifySvc := notify.NewService(st, hub)
			var billMailer billing.Mailer
			if emailCfg := notify.EmailConfigFromEnv(); emailCfg.Enabled {
				billMailer = notify.NewMailer(emailCfg)
			}
			runner := billing.NewRunner(st, notifySvc, billMailer)

			worker := cron.NewWorker(st, runner, cfg.BillingInterval)
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Run schema migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx := context.Background()
			switch args[0] {
			case "up":
				return migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN)
			case "down":
				return migrate.Down(ctx, cfg.DBDriver, cfg.DBDSN)
			case "status":
				return migrate.Status(ctx, cfg.DBDriver, cfg.DBDSN)
			default:
				return cmd.Usage()
			}
		},
	}
	return cmd
}
