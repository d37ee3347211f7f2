package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	jwtinfra "github.com/erinder/internal/infrastructure/jwt"
	transporthttp "github.com/erinder/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	rootCmd := &cobra.Command{
		Use:           "erinder",
		Short:         "Reminder dispatch and email verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newDispatchCmd(), newBootstrapCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatch scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			withScheduler, _ := cmd.Flags().GetBool("scheduler")
			skipBootstrap, _ := cmd.Flags().GetBool("skip-bootstrap")
			return serve(cmd.Context(), withScheduler, !skipBootstrap)
		},
	}
	cmd.Flags().Bool("scheduler", true, "run the reminder dispatch scheduler in this process")
	cmd.Flags().Bool("skip-bootstrap", false, "do not create missing DynamoDB tables on startup")
	return cmd
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a single dispatch cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			report, err := a.scheduler().RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("due=%d delivered=%d sent=%d failed=%d skipped=%d\n",
				report.Due, report.Delivered, report.Sent, report.Failed, report.Skipped)
			return nil
		},
	}
}

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create DynamoDB tables, indexes and TTL settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			a.bootstrap(cmd.Context())
			return nil
		},
	}
}

func serve(ctx context.Context, withScheduler, bootstrap bool) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.log.Sync() }()

	if bootstrap {
		a.bootstrap(ctx)
	}

	codes, err := a.codeManager()
	if err != nil {
		return err
	}

	// JWT verifier is optional; reminder routes stay open without it.
	var verifier *jwtinfra.Verifier
	if a.cfg.JWTPublicKeyPath != "" {
		verifier, err = jwtinfra.NewVerifier(a.cfg.JWTPublicKeyPath)
		if err != nil {
			return fmt.Errorf("jwt verifier: %w", err)
		}
	} else {
		a.log.Warn("JWT_PUBLIC_KEY_PATH not set, reminder routes are unauthenticated")
	}

	router := transporthttp.NewRouter(a.cfg, &transporthttp.Deps{
		ReminderRepo: a.reminders,
		Codes:        codes,
		JWTVerifier:  verifier,
		Logger:       a.log,
		Done:         ctx.Done(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	if withScheduler {
		sched := a.scheduler()
		wg.Go(func() { sched.Run(ctx) })
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("port", a.cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.log.Error("server error", zap.Error(serveErr))
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("forced shutdown", zap.Error(err))
	}
	stop()
	wg.Wait()
	a.log.Info("server stopped")
	return serveErr
}
