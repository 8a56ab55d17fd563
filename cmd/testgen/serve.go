package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/testgen/internal/handler"
	appI18n "github.com/pavelanni/testgen/internal/i18n"
	"github.com/pavelanni/testgen/internal/ingest"
	"github.com/pavelanni/testgen/internal/session"
	"github.com/pavelanni/testgen/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default language for error messages (en, ru)")
	f.Bool("consume", false, "Also run the generated-test consumer")
	f.Bool("recompute-correctness", false, "Recompute answer correctness from the stored test")
	addDBFlags(f)
	addS3Flags(f)
	addAMQPFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	sessions := session.New(db, db, session.Options{
		RecomputeCorrectness: v.GetBool("recompute-correctness"),
	})

	// Without a broker the API serves tests and sessions only.
	var processor handler.Processor
	consumerDone := make(chan error, 1)
	if v.GetString("amqp-url") != "" {
		b, err := dialBroker(v)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer b.Close()

		p, err := newPipeline(v, b)
		if err != nil {
			return err
		}
		processor = p

		if v.GetBool("consume") {
			go func() { consumerDone <- b.Consume(ctx, ingest.New(db).Handle) }()
		}
	} else {
		slog.Warn("amqp-url is empty, lecture processing disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	handler.New(processor, db, sessions).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"processing", processor != nil,
		"consume", v.GetBool("consume"),
		"recompute_correctness", v.GetBool("recompute-correctness"),
	)

	var consumerErr error
	select {
	case err := <-serverDone:
		return err
	case consumerErr = <-consumerDone:
		if consumerErr != nil {
			slog.Error("consumer stopped", "error", consumerErr)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return consumerErr
}
