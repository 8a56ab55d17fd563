package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pavelanni/testgen/internal/ingest"
	"github.com/pavelanni/testgen/internal/store"
)

func consumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Store generated tests delivered by the broker",
		RunE:  runConsume,
	}
	f := cmd.Flags()
	addDBFlags(f)
	addAMQPFlags(f)
	addLogFlags(f)
	return cmd
}

func runConsume(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	b, err := dialBroker(v)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer b.Close()

	return b.Consume(ctx, ingest.New(db).Handle)
}
