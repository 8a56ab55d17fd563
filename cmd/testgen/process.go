package main

import (
	"fmt"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/testgen/internal/i18n"
	"github.com/pavelanni/testgen/internal/model"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate and publish a test for one uploaded lecture",
		RunE:  runProcess,
	}
	f := cmd.Flags()
	f.Int64("lecture-id", 0, "Lecture identifier (required)")
	f.String("file", "", "Object key of the lecture document in the bucket (required)")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addS3Flags(f)
	addAMQPFlags(f)
	addLLMFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("lecture-id")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	b, err := dialBroker(v)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer b.Close()

	p, err := newPipeline(v, b)
	if err != nil {
		return err
	}

	req := model.ProcessRequest{
		LectureID: v.GetInt64("lecture-id"),
		FilePath:  v.GetString("file"),
	}
	ctx := cmd.Context()
	if err := p.Process(ctx, req); err != nil {
		return err
	}

	loc := appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(loc, "LecturePublished", map[string]any{"LectureID": req.LectureID}))
	return nil
}
