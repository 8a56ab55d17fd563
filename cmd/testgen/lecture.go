package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func lectureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lecture",
		Short: "Manage lecture documents in the object store",
	}
	cmd.AddCommand(lectureUploadCmd(), lectureRemoveCmd())
	return cmd
}

func lectureUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a lecture document (.pdf, .doc, .docx)",
		Args:  cobra.ExactArgs(1),
		RunE:  runLectureUpload,
	}
	f := cmd.Flags()
	f.String("key", "", "Object key (default: lectures/<file name>)")
	addS3Flags(f)
	addLogFlags(f)
	return cmd
}

func lectureRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove KEY",
		Short: "Remove a lecture document",
		Args:  cobra.ExactArgs(1),
		RunE:  runLectureRemove,
	}
	f := cmd.Flags()
	addS3Flags(f)
	addLogFlags(f)
	return cmd
}

func runLectureUpload(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := args[0]
	key := v.GetString("key")
	if key == "" {
		key = "lectures/" + filepath.Base(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	objects, err := newObjectStore(v)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	bucket := v.GetString("s3-bucket")
	if err := objects.Put(context.Background(), bucket, key, file, info.Size(), contentType); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}

	slog.Info("uploaded lecture", "bucket", bucket, "key", key, "bytes", info.Size())
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runLectureRemove(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	objects, err := newObjectStore(v)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	bucket := v.GetString("s3-bucket")
	if err := objects.Remove(context.Background(), bucket, args[0]); err != nil {
		return fmt.Errorf("remove %s: %w", args[0], err)
	}
	slog.Info("removed lecture", "bucket", bucket, "key", args[0])
	return nil
}
