package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/thumbnails"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFetchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <metadata-id> <timestamp-ms>",
		Short: "Writes one thumbnail to a file or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid metadata id %q", args[0])
			}
			timestampMs, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q", args[1])
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}

			return runFetch(cmd.Context(), v, id, timestampMs, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringP("output", "o", "", "write the JPEG to this file instead of stdout")
	return cmd
}

func runFetch(ctx context.Context, v *viper.Viper, id, timestampMs int64, output string, stdout io.Writer) error {
	var holder thumbnails.Holder
	_, db, manager, err := openThumbnails(ctx, v, &holder)
	if err != nil {
		return err
	}
	defer func() {
		holder.Close(false)
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close database: %v", err)
		}
	}()

	data, err := manager.GetThumbnail(ctx, id, timestampMs)
	if err != nil {
		return fmt.Errorf("item %d at %dms: %w", id, timestampMs, err)
	}

	if output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	logging.Info("Wrote %d bytes to %s", len(data), output)
	return nil
}
