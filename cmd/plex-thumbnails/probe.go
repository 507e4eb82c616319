package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/thumbnails"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newProbeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <metadata-id>...",
		Short: "Reports which items have thumbnails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid metadata id %q", arg)
				}
				ids = append(ids, id)
			}
			return runProbe(cmd.Context(), v, ids, cmd.OutOrStdout())
		},
	}
}

func runProbe(ctx context.Context, v *viper.Viper, ids []int64, out io.Writer) error {
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

	for _, id := range ids {
		ok, err := manager.HasThumbnails(ctx, id)
		switch {
		case err != nil:
			fmt.Fprintf(out, "%d\terror\t%v\n", id, err)
		case ok:
			fmt.Fprintf(out, "%d\tavailable\t%s\n", id, manager.Backend())
		default:
			fmt.Fprintf(out, "%d\tmissing\t%s\n", id, manager.Backend())
		}
	}
	return nil
}
