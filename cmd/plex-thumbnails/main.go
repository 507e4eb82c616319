package main

import (
	"fmt"
	"os"
	"strings"

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/startup"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logging.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := startup.NewViper()

	root := &cobra.Command{
		Use:   "plex-thumbnails",
		Short: "Serves seek-bar thumbnails for Plex library items",
		Long: `plex-thumbnails answers "what does the video look like at time T" for
Plex library items, either from the BIF preview indexes Plex generates or by
extracting frames on demand with ffmpeg.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			name, err := cmd.Flags().GetString("log-level")
			if err != nil || name == "" {
				return err
			}
			level, err := logging.ParseLevel(name)
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("data-dir", startup.DefaultDataDir, "Plex Media Server data directory")
	flags.String("database-path", "", "Plex library database (default: derived from --data-dir)")
	flags.String("cache-dir", startup.DefaultCacheDir, "writable cache root for extracted frames")
	flags.Bool("precise-thumbnails", false, "extract frames with ffmpeg instead of reading preview indexes")
	flags.String("ffmpeg-path", startup.DefaultFFmpegPath, "ffmpeg binary")
	flags.Duration("ffmpeg-timeout", startup.DefaultFFmpegTimeout, "timeout for one frame extraction")
	flags.Int("ffmpeg-workers", 0, "concurrent ffmpeg processes (0: one per CPU, at most 4)")
	flags.Int("thumbnail-width", startup.DefaultThumbnailWidth, "width of extracted frames in pixels")
	flags.Int("cache-capacity", startup.DefaultCacheCapacity, "capacity hint of the in-memory thumbnail cache")
	flags.String("log-level", "", "debug, info, warn or error (default: $LOG_LEVEL)")
	bindFlags(v, flags, "log-level")

	root.AddCommand(newServeCmd(v), newFetchCmd(v), newProbeCmd(v))
	return root
}

// bindFlags binds every flag in flags to the viper key of the same name with
// dashes replaced by underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, skip ...string) {
	flags.VisitAll(func(f *pflag.Flag) {
		for _, name := range skip {
			if f.Name == name {
				return
			}
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			logging.Warn("Failed to bind flag --%s: %v", f.Name, err)
		}
	})
}
