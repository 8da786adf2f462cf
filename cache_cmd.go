package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/cache"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	expiredOnly  bool
	archiveLevel int

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the audio cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage per engine",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(c *cache.Cache) error {
				st, err := c.Stats()
				if err != nil {
					return err
				}
				fmt.Println(field("Root", st.Root))
				fmt.Println(field("Entries", humanize.Comma(int64(st.Entries))))
				fmt.Println(field("Size", humanize.Bytes(uint64(st.Bytes)))) //nolint:gosec
				fmt.Println(field("Expired", strconv.Itoa(st.Expired)))
				if st.TempFiles > 0 {
					fmt.Println(field("Temp files", strconv.Itoa(st.TempFiles)))
				}
				for _, e := range st.Engines {
					fmt.Printf("  %s\n", field(e.Engine,
						fmt.Sprintf("%s entries, %s", humanize.Comma(int64(e.Entries)), humanize.Bytes(uint64(e.Bytes))))) //nolint:gosec
				}
				return nil
			})
		},
	}

	cachePurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete cached audio",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(c *cache.Cache) error {
				n, size, err := c.Purge(expiredOnly)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %s files (%s)\n", humanize.Comma(int64(n)), humanize.Bytes(uint64(size))) //nolint:gosec
				return nil
			})
		},
	}

	cacheExportCmd = &cobra.Command{
		Use:     "export FILE",
		Short:   "Write the cache to a zstd-compressed tar archive",
		Example: paragraph("mediavoice cache export voices.tar.zst\nmediavoice cache export - > voices.tar.zst"),
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCache(func(c *cache.Cache) error {
				var w io.Writer = os.Stdout
				if args[0] != "-" {
					f, err := os.Create(args[0])
					if err != nil {
						return fmt.Errorf("unable to create archive: %w", err)
					}
					defer f.Close() //nolint:errcheck
					w = f
				}
				res, err := c.Export(w, archiveLevel)
				if err != nil {
					return err
				}
				log.Info("Exported cache", "files", res.Files, "size", humanize.Bytes(uint64(res.Bytes))) //nolint:gosec
				return nil
			})
		},
	}

	cacheImportCmd = &cobra.Command{
		Use:   "import FILE",
		Short: "Merge an exported archive into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCache(func(c *cache.Cache) error {
				var r io.Reader = os.Stdin
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("unable to open archive: %w", err)
					}
					defer f.Close() //nolint:errcheck
					r = f
				}
				res, err := c.Import(r)
				if err != nil {
					return err
				}
				log.Info("Imported cache",
					"files", res.Files,
					"skipped", res.Skipped,
					"size", humanize.Bytes(uint64(res.Bytes))) //nolint:gosec
				return nil
			})
		},
	}

	cacheWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Report cache directories as other processes write to them",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCache(func(c *cache.Cache) error {
				life := lifecycle.New(log.Default())
				life.Start()
				defer func() { _ = life.Shutdown() }()

				var listen func(string)
				listen = func(subdir string) {
					fmt.Println(field("Changed", subdir))
					c.RegisterChangeListener(listen)
				}
				c.RegisterChangeListener(listen)

				log.Info("Watching cache", "root", c.Root())
				return c.Watch(life.Context())
			})
		},
	}
)

func init() {
	cachePurgeCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only delete expired entries")
	cacheExportCmd.Flags().IntVar(&archiveLevel, "level", 3, "zstd compression level (1-22)")
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd, cacheExportCmd, cacheImportCmd, cacheWatchCmd)
}

func withCache(fn func(*cache.Cache) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ccfg := cfg.CacheConfig()
	ccfg.SweepInterval = 0
	c, err := cache.New(ccfg, log.Default())
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck
	return fn(c)
}
