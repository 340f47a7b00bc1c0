// cachectl inspects and maintains the durable cache tier in a SQLite
// file, the same file a Manager configured with a kv.SQLite store writes
// to. Run it against a live database only when the owning process is
// stopped, or point it at a copy.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pgclosets/go-common/cache"
	"github.com/pgclosets/go-common/kv"
	"github.com/pgclosets/go-common/logger"
)

var (
	dbPath    string
	keyPrefix string
)

func openStore(ctx context.Context) (kv.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("--db is required")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", dbPath, err)
	}
	return kv.NewSQLite(ctx, dbPath)
}

// cachePrefix is the storage prefix the Manager uses for one named cache.
func cachePrefix(name string) string {
	return keyPrefix + "_" + name + ":"
}

// cacheNames groups every stored key by its cache prefix and returns the
// sorted cache names.
func cacheNames(ctx context.Context, store kv.Store) ([]string, error) {
	keys, err := store.Keys(ctx, keyPrefix+"_")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, keyPrefix+"_")
		if name, _, ok := strings.Cut(rest, ":"); ok {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func newKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <cache>",
		Short: "List the keys stored for a cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			prefix := cachePrefix(args[0])
			keys, err := store.Keys(ctx, prefix)
			if err != nil {
				return err
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Println(strings.TrimPrefix(key, prefix))
			}
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts, sizes, and expired totals per cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			names, err := cacheNames(ctx, store)
			if err != nil {
				return err
			}
			now := time.Now()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-16s %8s %8s %10s\n", "CACHE", "ENTRIES", "EXPIRED", "BYTES")
			for _, name := range names {
				keys, err := store.Keys(ctx, cachePrefix(name))
				if err != nil {
					return err
				}
				var expired, bytes int
				for _, key := range keys {
					raw, found, err := store.Get(ctx, key)
					if err != nil || !found {
						continue
					}
					bytes += len(raw)
					var entry struct {
						ExpiresAt int64 `msgpack:"exp"`
					}
					if msgpack.Unmarshal(raw, &entry) != nil || now.UnixMilli() > entry.ExpiresAt {
						expired++
					}
				}
				fmt.Fprintf(w, "%-16s %8d %8d %10d\n", name, len(keys), expired, bytes)
			}
			return nil
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [cache]",
		Short: "Remove expired and malformed entries, all caches by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var names []string
			if len(args) == 1 {
				names = args
			} else if names, err = cacheNames(ctx, store); err != nil {
				return err
			}

			log := logger.NewConsoleLogger(logger.LevelWarn)
			var total int
			for _, name := range names {
				tier := cache.NewPersistent(ctx, store, keyPrefix+"_"+name, cache.Config{}, log,
					cache.WithSweepInterval(0))
				purged, err := tier.Sweep(ctx)
				tier.Close()
				if err != nil {
					return fmt.Errorf("sweeping %s: %w", name, err)
				}
				total += purged
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", total)
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and maintain the durable cache tier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the cache SQLite database")
	root.PersistentFlags().StringVar(&keyPrefix, "prefix", "pg_cache", "storage key prefix")
	root.AddCommand(newKeysCommand(), newStatsCommand(), newPurgeCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
