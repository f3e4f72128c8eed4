// Package cli implements cmd/meshkvctl's command tree: a thin cobra
// wrapper that parses internal/config, builds a meshkv.Client and Session,
// and dispatches one request engine operation per invocation. Structured
// the way the teacher's own cli.go builds its Subcommand tree — a
// registration function per subcommand — but bound to a Session instead of
// a zrepl job, with config parsed inside each subcommand that needs one.
package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	meshkv "github.com/meshkv/meshkv"
	"github.com/meshkv/meshkv/internal/config"
	"github.com/meshkv/meshkv/internal/logger"
	"github.com/meshkv/meshkv/internal/metrics"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/version"
)

var rootArgs struct {
	configPath string
	groups     []string
}

var rootCmd = &cobra.Command{
	Use:   "meshkvctl",
	Short: "Client for the meshkv request engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configPath, "config", "", "cluster config file path")
	rootCmd.PersistentFlags().StringSliceVar(&rootArgs.groups, "groups", nil, "comma-separated group ids to operate against (default: every configured group)")
	rootCmd.AddCommand(versionCmd, lookupCmd, readCmd, writeCmd, removeCmd, bulkRemoveCmd, statLogCmd)
}

// Run parses os.Args and executes the matched subcommand, exiting the
// process on error the way the teacher's cli.Run does.
func Run() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.NewInfo().String())
		return nil
	},
}

// newSession parses the config named by rootArgs and builds a Client from
// it, returning both so the caller can create a Session for one
// operation. Every subcommand calls this in its RunE rather than a shared
// PersistentPreRun so a bad config only fails the commands that need one
// (version doesn't).
func newSession() (*meshkv.Client, *config.Config, error) {
	cfg, err := config.ParseConfig(rootArgs.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("meshkvctl: %w", err)
	}
	log := logger.New(logger.ForAllLevels(logger.NewStderrOutlet(os.Stderr), logger.Warn), time.Second)
	client, err := meshkv.New(cfg, log, metrics.New())
	if err != nil {
		return nil, nil, fmt.Errorf("meshkvctl: %w", err)
	}
	return client, cfg, nil
}

func requestedGroups(cfg *config.Config) []key.GroupID {
	if len(rootArgs.groups) == 0 {
		seen := map[key.GroupID]bool{}
		var groups []key.GroupID
		for _, n := range cfg.Nodes {
			for _, g := range n.Groups {
				gid := key.GroupID(g)
				if !seen[gid] {
					seen[gid] = true
					groups = append(groups, gid)
				}
			}
		}
		return groups
	}
	groups := make([]key.GroupID, 0, len(rootArgs.groups))
	for _, s := range rootArgs.groups {
		var g uint32
		fmt.Sscanf(s, "%d", &g)
		groups = append(groups, key.GroupID(g))
	}
	return groups
}

// parseKeyArg accepts either a hex-encoded 64-byte key id or an arbitrary
// string, hashed down to a Key with key.FromBytes the way a human operator
// naming a record by its logical name expects.
func parseKeyArg(arg string) key.Key {
	if raw, err := hex.DecodeString(arg); err == nil && len(raw) == key.Size {
		var k key.Key
		copy(k[:], raw)
		return k
	}
	return key.FromBytes([]byte(arg))
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <key>",
	Short: "look up a key across every configured group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		result := s.Lookup(parseKeyArg(args[0]))
		entries, err := result.Wait(context.Background())
		for _, e := range entries {
			fmt.Printf("group=%v addr=%v err=%v data=%v\n", e.Source, e.Addr, e.Err, e.Data)
		}
		return err
	},
}

var readArgs struct {
	offset uint64
	size   uint64
}

var readCmd = &cobra.Command{
	Use:   "read <key>",
	Short: "read a record's data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		data, err := s.Read(context.Background(), parseKeyArg(args[0]), readArgs.offset, readArgs.size)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

func init() {
	readCmd.Flags().Uint64Var(&readArgs.offset, "offset", 0, "data offset")
	readCmd.Flags().Uint64Var(&readArgs.size, "size", 0, "data size (0 reads to end)")
}

var writeArgs struct {
	offset uint64
	json   string
}

var writeCmd = &cobra.Command{
	Use:   "write <key> <data>",
	Short: "write a record's data (and optional json) to every configured group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		_, err = s.Write(context.Background(), parseKeyArg(args[0]), []byte(writeArgs.json), []byte(args[1]), writeArgs.offset)
		return err
	},
}

func init() {
	writeCmd.Flags().Uint64Var(&writeArgs.offset, "offset", 0, "data offset")
	writeCmd.Flags().StringVar(&writeArgs.json, "json", "", "record metadata json")
}

var removeCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "remove a key from every configured group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		_, err = s.Remove(parseKeyArg(args[0])).Wait(context.Background())
		return err
	},
}

var bulkRemoveCmd = &cobra.Command{
	Use:   "bulk-remove <key> [key...]",
	Short: "remove a set of keys, one entry guaranteed per key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		keys := make([]key.Key, len(args))
		for i, a := range args {
			keys[i] = parseKeyArg(a)
		}
		entries, err := s.BulkRemove(context.Background(), keys).Wait(context.Background())
		for _, e := range entries {
			fmt.Printf("key=%v err=%v\n", e.Source, e.Err)
		}
		return err
	},
}

var statLogCmd = &cobra.Command{
	Use:   "stat-log <sample> [sample...]",
	Short: "summarize a set of latency samples (seconds) the way session.StatLog does",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newSession()
		if err != nil {
			return err
		}
		defer client.Close()
		s := client.NewSession(cfg, requestedGroups(cfg))
		samples := make([]float64, len(args))
		for i, a := range args {
			fmt.Sscanf(a, "%g", &samples[i])
		}
		summary, err := s.StatLog(samples)
		if err != nil {
			return err
		}
		fmt.Printf("count=%d mean=%.6f p50=%.6f p99=%.6f\n",
			summary.Count, summary.Mean, summary.P50, summary.P99)
		return nil
	},
}
