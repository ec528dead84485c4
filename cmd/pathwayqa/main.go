package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/pathwayqa/internal/api"
	"github.com/pbaille/pathwayqa/internal/checks"
	"github.com/pbaille/pathwayqa/internal/compartment"
	"github.com/pbaille/pathwayqa/internal/config"
	"github.com/pbaille/pathwayqa/internal/domain"
	"github.com/pbaille/pathwayqa/internal/escape"
	"github.com/pbaille/pathwayqa/internal/fetcher"
	"github.com/pbaille/pathwayqa/internal/logging"
	"github.com/pbaille/pathwayqa/internal/qa"
	"github.com/pbaille/pathwayqa/internal/store"
)

var (
	configPath string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pathwayqa",
		Short:         "Reconcile pathway diagrams with the curated knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(checksCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runAllCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds everything a command needs, built from configuration
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	docs   domain.DiagramDocumentStore
	table  *compartment.Table
	escape *escape.Policy
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	s, err := store.New(cfg.Database.Path, nil, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: s}

	if cfg.Diagrams.BaseURL != "" {
		f, err := fetcher.New(cfg.Diagrams.BaseURL, cfg.Diagrams.Timeout)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("diagram source: %w", err)
		}
		a.docs = f
	}

	if a.table, err = compartment.LoadTable(cfg.Compartments.Table); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Escape.File != "" {
		a.escape, err = escape.Load(cfg.Escape.File, cfg.Escape.Cutoff, cfg.Escape.MaintenanceAccounts)
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("Loaded escape list",
			zap.String("file", cfg.Escape.File),
			zap.Int("entries", a.escape.Len()))
	}
	return a, nil
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}

// runContext opens a fresh store session for one run
func (a *app) runContext() *qa.RunContext {
	sess := a.store.Session()
	var docs domain.DiagramDocumentStore = sess
	if a.docs != nil {
		docs = a.docs
	}
	opts := qa.Options{ExcludeDiseaseReactions: a.cfg.Checks.ExcludeDiseaseReactions}
	return qa.NewRunContext(sess, docs, a.table, opts, a.logger)
}

func (a *app) runner() *qa.Runner {
	return qa.NewRunner(a.runContext, a.escape, a.logger)
}

func checksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List available checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range checks.All() {
				fmt.Printf("%-28s %-18s %s\n", c.Name, c.CandidateClass, c.Description)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var out string
	var ids string

	cmd := &cobra.Command{
		Use:   "run [check]",
		Short: "Run one check and export its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, ok := checks.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown check: %s (see 'pathwayqa checks')", args[0])
			}
			candidateIDs, err := parseIDs(ids)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var res *qa.Result
			if candidateIDs != nil {
				res, err = a.runner().RunIDs(cmd.Context(), check, candidateIDs)
			} else {
				res, err = a.runner().Run(cmd.Context(), check, nil)
			}
			printResult(res)
			if res.State == qa.StateCancelled {
				return errors.New("run cancelled")
			}

			dir, name := a.cfg.Report.Dir, res.FileName()
			if out != "" {
				dir, name = filepath.Dir(out), filepath.Base(out)
			}
			if res.Report != nil {
				path, xerr := res.Report.Export(dir, name)
				if xerr != nil {
					return errors.Join(err, xerr)
				}
				fmt.Printf("Report: %s\n", path)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "report file (default <report dir>/<check>-<run id>.tsv)")
	cmd.Flags().StringVar(&ids, "ids", "", "comma-separated candidate ids")
	return cmd
}

func runAllCmd() *cobra.Command {
	var outDir string
	var parallel int

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every check concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if outDir == "" {
				outDir = a.cfg.Report.Dir
			}

			results, runErr := a.runner().RunAll(cmd.Context(), checks.All(), parallel)
			for _, res := range results {
				if res == nil {
					continue
				}
				printResult(res)
				if res.Report == nil {
					continue
				}
				path, err := res.Report.Export(outDir, res.FileName())
				if err != nil {
					return errors.Join(runErr, err)
				}
				fmt.Printf("  report: %s\n", path)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "report directory (default from config)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum concurrent checks")
	return cmd
}

func usageCmd() *cobra.Command {
	var subpathways bool

	cmd := &cobra.Command{
		Use:   "usage [reaction id...]",
		Short: "Summarize which diagrams draw which reactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(strings.Join(args, ","))
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			rc := a.runContext()
			idx, err := rc.Usage(ctx)
			if err != nil {
				return err
			}

			if subpathways {
				emb, err := checks.SubpathwayEmbeddings(ctx, rc)
				if err != nil {
					return err
				}
				pathways := make(domain.IDSet, len(emb))
				for id := range emb {
					pathways.Add(id)
				}
				for _, id := range pathways.Sorted() {
					fmt.Printf("%d\t%s\n", id, checks.DiagramUsage(emb[id]))
				}
				fmt.Printf("Embedded sub-pathways: %d\n", len(emb))
				return nil
			}

			if len(ids) > 0 {
				for _, id := range ids {
					drawn := idx.DiagramsForReaction(id)
					if len(drawn) == 0 {
						fmt.Printf("%d\tnot drawn\n", id)
						continue
					}
					fmt.Printf("%d\t%s\n", id, checks.DiagramUsage(drawn))
				}
				return nil
			}

			diagrams, err := rc.AllDiagrams(ctx)
			if err != nil {
				return err
			}
			reactions, err := rc.Client.FetchByClass(ctx, "ReactionlikeEvent")
			if err != nil {
				return err
			}
			undrawn := 0
			for _, r := range reactions {
				if !idx.IsDrawn(r.ID) {
					undrawn++
				}
			}
			fmt.Printf("Diagrams:           %d (%d skipped)\n", len(diagrams), len(idx.Skipped))
			fmt.Printf("Reactions:          %d\n", len(reactions))
			fmt.Printf("Reactions drawn:    %d\n", len(reactions)-undrawn)
			fmt.Printf("Reactions undrawn:  %d\n", undrawn)
			fmt.Printf("Pathways as nodes:  %d\n", len(idx.ProcessNodes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&subpathways, "subpathways", false, "list the diagrams embedding each pathway without its own diagram")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [fixture.yaml]",
		Short: "Load instances and diagram documents from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d instances, %d attributes, %d diagram documents\n",
				stats.Instances, stats.Attributes, stats.Documents)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			server := api.New(a.runner(), addr, a.logger)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default from config)")
	return cmd
}

func printResult(res *qa.Result) {
	fmt.Printf("%s [%s] %s: %d checked, %d issues, %d escaped, %d skipped (%s)\n",
		res.Check, res.RunID.String()[:8], res.State,
		res.Checked, len(res.Issues), len(res.Escaped), len(res.Skipped),
		res.Duration.Round(time.Millisecond))
	for _, f := range res.Skipped {
		fmt.Printf("  skipped %s: %v\n", f.Entity, f.Err)
	}
}

func parseIDs(s string) ([]domain.ID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []domain.ID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid id: %s", part)
		}
		ids = append(ids, domain.ID(n))
	}
	return ids, nil
}
