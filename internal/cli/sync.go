package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/mirrorsync/internal/engine"
	"github.com/dl-alexandre/mirrorsync/internal/engine/events"
	"github.com/dl-alexandre/mirrorsync/internal/watch"
)

var (
	syncFull     bool
	syncWatch    bool
	syncInterval time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync pass",
	Long: `Run one sync pass: ingest the remote change feed, reconcile against
the local mirror, and transfer whatever diverged.

With --watch, keep running: local edits are picked up by a filesystem
watcher and a pass runs every --interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := buildEngine()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := db.Migrate(ctx); err != nil {
			return err
		}

		done := watchEvents(eng)
		defer done()

		if !syncWatch {
			return runPass(ctx, eng)
		}

		watcher, err := watch.New(globalFlags.Account, cfg.MirrorRoot, db, buildMatcher(), logger)
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintln(os.Stderr, "watcher stopped:", err)
			}
		}()

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		if err := runPass(ctx, eng); err != nil {
			stop()
			wg.Wait()
			return err
		}
		for {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			case <-ticker.C:
				if err := runPass(ctx, eng); err != nil {
					if ctx.Err() != nil {
						wg.Wait()
						return nil
					}
					// Keep watching; transient pass failures resolve themselves.
					fmt.Fprintln(os.Stderr, "sync pass failed:", err)
				}
			}
		}
	},
}

func runPass(ctx context.Context, eng *engine.Engine) error {
	var summary *engine.PassSummary
	var err error
	if syncFull {
		summary, err = eng.RunFull(ctx)
	} else {
		summary, err = eng.Run(ctx)
	}
	if summary != nil && !globalFlags.Quiet {
		fmt.Printf("synced: %d transferred, %d failed, %d conflicted, %s down, %s up in %s\n",
			summary.Succeeded, summary.Failed, summary.Conflicted,
			formatSize(summary.BytesDownloaded), formatSize(summary.BytesUploaded),
			summary.Duration.Round(time.Millisecond))
	}
	return err
}

// watchEvents mirrors engine events onto stderr for interactive runs.
func watchEvents(eng *engine.Engine) (cancel func()) {
	if globalFlags.Quiet {
		return func() {}
	}

	ch, unsubscribe := eng.Bus().Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range ch {
			switch e := event.(type) {
			case events.PhaseChanged:
				if globalFlags.Verbose {
					fmt.Fprintf(os.Stderr, "phase: %s\n", e.Phase)
				}
			case events.PageApplied:
				if globalFlags.Verbose {
					fmt.Fprintf(os.Stderr, "applied page %d (%d items)\n", e.Page, e.Items)
				}
			case events.TransferComplete:
				fmt.Fprintf(os.Stderr, "%-8s %s (%s)\n", e.Type, e.Path, formatSize(e.Bytes))
			case events.TransferFailed:
				fmt.Fprintf(os.Stderr, "FAILED   %s: %s\n", e.Path, e.Err)
			case events.ConflictDetected:
				fmt.Fprintf(os.Stderr, "CONFLICT %s (id %s)\n", e.Path, e.ConflictID)
			}
		}
	}()
	return func() {
		unsubscribe()
		wg.Wait()
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Discard the delta cursor and re-enumerate the remote")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Keep running and sync on changes")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 5*time.Minute, "Pass interval in watch mode")

	rootCmd.AddCommand(syncCmd)
}
