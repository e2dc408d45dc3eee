package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/visingers/visingers-sync/internal/utils"
	"github.com/visingers/visingers-sync/pkg/platforms"
	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

// syncCmd implements: visingers sync
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one discovery and reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'visingers sync --help'", args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, err := dbPath()
		if err != nil {
			return err
		}
		db, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		cfg, err := newPassConfig(db)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			cfg.OnRepositoryDone = func(repo platforms.Repository, o polling.Outcome, err error) {
				if err != nil {
					fmt.Printf("%-9s  %s  (%v)\n", o, repo.FullName(), err)
					return
				}
				fmt.Printf("%-9s  %s\n", o, repo.FullName())
			}
		}

		res, err := runLockedPass(ctx, path, cfg)
		if res != nil {
			printChanges(res.Changes)
		}
		return err
	},
}

// runLockedPass runs one pass while holding the database lock, so a
// "sync" and a "serve" never write the same database at once.
func runLockedPass(ctx context.Context, path string, cfg polling.Config) (*polling.PassResult, error) {
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	cfg.RunID = ""
	return polling.PollRepositories(ctx, cfg)
}

func printChanges(changes []storage.Change) {
	for _, c := range changes {
		var emoji string
		switch c.ChangeType {
		case storage.ChangeAdded:
			emoji = "🆕"
		case storage.ChangeRemoved:
			emoji = "❌"
		case storage.ChangeUpdated:
			emoji = "🔄"
		}
		fmt.Printf("%s  %s/%s\n", emoji, c.CreatorLogin, c.RepositoryName)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int("concurrency", 1, "Number of repositories processed at once")
	syncCmd.Flags().String("topic", "visingers", "Marker topic to discover")
	syncCmd.Flags().BoolP("verbose", "v", false, "Print the outcome of every repository")
	viper.BindPFlag("sync.concurrency", syncCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("github.topic", syncCmd.Flags().Lookup("topic"))
}
