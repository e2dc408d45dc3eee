package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/visingers/visingers-sync/internal/server"
	"github.com/visingers/visingers-sync/internal/utils"
	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync on a fixed interval and expose the sync status over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		interval, err := syncInterval()
		if err != nil {
			return err
		}

		sched := &polling.Scheduler{
			Interval: interval,
			Log:      utils.Log,
			Pass: func(ctx context.Context) (*polling.PassResult, error) {
				return runLockedPass(ctx, path, cfg)
			},
		}

		listen := viper.GetString("server.listen")
		noServer, _ := cmd.Flags().GetBool("no-server")

		serverErr := make(chan error, 1)
		if !noServer {
			srv := server.New(db, sched, viper.GetString("server.username"), viper.GetString("server.password"))
			go func() {
				serverErr <- srv.Start(ctx, listen)
			}()
		}

		schedDone := make(chan struct{})
		go func() {
			sched.Run(ctx)
			close(schedDone)
		}()

		select {
		case err := <-serverErr:
			// The server stopped on its own; stop the scheduler too.
			stop()
			<-schedDone
			return err
		case <-schedDone:
		}
		if !noServer {
			return <-serverErr
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address for the status API")
	serveCmd.Flags().Duration("interval", polling.DefaultInterval, "Pause between the end of a pass and the next one")
	serveCmd.Flags().Bool("no-server", false, "Only run the scheduler")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("sync.interval", serveCmd.Flags().Lookup("interval"))
}
