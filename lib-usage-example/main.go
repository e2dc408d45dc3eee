package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visingers/visingers-sync/pkg/censor"
	"github.com/visingers/visingers-sync/pkg/platforms/github"
	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

func main() {
	// Usage: go run *.go -token "your_github_token" -db ./directory.sqlite [-every 5m]

	tokenFlag := flag.String("token", os.Getenv("GITHUB_TOKEN"), "GitHub API token")
	dbFlag := flag.String("db", "directory.sqlite", "SQLite file or postgres:// DSN")
	everyFlag := flag.Duration("every", 0, "Keep syncing with this pause between passes (0 runs a single pass)")

	// Parse the command-line flags
	flag.Parse()

	if *tokenFlag == "" {
		fmt.Println("Token is required. Please provide the token using -token flag or GITHUB_TOKEN.")
		return
	}

	db, err := storage.Open(*dbFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer db.Close()

	cfg := polling.Config{
		Hub:    github.NewClient(*tokenFlag),
		Store:  db,
		Censor: censor.Default(),
	}

	if *everyFlag <= 0 {
		res, err := polling.PollRepositories(context.Background(), cfg)
		if err != nil {
			fmt.Println(err)
			return
		}
		printResult(res)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := polling.NewScheduler(*everyFlag, cfg)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		printed := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := sched.Passes()
				if n == printed {
					continue
				}
				printed = n
				st := sched.Last()
				if st == nil {
					continue
				}
				if st.Result != nil {
					printResult(st.Result)
				} else {
					fmt.Println(st.Error)
				}
			}
		}
	}()
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Println(err)
	}
}

func printResult(res *polling.PassResult) {
	fmt.Printf("%d repositories discovered\n", res.Discovered)
	for _, c := range res.Changes {
		fmt.Println(c.ChangeType, c.CreatorLogin+"/"+c.RepositoryName)
	}
}
