package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/paula/internal/config"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/storage"
)

// NewMemoryCommand returns the memory subcommand.
func NewMemoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect Paula's memory",
		Commands: []*cli.Command{
			{
				Name:      "recent",
				Usage:     "Show a scope's recent conversation records",
				ArgsUsage: "<scope>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "Records to show"},
				},
				Action: runMemoryRecent,
			},
			{
				Name:      "search",
				Usage:     "Search a scope by relevance",
				ArgsUsage: "<scope> <query>",
				Action:    runMemorySearch,
			},
			{
				Name:      "summary",
				Usage:     "Show a scope's latest summary",
				ArgsUsage: "<scope>",
				Action:    runMemorySummary,
			},
		},
		DefaultCommand: "recent",
	}
}

func openMemoryStore(cmd *cli.Command) (*sql.DB, memory.Store, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return db, memory.NewSQLStore(db), nil
}

func runMemoryRecent(ctx context.Context, cmd *cli.Command) error {
	scope := cmd.Args().First()
	if scope == "" {
		return fmt.Errorf("usage: paula memory recent <scope>")
	}

	db, store, err := openMemoryStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := store.Recent(ctx, scope, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no records for this scope")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDINAL\tCREATED\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Ordinal, r.CreatedAt.Format("2006-01-02 15:04"), truncate(r.Content, 80))
	}
	return w.Flush()
}

func runMemorySearch(ctx context.Context, cmd *cli.Command) error {
	scope := cmd.Args().First()
	query := cmd.Args().Get(1)
	if scope == "" || query == "" {
		return fmt.Errorf("usage: paula memory search <scope> <query>")
	}

	db, store, err := openMemoryStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	hits, err := memory.NewRetriever(store, 0.1).Search(ctx, scope, query, 10)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("no matching records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tCONTENT")
	for _, h := range hits {
		fmt.Fprintf(w, "%.2f\t%s\n", h.Score, truncate(h.Record.Content, 100))
	}
	return w.Flush()
}

func runMemorySummary(ctx context.Context, cmd *cli.Command) error {
	scope := cmd.Args().First()
	if scope == "" {
		return fmt.Errorf("usage: paula memory summary <scope>")
	}

	db, store, err := openMemoryStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	latest, err := store.LatestSummary(ctx, scope)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	if latest == nil {
		fmt.Println("no summary for this scope")
		return nil
	}

	fmt.Printf("covers %d conversation records, written %s\n\n", latest.ConvCount, latest.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Println(latest.Content)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
