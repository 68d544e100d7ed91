package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/paula/internal/config"
	"github.com/dohr-michael/paula/internal/storage"
	"github.com/dohr-michael/paula/internal/todo"
)

// NewTodosCommand returns the todos subcommand.
func NewTodosCommand() *cli.Command {
	return &cli.Command{
		Name:      "todos",
		Usage:     "Show a thread's checklist",
		ArgsUsage: "<thread-id>",
		Action:    runTodos,
	}
}

func runTodos(ctx context.Context, cmd *cli.Command) error {
	threadID := cmd.Args().First()
	if threadID == "" {
		return fmt.Errorf("usage: paula todos <thread-id>")
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	items, err := todo.NewSQLStore(db).Get(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load todos: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("no checklist for this thread")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tTITLE\tID")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Status, item.Title, item.ID)
	}
	return w.Flush()
}
