package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"tally/internal/config"
	"tally/internal/storage"
	"tally/internal/todo"
)

// NewTasksCommand returns the tasks subcommand, which works directly against
// the local database without a running gateway.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and manage tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Owner of the tasks",
				Value:   "local",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter: all, pending, or completed",
						Value: "all",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "complete",
				Usage:     "Mark a task as completed",
				ArgsUsage: "<task_id>",
				Action:    runTasksComplete,
			},
			{
				Name:      "delete",
				Usage:     "Delete a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksDelete,
			},
			{
				Name:  "export",
				Usage: "Dump all tasks to stdout",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: yaml or json",
						Value: "yaml",
					},
				},
				Action: runTasksExport,
			},
		},
		DefaultCommand: "list",
	}
}

func openTaskStore(cmd *cli.Command) (*todo.SQLStore, *sql.DB, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return todo.NewSQLStore(db), db, nil
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	store, db, err := openTaskStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := todo.ListFilter{Status: todo.StatusFilter(cmd.String("status"))}
	list, err := store.List(ctx, cmd.String("user"), filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range list {
		status := "pending"
		if t.Completed {
			status = "done"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, status, t.Priority, due, t.Title)
	}
	return w.Flush()
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: tally tasks show <task_id>")
	}

	store, db, err := openTaskStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := store.Get(ctx, cmd.String("user"), taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Priority:    %s\n", t.Priority)
	if t.Category != "" {
		fmt.Printf("Category:    %s\n", t.Category)
	}
	if t.DueDate != nil {
		fmt.Printf("Due:         %s\n", t.DueDate.Format("2006-01-02"))
	}
	fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.Completed {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
		if t.CompletionNotes != "" {
			fmt.Printf("Notes:       %s\n", t.CompletionNotes)
		}
	}
	if t.Description != "" {
		fmt.Printf("\nDescription:\n%s\n", t.Description)
	}
	return nil
}

func runTasksComplete(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: tally tasks complete <task_id>")
	}

	store, db, err := openTaskStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := store.Complete(ctx, cmd.String("user"), taskID, "")
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	fmt.Printf("Completed %q.\n", t.Title)
	return nil
}

func runTasksDelete(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: tally tasks delete <task_id>")
	}

	store, db, err := openTaskStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Delete(ctx, cmd.String("user"), taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	fmt.Printf("Deleted %s.\n", taskID)
	return nil
}

func runTasksExport(ctx context.Context, cmd *cli.Command) error {
	store, db, err := openTaskStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := store.List(ctx, cmd.String("user"), todo.ListFilter{Status: todo.StatusAll})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	switch cmd.String("format") {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(list)
	default:
		return fmt.Errorf("unknown format %q", cmd.String("format"))
	}
}
