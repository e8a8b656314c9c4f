package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Notes string
	Due   string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Long: `Create a task in the local replica. It is pushed on the next sync.

Example:
  tasksync add "Buy milk"
  tasksync add Call the plumber --due "tomorrow 9am" --notes "ask about the boiler"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.Due, "due", "", "due date (RFC 3339, YYYY-MM-DD, or e.g. \"next friday\")")

	return cmd
}

func runAdd(opts *AddOptions, title string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	in := task.CreateInput{Title: title, Notes: opts.Notes}
	if opts.Due != "" {
		due, err := parseDue(opts.Due, opts.clock().Now())
		if err != nil {
			return formatter.Fail("invalid --due", &task.ValidationError{Field: "dueAt", Reason: err.Error()})
		}
		in.DueAt = &due
	}

	r, closeFn, err := openReplica(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	t, err := r.CreateTask(ctx, in)
	if err != nil {
		return formatter.Fail("failed to create task", err)
	}
	formatter.VerboseLog("created %s", t.ID)
	return formatter.Success(taskView{t})
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Title      string
	Notes      string
	ClearNotes bool
	Due        string
	ClearDue   bool
	Done       bool
	Undone     bool
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Long: `Change the given fields of a task. Fields without a flag keep their value.

Example:
  tasksync edit 0192f7a0-... --title "Buy oat milk" --clear-due`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "new title")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "new notes")
	cmd.Flags().BoolVar(&opts.ClearNotes, "clear-notes", false, "remove the notes")
	cmd.Flags().StringVar(&opts.Due, "due", "", "new due date")
	cmd.Flags().BoolVar(&opts.ClearDue, "clear-due", false, "remove the due date")
	cmd.Flags().BoolVar(&opts.Done, "done", false, "mark completed")
	cmd.Flags().BoolVar(&opts.Undone, "undone", false, "mark pending")
	cmd.MarkFlagsMutuallyExclusive("notes", "clear-notes")
	cmd.MarkFlagsMutuallyExclusive("due", "clear-due")
	cmd.MarkFlagsMutuallyExclusive("done", "undone")

	return cmd
}

func runEdit(opts *EditOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	flags := cmd.Flags()

	var in task.UpdateInput
	if flags.Changed("title") {
		in.Title = task.Some(opts.Title)
	}
	switch {
	case opts.ClearNotes:
		in.Notes = task.Null[string]()
	case flags.Changed("notes"):
		in.Notes = task.Some(opts.Notes)
	}
	switch {
	case opts.ClearDue:
		in.DueAt = task.Null[time.Time]()
	case flags.Changed("due"):
		due, err := parseDue(opts.Due, opts.clock().Now())
		if err != nil {
			return formatter.Fail("invalid --due", &task.ValidationError{Field: "dueAt", Reason: err.Error()})
		}
		in.DueAt = task.Some(due)
	}
	switch {
	case opts.Done:
		in.IsDone = task.Some(true)
	case opts.Undone:
		in.IsDone = task.Some(false)
	}

	return updateTask(opts.RootOptions, cmd, formatter, id, in)
}

// NewDoneCommand creates the done command.
func NewDoneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "done <id>",
		Short:         "Mark a task completed",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := task.UpdateInput{IsDone: task.Some(true)}
			return updateTask(rootOpts, cmd, rootOpts.formatter(cmd), args[0], in)
		},
	}
}

func updateTask(opts *RootOptions, cmd *cobra.Command, formatter *OutputFormatter, id string, in task.UpdateInput) error {
	ctx := commandContext(cmd)
	r, closeFn, err := openReplica(ctx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	t, err := r.UpdateTask(ctx, id, in)
	if err != nil {
		return formatter.Fail("failed to update task", err)
	}
	return formatter.Success(taskView{t})
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Long: `Delete a task. The deletion is kept as a tombstone until it has been
pushed, so other replicas learn about it on their next sync.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, args[0], cmd)
		},
	}
}

func runRemove(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)
	r, closeFn, err := openReplica(ctx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	ok, err := r.DeleteTask(ctx, id)
	if err != nil {
		return formatter.Fail("failed to delete task", err)
	}
	if !ok {
		return formatter.Fail("failed to delete task", fmt.Errorf("%s: %w", id, store.ErrNotFound))
	}
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"id": id, "deleted": true})
	}
	return formatter.Success(fmt.Sprintf("Deleted %s", id))
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)
			r, closeFn, err := openReplica(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := r.GetTask(ctx, args[0])
			if err != nil {
				return formatter.Fail("failed to read task", err)
			}
			return formatter.Success(taskView{t})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Filter string
	Limit  int
	Offset int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List tasks, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "all", "all|pending|completed")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of tasks (0 for no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of tasks to skip")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	filter, err := task.ParseFilter(opts.Filter)
	if err != nil {
		return formatter.Fail("invalid --filter", err)
	}

	r, closeFn, err := openReplica(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	tasks, err := r.ListTasks(ctx, task.ListOptions{Filter: filter, Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		return formatter.Fail("failed to list tasks", err)
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return formatter.Success(taskList(tasks))
}
