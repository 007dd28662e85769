package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func NewCmdJobs() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage video generation jobs.",
	}
	cmd.AddCommand(NewCmdJobsList())
	cmd.AddCommand(NewCmdJobsGet())
	cmd.AddCommand(NewCmdJobsCreate())
	cmd.AddCommand(NewCmdJobsRefresh())
	cmd.AddCommand(NewCmdJobsDelete())
	cmd.AddCommand(NewCmdJobsRemix())
	cmd.AddCommand(NewCmdJobsExtend())
	cmd.AddCommand(NewCmdJobsContent())
	cmd.AddCommand(NewCmdJobsWatch())
	return cmd
}

type ListOptions struct {
	GlobalOptions
	OutputOptions

	Limit    int
	Cursor   string
	Provider string
	Status   string
	Query    string
}

func DefaultListOptions() *ListOptions {
	return &ListOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Limit:         20,
	}
}

func NewCmdJobsList() *cobra.Command {
	o := DefaultListOptions()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs to return (1-100).")
	fs.StringVar(&o.Cursor, "cursor", o.Cursor, "Continue after the job id returned as nextCursor.")
	fs.StringVar(&o.Provider, "provider", o.Provider, "Only jobs of this provider.")
	fs.StringVar(&o.Status, "status", o.Status, "Only jobs in this status.")
	fs.StringVarP(&o.Query, "query", "q", o.Query, "Only jobs whose prompt contains this text.")
}

func (o *ListOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Limit < 1 || o.Limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100")
	}
	if o.Provider != "" {
		if _, ok := api.StringToProvider(o.Provider); !ok {
			return fmt.Errorf("unknown provider %q", o.Provider)
		}
	}
	if o.Status != "" && !api.JobStatus(o.Status).IsValid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	return o.validateOutput()
}

func (o *ListOptions) Run(ctx context.Context, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	list, err := c.ListJobs(ctx, client.ListJobsParams{
		Limit:    o.Limit,
		Cursor:   o.Cursor,
		Provider: api.Provider(o.Provider),
		Status:   api.JobStatus(o.Status),
		Query:    o.Query,
	})
	if err != nil {
		return errors.Wrap(err, "listing jobs")
	}

	return o.print(out, list, func(w *tabwriter.Writer) {
		printJobsTable(w, list.Data...)
		if list.NextCursor != nil {
			fmt.Fprintf(w, "\n%d of %d shown, next cursor: %s\n", len(list.Data), list.Meta.Total, *list.NextCursor)
		}
	})
}

// JobOptions backs the commands acting on a single job id.
type JobOptions struct {
	GlobalOptions
	OutputOptions
}

func DefaultJobOptions() *JobOptions {
	return &JobOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func (o *JobOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
}

func (o *JobOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return o.validateOutput()
}

func (o *OutputOptions) printJob(out io.Writer, job *api.Job) error {
	return o.print(out, job, func(w *tabwriter.Writer) {
		printJobsTable(w, *job)
	})
}

func newJobCommand(use, short string, run func(ctx context.Context, o *JobOptions, c *client.Client, id string, out io.Writer) error) *cobra.Command {
	o := DefaultJobOptions()
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			c, err := o.Client()
			if err != nil {
				return err
			}
			return run(cmd.Context(), o, c, args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func NewCmdJobsGet() *cobra.Command {
	return newJobCommand("get", "Display a job as stored.", func(ctx context.Context, o *JobOptions, c *client.Client, id string, out io.Writer) error {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "reading job %s", id)
		}
		return o.printJob(out, job)
	})
}

func NewCmdJobsRefresh() *cobra.Command {
	return newJobCommand("refresh", "Submit a queued job or poll its provider once.", func(ctx context.Context, o *JobOptions, c *client.Client, id string, out io.Writer) error {
		job, err := c.RefreshJob(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "refreshing job %s", id)
		}
		return o.printJob(out, job)
	})
}

func NewCmdJobsDelete() *cobra.Command {
	return newJobCommand("delete", "Delete a job and its provider side resources.", func(ctx context.Context, o *JobOptions, c *client.Client, id string, out io.Writer) error {
		if err := c.DeleteJob(ctx, id); err != nil {
			return errors.Wrapf(err, "deleting job %s", id)
		}
		fmt.Fprintf(out, "job %s deleted\n", id)
		return nil
	})
}
