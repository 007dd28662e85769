package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/pkg/errors"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type WatchOptions struct {
	GlobalOptions
	OutputOptions

	Interval time.Duration
}

func DefaultWatchOptions() *WatchOptions {
	return &WatchOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      5 * time.Second,
	}
}

func NewCmdJobsWatch() *cobra.Command {
	o := DefaultWatchOptions()
	cmd := &cobra.Command{
		Use:   "watch ID",
		Short: "Refresh a job periodically until it finishes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *WatchOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage()+" Applies to the final job.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Time between two refreshes.")
}

func (o *WatchOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return o.validateOutput()
}

func (o *WatchOptions) Run(ctx context.Context, id string, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	ticker := jitterbug.New(o.Interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	var last api.JobStatus
	for {
		job, err := c.RefreshJob(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "refreshing job %s", id)
		}

		if job.Status != last || job.Status == api.JobStatusRunning {
			progress := ""
			if job.ProgressPct != nil {
				progress = fmt.Sprintf(" %d%%", *job.ProgressPct)
			}
			fmt.Fprintf(out, "%s %s%s\n", job.Id, job.Status, progress)
			last = job.Status
		}

		if job.Status.IsTerminal() {
			if o.Output != "" {
				return o.printJob(out, job)
			}
			if job.Error != nil {
				fmt.Fprintf(out, "error: %s\n", job.Error.Message)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
