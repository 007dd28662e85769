package cli

import (
	"context"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ProvidersOptions struct {
	GlobalOptions
	OutputOptions
}

func DefaultProvidersOptions() *ProvidersOptions {
	return &ProvidersOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdProviders() *cobra.Command {
	o := DefaultProvidersOptions()
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the video providers and their capabilities.",
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

func (o *ProvidersOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
}

func (o *ProvidersOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return o.validateOutput()
}

func (o *ProvidersOptions) Run(ctx context.Context, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	list, err := c.ListProviders(ctx)
	if err != nil {
		return errors.Wrap(err, "listing providers")
	}
	return o.print(out, list, func(w *tabwriter.Writer) {
		printProvidersTable(w, list.Data...)
	})
}
