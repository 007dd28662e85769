package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/reelqueue/reelqueue/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ConfigureOptions struct {
	GlobalOptions
}

func DefaultConfigureOptions() *ConfigureOptions {
	return &ConfigureOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdConfigure() *cobra.Command {
	o := DefaultConfigureOptions()
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the server address in the client config file.",
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

func (o *ConfigureOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *ConfigureOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.ServerUrl == "" {
		return fmt.Errorf("--server-url is required")
	}
	return nil
}

func (o *ConfigureOptions) Run(ctx context.Context, out io.Writer) error {
	if err := client.WriteConfig(o.ConfigFilePath, o.ServerUrl); err != nil {
		return errors.Wrap(err, "writing client config")
	}
	c := client.NewClient(o.ServerUrl, o.Timeout)
	if err := c.Health(ctx); err != nil {
		fmt.Fprintf(out, "config written to %s, server not reachable: %v\n", o.ConfigFilePath, err)
		return nil
	}
	fmt.Fprintf(out, "config written to %s\n", o.ConfigFilePath)
	return nil
}
