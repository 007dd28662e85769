package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ContentOptions struct {
	GlobalOptions

	AssetIndex int
	OutputFile string
}

func DefaultContentOptions() *ContentOptions {
	return &ContentOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdJobsContent() *cobra.Command {
	o := DefaultContentOptions()
	cmd := &cobra.Command{
		Use:   "content ID",
		Short: "Download an output of a finished job.",
		Long:  "Download an output of a finished job. When the provider hosts the file elsewhere its URL is printed instead.",
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

func (o *ContentOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.IntVar(&o.AssetIndex, "asset", o.AssetIndex, "Index of the output to download.")
	fs.StringVarP(&o.OutputFile, "file", "f", o.OutputFile, "Write the video to this file instead of stdout.")
}

func (o *ContentOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.AssetIndex < 0 {
		return fmt.Errorf("asset index must not be negative")
	}
	return nil
}

func (o *ContentOptions) Run(ctx context.Context, id string, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	content, err := c.GetContent(ctx, id, o.AssetIndex)
	if err != nil {
		return errors.Wrapf(err, "reading content of job %s", id)
	}
	if content.Body == nil {
		fmt.Fprintf(out, "%s\n", content.Location)
		return nil
	}
	defer func() {
		_ = content.Body.Close()
	}()

	dst := out
	if o.OutputFile != "" {
		f, err := os.Create(o.OutputFile)
		if err != nil {
			return errors.Wrap(err, "creating output file")
		}
		defer func() {
			_ = f.Close()
		}()
		dst = f
	}

	written, err := io.Copy(dst, content.Body)
	if err != nil {
		return errors.Wrap(err, "downloading content")
	}
	if o.OutputFile != "" {
		fmt.Fprintf(out, "wrote %d bytes (%s) to %s\n", written, content.ContentType, o.OutputFile)
	}
	return nil
}
