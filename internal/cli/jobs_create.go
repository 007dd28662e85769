package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

var assetRoles = []string{"first_frame", "last_frame", "reference", "video"}

// ParamsOptions collects the provider params of create and extend.
type ParamsOptions struct {
	Params     []string
	ParamsFile string
}

func (o *ParamsOptions) Bind(fs *pflag.FlagSet) {
	fs.StringArrayVar(&o.Params, "param", o.Params, "Provider param as key=value. Values are read as JSON when they parse, as strings otherwise. Repeatable.")
	fs.StringVar(&o.ParamsFile, "params-file", o.ParamsFile, "JSON or YAML file holding the provider params. --param entries override it.")
}

func (o *ParamsOptions) params() (map[string]any, error) {
	params := map[string]any{}
	if o.ParamsFile != "" {
		contents, err := os.ReadFile(o.ParamsFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading params file")
		}
		if err := yaml.Unmarshal(contents, &params); err != nil {
			return nil, errors.Wrap(err, "decoding params file")
		}
	}

	for _, p := range o.Params {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("param %q is not key=value", p)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

type CreateOptions struct {
	GlobalOptions
	OutputOptions
	ParamsOptions

	Provider string
	Prompt   string
	Mode     string
	Images   []string
}

func DefaultCreateOptions() *CreateOptions {
	return &CreateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdJobsCreate() *cobra.Command {
	o := DefaultCreateOptions()
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queued job. The first refresh submits it to the provider.",
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

func (o *CreateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	o.ParamsOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
	fs.StringVarP(&o.Provider, "provider", "p", o.Provider, "Provider to run the job on (sora, veo).")
	fs.StringVar(&o.Prompt, "prompt", o.Prompt, "Text prompt.")
	fs.StringVar(&o.Mode, "mode", o.Mode, "Generation mode (text-to-video, image-to-video, reference-to-video).")
	fs.StringArrayVar(&o.Images, "image", o.Images, "Input image as [ROLE=]PATH or [ROLE=]URL. Roles: first_frame, last_frame, reference. Repeatable.")
}

func (o *CreateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, ok := api.StringToProvider(o.Provider); !ok {
		return fmt.Errorf("provider must be one of sora, veo")
	}
	if strings.TrimSpace(o.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	return o.validateOutput()
}

func (o *CreateOptions) Run(ctx context.Context, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	params, err := o.params()
	if err != nil {
		return err
	}

	form := api.JobCreate{
		Provider: api.Provider(o.Provider),
		Prompt:   o.Prompt,
		Params:   params,
	}
	if o.Mode != "" {
		form.Mode = &o.Mode
	}
	for _, image := range o.Images {
		asset, err := parseInputAsset(image)
		if err != nil {
			return err
		}
		form.Assets = append(form.Assets, *asset)
	}

	job, err := c.CreateJob(ctx, form)
	if err != nil {
		return errors.Wrap(err, "creating job")
	}
	return o.printJob(out, job)
}

// parseInputAsset reads [ROLE=]PATH or [ROLE=]URL. Local files are inlined
// as base64.
func parseInputAsset(arg string) (*api.InputAsset, error) {
	asset := &api.InputAsset{}
	if role, rest, ok := strings.Cut(arg, "="); ok && funk.ContainsString(assetRoles, role) {
		asset.Role = role
		arg = rest
	}

	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "gs://") {
		asset.Uri = &arg
		asset.MimeType = mime.TypeByExtension(filepath.Ext(arg))
	} else {
		contents, err := os.ReadFile(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "reading image %s", arg)
		}
		encoded := base64.StdEncoding.EncodeToString(contents)
		asset.BytesBase64 = &encoded
		asset.MimeType = mime.TypeByExtension(filepath.Ext(arg))
	}

	if asset.MimeType == "" {
		asset.MimeType = "image/png"
	}
	asset.Kind = asset.MimeType
	return asset, nil
}

type RemixOptions struct {
	GlobalOptions
	OutputOptions

	Prompt string
}

func DefaultRemixOptions() *RemixOptions {
	return &RemixOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdJobsRemix() *cobra.Command {
	o := DefaultRemixOptions()
	cmd := &cobra.Command{
		Use:   "remix ID",
		Short: "Create a new job remixing a finished one.",
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

func (o *RemixOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
	fs.StringVar(&o.Prompt, "prompt", o.Prompt, "Prompt of the remix. Defaults to the source prompt.")
}

func (o *RemixOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return o.validateOutput()
}

func (o *RemixOptions) Run(ctx context.Context, id string, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	form := api.JobRemix{}
	if o.Prompt != "" {
		form.Prompt = &o.Prompt
	}
	job, err := c.RemixJob(ctx, id, form)
	if err != nil {
		return errors.Wrapf(err, "remixing job %s", id)
	}
	return o.printJob(out, job)
}

type ExtendOptions struct {
	GlobalOptions
	OutputOptions
	ParamsOptions

	Prompt     string
	AssetIndex int
}

func DefaultExtendOptions() *ExtendOptions {
	return &ExtendOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdJobsExtend() *cobra.Command {
	o := DefaultExtendOptions()
	cmd := &cobra.Command{
		Use:   "extend ID",
		Short: "Create a new job continuing an output of a finished one.",
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

func (o *ExtendOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	o.ParamsOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, outputUsage())
	fs.StringVar(&o.Prompt, "prompt", o.Prompt, "Prompt of the extension. Defaults to the source prompt.")
	fs.IntVar(&o.AssetIndex, "asset", o.AssetIndex, "Index of the source output to extend.")
}

func (o *ExtendOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.AssetIndex < 0 {
		return fmt.Errorf("asset index must not be negative")
	}
	return o.validateOutput()
}

func (o *ExtendOptions) Run(ctx context.Context, id string, out io.Writer) error {
	c, err := o.Client()
	if err != nil {
		return err
	}

	params, err := o.params()
	if err != nil {
		return err
	}

	form := api.JobExtend{SourceAssetIndex: &o.AssetIndex, Params: params}
	if o.Prompt != "" {
		form.Prompt = &o.Prompt
	}
	job, err := c.ExtendJob(ctx, id, form)
	if err != nil {
		return errors.Wrapf(err, "extending job %s", id)
	}
	return o.printJob(out, job)
}
