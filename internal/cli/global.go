package cli

import (
	"io/fs"
	"time"

	"github.com/pkg/errors"
	"github.com/reelqueue/reelqueue/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultServerUrl = "http://localhost:3443"

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
	Timeout        time.Duration
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
		Timeout:        60 * time.Second,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server. Overrides the client config file.")
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client config file.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Timeout of a single API call.")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Client resolves the server from the flag, then the config file, then the
// local default.
func (o *GlobalOptions) Client() (*client.Client, error) {
	server := o.ServerUrl
	if server == "" {
		cfg, err := client.ParseConfigFile(o.ConfigFilePath)
		switch {
		case err == nil:
			server = cfg.Service.Server
		case errors.Is(err, fs.ErrNotExist):
			server = defaultServerUrl
		default:
			return nil, errors.Wrap(err, "loading client config")
		}
	}
	return client.NewClient(server, o.Timeout), nil
}
