package main

import (
	"os"

	"github.com/reelqueue/reelqueue/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewReelqueueCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewReelqueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reelqueue [flags] [options]",
		Short: "reelqueue drives video generation jobs on Sora and Veo.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdProviders())
	cmd.AddCommand(cli.NewCmdJobs())
	cmd.AddCommand(cli.NewCmdConfigure())

	return cmd
}
