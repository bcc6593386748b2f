package main

import (
	"context"
	"os"

	"github.com/mmrnode/mmrnode/cmd/mmrnode/commands"
	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/libs/cli"
	"github.com/mmrnode/mmrnode/libs/log"
)

func main() {
	ctx := context.Background()

	conf := config.DefaultConfig()
	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.MakeRunNodeCommand(conf, logger),
		commands.MakeStatusCommand(conf, logger),
		commands.MakeRewindCommand(conf, logger),
		commands.VersionCmd,
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		os.Exit(1)
	}
}
