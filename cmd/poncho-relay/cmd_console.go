package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ilkoid/poncho-relay/pkg/app"
	"github.com/ilkoid/poncho-relay/pkg/events"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

var (
	consoleTrace bool
	consoleWidth int
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the relay from the terminal as a private-chat user",
	RunE:  runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleTrace, "trace", false, "print pipeline events (routing, nodes, drops)")
	consoleCmd.Flags().IntVar(&consoleWidth, "wrap", 100, "wrap replies at this width, 0 disables wrapping")
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg, true); err != nil {
		return err
	}

	ctx, shutdown := utils.SetupGracefulShutdownWithContext()
	defer shutdown()

	sender := app.NewConsoleSender(os.Stdout)
	sender.Width = consoleWidth
	opts := app.Options{Sender: sender}
	if consoleTrace {
		emitter := events.NewChanEmitter(256)
		defer emitter.Close()
		opts.Emitter = emitter
		go printEvents(emitter.Subscribe())
	}

	c, err := app.Initialize(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer c.Shutdown(shutdownTimeout)

	return app.RunConsole(ctx, c, os.Stdin, os.Stdout, "> ")
}

func printEvents(sub events.Subscriber) {
	for ev := range sub.Events() {
		fmt.Fprintf(os.Stderr, "  · %s %+v\n", ev.Type, ev.Data)
	}
}
