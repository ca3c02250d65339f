package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// listenerCommand implements a command acting on one listener.
type listenerCommand struct {
	flagset     *flag.FlagSet
	description string
	admin       adminFlags
	action      func(ctx context.Context, client *corral.AdminClient, name string) error
	listener    string
}

// NewListenerCommand creates a new command calling action on the listener
// given as argument.
func NewListenerCommand(name string, description string,
	action func(ctx context.Context, client *corral.AdminClient, name string) error) *listenerCommand {
	c := listenerCommand{
		description: description,
		action:      action,
	}
	c.flagset = flag.NewFlagSet(name, flag.ExitOnError)
	c.admin.register(c.flagset)
	c.flagset.Usage = func() {
		fmt.Printf("Usage: corral %s [OPTIONS] NAME\n", name)
		fmt.Println()
		fmt.Printf("%s.\n", description)
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *listenerCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *listenerCommand) Description() string {
	return c.description
}

// Parse parses the command arguments.
func (c *listenerCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) != 1 {
		fmt.Println("The command requires the listener name")
		return errors.New("check arguments")
	}
	c.listener = c.flagset.Arg(0)

	return nil
}

// Execute executes the command.
func (c *listenerCommand) Execute() error {
	return c.admin.call(func(ctx context.Context, client *corral.AdminClient) error {
		if err := c.action(ctx, client, c.listener); err != nil {
			fmt.Printf("Failed to %s listener: %v\n", c.Name(), err)
			return fmt.Errorf("%s listener: %v", c.Name(), err)
		}
		return nil
	})
}

var _ command = (*listenerCommand)(nil)

// stopListener stops the listener.
func stopListener(ctx context.Context, client *corral.AdminClient, name string) error {
	return client.StopListener(ctx, name)
}

// suspendListener suspends the listener.
func suspendListener(ctx context.Context, client *corral.AdminClient, name string) error {
	return client.SuspendListener(ctx, name)
}

// resumeListener resumes the listener.
func resumeListener(ctx context.Context, client *corral.AdminClient, name string) error {
	return client.ResumeListener(ctx, name)
}
