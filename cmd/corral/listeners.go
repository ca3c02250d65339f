package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// listenersCommand implements the listeners command.
type listenersCommand struct {
	flagset *flag.FlagSet
	admin   adminFlags
	json    bool
}

// NewListenersCommand creates a new listeners command.
func NewListenersCommand() *listenersCommand {
	c := listenersCommand{}
	c.flagset = flag.NewFlagSet("listeners", flag.ExitOnError)
	c.admin.register(c.flagset)
	c.flagset.BoolVar(&c.json, "json", false, "Use JSON output")
	c.flagset.Usage = func() {
		fmt.Println("Usage: corral listeners [OPTIONS]")
		fmt.Println()
		fmt.Println("List the listeners of the running instance.")
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *listenersCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *listenersCommand) Description() string {
	return "List the listeners"
}

// Parse parses the command arguments.
func (c *listenersCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) > 0 {
		return errors.New("check arguments")
	}
	return nil
}

// Execute executes the command.
func (c *listenersCommand) Execute() error {
	return c.admin.call(func(ctx context.Context, client *corral.AdminClient) error {
		listeners, err := client.ListListeners(ctx)
		if err != nil {
			fmt.Printf("Failed to list listeners: %v\n", err)
			return fmt.Errorf("list listeners: %v", err)
		}

		if c.json {
			data, err := json.MarshalIndent(listeners, "", "  ")
			if err != nil {
				return fmt.Errorf("encode listeners: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%-16s %-10s %-24s %-10s %-12s %-16s %s\n", "NAME", "STATE", "ADDRESS", "ACCEPTORS",
			"CONNECTIONS", "TRANSPORT", "PROTOCOL")
		for _, l := range listeners {
			fmt.Printf("%-16v %-10v %-24v %-10v %-12v %-16v %v\n", l["ref"], l["state"], l["addr"], l["acceptors"],
				l["activeConnections"], l["transport"], l["protocol"])
		}

		return nil
	})
}

var _ command = (*listenersCommand)(nil)
