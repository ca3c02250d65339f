package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

// modulesCommand implements the modules command.
type modulesCommand struct {
	flagset   *flag.FlagSet
	namespace string
}

// NewModulesCommand creates a new modules command.
func NewModulesCommand() *modulesCommand {
	c := modulesCommand{}
	c.flagset = flag.NewFlagSet("modules", flag.ExitOnError)
	c.flagset.StringVar(&c.namespace, "n", "", "Namespace of the modules (transport or protocol)")
	c.flagset.Usage = func() {
		fmt.Println("Usage: corral modules [OPTIONS]")
		fmt.Println()
		fmt.Println("List the registered transport and protocol modules.")
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *modulesCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *modulesCommand) Description() string {
	return "List the registered modules"
}

// Parse parses the command arguments.
func (c *modulesCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) > 0 {
		return errors.New("check arguments")
	}
	switch c.namespace {
	case "", core.TransportNamespace, core.ProtocolNamespace:
	default:
		return fmt.Errorf("invalid namespace '%s'", c.namespace)
	}
	return nil
}

// Execute executes the command.
func (c *modulesCommand) Execute() error {
	for _, line := range moduleLines(c.namespace) {
		fmt.Println(line)
	}

	return nil
}

// moduleLines returns one line per registered module of the namespace.
func moduleLines(namespace string) []string {
	var lines []string
	for _, id := range module.List(namespace) {
		lines = append(lines, fmt.Sprintf("%-12s %s", id.Namespace(), id.Name()))
	}
	return lines
}

var _ command = (*modulesCommand)(nil)
