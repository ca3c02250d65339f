package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// checkCommand implements the check command.
type checkCommand struct {
	flagset *flag.FlagSet
	file    string
	verbose bool
}

// NewCheckCommand creates a new check command.
func NewCheckCommand() *checkCommand {
	c := checkCommand{}
	c.flagset = flag.NewFlagSet("check", flag.ExitOnError)
	c.flagset.StringVar(&c.file, "c", "", "Configuration file to check instead of the instance one")
	c.flagset.BoolVar(&c.verbose, "verbose", false, "List the listeners of a valid configuration")
	c.flagset.Usage = func() {
		fmt.Println("Usage: corral check [OPTIONS]")
		fmt.Println()
		fmt.Println("Check the manager, admin, metrics and listeners sections of the configuration")
		fmt.Println("with the options of each transport and protocol module.")
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *checkCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *checkCommand) Description() string {
	return "Check the configuration and the listener modules options"
}

// Parse parses the command arguments.
func (c *checkCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) > 0 {
		return errors.New("check arguments")
	}
	if c.file != "" {
		corral.CONFIG_FILE = c.file
	}
	return nil
}

// Execute executes the command.
func (c *checkCommand) Execute() error {
	config, err := corral.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return fmt.Errorf("load config: %v", err)
	}

	app := corral.New(config)
	report, err := app.Check()
	if err != nil {
		fmt.Printf("Configuration is not valid (%d problems)\n", len(report))
		for _, line := range report {
			fmt.Printf("  - %s\n", line)
		}
		return fmt.Errorf("check: %v", err)
	}

	fmt.Println("Configuration is valid")
	if c.verbose {
		for _, line := range app.Describe() {
			fmt.Printf("  - %s\n", line)
		}
	}

	return nil
}

var _ command = (*checkCommand)(nil)
