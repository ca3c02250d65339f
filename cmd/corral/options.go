package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// optionsCommand implements the options command.
type optionsCommand struct {
	flagset  *flag.FlagSet
	admin    adminFlags
	path     string
	set      string
	listener string
}

// NewOptionsCommand creates a new options command.
func NewOptionsCommand() *optionsCommand {
	c := optionsCommand{}
	c.flagset = flag.NewFlagSet("options", flag.ExitOnError)
	c.admin.register(c.flagset)
	c.flagset.StringVar(&c.path, "path", "", "JSONPath expression selecting the options to print")
	c.flagset.StringVar(&c.set, "set", "", "File (yaml,toml,json) holding the new protocol options")
	c.flagset.Usage = func() {
		fmt.Println("Usage: corral options [OPTIONS] NAME")
		fmt.Println()
		fmt.Println("Show or replace the protocol options of a listener.")
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *optionsCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *optionsCommand) Description() string {
	return "Show or replace the protocol options of a listener"
}

// Parse parses the command arguments.
func (c *optionsCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) != 1 {
		fmt.Println("The command requires the listener name")
		return errors.New("check arguments")
	}
	if c.path != "" && c.set != "" {
		fmt.Println("The options -path and -set are exclusive")
		return errors.New("check arguments")
	}
	c.listener = c.flagset.Arg(0)

	return nil
}

// Execute executes the command.
func (c *optionsCommand) Execute() error {
	if c.set != "" {
		options, err := corral.LoadOptions(c.set)
		if err != nil {
			fmt.Printf("Failed to load options: %v\n", err)
			return fmt.Errorf("load options: %v", err)
		}
		return c.admin.call(func(ctx context.Context, client *corral.AdminClient) error {
			if err := client.SetProtocolOptions(ctx, c.listener, options); err != nil {
				fmt.Printf("Failed to set options: %v\n", err)
				return fmt.Errorf("set options: %v", err)
			}
			return nil
		})
	}

	return c.admin.call(func(ctx context.Context, client *corral.AdminClient) error {
		options, err := client.GetProtocolOptions(ctx, c.listener)
		if err != nil {
			fmt.Printf("Failed to get options: %v\n", err)
			return fmt.Errorf("get options: %v", err)
		}

		result, err := selectOptions(options, c.path)
		if err != nil {
			fmt.Printf("Failed to select options: %v\n", err)
			return err
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode options: %v", err)
		}
		fmt.Println(string(data))

		return nil
	})
}

// selectOptions returns the part of the options matched by the JSONPath
// expression, or all the options when path is empty.
func selectOptions(options map[string]interface{}, path string) (interface{}, error) {
	if path == "" {
		return options, nil
	}
	result, err := jsonpath.Get(path, options)
	if err != nil {
		return nil, fmt.Errorf("evaluate path: %w", err)
	}

	return result, nil
}

var _ command = (*optionsCommand)(nil)
