package main

import (
	"errors"
	"flag"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/bhuisgen/corral/internal/app/corral"
)

// versionCommand implements the version command.
type versionCommand struct {
	flagset *flag.FlagSet
	short   bool
	verbose bool
}

// NewVersionCommand creates a new version command.
func NewVersionCommand() *versionCommand {
	c := versionCommand{}
	c.flagset = flag.NewFlagSet("version", flag.ExitOnError)
	c.flagset.BoolVar(&c.short, "short", false, "Print the version number only")
	c.flagset.BoolVar(&c.verbose, "verbose", false, "Also print the built-in modules and dependencies")
	c.flagset.Usage = func() {
		fmt.Println("Usage: corral version [OPTIONS]")
		fmt.Println()
		fmt.Println("Show the build information of the corral binary.")
		fmt.Println()
		fmt.Println("Options:")
		c.flagset.PrintDefaults()
		fmt.Println()
	}

	return &c
}

// Name returns the command name.
func (c *versionCommand) Name() string {
	return c.flagset.Name()
}

// Description returns the command description.
func (c *versionCommand) Description() string {
	return "Show the build information"
}

// Parse parses the command arguments.
func (c *versionCommand) Parse(args []string) error {
	if err := c.flagset.Parse(args); err != nil {
		return errors.New("parse arguments")
	}
	if len(c.flagset.Args()) > 0 {
		return errors.New("check arguments")
	}
	if c.short && c.verbose {
		return errors.New("flags -short and -verbose are exclusive")
	}
	return nil
}

// Execute executes the command.
func (c *versionCommand) Execute() error {
	if c.short {
		fmt.Println(corral.Version)
		return nil
	}

	buildInfo, _ := debug.ReadBuildInfo()
	for _, line := range versionLines(buildInfo, c.verbose) {
		fmt.Println(line)
	}

	return nil
}

// versionLines returns the build information lines.
func versionLines(buildInfo *debug.BuildInfo, verbose bool) []string {
	lines := []string{
		corral.Name,
		fmt.Sprintf(" %-19s%s", "Version:", corral.Version),
		fmt.Sprintf(" %-19s%s", "Commit:", corral.Commit),
		fmt.Sprintf(" %-19s%s", "Built:", corral.Date),
		fmt.Sprintf(" %-19s%s", "OS/Arch:", strings.Join([]string{runtime.GOOS, runtime.GOARCH}, "/")),
	}
	if buildInfo != nil {
		lines = append(lines, fmt.Sprintf(" %-19s%s", "Go version:", buildInfo.GoVersion))
	}
	if !verbose {
		return lines
	}

	lines = append(lines, " Modules:")
	for _, line := range moduleLines("") {
		lines = append(lines, "  "+line)
	}
	if buildInfo != nil {
		lines = append(lines, " Dependencies:")
		for _, dep := range buildInfo.Deps {
			lines = append(lines, fmt.Sprintf("  %s %s", dep.Path, dep.Version))
		}
	}

	return lines
}

var _ command = (*versionCommand)(nil)
