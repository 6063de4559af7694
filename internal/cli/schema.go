// Package cli provides shared CLI utilities for citadoc and citadocd.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvAnnotation lists, comma separated, the environment variables a command
// reads. It is inherited by subcommands in the generated schema.
const EnvAnnotation = "citadoc/env"

// FlagSchema describes one command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// CommandSchema describes a command and its subcommands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Args        []string        `json:"args,omitempty"`
	Env         []string        `json:"env,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema builds the schema for cmd and every visible subcommand.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Args:        positionalArgs(cmd.Use),
		Env:         envVars(cmd),
		Flags:       flagSchemas(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

// positionalArgs returns the placeholders after the command name in a cobra
// Use line, e.g. "upload <file>" gives ["<file>"].
func positionalArgs(use string) []string {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

func envVars(cmd *cobra.Command) []string {
	seen := map[string]bool{}
	for c := cmd; c != nil; c = c.Parent() {
		for _, name := range strings.Split(c.Annotations[EnvAnnotation], ",") {
			if name = strings.TrimSpace(name); name != "" {
				seen[name] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func flagSchemas(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema

	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Name == "help-json" || f.Name == "help" || f.Hidden {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			flags = append(flags, FlagSchema{
				Name:        f.Name,
				Shorthand:   f.Shorthand,
				Type:        f.Value.Type(),
				Default:     f.DefValue,
				Description: f.Usage,
				Required:    required,
				Inherited:   inherited,
			})
		}
	}

	cmd.LocalFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))

	return flags
}

// PrintSchema writes the schema of cmd as indented JSON and exits.
func PrintSchema(cmd *cobra.Command) {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
	os.Exit(0)
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// CheckHelpJSON prints the schema of the addressed command when os.Args
// contains --help-json. It runs before Execute so that missing positional
// arguments do not fail first.
func CheckHelpJSON(rootCmd *cobra.Command) {
	for i, arg := range os.Args {
		if arg == "--help-json" {
			PrintSchema(findTargetCommand(rootCmd, os.Args[1:i]))
		}
	}
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for len(args) > 0 {
		next := (*cobra.Command)(nil)
		for _, sub := range cmd.Commands() {
			if sub.Name() == args[0] || sub.HasAlias(args[0]) {
				next = sub
				break
			}
		}
		if next == nil {
			return cmd
		}
		cmd, args = next, args[1:]
	}
	return cmd
}
