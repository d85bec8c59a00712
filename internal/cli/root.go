// Package cli implements docctl, a command-line view of a document server using
// the same tree, impact and relationship logic as the console.
package cli

import (
	"fmt"
	"os"
	"time"

	"docconsole/internal/backend"
	"docconsole/internal/config"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	BackendURL string
	Token      string
	Project    string
	Format     string // "json" | "text"
	Timeout    time.Duration
}

func (o *RootOptions) client() *backend.Client {
	return backend.New(o.BackendURL, backend.Options{Timeout: o.Timeout})
}

// NewRootCommand creates the docctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "docctl",
		Short: "Inspect documents on a document server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	backendURL := defaults.BackendURL
	if env := os.Getenv("DOCCONSOLE_BACKEND_URL"); env != "" {
		backendURL = env
	}
	cmd.PersistentFlags().StringVar(&opts.BackendURL, "backend", backendURL, "document server base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("DOCCONSOLE_TOKEN"), "bearer token forwarded to the document server")
	cmd.PersistentFlags().StringVarP(&opts.Project, "project", "p", "", "project id")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", defaults.BackendTimeout, "request timeout")

	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewImpactCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewMovePlanCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func requireProject(opts *RootOptions) error {
	if opts.Project == "" {
		return fmt.Errorf("--project is required")
	}
	return nil
}
