package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"docconsole/internal/backend"
	"docconsole/internal/config"
	"docconsole/internal/docs"
	"docconsole/internal/impact"
	"docconsole/internal/move"
	"docconsole/internal/relgraph"
	"docconsole/internal/search"
	"docconsole/internal/tree"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (o *RootOptions) context(cmd *cobra.Command) context.Context {
	return backend.WithToken(cmd.Context(), o.Token)
}

func (o *RootOptions) loadTree(ctx context.Context, depth int) ([]docs.DocumentNode, error) {
	raw, err := o.client().FetchTree(ctx, o.Project, depth)
	if err != nil {
		return nil, err
	}
	return tree.Build(raw), nil
}

func NewTreeCommand(opts *RootOptions) *cobra.Command {
	var depth int
	var duplicates bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the project's document tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(opts); err != nil {
				return err
			}
			nodes, err := opts.loadTree(opts.context(cmd), depth)
			if err != nil {
				return err
			}
			rows := tree.Flatten(nodes, tree.FlattenOptions{KeepDuplicates: duplicates})
			return formatter{opts.Format, cmd.OutOrStdout()}.write(rows, func(w io.Writer) {
				for _, row := range rows {
					marker := ""
					if row.Duplicate {
						marker = " (repeated)"
					}
					printf(w, "%s%s  [%s] %s%s\n", strings.Repeat("  ", row.Depth), row.Title, row.Type, row.ID, marker)
				}
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", config.Defaults().TreeDepth, "maximum tree depth to fetch")
	cmd.Flags().BoolVar(&duplicates, "duplicates", false, "show repeated ids instead of dropping them")
	return cmd
}

func NewImpactCommand(opts *RootOptions) *cobra.Command {
	var modes []string
	var weightsFile string
	cmd := &cobra.Command{
		Use:   "impact <document-id>",
		Short: "Score which documents a change to a document is likely to affect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(opts); err != nil {
				return err
			}
			weights := impact.DefaultWeights()
			if weightsFile != "" {
				data, err := os.ReadFile(weightsFile)
				if err != nil {
					return fmt.Errorf("read weights: %w", err)
				}
				if err := yaml.Unmarshal(data, &weights); err != nil {
					return fmt.Errorf("parse weights: %w", err)
				}
			}

			ctx := opts.context(cmd)
			analysisModes := make([]docs.AnalysisMode, 0, len(modes))
			for _, mode := range modes {
				analysisModes = append(analysisModes, docs.AnalysisMode(mode))
			}
			raw, err := opts.client().AnalyzeImpact(ctx, opts.Project, args[0], analysisModes)
			if err != nil {
				return err
			}
			titles := map[string]string{}
			if nodes, err := opts.loadTree(ctx, 0); err == nil {
				titles = tree.Titles(nodes)
			}
			results := impact.Score(raw, titles, weights)
			return formatter{opts.Format, cmd.OutOrStdout()}.write(results, func(w io.Writer) {
				if len(results) == 0 {
					printf(w, "no affected documents\n")
					return
				}
				for _, r := range results {
					printf(w, "%-6s %3.0f%%  %-10s %s (%s)\n", r.ImpactLevel, r.ChangeProbability*100, r.RelationshipType, r.Title, r.Description)
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&modes, "modes", nil, "relation directions: parents, children, references, dependencies, all")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "YAML file overriding the scoring weights")
	return cmd
}

func NewGraphCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <document-id>",
		Short: "List the reference relationships of a document with resolved titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(opts); err != nil {
				return err
			}
			ctx := opts.context(cmd)
			client := opts.client()
			rels, err := client.ListRelationships(ctx, opts.Project, args[0])
			if err != nil {
				return err
			}
			var idx *tree.Index
			if nodes, err := opts.loadTree(ctx, 0); err == nil {
				idx = tree.NewIndex(nodes)
			}
			graph, err := relgraph.NewBuilder(client, nil, relgraph.Options{}).Hydrate(ctx, opts.Project, rels, idx)
			if err != nil {
				return err
			}
			rows := relgraph.Rows(rels, graph)
			return formatter{opts.Format, cmd.OutOrStdout()}.write(graph, func(w io.Writer) {
				if len(rows) == 0 {
					printf(w, "no references\n")
					return
				}
				for _, row := range rows {
					dep := ""
					if row.DependencyType != nil {
						dep = string(*row.DependencyType)
					}
					printf(w, "%s -> %s  [%s]", row.FromLabel, row.ToLabel, dep)
					if row.Description != "" {
						printf(w, "  %s", row.Description)
					}
					printf(w, "\n")
				}
			})
		},
	}
}

func NewMovePlanCommand(opts *RootOptions) *cobra.Command {
	var position string
	var apply bool
	cmd := &cobra.Command{
		Use:   "move-plan <node-id> <target-id>",
		Short: "Show where a node would land when dropped relative to a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(opts); err != nil {
				return err
			}
			ctx := opts.context(cmd)
			nodes, err := opts.loadTree(ctx, 0)
			if err != nil {
				return err
			}
			plan, err := move.Plan(nodes, args[0], args[1], move.Position(position))
			if err != nil {
				return err
			}
			if apply && !plan.NoOp {
				if err := opts.client().MoveNode(ctx, opts.Project, plan.NodeID, plan.Request()); err != nil {
					return err
				}
			}
			return formatter{opts.Format, cmd.OutOrStdout()}.write(plan, func(w io.Writer) {
				if plan.NoOp {
					printf(w, "%s stays where it is\n", plan.NodeID)
					return
				}
				parent := "(root)"
				if plan.NewParentID != nil {
					parent = *plan.NewParentID
				}
				verb := "would move"
				if apply {
					verb = "moved"
				}
				printf(w, "%s %s under %s at index %d\n", plan.NodeID, verb, parent, plan.NewIndex)
			})
		},
	}
	cmd.Flags().StringVar(&position, "position", string(move.Inside), "before, after or inside")
	cmd.Flags().BoolVar(&apply, "apply", false, "submit the move to the server")
	return cmd
}

func NewSearchCommand(opts *RootOptions) *cobra.Command {
	var limit int
	var types []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search project documents on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(opts); err != nil {
				return err
			}
			q := search.Query{ProjectID: opts.Project, Text: strings.Join(args, " "), Limit: limit}
			for _, t := range types {
				q.DocumentTypes = append(q.DocumentTypes, docs.DocumentType(t))
			}
			resp, err := search.NewService(nil, opts.client(), nil).Search(opts.context(cmd), q)
			if err != nil {
				return err
			}
			return formatter{opts.Format, cmd.OutOrStdout()}.write(resp, func(w io.Writer) {
				printf(w, "%d result(s) for %q\n", resp.Count, resp.Query)
				for _, r := range resp.Results {
					printf(w, "- %s (%s): %s\n", r.Title, r.DocumentID, r.Snippet)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	cmd.Flags().StringSliceVar(&types, "types", nil, "document types to include")
	return cmd
}

func NewConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the console configuration resolved from file and environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return formatter{opts.Format, cmd.OutOrStdout()}.write(cfg, nil)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
