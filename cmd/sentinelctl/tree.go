package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/subdomain"
)

const cliView = "sentinelctl"

var (
	expandAll bool
	query     string
	toggles   []string

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Render a subdomain hierarchy",
		Example: `  sentinelctl tree
  sentinelctl tree --toggle 2 --toggle 5
  sentinelctl tree --query staging`,
		RunE: runTree,
	}
)

func init() {
	treeCmd.Flags().BoolVar(&expandAll, "expand-all", false, "Expand every node")
	treeCmd.Flags().StringVarP(&query, "query", "q", "", "Only show names containing this text, with their ancestors")
	treeCmd.Flags().StringArrayVar(&toggles, "toggle", nil, "Toggle a node by id before rendering (repeatable)")
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	disc, _, root, err := loadSeed(ctx)
	if err != nil {
		return err
	}
	for _, id := range toggles {
		if _, err := disc.Toggle(ctx, cliView, root, id); err != nil {
			return fmt.Errorf("toggle %s: %w", id, err)
		}
	}
	view, err := disc.View(ctx, cliView, root, subdomain.Options{Query: query, ExpandAll: expandAll})
	if err != nil {
		return err
	}
	printRows(cmd.OutOrStdout(), view.Rows)
	return nil
}

var riskColors = map[domain.Risk]*color.Color{
	domain.RiskCritical: color.New(color.FgRed, color.Bold),
	domain.RiskHigh:     color.New(color.FgHiRed),
	domain.RiskMedium:   color.New(color.FgYellow),
	domain.RiskLow:      color.New(color.FgGreen),
}

var (
	faint = color.New(color.Faint)
	cyan  = color.New(color.FgCyan)
)

// printRows writes one line per row, indented two spaces per depth level.
func printRows(w io.Writer, rows []subdomain.Row) {
	for _, r := range rows {
		marker := "  "
		if r.HasChildren {
			marker = "+ "
			if r.Expanded {
				marker = "- "
			}
		}
		badge := fmt.Sprintf("[%s]", r.Node.Risk)
		if c, ok := riskColors[r.Node.Risk]; ok {
			badge = c.Sprint(badge)
		}
		name := cyan.Sprint(r.Node.Name)
		if r.Node.Status == domain.StatusInactive {
			name = faint.Sprint(r.Node.Name + " (inactive)")
		}
		fmt.Fprintf(w, "%s%s%s %s  %s\n", strings.Repeat("  ", r.Depth), marker, name, badge, faint.Sprintf("%s %s %s", r.Node.DNS, r.Node.IP, r.Node.Hosting))
	}
}
