package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/services/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the stats cards of a root",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, store, root, err := loadSeed(ctx)
		if err != nil {
			return err
		}
		sum, err := summary.New(store, store).Get(ctx, root)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func printSummary(w io.Writer, s domain.Summary) {
	fmt.Fprintf(w, "%s\n", cyan.Sprint(s.Root))
	fmt.Fprintf(w, "  total     %d\n", s.Total)
	fmt.Fprintf(w, "  active    %d\n", s.Active)
	fmt.Fprintf(w, "  inactive  %d\n", s.Inactive)
	for _, r := range domain.Risks {
		fmt.Fprintf(w, "  %-9s %d\n", riskColors[r].Sprint(string(r)), s.ByRisk[r])
	}
	types := make([]string, 0, len(s.ByRecordType))
	for t := range s.ByRecordType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  dns %-5s %d\n", t, s.ByRecordType[t])
	}
	if s.LastScannedAt != nil {
		fmt.Fprintf(w, "  last scan %s\n", s.LastScannedAt.Format("2006-01-02 15:04:05Z07:00"))
	}
}
