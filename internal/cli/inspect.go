package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	inspectAccount string
	inspectInspo   []string
	inspectWindow  int
	inspectJSON    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Diagnose an account's selection inputs",
	Long: `Report the resolved inspiration usernames, post and image counts, and
cached-anchor state for an account. Read-only: never builds or mutates the
anchor cache.

Examples:
  curator inspect -a myaccount --inspo fashionista,styleicon
  curator inspect -a myaccount --inspo fashionista --window 30 --json`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectAccount, "account", "a", "", "account key (required)")
	inspectCmd.Flags().StringSliceVar(&inspectInspo, "inspo", nil, "inspiration usernames")
	inspectCmd.Flags().IntVar(&inspectWindow, "window", 0, "history window in days (default from config)")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON")
	inspectCmd.MarkFlagRequired("account")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	p, err := openPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	window := cfg.Anchor.WindowDays
	if inspectWindow > 0 {
		window = inspectWindow
	}

	report, err := p.curator.Inspect(cmd.Context(), inspectAccount, inspectInspo, window)
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	if inspectJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Account %s (window %d days)\n", report.Account, report.WindowDays)
	if len(report.InspoResolved) == 0 {
		fmt.Println("  Inspiration: none configured")
	} else {
		fmt.Printf("  Inspiration: %s\n", strings.Join(report.InspoResolved, ", "))
	}
	fmt.Printf("  Posts found:  %d\n", report.PostsFound)
	fmt.Printf("  Images found: %d\n", report.ImagesFound)
	if report.AnchorCached {
		fmt.Printf("  Anchor:       cached (built %s)\n", report.AnchorBuiltAt.Format("2006-01-02 15:04:05"))
		if report.AnchorStats != nil {
			fmt.Printf("  Filter tier:  %s\n", report.AnchorStats.FilterTier)
		}
	} else {
		fmt.Println("  Anchor:       not cached")
	}
	return nil
}
