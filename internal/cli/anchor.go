package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/domain"
	"curator/internal/vecmath"
)

var (
	anchorAccount string
	anchorInspo   []string
	anchorWindow  int
	anchorForce   bool
	anchorJSON    bool
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Build and inspect account anchors",
}

var anchorBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build (or load) an account's anchor",
	Long: `Build the account's aesthetic anchor from its inspiration accounts'
recent history, or return the cached one.

Examples:
  curator anchor build -a myaccount --inspo fashionista,styleicon
  curator anchor build -a myaccount --inspo fashionista --window 30 --force`,
	RunE: runAnchorBuild,
}

var anchorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached anchor without building",
	RunE:  runAnchorShow,
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorBuildCmd)
	anchorCmd.AddCommand(anchorShowCmd)

	for _, cmd := range []*cobra.Command{anchorBuildCmd, anchorShowCmd} {
		cmd.Flags().StringVarP(&anchorAccount, "account", "a", "", "account key (required)")
		cmd.Flags().BoolVar(&anchorJSON, "json", false, "output as JSON")
		cmd.MarkFlagRequired("account")
	}
	anchorBuildCmd.Flags().StringSliceVar(&anchorInspo, "inspo", nil, "inspiration usernames (required)")
	anchorBuildCmd.Flags().IntVar(&anchorWindow, "window", 0, "history window in days (default from config)")
	anchorBuildCmd.Flags().BoolVar(&anchorForce, "force", false, "rebuild even when cached")
	anchorBuildCmd.MarkFlagRequired("inspo")
}

func runAnchorBuild(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	p, err := openPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	window := cfg.Anchor.WindowDays
	if anchorWindow > 0 {
		window = anchorWindow
	}

	anc, err := p.curator.BuildOrLoadAnchor(cmd.Context(), anchorAccount, anchorInspo, window, anchorForce)
	if errors.Is(err, domain.ErrNoAnchor) {
		fmt.Printf("No anchor for %s: no inspiration posts or images found in the last %d days.\n", anchorAccount, window)
		return nil
	}
	if err != nil {
		return fmt.Errorf("anchor build failed: %w", err)
	}

	return printAnchor(anc)
}

func runAnchorShow(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.curator.Inspect(cmd.Context(), anchorAccount, nil, GetConfig().Anchor.WindowDays)
	if err != nil {
		return err
	}
	if !report.AnchorCached {
		fmt.Printf("No cached anchor for %s.\n", anchorAccount)
		return nil
	}
	if anchorJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("Anchor for %s\n", anchorAccount)
	fmt.Printf("  Built at:   %s\n", report.AnchorBuiltAt.Format("2006-01-02 15:04:05"))
	if report.AnchorStats != nil {
		fmt.Printf("  Filter:     %s\n", report.AnchorStats.FilterTier)
		fmt.Printf("  Candidates: %d (of %d raw)\n", report.AnchorStats.Candidates, report.AnchorStats.RawImages)
	}
	return nil
}

func printAnchor(anc *domain.Anchor) error {
	if anchorJSON {
		out, _ := json.MarshalIndent(struct {
			BuiltAt   string            `json:"built_at"`
			Dimension int               `json:"dimension"`
			Norm      float64           `json:"norm"`
			Stats     domain.BuildStats `json:"stats"`
		}{
			BuiltAt:   anc.BuiltAt.Format("2006-01-02T15:04:05Z07:00"),
			Dimension: len(anc.Vector),
			Norm:      vecmath.Norm(anc.Vector),
			Stats:     anc.Stats,
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Anchor built at %s\n", anc.BuiltAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Dimension:  %d\n", len(anc.Vector))
	fmt.Printf("  Filter:     %s\n", anc.Stats.FilterTier)
	fmt.Printf("  Posts:      %d\n", anc.Stats.PostsFound)
	fmt.Printf("  Candidates: %d (of %d raw images)\n", anc.Stats.Candidates, anc.Stats.RawImages)
	if anc.Stats.FilterTier == domain.FilterTierRaw {
		fmt.Println("  Warning: cover filtering found nothing; anchor quality is degraded")
	}
	if len(anc.Stats.AnchorExamples) > 0 {
		fmt.Println("  Top contributors:")
		for _, ex := range anc.Stats.AnchorExamples {
			fmt.Printf("    %-20s w=%.2f  %s\n", "@"+ex.Username, ex.Weight, ex.ImageID)
		}
	}
	return nil
}
