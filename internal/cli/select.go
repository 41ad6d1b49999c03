package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/domain"
	"curator/internal/usecase"
)

var (
	selectAccount string
	selectInspo   []string
	selectWindow  int
	selectK       int
	selectExclude []string
	selectUsers   []string
	selectRebuild bool
	selectJSON    bool
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select diverse images near an account's anchor",
	Long: `Select K diverse images near the account's anchor using MMR: close to
the anchor, far from each other.

Examples:
  curator select -a myaccount --inspo fashionista,styleicon -k 10
  curator select -a myaccount --inspo fashionista -k 6 --users allowed1,allowed2 --json`,
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringVarP(&selectAccount, "account", "a", "", "account key (required)")
	selectCmd.Flags().StringSliceVar(&selectInspo, "inspo", nil, "inspiration usernames (used when no anchor is cached)")
	selectCmd.Flags().IntVar(&selectWindow, "window", 0, "history window in days (default from config)")
	selectCmd.Flags().IntVarP(&selectK, "count", "k", 10, "number of images to select")
	selectCmd.Flags().StringSliceVar(&selectExclude, "exclude", nil, "image ids to exclude")
	selectCmd.Flags().StringSliceVar(&selectUsers, "users", nil, "restrict to these source usernames")
	selectCmd.Flags().BoolVar(&selectRebuild, "rebuild", false, "force anchor rebuild first")
	selectCmd.Flags().BoolVar(&selectJSON, "json", false, "output as JSON")
	selectCmd.MarkFlagRequired("account")
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	p, err := openPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	window := cfg.Anchor.WindowDays
	if selectWindow > 0 {
		window = selectWindow
	}

	sel, err := p.curator.SelectDiverse(cmd.Context(), usecase.SelectRequest{
		AccountKey:     selectAccount,
		Inspo:          selectInspo,
		WindowDays:     window,
		K:              selectK,
		ExcludeIDs:     selectExclude,
		UsernameFilter: selectUsers,
		ForceRebuild:   selectRebuild,
	})
	if err != nil {
		return explainSelectionError(err, window)
	}

	if selectJSON {
		out, _ := json.MarshalIndent(selectionView(sel), "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Selected %d images (run %s)\n", len(sel.Picks), sel.RunID)
	for i, pick := range sel.Picks {
		fmt.Printf("  [%d] %-24s @%-18s dist=%.3f\n", i+1, pick.Image.ID, pick.Image.Username, pick.AnchorDistance)
	}
	fmt.Printf("\nPool: %d candidates, %d excluded\n", sel.Stats.PoolSize, sel.Stats.Excluded)
	fmt.Printf("Anchor distance: min=%.3f avg=%.3f max=%.3f\n", sel.Stats.MinAnchorDist, sel.Stats.AvgAnchorDist, sel.Stats.MaxAnchorDist)
	fmt.Printf("Min pairwise distance: %.3f\n", sel.Stats.MinPairwiseDist)
	return nil
}

func explainSelectionError(err error, window int) error {
	var insufficient *domain.InsufficientCandidatesError
	var diversity *domain.DiversityError
	switch {
	case errors.Is(err, domain.ErrNoAnchor):
		return fmt.Errorf("no anchor: no inspiration posts or images in the last %d days; add inspiration accounts or widen the window", window)
	case errors.As(err, &insufficient):
		return fmt.Errorf("only %d on-aesthetic candidates for %d slots; add more inspiration accounts or relax max_anchor_distance", insufficient.Have, insufficient.Need)
	case errors.As(err, &diversity):
		return fmt.Errorf("diversity constraint filled only %d of %d slots; relax min_pairwise_distance or lower the count", diversity.Have, diversity.Need)
	default:
		return err
	}
}

type pickView struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	ImagePath      string  `json:"image_path,omitempty"`
	Aesthetic      string  `json:"aesthetic,omitempty"`
	AnchorDistance float64 `json:"anchor_distance"`
}

type selectionJSON struct {
	RunID   string                 `json:"run_id"`
	Account string                 `json:"account"`
	Picks   []pickView             `json:"picks"`
	Stats   domain.SelectionStats  `json:"stats"`
}

func selectionView(sel *domain.Selection) selectionJSON {
	picks := make([]pickView, len(sel.Picks))
	for i, p := range sel.Picks {
		picks[i] = pickView{
			ID:             p.Image.ID,
			Username:       p.Image.Username,
			ImagePath:      p.Image.ImagePath,
			Aesthetic:      p.Image.Aesthetic,
			AnchorDistance: p.AnchorDistance,
		}
	}
	return selectionJSON{
		RunID:   sel.RunID,
		Account: sel.Account,
		Picks:   picks,
		Stats:   sel.Stats,
	}
}
