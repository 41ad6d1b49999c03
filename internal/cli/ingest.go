package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"curator/config"
	"curator/internal/adapter/library"
	"curator/internal/adapter/search"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dump.json>",
	Short: "Load a corpus dump into the library",
	Long: `Load a JSON corpus dump (posts and images with embeddings) into the
library database. When the sqlite search backend is configured, embedded
images are also indexed into the vector database.

Examples:
  curator ingest dump.json
  curator ingest /data/corpus.json -d /data/workdir`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("dump does not exist: %w", err)
	}

	cfg := GetConfig()
	dir := GetRootDir()

	dump, err := library.ReadDump(path)
	if err != nil {
		return fmt.Errorf("failed to read dump: %w", err)
	}
	fmt.Printf("Loaded dump: %d posts, %d images\n", len(dump.Posts), len(dump.Images))

	if err := config.EnsureDataDir(dir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	lib, err := library.NewBoltLibrary(config.LibraryDBPath(dir, cfg))
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	bar := progressbar.NewOptions(len(dump.Posts)+len(dump.Images),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	for _, p := range dump.Posts {
		if err := lib.PutPost(p); err != nil {
			return fmt.Errorf("failed to store post %s: %w", p.PostID, err)
		}
		bar.Add(1)
	}
	embedded := 0
	for _, img := range dump.Images {
		if err := lib.PutImage(img); err != nil {
			return fmt.Errorf("failed to store image %s: %w", img.ID, err)
		}
		if len(img.Embedding) > 0 {
			embedded++
		}
		bar.Add(1)
	}

	if cfg.Search.Backend == "sqlite" {
		fmt.Println("Indexing vectors into sqlite-vec...")
		sv, err := search.NewSQLiteVec(config.SearchDBPath(dir, cfg), cfg.Search.Dimension)
		if err != nil {
			return fmt.Errorf("failed to open vector db: %w", err)
		}
		defer sv.Close()
		if err := sv.Index(cmd.Context(), dump.Images); err != nil {
			return fmt.Errorf("vector indexing failed: %w", err)
		}
	}

	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Posts stored:   %d\n", len(dump.Posts))
	fmt.Printf("  Images stored:  %d\n", len(dump.Images))
	fmt.Printf("  With embedding: %d\n", embedded)
	return nil
}
