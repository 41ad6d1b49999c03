package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Curator - anchor-based image selection and diversification",
	Long: `Curator builds an aesthetic anchor from inspiration-account history,
retrieves visually similar candidate images, and selects a diverse,
non-redundant subset under hard similarity constraints.

Example usage:
  curator ingest dump.json             # Load posts and images into the library
  curator anchor build -a myaccount --inspo a,b,c
  curator select -a myaccount -k 10    # Pick 10 diverse on-aesthetic images
  curator inspect -a myaccount --inspo a,b,c`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./curator.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "data directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
