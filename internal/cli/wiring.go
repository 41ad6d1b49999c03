package cli

import (
	"fmt"
	"io"
	"os"

	"curator/config"
	"curator/internal/adapter/gate"
	"curator/internal/adapter/library"
	"curator/internal/adapter/search"
	"curator/internal/adapter/store"
	"curator/internal/anchor"
	"curator/internal/diversify"
	"curator/internal/port"
	"curator/internal/usecase"
)

// pipeline bundles the wired curator with everything that needs closing.
type pipeline struct {
	curator *usecase.Curator
	library *library.BoltLibrary
	closers []io.Closer
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i].Close()
	}
}

// openPipeline wires the curator from config: library, anchor store, search
// backend, optional gate.
func openPipeline(cfg *config.Config, dir string) (*pipeline, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lib, err := library.NewBoltLibrary(config.LibraryDBPath(dir, cfg))
	if err != nil {
		return nil, err
	}
	p := &pipeline{library: lib, closers: []io.Closer{lib}}

	anchors, err := store.NewBoltAnchorStore(config.AnchorDBPath(dir))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, anchors)

	var searcher port.NeighborSearch
	switch cfg.Search.Backend {
	case "", "bolt":
		searcher = search.NewBruteForce(lib, cfg.Search.ScanLimit)
	case "sqlite":
		sv, err := search.NewSQLiteVec(config.SearchDBPath(dir, cfg), cfg.Search.Dimension)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, sv)
		searcher = sv
	default:
		p.Close()
		return nil, fmt.Errorf("unknown search backend: %q", cfg.Search.Backend)
	}

	var contentGate port.ContentGate
	if cfg.Gate.Enabled {
		apiKey := os.Getenv(cfg.Gate.APIKeyEnv)
		if apiKey != "" {
			g, err := gate.NewOpenAIGate(apiKey, cfg.Gate.Model)
			if err != nil {
				p.Close()
				return nil, err
			}
			contentGate = g
		}
	}

	builder := anchor.NewBuilder(lib, anchor.Params{
		PostLimit:           cfg.Anchor.PostLimit,
		ImageLimit:          cfg.Anchor.ImageLimit,
		CoverWindowDays:     cfg.Anchor.CoverWindowDays,
		UniformityThreshold: cfg.Anchor.UniformityThreshold,
		CoverSimThreshold:   cfg.Anchor.CoverSimThreshold,
		RecentDays:          cfg.Anchor.RecentDays,
	})
	div := diversify.New(cfg.Selection.Lambda, cfg.Selection.MinPairwiseDistance, cfg.Selection.MaxAnchorDistance)

	p.curator = usecase.NewCurator(lib, searcher, anchors, contentGate, builder, div, usecase.Options{
		RetrieveMin:       cfg.Selection.RetrieveMin,
		RetrievePerK:      cfg.Selection.RetrievePerK,
		ReuseCooldownDays: cfg.Selection.ReuseCooldownDays,
		ExcludeUsernames:  cfg.Selection.ExcludeUsernames,
		BannedKeywords:    cfg.Selection.BannedKeywords,
	})
	return p, nil
}
