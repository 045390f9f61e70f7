package service

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/config"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/extract"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/staging"
)

// NewManager wires an archive store and a staging manager from cfg.
func NewManager(cfg *config.Config, deferred cleanup.Scheduler, logger logging.Logger) (*staging.Manager, error) {
	store, err := extract.NewArchiveStore(extract.StoreConfig{
		ArchiveDir:      cfg.Distribution.Archives,
		KeyringPath:     cfg.Distribution.Keyring,
		AllowUnverified: cfg.Distribution.AllowUnverified,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive store: %w", err)
	}

	return staging.New(store, staging.Config{
		Dir:            cfg.Staging.Dir,
		ExecutableName: cfg.Distribution.Executable,
		Logger:         logger,
		Deferred:       deferred,
		Lock:           cfg.Staging.Lock,
		Manifest:       cfg.Staging.Manifest,
		InspectHolders: cfg.Staging.InspectHolders,
	})
}
