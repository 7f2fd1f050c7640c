package cli

import (
	"fmt"
	"os"

	"github.com/instl-run/instl/pkg/indexio"
	"github.com/instl-run/instl/pkg/indexstore"
	"github.com/instl-run/instl/pkg/platform"
	"github.com/instl-run/instl/pkg/varstore"
)

// buildStore reads the index and (optional) require documents, activates
// the current OS group, resolves inheritance, and builds the synthetic
// target items — the common prefix of every planning operation.
func buildStore(indexPath, requirePath string) (*indexstore.Store, error) {
	store := indexstore.New()

	idx, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", indexPath, err)
	}
	defer func() { _ = idx.Close() }()
	indexDoc, err := indexio.ReadIndex(idx)
	if err != nil {
		return nil, err
	}
	if err := store.ReadIndex(indexDoc); err != nil {
		return nil, err
	}

	if requirePath != "" {
		req, err := os.Open(requirePath)
		if err != nil {
			return nil, fmt.Errorf("open require %s: %w", requirePath, err)
		}
		defer func() { _ = req.Close() }()
		requireDoc, err := indexio.ReadRequire(req)
		if err != nil {
			return nil, err
		}
		if err := store.ReadRequire(requireDoc); err != nil {
			return nil, err
		}
	}

	group := platform.CurrentGroup()
	if group == "" {
		store.ActivateAll()
	} else {
		store.Activate([]string{group, platform.Common})
	}
	if err := store.ResolveInheritance(); err != nil {
		return nil, err
	}
	store.CreateDefaultItems(nil)
	return store, nil
}

func newVarStore() *varstore.Store {
	v := varstore.New()
	v.SetNormpathSuffixes("_DIR", "_PATH")
	if cfg != nil {
		v.Set("LOCAL_REPO_SYNC_DIR", cfg.Settings.SyncDir)
		v.Set("LOCAL_REPO_BOOKKEEPING_DIR", cfg.Settings.BookkeepingDir)
	}
	return v
}
