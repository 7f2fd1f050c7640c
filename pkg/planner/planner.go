// Package planner implements the install planner (spec §4.D): turning a
// list of main install targets (IIDs, guids, or synthetic names) into the
// full transitive install set, partitioned by target folder and by sync
// folder.
package planner

import (
	"sort"
	"strings"

	"github.com/instl-run/instl/pkg/indexstore"
	"github.com/instl-run/instl/pkg/varstore"
)

// Variable names the planner records, per spec §4.D step 8.
const (
	VarFullListOfInstallTargets = "__FULL_LIST_OF_INSTALL_TARGETS__"
	VarMainInstallIids          = "__MAIN_INSTALL_IIDS__"
	VarMainUpdateIids           = "__MAIN_UPDATE_IIDS__"
	VarOrphanInstallTargets     = "__ORPHAN_INSTALL_TARGETS__"
)

// Plan is the result of running Plan.
type Plan struct {
	MainIids         []string
	UpdateIids       []string
	OrphanTargets    []string
	ByTargetFolder   map[string][]indexstore.TargetFolderEntry
	BySyncFolder     map[string][]string // folder -> iids
}

// Plan runs the algorithm in spec §4.D against store, recording its
// bookkeeping variables into vars. targets is the raw MAIN_INSTALL_TARGETS
// list; ignored lists IIDs to mark ignored before closure.
func Plan(store *indexstore.Store, vars *varstore.Store, targets []string, ignored []string) *Plan {
	store.SetIgnore(ignored)

	iidTargets, guidTargets := splitTargets(targets)
	guidIids, orphanGuids := store.IidsFromGuids(guidTargets)

	mainCandidates, updateCandidates := resolveSynthetic(store, append(iidTargets, guidIids...))

	mainIids, orphanMain := store.IidsFromIids(mainCandidates)
	updateIids, orphanUpdate := store.IidsFromIids(updateCandidates)

	var orphans []string
	orphans = append(orphans, orphanGuids...)
	orphans = append(orphans, orphanMain...)
	orphans = append(orphans, orphanUpdate...)
	sort.Strings(orphans)

	store.ChangeStatusIf(indexstore.StatusNone, indexstore.StatusMain, mainIids)
	mainClosure := store.RecursiveDeps(indexstore.StatusMain)
	store.ChangeStatusIf(indexstore.StatusNone, indexstore.StatusDepend, mainClosure)

	store.ChangeStatusIf(indexstore.StatusNone, indexstore.StatusUpdate, updateIids)
	updateClosure := store.RecursiveDeps(indexstore.StatusUpdate)
	store.ChangeStatusIf(indexstore.StatusNone, indexstore.StatusDepend, updateClosure)

	p := &Plan{
		MainIids:      sortedCopy(mainIids),
		UpdateIids:    sortedCopy(updateIids),
		OrphanTargets: orphans,
	}
	p.partition(store, vars)

	full := append(append([]string(nil), p.MainIids...), p.UpdateIids...)
	sort.Strings(full)
	vars.Set(VarFullListOfInstallTargets, full...)
	vars.Set(VarMainInstallIids, p.MainIids...)
	vars.Set(VarMainUpdateIids, p.UpdateIids...)
	vars.Set(VarOrphanInstallTargets, p.OrphanTargets...)

	store.Lock()
	return p
}

func splitTargets(targets []string) (iids []string, guids []string) {
	for _, t := range targets {
		if strings.HasPrefix(strings.ToUpper(t), "GUID-") {
			guids = append(guids, strings.TrimPrefix(strings.ToUpper(t), "GUID-"))
		} else {
			iids = append(iids, t)
		}
	}
	return iids, guids
}

// resolveSynthetic expands __REPAIR_INSTALLED_ITEMS__, __UPDATE_INSTALLED_ITEMS__,
// __ALL_ITEMS_IID__, and __ALL_GUIDS_IID__ targets into concrete main/update
// cohorts, with repair winning over update for any IID present in both.
func resolveSynthetic(store *indexstore.Store, candidates []string) (main []string, update []string) {
	var repairSet, updateSet map[string]bool
	var plain []string
	for _, c := range candidates {
		switch c {
		case indexstore.RepairInstalledIID, indexstore.AllItemsIID, indexstore.AllGuidsIID:
			if it, ok := store.Get(c); ok {
				repairSet = addAll(repairSet, depTargets(it))
			}
		case indexstore.UpdateInstalledIID:
			if it, ok := store.Get(c); ok {
				updateSet = addAll(updateSet, depTargets(it))
			}
		default:
			plain = append(plain, c)
		}
	}
	main = append(main, plain...)
	for iid := range repairSet {
		main = append(main, iid)
	}
	for iid := range updateSet {
		if repairSet == nil || !repairSet[iid] {
			update = append(update, iid)
		}
	}
	return dedupe(main), dedupe(update)
}

func depTargets(it *indexstore.Item) []string {
	var out []string
	for _, d := range it.Details {
		if d.Name == "depends" {
			out = append(out, d.Value)
		}
	}
	return out
}

func addAll(set map[string]bool, values []string) map[string]bool {
	if set == nil {
		set = make(map[string]bool)
	}
	for _, v := range values {
		set[v] = true
	}
	return set
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func (p *Plan) partition(store *indexstore.Store, vars *varstore.Store) {
	p.ByTargetFolder = make(map[string][]indexstore.TargetFolderEntry)
	p.BySyncFolder = make(map[string][]string)

	for _, e := range store.TargetFoldersToItems() {
		if e.DirectSync {
			p.BySyncFolder[e.InstallFolder] = append(p.BySyncFolder[e.InstallFolder], e.IID)
			continue
		}
		p.ByTargetFolder[e.InstallFolder] = append(p.ByTargetFolder[e.InstallFolder], e)
	}

	syncDir, _ := vars.Get("LOCAL_REPO_SYNC_DIR")
	base := "."
	if len(syncDir) > 0 {
		base = syncDir[0]
	}
	for iid, sources := range store.SourceFoldersToItemsWithoutTargetFolders() {
		for _, src := range sources {
			folder := base + "/" + src
			p.BySyncFolder[folder] = append(p.BySyncFolder[folder], iid)
		}
	}

	for folder := range p.ByTargetFolder {
		sort.Slice(p.ByTargetFolder[folder], func(i, j int) bool {
			return p.ByTargetFolder[folder][i].IID < p.ByTargetFolder[folder][j].IID
		})
	}
	for folder := range p.BySyncFolder {
		sort.Strings(p.BySyncFolder[folder])
	}
}
