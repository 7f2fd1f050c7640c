// Package indexstore holds the resolved item/detail model backing the
// install and sync planners (spec §4.C): inheritance resolution, OS
// activity filtering, guid/iid translation, dependency closure, install
// status transitions and the four synthetic target items.
package indexstore

import (
	"sort"
	"strings"

	hcversion "github.com/hashicorp/go-version"

	"github.com/instl-run/instl/pkg/indexio"
	"github.com/instl-run/instl/pkg/instllog"
	"github.com/instl-run/instl/pkg/platform"
	"github.com/instl-run/instl/pkg/xerrors"
)

// Status is an item's position in the install state machine.
type Status string

const (
	StatusNone   Status = "none"
	StatusMain   Status = "main"
	StatusUpdate Status = "update"
	StatusDepend Status = "depend"
	StatusRemove Status = "remove"
)

// Synthetic IIDs created by CreateDefaultItems.
const (
	AllItemsIID           = "__ALL_ITEMS_IID__"
	AllGuidsIID           = "__ALL_GUIDS_IID__"
	RepairInstalledIID    = "__REPAIR_INSTALLED_ITEMS__"
	UpdateInstalledIID    = "__UPDATE_INSTALLED_ITEMS__"
)

// Detail is one generation-tracked attribute row belonging to an item:
// install_sources, install_folders, depends, guid, etc. Multiple details
// with the same Name may exist (e.g. several install_sources).
type Detail struct {
	Name        string
	Value       string
	Tag         indexio.SourceTag
	OSID        string // platform os_id, "common" when not OS-specific
	OSIsActive  bool
	Generation  int
	OwnerIID    string
	OriginalIID string
}

// Item is one resolved index entry.
type Item struct {
	IID            string
	Name           string
	Version        string
	PhantomVersion string
	RequireVersion string
	Installed      bool // present in the require document
	InstallStatus  Status
	Ignore         bool
	Inherit        []string
	resolved       bool
	resolving      bool
	Details        []*Detail
}

func (it *Item) addDetail(d *Detail) { it.Details = append(it.Details, d) }

func (it *Item) detailsNamed(name string) []*Detail {
	var out []*Detail
	for _, d := range it.Details {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// Store is the item/detail table plus guid index.
type Store struct {
	items  map[string]*Item
	guidOf map[string]string // guid -> iid
	locked bool
}

// New returns an empty store.
func New() *Store {
	return &Store{items: make(map[string]*Item), guidOf: make(map[string]string)}
}

func (s *Store) checkUnlocked() error {
	if s.locked {
		return xerrors.ErrLockedTable
	}
	return nil
}

// Lock prevents further mutation of the item/detail tables, matching the
// planner-input contract in spec §4.C.
func (s *Store) Lock() { s.locked = true }

// Get returns the item for iid.
func (s *Store) Get(iid string) (*Item, bool) {
	it, ok := s.items[iid]
	return it, ok
}

// All returns every item, sorted by IID.
func (s *Store) All() []*Item {
	out := make([]*Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IID < out[j].IID })
	return out
}

func (s *Store) getOrCreate(iid string) *Item {
	it, ok := s.items[iid]
	if !ok {
		it = &Item{IID: iid, InstallStatus: StatusNone}
		s.items[iid] = it
	}
	return it
}

// ReadIndex loads an index document into the store, materialising
// install_sources entries per the OS-relative path expansion rule: a
// relative path under an OS submap becomes one physical detail row per OS
// group it belongs to, prefixed with the group name; an absolute path is
// stored verbatim with its leading slash stripped.
func (s *Store) ReadIndex(doc indexio.Document) error {
	if err := s.checkUnlocked(); err != nil {
		return err
	}
	for iid, raw := range doc {
		it := s.getOrCreate(iid)
		s.populateItem(it, raw, "common")
		for osKey, override := range raw.OSOverrides {
			s.populateItem(it, override, osKey)
		}
	}
	return nil
}

func (s *Store) populateItem(it *Item, raw *indexio.Item, osID string) {
	if raw.Name != "" {
		it.Name = raw.Name
	}
	if raw.Version != "" {
		it.Version = raw.Version
	}
	if raw.PhantomVersion != "" {
		it.PhantomVersion = raw.PhantomVersion
	}
	if raw.GUID != "" {
		guid := strings.ToLower(raw.GUID)
		it.addDetail(&Detail{Name: "guid", Value: guid, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
		s.guidOf[guid] = it.IID
	}
	if len(raw.Inherit) > 0 {
		it.Inherit = append(it.Inherit, raw.Inherit...)
	}
	for _, dep := range raw.Depends {
		it.addDetail(&Detail{Name: "depends", Value: dep, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
	}
	for _, folder := range raw.InstallFolders {
		it.addDetail(&Detail{Name: "install_folders", Value: folder, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
	}
	if raw.DirectSync {
		it.addDetail(&Detail{Name: "direct_sync", Value: "yes", OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
	}
	if raw.InfoMap != "" {
		it.addDetail(&Detail{Name: "info_map", Value: raw.InfoMap, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
	}
	for _, src := range raw.InstallSources {
		s.addSourceDetails(it, "install_sources", src, osID)
	}
	for _, src := range raw.PreviousSources {
		s.addSourceDetails(it, "previous_sources", src, osID)
	}
}

// addSourceDetails stores a single source path as exactly one physical row:
// an absolute path with its leading slash stripped under os_id "common", a
// relative path under a specific OS prefixed with that OS's group name, and
// any other relative path unchanged. A path is never expanded into rows for
// more than one OS group.
func (s *Store) addSourceDetails(it *Item, name string, src indexio.Source, osID string) {
	path := src.Path
	if strings.HasPrefix(path, "/") {
		it.addDetail(&Detail{Name: name, Value: strings.TrimPrefix(path, "/"), Tag: src.Tag, OSID: "common", OwnerIID: it.IID, OriginalIID: it.IID})
		return
	}
	group := platform.Group(osID)
	if group == "" {
		it.addDetail(&Detail{Name: name, Value: path, Tag: src.Tag, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
		return
	}
	it.addDetail(&Detail{Name: name, Value: group + "/" + path, Tag: src.Tag, OSID: osID, OwnerIID: it.IID, OriginalIID: it.IID})
}

// ReadRequire loads a require document, recording each IID as currently
// installed with its declared require_version and require_guid(s), and
// splitting its require_by names against the current IID set: a name that
// matches an existing installer becomes a require_by detail, a name that
// doesn't is redirected to deprecated_require_by (spec §3, §6).
func (s *Store) ReadRequire(doc indexio.RequireDocument) error {
	if err := s.checkUnlocked(); err != nil {
		return err
	}
	knownIIDs := make(map[string]bool, len(s.items))
	for iid := range s.items {
		knownIIDs[iid] = true
	}
	for iid, raw := range doc {
		it := s.getOrCreate(iid)
		it.Installed = true
		it.RequireVersion = raw.Version
		for _, guid := range raw.GUIDs {
			it.addDetail(&Detail{Name: "require_guid", Value: strings.ToLower(guid), OSID: "common", OSIsActive: true, OwnerIID: it.IID, OriginalIID: it.IID})
		}
		for _, name := range raw.RequireBy {
			detailName := "deprecated_require_by"
			if knownIIDs[name] {
				detailName = "require_by"
			}
			it.addDetail(&Detail{Name: detailName, Value: name, OSID: "common", OSIsActive: true, OwnerIID: it.IID, OriginalIID: it.IID})
		}
	}
	return nil
}

// ResolveInheritance resolves every item's inherit chain: a child copies
// its resolved parents' detail rows (excluding name/inherit) with
// Generation+1 and OwnerIID set to the child, preserving each row's
// OriginalIID. Inheriting from a non-existent IID is logged as a warning,
// not fatal.
func (s *Store) ResolveInheritance() error {
	if err := s.checkUnlocked(); err != nil {
		return err
	}
	for iid := range s.items {
		if err := s.resolveOne(iid, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) resolveOne(iid string, chain []string) error {
	it, ok := s.items[iid]
	if !ok {
		return nil
	}
	if it.resolved {
		return nil
	}
	if it.resolving {
		return xerrors.Wrapf(xerrors.ErrInheritCycle, "chain %v", append(chain, iid))
	}
	it.resolving = true
	defer func() { it.resolving = false }()

	for _, parentIID := range it.Inherit {
		if err := s.resolveOne(parentIID, append(chain, iid)); err != nil {
			return err
		}
		parent, ok := s.items[parentIID]
		if !ok {
			instllog.L().Warnf("%s inherits from unknown item %s", iid, parentIID)
			continue // non-existent inherit target: reported, not fatal
		}
		for _, d := range parent.Details {
			copyDetail := *d
			copyDetail.Generation = d.Generation + 1
			copyDetail.OwnerIID = it.IID
			it.addDetail(&copyDetail)
		}
	}
	it.resolved = true
	return nil
}

// Activate marks every detail row active whose OSID is in osNames, plus
// every "common" row whenever osNames is non-empty.
func (s *Store) Activate(osNames []string) {
	set := make(map[string]bool, len(osNames))
	for _, n := range osNames {
		set[n] = true
	}
	for _, it := range s.items {
		for _, d := range it.Details {
			d.OSIsActive = (d.OSID == "common" && len(osNames) > 0) || set[d.OSID]
		}
	}
}

// ActivateAll marks every detail row active, regardless of OS.
func (s *Store) ActivateAll() {
	for _, it := range s.items {
		for _, d := range it.Details {
			d.OSIsActive = true
		}
	}
}

// IidsFromGuids translates guids to iids, returning unmatched guids
// separately.
func (s *Store) IidsFromGuids(guids []string) (iids []string, orphans []string) {
	for _, g := range guids {
		g = strings.ToLower(g)
		if iid, ok := s.guidOf[g]; ok {
			iids = append(iids, iid)
		} else {
			orphans = append(orphans, g)
		}
	}
	return iids, orphans
}

// IidsFromIids filters iids to those that exist in the store, returning the
// rest as orphans.
func (s *Store) IidsFromIids(iids []string) (existing []string, orphans []string) {
	for _, iid := range iids {
		if _, ok := s.items[iid]; ok {
			existing = append(existing, iid)
		} else {
			orphans = append(orphans, iid)
		}
	}
	return existing, orphans
}

// RecursiveDeps returns the transitive closure of active "depends" rows
// starting from every non-ignored item currently at status.
func (s *Store) RecursiveDeps(status Status) []string {
	var roots []string
	for _, it := range s.items {
		if it.InstallStatus == status && !it.Ignore {
			roots = append(roots, it.IID)
		}
	}
	seen := make(map[string]bool)
	var queue []string
	queue = append(queue, roots...)
	for len(queue) > 0 {
		iid := queue[0]
		queue = queue[1:]
		it, ok := s.items[iid]
		if !ok || seen[iid] {
			continue
		}
		seen[iid] = true
		for _, d := range it.detailsNamed("depends") {
			if !d.OSIsActive {
				continue
			}
			if !seen[d.Value] {
				queue = append(queue, d.Value)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for iid := range seen {
		out = append(out, iid)
	}
	sort.Strings(out)
	return out
}

// ChangeStatusIf transitions every iid in iids currently at old to new.
func (s *Store) ChangeStatusIf(old, new Status, iids []string) {
	for _, iid := range iids {
		if it, ok := s.items[iid]; ok && it.InstallStatus == old {
			it.InstallStatus = new
		}
	}
}

// ChangeStatus unconditionally transitions every non-ignored iid in iids.
func (s *Store) ChangeStatus(new Status, iids []string) {
	for _, iid := range iids {
		if it, ok := s.items[iid]; ok && !it.Ignore {
			it.InstallStatus = new
		}
	}
}

// SetIgnore marks the given iids ignored.
func (s *Store) SetIgnore(iids []string) {
	for _, iid := range iids {
		if it, ok := s.items[iid]; ok {
			it.Ignore = true
		}
	}
}

// CreateDefaultItems builds the four synthetic target items described in
// spec §4.C, expressed as "depends" detail rows over the current item set.
func (s *Store) CreateDefaultItems(ignored []string) {
	ignoredSet := make(map[string]bool, len(ignored))
	for _, iid := range ignored {
		ignoredSet[iid] = true
	}

	allItems := s.getOrCreate(AllItemsIID)
	allGuids := s.getOrCreate(AllGuidsIID)
	repairInstalled := s.getOrCreate(RepairInstalledIID)
	updateInstalled := s.getOrCreate(UpdateInstalledIID)

	for _, it := range s.All() {
		if it.IID == AllItemsIID || it.IID == AllGuidsIID || it.IID == RepairInstalledIID || it.IID == UpdateInstalledIID {
			continue
		}
		if ignoredSet[it.IID] {
			continue
		}
		addDepend(allItems, it.IID)
		if len(it.detailsNamed("guid")) > 0 {
			addDepend(allGuids, it.IID)
		}
		if it.Installed {
			addDepend(repairInstalled, it.IID)
			if versionsDiffer(it.RequireVersion, it.Version) {
				addDepend(updateInstalled, it.IID)
			}
		}
	}
}

// versionsDiffer compares two version strings as semantic versions when
// both parse as such, falling back to a literal string comparison for
// phantom/non-semver version tags.
func versionsDiffer(a, b string) bool {
	if a == b {
		return false
	}
	va, errA := hcversion.NewVersion(a)
	vb, errB := hcversion.NewVersion(b)
	if errA != nil || errB != nil {
		return a != b
	}
	return !va.Equal(vb)
}

func addDepend(it *Item, target string) {
	it.addDetail(&Detail{Name: "depends", Value: target, OSID: "common", OSIsActive: true, OwnerIID: it.IID, OriginalIID: it.IID})
}

// TargetFolderEntry is one row of target_folders_to_items().
type TargetFolderEntry struct {
	IID          string
	InstallFolder string
	Tag          indexio.SourceTag
	DirectSync   bool
}

// TargetFoldersToItems returns (iid, install_folder) pairs for every
// active, non-ignored, installable item that has an install_folders detail.
func (s *Store) TargetFoldersToItems() []TargetFolderEntry {
	var out []TargetFolderEntry
	for _, it := range s.All() {
		if it.Ignore || !isInstallable(it.InstallStatus) {
			continue
		}
		directSync := isDirectSync(it)
		for _, d := range it.detailsNamed("install_folders") {
			if !d.OSIsActive {
				continue
			}
			out = append(out, TargetFolderEntry{IID: it.IID, InstallFolder: d.Value, DirectSync: directSync})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstallFolder != out[j].InstallFolder {
			return out[i].InstallFolder < out[j].InstallFolder
		}
		return out[i].IID < out[j].IID
	})
	return out
}

// SourceFoldersToItemsWithoutTargetFolders returns (iid, source) pairs for
// items that declare install_sources but no install_folders — sync-only,
// icon-like items whose sync destination is LOCAL_REPO_SYNC_DIR-relative.
func (s *Store) SourceFoldersToItemsWithoutTargetFolders() map[string][]string {
	out := make(map[string][]string)
	for _, it := range s.All() {
		if it.Ignore || !isInstallable(it.InstallStatus) {
			continue
		}
		if len(it.detailsNamed("install_folders")) > 0 {
			continue
		}
		for _, d := range it.detailsNamed("install_sources") {
			if d.OSIsActive {
				out[it.IID] = append(out[it.IID], d.Value)
			}
		}
	}
	return out
}

// GetDetailsForActiveIids returns the named detail's values across the
// given iids, deduplicated when unique is true, capped at limit when > 0.
func (s *Store) GetDetailsForActiveIids(name string, iids []string, unique bool, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, iid := range iids {
		it, ok := s.items[iid]
		if !ok {
			continue
		}
		for _, d := range it.detailsNamed(name) {
			if !d.OSIsActive {
				continue
			}
			if unique && seen[d.Value] {
				continue
			}
			seen[d.Value] = true
			out = append(out, d.Value)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// GetDetailsAndTagForActiveIids is GetDetailsForActiveIids plus each row's
// source tag, used for install_sources/previous_sources rows.
func (s *Store) GetDetailsAndTagForActiveIids(name string, iids []string) []Detail {
	var out []Detail
	for _, iid := range iids {
		it, ok := s.items[iid]
		if !ok {
			continue
		}
		for _, d := range it.detailsNamed(name) {
			if d.OSIsActive {
				out = append(out, *d)
			}
		}
	}
	return out
}

// ReverseDependencies returns the names of other installers that require
// iid (require_by), plus any require_by names that no longer resolve to a
// live IID (deprecated_require_by), both populated by ReadRequire.
func (s *Store) ReverseDependencies(iid string) (requireBy []string, deprecatedRequireBy []string) {
	it, ok := s.items[iid]
	if !ok {
		return nil, nil
	}
	for _, d := range it.detailsNamed("require_by") {
		requireBy = append(requireBy, d.Value)
	}
	for _, d := range it.detailsNamed("deprecated_require_by") {
		deprecatedRequireBy = append(deprecatedRequireBy, d.Value)
	}
	return requireBy, deprecatedRequireBy
}

func isInstallable(status Status) bool {
	return status == StatusMain || status == StatusUpdate || status == StatusDepend
}

func isDirectSync(it *Item) bool {
	for _, d := range it.detailsNamed("direct_sync") {
		if d.OSIsActive && d.Value == "yes" {
			return true
		}
	}
	return false
}
