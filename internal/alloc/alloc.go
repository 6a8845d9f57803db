// Package alloc claims pool members for callers and reclaims expired ones.
package alloc

import (
	"context"
	"fmt"
	"strings"

	"orgpool/internal/domain"
	"orgpool/internal/hub"
	"orgpool/internal/pool"
	"orgpool/internal/prereq"
)

// Engine performs allocation-state mutations against the DevHub.
type Engine struct {
	Hub  *hub.Client
	Pool pool.Engine
}

// FetchOptions select which pool members to claim.
type FetchOptions struct {
	Tag    string
	Count  int
	MyPool bool
}

// UpdateResult is the outcome of a best-effort status update. Bulk call
// sites inspect it instead of receiving a hard error; single-record call
// sites must use SetStatus.
type UpdateResult struct {
	Succeeded bool
	Reason    string
}

// Fetch claims up to Count unassigned members of the tagged pool, oldest
// first, by setting their allocation status to Assigned. The read and the
// updates are not transactional: under concurrent fetchers a record can be
// claimed twice, and callers are expected to validate org reachability
// before use. No lock is taken on the remote store.
func (e Engine) Fetch(ctx context.Context, opts FetchOptions) ([]domain.ScratchOrg, error) {
	if opts.Tag == "" {
		return nil, fmt.Errorf("pool tag is required")
	}
	count := opts.Count
	if count <= 0 {
		count = 1
	}
	orgs, err := e.Pool.OrgsByTag(ctx, pool.Filters{
		Tag:            opts.Tag,
		MyPool:         opts.MyPool,
		UnassignedOnly: true,
	})
	if err != nil {
		return nil, err
	}
	var claimed []domain.ScratchOrg
	for _, org := range orgs {
		if len(claimed) == count {
			break
		}
		if org.Status == domain.StatusInUse {
			continue
		}
		if err := e.SetStatus(ctx, org.RecordID, prereq.AllocationAssigned); err != nil {
			return claimed, fmt.Errorf("assign %s: %w", org.RecordID, err)
		}
		org.Status = domain.StatusInUse
		claimed = append(claimed, org)
	}
	if len(claimed) == 0 {
		return nil, fmt.Errorf("no unassigned scratch org available in pool %s", opts.Tag)
	}
	return claimed, nil
}

// SetStatus updates a record's allocation status and fails hard on error.
func (e Engine) SetStatus(ctx context.Context, recordID, status string) error {
	return e.Hub.UpdateRecord(ctx, "ScratchOrgInfo", recordID, map[string]any{
		prereq.AllocationStatusField: status,
	})
}

// TrySetStatus is the best-effort variant of SetStatus for bulk paths: the
// update error is folded into the result instead of propagated.
func (e Engine) TrySetStatus(ctx context.Context, recordID, status string) UpdateResult {
	if err := e.SetStatus(ctx, recordID, status); err != nil {
		return UpdateResult{Reason: err.Error()}
	}
	return UpdateResult{Succeeded: true}
}

// CommitToPool tags a freshly provisioned record and marks it Available.
// Best-effort: used only by the bulk pool-fill workflow.
func (e Engine) CommitToPool(ctx context.Context, recordID, tag string) UpdateResult {
	err := e.Hub.UpdateRecord(ctx, "ScratchOrgInfo", recordID, map[string]any{
		"Pooltag__c":                 tag,
		prereq.AllocationStatusField: prereq.AllocationAvailable,
	})
	if err != nil {
		return UpdateResult{Reason: err.Error()}
	}
	return UpdateResult{Succeeded: true}
}

// Delete removes the active-org records behind the given org ids and
// returns how many records were matched. An assigned org is consumed until
// deleted; there is no soft release back to Available.
func (e Engine) Delete(ctx context.Context, orgIDs []string) (int, error) {
	if len(orgIDs) == 0 {
		return 0, nil
	}
	quoted := make([]string, 0, len(orgIDs))
	for _, id := range orgIDs {
		quoted = append(quoted, fmt.Sprintf("'%s'", canonicalID(id)))
	}
	var records []struct {
		ID         string `json:"Id"`
		ScratchOrg string `json:"ScratchOrg"`
	}
	soql := fmt.Sprintf("SELECT Id, ScratchOrg FROM ActiveScratchOrg WHERE ScratchOrg IN (%s)", strings.Join(quoted, ","))
	if err := e.Hub.Query(ctx, soql, false, &records); err != nil {
		return 0, fmt.Errorf("resolve active orgs: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := e.Hub.DeleteRecords(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete active orgs: %w", err)
	}
	return len(ids), nil
}

// canonicalID truncates an 18-character org id to its canonical 15-char
// form, which is what ActiveScratchOrg.ScratchOrg stores.
func canonicalID(id string) string {
	if len(id) > 15 {
		return id[:15]
	}
	return id
}
