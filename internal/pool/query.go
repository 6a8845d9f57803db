// Package pool queries and classifies the scratch org pool.
package pool

import (
	"context"
	"fmt"
	"strings"

	"orgpool/internal/domain"
	"orgpool/internal/hub"
	"orgpool/internal/prereq"
)

// Engine builds and executes pool queries against the DevHub.
type Engine struct {
	Hub         *hub.Client
	Compat      prereq.Compatibility
	HubUsername string
}

// Filters narrow a pool listing.
type Filters struct {
	// Tag scopes to one pool; empty means every tagged pool member.
	Tag string
	// MyPool restricts to records created by the hub user and keeps the
	// password field in the output.
	MyPool bool
	// UnassignedOnly keeps only members that can still be claimed. Only
	// meaningful in new-version compatibility mode.
	UnassignedOnly bool
}

// Record is the raw ScratchOrgInfo row shape returned by the DevHub.
type Record struct {
	ID               string `json:"Id"`
	Pooltag          string `json:"Pooltag__c"`
	CreatedDate      string `json:"CreatedDate"`
	ScratchOrg       string `json:"ScratchOrg"`
	ExpirationDate   string `json:"ExpirationDate"`
	SignupUsername   string `json:"SignupUsername"`
	SignupEmail      string `json:"SignupEmail"`
	Password         string `json:"Password__c"`
	AllocationStatus string `json:"Allocation_status__c"`
	LoginURL         string `json:"LoginUrl"`
	SfdxAuthURL      string `json:"SfdxAuthUrl__c"`
	Status           string `json:"Status"`
}

const orgFields = "Id, Pooltag__c, CreatedDate, ScratchOrg, ExpirationDate, SignupUsername, SignupEmail, Password__c, Allocation_status__c, LoginUrl, SfdxAuthUrl__c, Status"

// OrgsByTag returns pool members matching the filters, oldest first so
// consumption leans FIFO. Records carry full credentials; the allocation
// path depends on that, and Summary strips passwords for presentation.
func (e Engine) OrgsByTag(ctx context.Context, f Filters) ([]domain.ScratchOrg, error) {
	var records []Record
	if err := e.Hub.Query(ctx, e.buildQuery(f), false, &records); err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}
	orgs := make([]domain.ScratchOrg, 0, len(records))
	for _, rec := range records {
		orgs = append(orgs, e.toScratchOrg(rec))
	}
	return orgs, nil
}

// Summary aggregates a listing for presentation: total, per-status counts,
// and a tag histogram when no specific tag was requested. In-use members
// are omitted from the detail rows unless includeInUse is set; the counts
// always cover every record. Passwords appear in the detail rows only for
// a MyPool listing.
func (e Engine) Summary(ctx context.Context, f Filters, includeInUse bool) (domain.PoolSummary, error) {
	orgs, err := e.OrgsByTag(ctx, f)
	if err != nil {
		return domain.PoolSummary{}, err
	}
	summary := domain.PoolSummary{ScratchOrgs: []domain.ScratchOrg{}}
	if f.Tag == "" {
		summary.Tags = map[string]int{}
	}
	for _, org := range orgs {
		summary.Total++
		switch org.Status {
		case domain.StatusInUse:
			summary.InUse++
		case domain.StatusAvailable:
			summary.Unused++
		default:
			summary.InProvision++
		}
		if summary.Tags != nil && org.Tag != "" {
			summary.Tags[org.Tag]++
		}
		if org.Status == domain.StatusInUse && !includeInUse {
			continue
		}
		if !f.MyPool {
			org.Password = ""
		}
		summary.ScratchOrgs = append(summary.ScratchOrgs, org)
	}
	return summary, nil
}

func (e Engine) buildQuery(f Filters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM ScratchOrgInfo WHERE Status = 'Active'", orgFields)
	if f.Tag != "" {
		fmt.Fprintf(&b, " AND Pooltag__c = '%s'", escapeSOQL(f.Tag))
	} else {
		b.WriteString(" AND Pooltag__c != null")
	}
	if f.MyPool && e.HubUsername != "" {
		fmt.Fprintf(&b, " AND CreatedBy.Username = '%s'", escapeSOQL(e.HubUsername))
	}
	if f.UnassignedOnly && e.Compat.NewVersionCompatible {
		fmt.Fprintf(&b, " AND Allocation_status__c IN ('%s','%s')",
			prereq.AllocationAvailable, prereq.AllocationInProgress)
	}
	b.WriteString(" ORDER BY CreatedDate ASC")
	return b.String()
}

func (e Engine) toScratchOrg(rec Record) domain.ScratchOrg {
	return domain.ScratchOrg{
		OrgID:       rec.ScratchOrg,
		Username:    rec.SignupUsername,
		LoginURL:    rec.LoginURL,
		SfdxAuthURL: rec.SfdxAuthURL,
		ExpiryDate:  rec.ExpirationDate,
		Password:    rec.Password,
		RecordID:    rec.ID,
		Tag:         rec.Pooltag,
		SignupEmail: rec.SignupEmail,
		Status:      Classify(rec.AllocationStatus, e.Compat.NewVersionCompatible),
	}
}

func escapeSOQL(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "'", `\'`)
}
