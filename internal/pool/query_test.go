package pool_test

import (
	"context"
	"strings"
	"testing"

	"orgpool/internal/domain"
	"orgpool/internal/hub/hubtest"
	"orgpool/internal/pool"
	"orgpool/internal/prereq"
)

func record(id, tag, allocation, password string) map[string]any {
	return map[string]any{
		"Id":                   id,
		"Pooltag__c":           tag,
		"CreatedDate":          "2026-08-01T00:00:00.000+0000",
		"ScratchOrg":           "00D" + id,
		"ExpirationDate":       "2026-08-27",
		"SignupUsername":       id + "@example.com",
		"SignupEmail":          "admin@example.com",
		"Password__c":          password,
		"Allocation_status__c": allocation,
		"LoginUrl":             "https://test.salesforce.com",
		"SfdxAuthUrl__c":       "force://PlatformCLI::code@https://test.salesforce.com",
		"Status":               "Active",
	}
}

func TestOrgsByTagQueryShape(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(soql string, tooling bool) []map[string]any { return nil }
	eng := pool.Engine{
		Hub:         fake.Client(),
		Compat:      prereq.Compatibility{NewVersionCompatible: true},
		HubUsername: "hub@example.com",
	}
	ctx := context.Background()

	if _, err := eng.OrgsByTag(ctx, pool.Filters{Tag: "core", MyPool: true, UnassignedOnly: true}); err != nil {
		t.Fatalf("query: %v", err)
	}
	soql := fake.QueryCalls[0]
	for _, want := range []string{
		"FROM ScratchOrgInfo",
		"Status = 'Active'",
		"Pooltag__c = 'core'",
		"CreatedBy.Username = 'hub@example.com'",
		"Allocation_status__c IN ('Available','In Progress')",
		"ORDER BY CreatedDate ASC",
	} {
		if !strings.Contains(soql, want) {
			t.Errorf("query missing %q: %s", want, soql)
		}
	}

	if _, err := eng.OrgsByTag(ctx, pool.Filters{}); err != nil {
		t.Fatalf("query: %v", err)
	}
	soql = fake.QueryCalls[1]
	if !strings.Contains(soql, "Pooltag__c != null") {
		t.Errorf("tagless query should match any tagged member: %s", soql)
	}
	if strings.Contains(soql, "CreatedBy.Username") {
		t.Errorf("unexpected ownership filter: %s", soql)
	}
}

func TestUnassignedFilterSkippedInLegacyMode(t *testing.T) {
	fake := hubtest.New(t)
	eng := pool.Engine{Hub: fake.Client(), Compat: prereq.Compatibility{NewVersionCompatible: false}}
	if _, err := eng.OrgsByTag(context.Background(), pool.Filters{Tag: "core", UnassignedOnly: true}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.Contains(fake.QueryCalls[0], "Allocation_status__c IN") {
		t.Fatalf("legacy mode must not filter on allocation status: %s", fake.QueryCalls[0])
	}
}

func TestSummaryStripsPasswordUnlessMyPool(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(string, bool) []map[string]any {
		return []map[string]any{record("rec1", "core", "Available", "hunter2")}
	}
	eng := pool.Engine{Hub: fake.Client(), Compat: prereq.Compatibility{NewVersionCompatible: true}}
	ctx := context.Background()

	summary, err := eng.Summary(ctx, pool.Filters{Tag: "core"}, false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ScratchOrgs[0].Password != "" {
		t.Fatalf("listing should strip the password: %+v", summary.ScratchOrgs[0])
	}

	summary, err = eng.Summary(ctx, pool.Filters{Tag: "core", MyPool: true}, false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ScratchOrgs[0].Password != "hunter2" {
		t.Fatalf("mypool listing should keep the password: %+v", summary.ScratchOrgs[0])
	}
}

func TestOrgsByTagKeepsCredentials(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(string, bool) []map[string]any {
		return []map[string]any{record("rec1", "core", "Available", "hunter2")}
	}
	eng := pool.Engine{Hub: fake.Client(), Compat: prereq.Compatibility{NewVersionCompatible: true}}

	orgs, err := eng.OrgsByTag(context.Background(), pool.Filters{Tag: "core"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if orgs[0].Password != "hunter2" {
		t.Fatalf("raw listing must carry the password: %+v", orgs[0])
	}
}

func TestSummaryCountsLegacyMode(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(string, bool) []map[string]any {
		return []map[string]any{
			record("rec1", "core", "Assigned", ""),
			record("rec2", "core", "", ""),
			record("rec3", "core", "", ""),
		}
	}
	eng := pool.Engine{Hub: fake.Client(), Compat: prereq.Compatibility{NewVersionCompatible: false}}
	summary, err := eng.Summary(context.Background(), pool.Filters{Tag: "core"}, false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 3 || summary.InUse != 1 || summary.Unused != 2 || summary.InProvision != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	// In-use members are hidden without the all-orgs flag.
	if len(summary.ScratchOrgs) != 2 {
		t.Fatalf("expected 2 detail rows, got %d", len(summary.ScratchOrgs))
	}
	if summary.Tags != nil {
		t.Fatalf("tag histogram only applies to tagless listings")
	}
}

func TestSummaryTagHistogramAndInUseRows(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(string, bool) []map[string]any {
		return []map[string]any{
			record("rec1", "core", "Assigned", ""),
			record("rec2", "core", "Available", ""),
			record("rec3", "perf", "In Progress", ""),
		}
	}
	eng := pool.Engine{Hub: fake.Client(), Compat: prereq.Compatibility{NewVersionCompatible: true}}
	summary, err := eng.Summary(context.Background(), pool.Filters{}, true)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Tags["core"] != 2 || summary.Tags["perf"] != 1 {
		t.Fatalf("unexpected histogram: %v", summary.Tags)
	}
	if len(summary.ScratchOrgs) != 3 {
		t.Fatalf("all-orgs listing should include in-use rows, got %d", len(summary.ScratchOrgs))
	}
	if summary.ScratchOrgs[0].Status != domain.StatusInUse {
		t.Fatalf("unexpected first row: %+v", summary.ScratchOrgs[0])
	}
}
