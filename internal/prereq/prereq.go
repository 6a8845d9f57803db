// Package prereq detects whether the DevHub schema supports the pool
// workflow. The verdict is computed once per process and reused by every
// pool operation; a failed check is terminal for the process.
package prereq

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"orgpool/internal/hub"
)

const (
	// ScratchOrgInfo fields the pool workflow depends on.
	AuthURLField          = "SfdxAuthUrl__c"
	AllocationStatusField = "Allocation_status__c"
)

// Raw allocation-status values of the 4-state workflow.
const (
	AllocationInProgress = "In Progress"
	AllocationAvailable  = "Available"
	AllocationAllocate   = "Allocate"
	AllocationAssigned   = "Assigned"
)

var expectedAllocationValues = []string{
	AllocationInProgress,
	AllocationAvailable,
	AllocationAllocate,
	AllocationAssigned,
}

// Compatibility is the memoized schema verdict threaded into the engines.
type Compatibility struct {
	// NewVersionCompatible reports whether the 4-state allocation workflow
	// is present. When false, allocation state is derived from the
	// presence or absence of the Assigned flag alone.
	NewVersionCompatible bool
}

// CheckError is the fatal, non-retryable prerequisite failure. It carries
// the full field schema so an operator can fix the remote configuration.
type CheckError struct {
	Missing []string
	Fields  []hub.FieldDescribe
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("devhub schema does not meet pool prerequisites (missing: %s); install or upgrade the pool support package", strings.Join(e.Missing, ", "))
}

// Checker runs the prerequisite check against the DevHub at most once.
type Checker struct {
	Hub *hub.Client

	once   sync.Once
	compat Compatibility
	err    error
}

// NewChecker builds a checker bound to a hub client.
func NewChecker(h *hub.Client) *Checker {
	return &Checker{Hub: h}
}

// Check describes ScratchOrgInfo on first call and memoizes the verdict.
// Subsequent calls return the stored result without a network round-trip.
func (c *Checker) Check(ctx context.Context) (Compatibility, error) {
	c.once.Do(func() {
		c.compat, c.err = c.check(ctx)
	})
	return c.compat, c.err
}

func (c *Checker) check(ctx context.Context) (Compatibility, error) {
	desc, err := c.Hub.DescribeObject(ctx, "ScratchOrgInfo")
	if err != nil {
		return Compatibility{}, fmt.Errorf("describe ScratchOrgInfo: %w", err)
	}

	var missing []string
	if !hasField(desc.Fields, AuthURLField) {
		missing = append(missing, AuthURLField)
	}
	if !allocationPicklistOK(desc.Fields) {
		missing = append(missing, AllocationStatusField)
	}
	if len(missing) > 0 {
		return Compatibility{}, &CheckError{Missing: missing, Fields: desc.Fields}
	}
	return Compatibility{NewVersionCompatible: true}, nil
}

func hasField(fields []hub.FieldDescribe, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// allocationPicklistOK requires the active value set to be exactly the 4
// expected workflow states: same count, and every expected value active.
func allocationPicklistOK(fields []hub.FieldDescribe) bool {
	for _, f := range fields {
		if f.Name != AllocationStatusField {
			continue
		}
		active := map[string]bool{}
		for _, v := range f.PicklistValues {
			if v.Active {
				active[v.Value] = true
			}
		}
		if len(active) != len(expectedAllocationValues) {
			return false
		}
		for _, want := range expectedAllocationValues {
			if !active[want] {
				return false
			}
		}
		return true
	}
	return false
}
