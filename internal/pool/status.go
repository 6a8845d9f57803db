package pool

import (
	"orgpool/internal/domain"
	"orgpool/internal/prereq"
)

// Classify maps a raw allocation-status value to the derived pool status.
// In new-version mode Available is an explicit picklist value; in legacy
// mode availability is encoded as an empty value. Everything that is
// neither assigned nor available is still being provisioned.
func Classify(allocationStatus string, newVersionCompatible bool) string {
	switch {
	case allocationStatus == prereq.AllocationAssigned:
		return domain.StatusInUse
	case newVersionCompatible && allocationStatus == prereq.AllocationAvailable:
		return domain.StatusAvailable
	case !newVersionCompatible && allocationStatus == "":
		return domain.StatusAvailable
	default:
		return domain.StatusInProvision
	}
}
