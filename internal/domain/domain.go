package domain

// Derived pool member status, computed from the raw allocation value.
const (
	StatusInUse       = "In use"
	StatusAvailable   = "Available"
	StatusInProvision = "Provisioning in progress"
)

// ScratchOrg is one pool member. RecordID is set only after the backing
// ScratchOrgInfo record exists; allocation logic never sees a value without it.
type ScratchOrg struct {
	OrgID       string `json:"orgId"`
	Username    string `json:"username"`
	Alias       string `json:"alias,omitempty"`
	LoginURL    string `json:"loginURL"`
	Password    string `json:"password,omitempty"`
	SfdxAuthURL string `json:"sfdxAuthUrl,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	RecordID    string `json:"recordId"`
	Tag         string `json:"tag,omitempty"`
	SignupEmail string `json:"signupEmail,omitempty"`
	Status      string `json:"status" enum:"In use,Available,Provisioning in progress"`
}

// PoolSummary is the aggregate listing shape rendered by the CLI and API.
type PoolSummary struct {
	Total       int            `json:"total"`
	InUse       int            `json:"inuse"`
	Unused      int            `json:"unused"`
	InProvision int            `json:"inprovision"`
	Tags        map[string]int `json:"tags,omitempty"`
	ScratchOrgs []ScratchOrg   `json:"scratchOrgDetails"`
}
