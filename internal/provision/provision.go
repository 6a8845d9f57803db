// Package provision creates new scratch orgs for the pool.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"orgpool/internal/domain"
	"orgpool/internal/hub"
)

// Creator provisions one scratch org at a time against the DevHub.
type Creator struct {
	Hub *hub.Client

	// PollInterval and PollBudget bound the wait for signup readiness.
	PollInterval time.Duration
	PollBudget   int
}

// NewCreator builds a creator with default readiness polling.
func NewCreator(h *hub.Client) Creator {
	return Creator{Hub: h, PollInterval: 30 * time.Second, PollBudget: 20}
}

// definition is the subset of a scratch org definition file we forward.
type definition struct {
	OrgName       string   `json:"orgName"`
	Edition       string   `json:"edition"`
	Description   string   `json:"description"`
	Features      []string `json:"features"`
	HasSampleData bool     `json:"hasSampleData"`
}

// signupRecord is the ScratchOrgInfo row observed while provisioning.
type signupRecord struct {
	ID             string `json:"Id"`
	Status         string `json:"Status"`
	ErrorCode      string `json:"ErrorCode"`
	ScratchOrg     string `json:"ScratchOrg"`
	SignupUsername string `json:"SignupUsername"`
	SignupEmail    string `json:"SignupEmail"`
	LoginURL       string `json:"LoginUrl"`
	AuthCode       string `json:"AuthCode"`
	ExpirationDate string `json:"ExpirationDate"`
}

// CreateScratchOrg runs the full provisioning sequence: submit the signup,
// wait for the org to become active, generate a password, and resolve the
// portable auth URL. Any sub-step failure aborts the whole creation and no
// partial ScratchOrg is returned; the remote org may still exist, and
// cleaning up such orphans is the caller's responsibility.
func (c Creator) CreateScratchOrg(ctx context.Context, sequenceID int, adminEmail, definitionFile string, expiryDays int) (domain.ScratchOrg, error) {
	alias := fmt.Sprintf("SO%d", sequenceID)

	body, err := c.signupBody(alias, adminEmail, definitionFile, expiryDays)
	if err != nil {
		return domain.ScratchOrg{}, err
	}
	recordID, err := c.Hub.CreateRecord(ctx, "ScratchOrgInfo", body)
	if err != nil {
		return domain.ScratchOrg{}, err
	}

	record, err := c.waitForActive(ctx, recordID)
	if err != nil {
		return domain.ScratchOrg{}, err
	}
	if record.LoginURL == "" {
		return domain.ScratchOrg{}, fmt.Errorf("scratch org %s has no login url", alias)
	}

	password, err := c.Hub.GeneratePassword(ctx, record.SignupUsername)
	if err != nil {
		return domain.ScratchOrg{}, err
	}
	if password == "" {
		return domain.ScratchOrg{}, fmt.Errorf("unable to set password for %s", record.SignupUsername)
	}

	authURL, err := resolveAuthURL(record)
	if err != nil {
		return domain.ScratchOrg{}, err
	}

	return domain.ScratchOrg{
		OrgID:       record.ScratchOrg,
		Username:    record.SignupUsername,
		Alias:       alias,
		LoginURL:    record.LoginURL,
		Password:    password,
		SfdxAuthURL: authURL,
		ExpiryDate:  record.ExpirationDate,
		RecordID:    record.ID,
		SignupEmail: record.SignupEmail,
		Status:      domain.StatusInProvision,
	}, nil
}

func (c Creator) signupBody(alias, adminEmail, definitionFile string, expiryDays int) (map[string]any, error) {
	data, err := os.ReadFile(definitionFile)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	var def definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition file %s: %w", definitionFile, err)
	}
	orgName := def.OrgName
	if orgName == "" {
		orgName = alias
	}
	body := map[string]any{
		"OrgName":      orgName,
		"Edition":      def.Edition,
		"AdminEmail":   adminEmail,
		"DurationDays": expiryDays,
	}
	if def.Description != "" {
		body["Description"] = def.Description
	}
	if len(def.Features) > 0 {
		body["Features"] = strings.Join(def.Features, ";")
	}
	if def.HasSampleData {
		body["HasSampleData"] = true
	}
	return body, nil
}

func (c Creator) waitForActive(ctx context.Context, recordID string) (signupRecord, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	budget := c.PollBudget
	if budget <= 0 {
		budget = 20
	}
	var record signupRecord
	for attempt := 0; attempt < budget; attempt++ {
		if err := c.Hub.GetRecord(ctx, "ScratchOrgInfo", recordID, &record); err != nil {
			return signupRecord{}, fmt.Errorf("poll signup %s: %w", recordID, err)
		}
		switch record.Status {
		case "Active":
			return record, nil
		case "Error", "Deleted":
			return signupRecord{}, fmt.Errorf("signup %s failed: %s", recordID, record.ErrorCode)
		}
		select {
		case <-ctx.Done():
			return signupRecord{}, ctx.Err()
		case <-time.After(interval):
		}
	}
	return signupRecord{}, fmt.Errorf("signup %s not active after %d checks", recordID, budget)
}

// resolveAuthURL derives the portable re-authentication token for the new
// identity from the signup auth code.
func resolveAuthURL(record signupRecord) (string, error) {
	if record.AuthCode == "" {
		return "", fmt.Errorf("unable to resolve auth url for %s", record.SignupUsername)
	}
	return fmt.Sprintf("force://PlatformCLI::%s@%s", record.AuthCode, record.LoginURL), nil
}
