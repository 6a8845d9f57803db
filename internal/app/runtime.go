// Package app wires the per-process runtime: config, hub client, schema
// checker and journal, built once and threaded into the engines.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"orgpool/internal/alloc"
	"orgpool/internal/config"
	"orgpool/internal/db"
	"orgpool/internal/hub"
	"orgpool/internal/journal"
	"orgpool/internal/migrate"
	"orgpool/internal/notify"
	"orgpool/internal/pool"
	"orgpool/internal/prereq"
	"orgpool/internal/provision"
)

// Runtime carries the process-wide collaborators. The prerequisite verdict
// lives in Checker rather than package state so tests can build isolated
// runtimes.
type Runtime struct {
	Config  *config.Config
	Hub     *hub.Client
	Checker *prereq.Checker
	Journal journal.Writer
	DB      *sql.DB
}

// NewRuntime loads workspace config, opens the journal, and builds the hub
// client. The access token is borrowed from the caller (read from the
// environment by the CLI), never persisted.
func NewRuntime(workspace, accessToken string) (Runtime, func(), error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return Runtime{}, nil, err
	}
	if accessToken == "" {
		return Runtime{}, nil, fmt.Errorf("hub access token is required; set ORGPOOL_HUB_TOKEN")
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return Runtime{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return Runtime{}, nil, err
	}
	client := hub.New(cfg.Hub.InstanceURL, accessToken, cfg.Hub.APIVersion)
	rt := Runtime{
		Config:  cfg,
		Hub:     client,
		Checker: prereq.NewChecker(client),
		Journal: journal.Writer{DB: conn},
		DB:      conn,
	}
	return rt, func() { conn.Close() }, nil
}

// PoolEngine returns a query engine bound to the memoized compatibility
// verdict. The first call per process performs the schema check.
func (r Runtime) PoolEngine(ctx context.Context) (pool.Engine, error) {
	compat, err := r.Checker.Check(ctx)
	if err != nil {
		return pool.Engine{}, err
	}
	return pool.Engine{Hub: r.Hub, Compat: compat, HubUsername: r.Config.Hub.Username}, nil
}

// AllocEngine returns the allocation engine over the same verdict.
func (r Runtime) AllocEngine(ctx context.Context) (alloc.Engine, error) {
	p, err := r.PoolEngine(ctx)
	if err != nil {
		return alloc.Engine{}, err
	}
	return alloc.Engine{Hub: r.Hub, Pool: p}, nil
}

// Creator returns the provisioning engine.
func (r Runtime) Creator() provision.Creator {
	return provision.NewCreator(r.Hub)
}

// Mailer returns the notification sender.
func (r Runtime) Mailer() notify.Mailer {
	return notify.Mailer{Hub: r.Hub, Subject: r.Config.Notify.Subject}
}
