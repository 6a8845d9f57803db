package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orgpool/internal/alloc"
	"orgpool/internal/app"
	"orgpool/internal/config"
	"orgpool/internal/db"
	"orgpool/internal/domain"
	"orgpool/internal/journal"
	"orgpool/internal/pool"
	"orgpool/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "orgpool",
	Short: "Scratch org pool manager",
	Long: `Orgpool keeps a pool of pre-built scratch orgs on a DevHub so CI jobs
and developers get a ready org in seconds instead of waiting for signup.
- Pool members are ScratchOrgInfo records tagged with Pooltag__c.
- 'pool fill' provisions new orgs and commits them to a tagged pool.
- 'pool fetch' claims an unassigned member and hands back its credentials.
- 'pool delete' reclaims orgs that are no longer needed.
- Every mutation is recorded in a local journal, view with 'orgpool log tail'.
Authentication uses a DevHub access token from ORGPOOL_HUB_TOKEN.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORGPOOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier for the journal")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(poolCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func poolCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "pool",
		Short: "Manage the scratch org pool",
	}
	p.AddCommand(poolListCmd())
	p.AddCommand(poolFetchCmd())
	p.AddCommand(poolFillCmd())
	p.AddCommand(poolDeleteCmd())
	return p
}

func poolListCmd() *cobra.Command {
	var tag string
	var myPool, allOrgs bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pool members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				eng, err := rt.PoolEngine(ctx)
				if err != nil {
					return err
				}
				summary, err := eng.Summary(ctx, pool.Filters{Tag: tag, MyPool: myPool}, allOrgs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Total: %d  In use: %d  Unused: %d  Provisioning: %d\n",
					summary.Total, summary.InUse, summary.Unused, summary.InProvision)
				if len(summary.Tags) > 0 {
					fmt.Println("Tags:")
					for t, c := range summary.Tags {
						fmt.Printf("  %s: %d\n", t, c)
					}
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Org ID", "Username", "Tag", "Status", "Expires"})
				for _, org := range summary.ScratchOrgs {
					tw.AppendRow(table.Row{org.OrgID, org.Username, org.Tag, org.Status, org.ExpiryDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "pool tag (empty lists every tagged member)")
	cmd.Flags().BoolVar(&myPool, "mypool", false, "restrict to orgs created by the hub user and keep passwords")
	cmd.Flags().BoolVar(&allOrgs, "allscratchorgs", false, "include in-use orgs in the detail rows")
	return cmd
}

func poolFetchCmd() *cobra.Command {
	var tag, sendTo string
	var count int
	var myPool bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Claim scratch orgs from a pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				if tag == "" {
					tag = rt.Config.Pool.Tag
				}
				eng, err := rt.AllocEngine(ctx)
				if err != nil {
					return err
				}
				orgs, err := eng.Fetch(ctx, alloc.FetchOptions{Tag: tag, Count: count, MyPool: myPool})
				if err != nil {
					return err
				}
				opID := uuid.NewString()
				actor := viper.GetString("actor-id")
				for _, org := range orgs {
					_ = rt.Journal.Append(ctx, opID, "pool.fetch", tag, org.OrgID, actor, journal.Payload{"username": org.Username})
				}
				if sendTo != "" {
					if err := rt.Mailer().Send(ctx, sendTo, orgs); err != nil {
						return err
					}
				}
				return printJSONOrTable(orgs)
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "pool tag (defaults to config pool.tag)")
	cmd.Flags().IntVar(&count, "count", 1, "number of orgs to claim")
	cmd.Flags().StringVar(&sendTo, "send-to", "", "email the credentials to this address")
	cmd.Flags().BoolVar(&myPool, "mypool", false, "claim only from orgs created by the hub user")
	return cmd
}

func poolFillCmd() *cobra.Command {
	var tag, adminEmail string
	var count int
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Provision new orgs and commit them to the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				if tag == "" {
					tag = rt.Config.Pool.Tag
				}
				if adminEmail == "" {
					adminEmail = rt.Config.Hub.Username
				}
				eng, err := rt.PoolEngine(ctx)
				if err != nil {
					return err
				}
				summary, err := eng.Summary(ctx, pool.Filters{Tag: tag}, true)
				if err != nil {
					return err
				}
				if count <= 0 {
					count = rt.Config.Pool.BatchSize
				}
				if room := rt.Config.Pool.Max - summary.Total; count > room {
					count = room
				}
				if count <= 0 {
					fmt.Printf("Pool %s is full (%d/%d)\n", tag, summary.Total, rt.Config.Pool.Max)
					return nil
				}
				allocEng, err := rt.AllocEngine(ctx)
				if err != nil {
					return err
				}
				creator := rt.Creator()
				opID := uuid.NewString()
				actor := viper.GetString("actor-id")
				var created []domain.ScratchOrg
				var failures []string
				for i := 0; i < count; i++ {
					org, err := creator.CreateScratchOrg(ctx, summary.Total+i+1, adminEmail,
						rt.Config.Pool.DefinitionFile, rt.Config.Pool.ExpiryDays)
					if err != nil {
						failures = append(failures, err.Error())
						continue
					}
					if res := allocEng.CommitToPool(ctx, org.RecordID, tag); !res.Succeeded {
						failures = append(failures, fmt.Sprintf("commit %s: %s", org.Alias, res.Reason))
						continue
					}
					org.Tag = tag
					org.Status = domain.StatusAvailable
					created = append(created, org)
					_ = rt.Journal.Append(ctx, opID, "pool.fill", tag, org.OrgID, actor, journal.Payload{"alias": org.Alias})
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"created": created, "failures": failures})
				}
				fmt.Printf("Created %d/%d orgs in pool %s\n", len(created), count, tag)
				for _, f := range failures {
					fmt.Println("  failed:", f)
				}
				if len(created) == 0 && len(failures) > 0 {
					return fmt.Errorf("no orgs created")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "pool tag (defaults to config pool.tag)")
	cmd.Flags().IntVar(&count, "count", 0, "orgs to create (defaults to config pool.batch_size, capped at pool.max)")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "admin email for signups (defaults to hub username)")
	return cmd
}

func poolDeleteCmd() *cobra.Command {
	var tag string
	var orgIDs []string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete scratch orgs by id or whole pool by tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" && len(orgIDs) == 0 {
				return fmt.Errorf("--tag or --org-id required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				eng, err := rt.AllocEngine(ctx)
				if err != nil {
					return err
				}
				targets := orgIDs
				if len(targets) == 0 {
					orgs, err := eng.Pool.OrgsByTag(ctx, pool.Filters{Tag: tag})
					if err != nil {
						return err
					}
					for _, org := range orgs {
						targets = append(targets, org.OrgID)
					}
				}
				n, err := eng.Delete(ctx, targets)
				if err != nil {
					return err
				}
				_ = rt.Journal.Append(ctx, uuid.NewString(), "pool.delete", tag,
					strings.Join(targets, ","), viper.GetString("actor-id"), journal.Payload{"deleted": n})
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": n})
				}
				fmt.Printf("Deleted %d org(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "delete every member of this pool")
	cmd.Flags().StringArrayVar(&orgIDs, "org-id", []string{}, "scratch org id (repeatable)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var instanceURL, username string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default orgpool.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(instanceURL, username)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&instanceURL, "instance-url", "", "DevHub instance URL")
	cmd.Flags().StringVar(&username, "username", "", "DevHub username")
	_ = cmd.MarkFlagRequired("instance-url")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Operation journal",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, tag string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			w := journal.Writer{DB: conn}
			entries, err := w.Tail(cmd.Context(), n, journal.Filters{Type: evtType, Tag: tag})
			if err != nil {
				return err
			}
			return printJSONOrTable(entries)
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&evtType, "type", "", "entry type filter")
	cmd.Flags().StringVar(&tag, "tag", "", "pool tag filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pool HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			rt, cleanup, err := app.NewRuntime(workspace, viper.GetString("hub-token"))
			if err != nil {
				return err
			}
			defer cleanup()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ORGPOOL_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ORGPOOL_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Runtime: rt, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving orgpool API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, app.Runtime) error) error {
	rt, cleanup, err := app.NewRuntime(viper.GetString("workspace"), viper.GetString("hub-token"))
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, rt)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
