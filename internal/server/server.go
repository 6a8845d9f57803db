// Package server exposes the pool engines over HTTP for CI jobs that
// prefer an API over a local CLI invocation.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"orgpool/internal/alloc"
	"orgpool/internal/app"
	"orgpool/internal/domain"
	"orgpool/internal/hub"
	"orgpool/internal/journal"
	"orgpool/internal/pool"
	"orgpool/internal/prereq"
)

// Config for the HTTP API handler.
type Config struct {
	Runtime  app.Runtime
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"pool_exhausted"`
	Message string         `json:"message" example:"no unassigned scratch org available in pool ci"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the pool API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Orgpool API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerPools(group, cfg.Runtime)
	registerFetch(group, cfg.Runtime)
	registerDelete(group, cfg.Runtime)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var checkErr *prereq.CheckError
	if errors.As(err, &checkErr) {
		return newAPIError(http.StatusPreconditionFailed, "prerequisites_not_met", err.Error(), map[string]any{
			"missing": checkErr.Missing,
		})
	}
	var apiErr *hub.APIError
	if errors.As(err, &apiErr) {
		return newAPIError(http.StatusBadGateway, "devhub_error", err.Error(), map[string]any{
			"status": apiErr.StatusCode,
		})
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no unassigned scratch org"):
		return newAPIError(http.StatusConflict, "pool_exhausted", msg, nil)
	case strings.Contains(msg, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", msg, nil)
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPools(api huma.API, rt app.Runtime) {
	type listInput struct {
		Tag     string `query:"tag" doc:"pool tag; empty lists every tagged member"`
		MyPool  bool   `query:"mypool" doc:"restrict to orgs created by the hub user and keep passwords"`
		AllOrgs bool   `query:"allscratchorgs" doc:"include in-use orgs in the detail rows"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-pool",
		Method:      http.MethodGet,
		Path:        "/pools",
		Summary:     "Pool summary",
	}, func(ctx context.Context, input *listInput) (*struct {
		Body domain.PoolSummary `json:"body"`
	}, error) {
		eng, err := rt.PoolEngine(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		summary, err := eng.Summary(ctx, pool.Filters{Tag: input.Tag, MyPool: input.MyPool}, input.AllOrgs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PoolSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerFetch(api huma.API, rt app.Runtime) {
	type fetchInput struct {
		Tag  string `path:"tag"`
		Body struct {
			Count  int    `json:"count,omitempty" minimum:"0"`
			SendTo string `json:"sendTo,omitempty" doc:"email the credentials to this address"`
		}
	}
	type fetchOutput struct {
		Body struct {
			ScratchOrgs []domain.ScratchOrg `json:"scratchOrgDetails"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "fetch-orgs",
		Method:      http.MethodPost,
		Path:        "/pools/{tag}/fetch",
		Summary:     "Claim scratch orgs from a pool",
	}, func(ctx context.Context, input *fetchInput) (*fetchOutput, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := rt.AllocEngine(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		orgs, err := fetchAndRecord(ctx, rt, eng, input.Tag, input.Body.Count, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.SendTo != "" {
			if err := rt.Mailer().Send(ctx, input.Body.SendTo, orgs); err != nil {
				return nil, handleError(err)
			}
		}
		out := &fetchOutput{}
		out.Body.ScratchOrgs = orgs
		return out, nil
	})
}

func registerDelete(api huma.API, rt app.Runtime) {
	type deleteInput struct {
		Body struct {
			OrgIDs []string `json:"orgIds" minItems:"1"`
			Tag    string   `json:"tag,omitempty"`
		}
	}
	type deleteOutput struct {
		Body struct {
			Deleted int `json:"deleted"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "delete-orgs",
		Method:      http.MethodPost,
		Path:        "/orgs/delete",
		Summary:     "Delete active scratch orgs",
	}, func(ctx context.Context, input *deleteInput) (*deleteOutput, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := rt.AllocEngine(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		n, err := eng.Delete(ctx, input.Body.OrgIDs)
		if err != nil {
			return nil, handleError(err)
		}
		_ = rt.Journal.Append(ctx, "", "pool.delete", input.Body.Tag, strings.Join(input.Body.OrgIDs, ","), actor, journal.Payload{"deleted": n})
		out := &deleteOutput{}
		out.Body.Deleted = n
		return out, nil
	})
}

func fetchAndRecord(ctx context.Context, rt app.Runtime, eng alloc.Engine, tag string, count int, actor string) ([]domain.ScratchOrg, error) {
	orgs, err := eng.Fetch(ctx, alloc.FetchOptions{Tag: tag, Count: count})
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		_ = rt.Journal.Append(ctx, "", "pool.fetch", tag, org.OrgID, actor, journal.Payload{"username": org.Username})
	}
	return orgs, nil
}
