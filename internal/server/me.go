package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
	"lifeswap/internal/repo"
)

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		roles := p.Roles
		if roles == nil {
			roles = []string{}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{UserID: p.UserID, Roles: roles, Source: p.Source}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-ledgers",
		Method:      http.MethodGet,
		Path:        "/me/ledgers",
		Summary:     "Ledgers of the current user, newest first",
	}, func(ctx context.Context, input *struct {
		Completed string `query:"completed" doc:"true or false"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body ListLedgersResponse `json:"body"`
	}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		var completed *bool
		switch input.Completed {
		case "":
		case "true", "false":
			v := input.Completed == "true"
			completed = &v
		default:
			return nil, newAPIError(http.StatusBadRequest, "invalid_input", "completed must be true or false", map[string]any{"completed": input.Completed})
		}
		items, err := e.ListLedgers(ctx, p.UserID, completed, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListLedgersResponse `json:"body"`
		}{Body: ListLedgersResponse{Items: ledgersOrEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-stats",
		Method:      http.MethodGet,
		Path:        "/me/stats",
		Summary:     "Empathy points and completion counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.UserStats `json:"body"`
	}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		stats, err := e.UserStats(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Mint an API key; the key is only shown once",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body APIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		key, secret, err := e.CreateAPIKey(ctx, p.UserID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Key: secret, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "API keys of the current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeysResponse `json:"body"`
	}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		keys, err := e.ListAPIKeys(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeysResponse `json:"body"`
		}{Body: APIKeysResponse{Items: keys}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke one of the current user's API keys",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		if err := e.RevokeAPIKey(ctx, p.UserID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
	}, func(ctx context.Context, input *struct {
		ExperienceID string `query:"experience_id"`
		Type         string `query:"type"`
		EntityKind   string `query:"entity_kind"`
		EntityID     string `query:"entity_id"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       int64  `query:"cursor" doc:"return events with ids below this one"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		if _, aerr := requireAuthor(ctx); aerr != nil {
			return nil, aerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.LatestEvents(ctx, repo.EventFilters{
			ExperienceID: input.ExperienceID,
			Type:         input.Type,
			EntityKind:   input.EntityKind,
			EntityID:     input.EntityID,
			Before:       input.Cursor,
			Limit:        limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		var next *int64
		if len(items) > limit {
			items = items[:limit]
			cur := items[len(items)-1].ID
			next = &cur
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Items: items, NextCursor: next}}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	if !cfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development token",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		token, exp, err := signDevToken(cfg.JWTSecret, input.Body.UserID, input.Body.Roles, cfg.TokenTTL, time.Now().UTC())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)}}, nil
	})
}
