package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
)

type listExperiencesInput struct {
	Category   string `query:"category"`
	Region     string `query:"region"`
	Difficulty string `query:"difficulty" doc:"beginner, intermediate or advanced"`
	Featured   string `query:"featured" doc:"true or false"`
	Limit      int    `query:"limit" default:"50"`
	Offset     int    `query:"offset"`
}

type experienceIDInput struct {
	ExperienceID string `path:"experience_id"`
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-experiences",
		Method:      http.MethodGet,
		Path:        "/experiences",
		Summary:     "List published experiences",
	}, func(ctx context.Context, input *listExperiencesInput) (*struct {
		Body ListExperiencesResponse `json:"body"`
	}, error) {
		f := engine.CatalogFilters{
			Category:   input.Category,
			Region:     input.Region,
			Difficulty: input.Difficulty,
			Limit:      normalizeLimit(input.Limit),
			Offset:     input.Offset,
		}
		switch input.Featured {
		case "":
		case "true", "false":
			featured := input.Featured == "true"
			f.Featured = &featured
		default:
			return nil, newAPIError(http.StatusBadRequest, "invalid_input", "featured must be true or false", map[string]any{"featured": input.Featured})
		}
		items, err := e.ListExperiences(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Experience{}
		}
		return &struct {
			Body ListExperiencesResponse `json:"body"`
		}{Body: ListExperiencesResponse{Items: items}}, nil
	})

	values := func(id, p, summary string, fn func(context.Context) ([]string, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodGet,
			Path:        p,
			Summary:     summary,
		}, func(ctx context.Context, _ *struct{}) (*struct {
			Body ValuesResponse `json:"body"`
		}, error) {
			items, err := fn(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			if items == nil {
				items = []string{}
			}
			return &struct {
				Body ValuesResponse `json:"body"`
			}{Body: ValuesResponse{Items: items}}, nil
		})
	}
	values("list-categories", "/experiences/categories", "Distinct categories of published experiences", e.Categories)
	values("list-regions", "/experiences/regions", "Distinct regions of published experiences", e.Regions)

	huma.Register(api, huma.Operation{
		OperationID: "get-experience",
		Method:      http.MethodGet,
		Path:        "/experiences/{experience_id}",
		Summary:     "Get a published experience; authors also see drafts",
	}, func(ctx context.Context, input *experienceIDInput) (*struct {
		Body domain.Experience `json:"body"`
	}, error) {
		p, _ := principalFromContext(ctx)
		exp, err := e.GetExperience(ctx, input.ExperienceID, p.HasRole(RoleAuthor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Experience `json:"body"`
		}{Body: exp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-experience-scenarios",
		Method:      http.MethodGet,
		Path:        "/experiences/{experience_id}/scenarios",
		Summary:     "List the scenarios of a published experience",
	}, func(ctx context.Context, input *experienceIDInput) (*struct {
		Body ScenariosResponse `json:"body"`
	}, error) {
		items, err := e.ListScenarios(ctx, input.ExperienceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenariosResponse `json:"body"`
		}{Body: ScenariosResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/scenarios/{scenario_id}",
		Summary:     "Get a published scenario and its declared choices",
	}, func(ctx context.Context, input *struct {
		ScenarioID string `path:"scenario_id"`
	}) (*struct {
		Body engine.ScenarioView `json:"body"`
	}, error) {
		view, err := e.GetScenario(ctx, input.ScenarioID)
		if err != nil {
			return nil, handleError(err)
		}
		view.Choices = choicesOrEmpty(view.Choices)
		return &struct {
			Body engine.ScenarioView `json:"body"`
		}{Body: view}, nil
	})
}

func registerAuthoring(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-experience",
		Method:        http.MethodPost,
		Path:          "/experiences",
		Summary:       "Import an experience document as a draft",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body"`
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		p, aerr := requireAuthor(ctx)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.ImportExperience(ctx, []byte(input.Body.Document), p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: importResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-experience",
		Method:      http.MethodPost,
		Path:        "/experiences/{experience_id}/validate",
		Summary:     "Report structural issues without publishing",
	}, func(ctx context.Context, input *experienceIDInput) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		if _, aerr := requireAuthor(ctx); aerr != nil {
			return nil, aerr
		}
		err := e.ValidateExperience(ctx, input.ExperienceID)
		var se *domain.StructuralError
		switch {
		case err == nil:
		case errors.As(err, &se):
			return &struct {
				Body ValidationResponse `json:"body"`
			}{Body: validationResponse(input.ExperienceID, se.Issues)}, nil
		default:
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validationResponse(input.ExperienceID, nil)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-experience",
		Method:      http.MethodPost,
		Path:        "/experiences/{experience_id}/publish",
		Summary:     "Validate and publish an experience",
	}, func(ctx context.Context, input *experienceIDInput) (*struct {
		Body domain.Experience `json:"body"`
	}, error) {
		p, aerr := requireAuthor(ctx)
		if aerr != nil {
			return nil, aerr
		}
		exp, err := e.PublishExperience(ctx, input.ExperienceID, p.UserID)
		if err != nil {
			return nil, handleError(fmt.Errorf("publish: %w", err))
		}
		return &struct {
			Body domain.Experience `json:"body"`
		}{Body: exp}, nil
	})
}
