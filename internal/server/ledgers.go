package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
)

type ledgerIDInput struct {
	LedgerID string `path:"ledger_id"`
}

type ledgerOutput struct {
	Body domain.Ledger `json:"body"`
}

// ownedLedger loads a ledger for the caller. Ledgers of other users are
// reported as missing so ids cannot be discovered.
func ownedLedger(ctx context.Context, e engine.Engine, ledgerID string) (domain.Ledger, error) {
	p, aerr := principalFromRequest(ctx)
	if aerr != nil {
		return domain.Ledger{}, aerr
	}
	l, err := e.GetLedger(ctx, ledgerID)
	if err != nil {
		return domain.Ledger{}, handleError(err)
	}
	if l.UserID != p.UserID {
		return domain.Ledger{}, handleError(fmt.Errorf("ledger %s: %w", ledgerID, domain.ErrNotFound))
	}
	return l, nil
}

func registerLedgers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-experience",
		Method:      http.MethodPost,
		Path:        "/experiences/{experience_id}/start",
		Summary:     "Start or resume the caller's ledger for an experience",
	}, func(ctx context.Context, input *experienceIDInput) (*ledgerOutput, error) {
		p, aerr := principalFromRequest(ctx)
		if aerr != nil {
			return nil, aerr
		}
		l, err := e.Start(ctx, p.UserID, input.ExperienceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ledgerOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ledger",
		Method:      http.MethodGet,
		Path:        "/ledgers/{ledger_id}",
		Summary:     "Get a ledger with its step history",
	}, func(ctx context.Context, input *ledgerIDInput) (*ledgerOutput, error) {
		l, err := ownedLedger(ctx, e, input.LedgerID)
		if err != nil {
			return nil, err
		}
		return &ledgerOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ledger-scenario",
		Method:      http.MethodGet,
		Path:        "/ledgers/{ledger_id}/scenario",
		Summary:     "Current scenario and the choices open from it",
	}, func(ctx context.Context, input *ledgerIDInput) (*struct {
		Body PositionResponse `json:"body"`
	}, error) {
		l, err := ownedLedger(ctx, e, input.LedgerID)
		if err != nil {
			return nil, err
		}
		s, gerr := e.GetCurrentScenario(ctx, l.ID)
		if gerr != nil {
			return nil, handleError(gerr)
		}
		choices, gerr := e.ListAvailableChoices(ctx, l.ID)
		if gerr != nil {
			return nil, handleError(gerr)
		}
		return &struct {
			Body PositionResponse `json:"body"`
		}{Body: PositionResponse{LedgerID: l.ID, Outcome: l.Outcome, Scenario: s, Available: choicesOrEmpty(choices)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-available-choices",
		Method:      http.MethodGet,
		Path:        "/ledgers/{ledger_id}/choices",
		Summary:     "Choices currently available to the ledger",
	}, func(ctx context.Context, input *ledgerIDInput) (*struct {
		Body ChoicesResponse `json:"body"`
	}, error) {
		l, err := ownedLedger(ctx, e, input.LedgerID)
		if err != nil {
			return nil, err
		}
		choices, gerr := e.ListAvailableChoices(ctx, l.ID)
		if gerr != nil {
			return nil, handleError(gerr)
		}
		return &struct {
			Body ChoicesResponse `json:"body"`
		}{Body: ChoicesResponse{Items: choicesOrEmpty(choices)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-choice",
		Method:      http.MethodPost,
		Path:        "/ledgers/{ledger_id}/choices",
		Summary:     "Take a choice from the current scenario",
	}, func(ctx context.Context, input *struct {
		LedgerID string        `path:"ledger_id"`
		Body     ChoiceRequest `json:"body"`
	}) (*ledgerOutput, error) {
		l, err := ownedLedger(ctx, e, input.LedgerID)
		if err != nil {
			return nil, err
		}
		next, serr := e.SubmitChoice(ctx, l.ID, input.Body.ChoiceID, input.Body.ElapsedSeconds)
		if serr != nil {
			return nil, handleError(serr)
		}
		return &ledgerOutput{Body: next}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-ledger",
		Method:      http.MethodPost,
		Path:        "/ledgers/{ledger_id}/complete",
		Summary:     "Seal the ledger now; outside a terminal scenario this records an exit",
	}, func(ctx context.Context, input *ledgerIDInput) (*ledgerOutput, error) {
		l, err := ownedLedger(ctx, e, input.LedgerID)
		if err != nil {
			return nil, err
		}
		sealed, cerr := e.Complete(ctx, l.ID)
		if cerr != nil {
			return nil, handleError(cerr)
		}
		return &ledgerOutput{Body: sealed}, nil
	})
}
