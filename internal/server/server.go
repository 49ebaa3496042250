// Package server exposes the escrow engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine"
	"github.com/JermWang/hodler-sub004/internal/reconcile"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine     engine.Engine
	Reconciler reconcile.Reconciler
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"voting_closed"`
	Message string         `json:"message" example:"voting window is closed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Hodler API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Hodler API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerCommitments(group, cfg.Engine)
	registerMilestones(group, cfg.Engine)
	registerVotes(group, cfg.Engine)
	registerPayouts(group, cfg.Engine)
	registerRewards(group, cfg.Engine)
	registerAdmin(group, cfg.Engine, cfg.Reconciler)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine sentinels onto the HTTP surface.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrAuthentication):
		return newAPIError(http.StatusUnauthorized, "authentication_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrVotingClosed):
		return newAPIError(http.StatusUnprocessableEntity, "voting_closed", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyClaimed):
		return newAPIError(http.StatusConflict, "already_claimed", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyExists):
		return newAPIError(http.StatusConflict, "already_exists", err.Error(), nil)
	case errors.Is(err, engine.ErrUnderfunded):
		return newAPIError(http.StatusConflict, "underfunded", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidState):
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, engine.ErrNothingToClaim):
		return newAPIError(http.StatusNotFound, "nothing_to_claim", err.Error(), nil)
	case errors.Is(err, engine.ErrSubmissionFailed):
		return newAPIError(http.StatusBadGateway, "submission_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrInconsistent):
		return newAPIError(http.StatusInternalServerError, "inconsistent", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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

func registerCommitments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-commitment",
		Method:        http.MethodPost,
		Path:          "/commitments",
		Summary:       "Create commitment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateCommitmentRequest `json:"body"`
	}) (*struct {
		Body domain.Commitment `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		in := engine.CreateCommitmentInput{
			Kind:          domain.CommitmentKind(input.Body.Kind),
			EscrowAddress: input.Body.EscrowAddress,
			Authority:     input.Body.Authority,
			FailureDest:   input.Body.FailureDest,
			FundedAmount:  input.Body.FundedAmount,
			VoteTokenMint: input.Body.VoteTokenMint,
			FeeMode:       domain.FeeMode(input.Body.FeeMode),
			DeadlineUnix:  input.Body.DeadlineUnix,
		}
		for _, m := range input.Body.Milestones {
			in.Milestones = append(in.Milestones, engine.MilestoneInput{
				Title:        m.Title,
				UnlockAmount: m.UnlockAmount,
				UnlockBps:    m.UnlockBps,
				DueAtUnix:    m.DueAtUnix,
			})
		}
		c, err := e.CreateCommitment(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Commitment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commitments",
		Method:      http.MethodGet,
		Path:        "/commitments",
		Summary:     "List commitments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Commitment `json:"body"`
	}, error) {
		items, err := e.ListCommitments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Commitment{}
		}
		return &struct {
			Body []domain.Commitment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-commitment",
		Method:      http.MethodGet,
		Path:        "/commitments/{commitment_id}",
		Summary:     "Get commitment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CommitmentID string `path:"commitment_id"`
	}) (*struct {
		Body domain.Commitment `json:"body"`
	}, error) {
		c, err := e.GetCommitment(ctx, input.CommitmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Commitment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-commitment",
		Method:      http.MethodPost,
		Path:        "/commitments/{commitment_id}/resolve",
		Summary:     "Resolve a matured personal commitment",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		CommitmentID string       `path:"commitment_id"`
		Body         ClaimRequest `json:"body"`
	}) (*struct {
		Body domain.Commitment `json:"body"`
	}, error) {
		c, err := e.ResolvePersonal(ctx, input.CommitmentID, input.Body.SignedAtUnix, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Commitment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commitment-events",
		Method:      http.MethodGet,
		Path:        "/commitments/{commitment_id}/events",
		Summary:     "Commitment audit log",
	}, func(ctx context.Context, input *struct {
		CommitmentID string `path:"commitment_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.ListEvents(ctx, input.CommitmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerMilestones(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "append-milestone",
		Method:        http.MethodPost,
		Path:          "/commitments/{commitment_id}/milestones",
		Summary:       "Append milestone",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CommitmentID string                 `path:"commitment_id"`
		Body         AppendMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		m, err := e.AppendMilestone(ctx, input.CommitmentID, engine.MilestoneInput{
			Title:        input.Body.Title,
			UnlockAmount: input.Body.UnlockAmount,
			UnlockBps:    input.Body.UnlockBps,
			DueAtUnix:    input.Body.DueAtUnix,
		}, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/commitments/{commitment_id}/milestones",
		Summary:     "List milestones",
	}, func(ctx context.Context, input *struct {
		CommitmentID string `path:"commitment_id"`
	}) (*struct {
		Body []domain.Milestone `json:"body"`
	}, error) {
		items, err := e.ListMilestones(ctx, input.CommitmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Milestone{}
		}
		return &struct {
			Body []domain.Milestone `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-milestone",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Get milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		m, err := e.GetMilestone(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-milestone",
		Method:      http.MethodPost,
		Path:        "/commitments/{commitment_id}/milestones/{milestone_id}/complete",
		Summary:     "Mark milestone complete",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CommitmentID string                   `path:"commitment_id"`
		MilestoneID  string                   `path:"milestone_id"`
		Body         CompleteMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		m, err := e.MarkComplete(ctx, input.CommitmentID, input.MilestoneID, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})
}

func registerVotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-vote",
		Method:        http.MethodPost,
		Path:          "/milestones/{milestone_id}/votes",
		Summary:       "Record weighted vote",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		MilestoneID string      `path:"milestone_id"`
		Body        VoteRequest `json:"body"`
	}) (*struct {
		Body domain.Vote `json:"body"`
	}, error) {
		v, err := e.RecordVote(ctx, engine.VoteInput{
			MilestoneID: input.MilestoneID,
			Voter:       input.Body.Voter,
			Choice:      domain.VoteChoice(input.Body.Choice),
			Weight:      input.Body.Weight,
			Signature:   input.Body.Signature,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vote `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-votes",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}/votes",
		Summary:     "List votes",
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body []domain.Vote `json:"body"`
	}, error) {
		items, err := e.ListVotes(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Vote{}
		}
		return &struct {
			Body []domain.Vote `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tally",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}/tally",
		Summary:     "Current vote tally",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body TallyResponse `json:"body"`
	}, error) {
		m, err := e.GetMilestone(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTally(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		start, end := engine.VotingWindow(m, e.Config.Governance.VotingWindowSecs)
		return &struct {
			Body TallyResponse `json:"body"`
		}{Body: TallyResponse{Tally: t, WindowStart: start, WindowEnd: end}}, nil
	})
}

func registerPayouts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "release-milestone",
		Method:      http.MethodPost,
		Path:        "/milestones/{milestone_id}/release",
		Summary:     "Release claimable milestone",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.Release(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-failure-distribution",
		Method:        http.MethodPost,
		Path:          "/milestones/{milestone_id}/distribution",
		Summary:       "Create failure distribution",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body domain.FailureDistribution `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateFailureDistribution(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FailureDistribution `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-failure-distribution",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}/distribution",
		Summary:     "Get failure distribution",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body domain.FailureDistribution `json:"body"`
	}, error) {
		d, err := e.GetFailureDistribution(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FailureDistribution `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-failure-claims",
		Method:      http.MethodGet,
		Path:        "/milestones/{milestone_id}/claims",
		Summary:     "List failure claims",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body []domain.FailureClaim `json:"body"`
	}, error) {
		items, err := e.ListFailureClaims(ctx, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.FailureClaim{}
		}
		return &struct {
			Body []domain.FailureClaim `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-failure-payout",
		Method:      http.MethodPost,
		Path:        "/milestones/{milestone_id}/claims",
		Summary:     "Claim failure payout",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		MilestoneID string       `path:"milestone_id"`
		Body        ClaimRequest `json:"body"`
	}) (*struct {
		Body domain.FailureClaim `json:"body"`
	}, error) {
		c, err := e.ClaimFailurePayout(ctx, input.MilestoneID, input.Body.Wallet, input.Body.SignedAtUnix, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FailureClaim `json:"body"`
		}{Body: c}, nil
	})
}

func registerRewards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-vote-rewards",
		Method:      http.MethodGet,
		Path:        "/rewards/{wallet}",
		Summary:     "List unclaimed vote rewards",
	}, func(ctx context.Context, input *struct {
		Wallet string `path:"wallet"`
	}) (*struct {
		Body []domain.VoteRewardEntry `json:"body"`
	}, error) {
		items, err := e.ListUnclaimedRewards(ctx, input.Wallet)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.VoteRewardEntry{}
		}
		return &struct {
			Body []domain.VoteRewardEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-vote-rewards",
		Method:      http.MethodPost,
		Path:        "/rewards/claims",
		Summary:     "Claim all vote rewards",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body ClaimRequest `json:"body"`
	}) (*struct {
		Body RewardsClaimResponse `json:"body"`
	}, error) {
		amount, txRef, err := e.ClaimVoteRewardsAll(ctx, input.Body.Wallet, input.Body.SignedAtUnix, input.Body.Signature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RewardsClaimResponse `json:"body"`
		}{Body: RewardsClaimResponse{Wallet: input.Body.Wallet, Amount: amount, TxRef: txRef}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accrue-vote-rewards",
		Method:      http.MethodPost,
		Path:        "/commitments/{commitment_id}/rewards/accrue",
		Summary:     "Run a vote reward accrual pass",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CommitmentID string `path:"commitment_id"`
	}) (*struct {
		Body []domain.VoteRewardEntry `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		entries, err := e.AccrueVoteRewards(ctx, input.CommitmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.VoteRewardEntry{}
		}
		return &struct {
			Body []domain.VoteRewardEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine, r reconcile.Reconciler) {
	huma.Register(api, huma.Operation{
		OperationID: "normalize",
		Method:      http.MethodPost,
		Path:        "/admin/normalize",
		Summary:     "Run the settlement sweep",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body NormalizeResponse `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		transitioned, changed, err := e.Normalize(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NormalizeResponse `json:"body"`
		}{Body: NormalizeResponse{Changed: changed, Milestones: transitioned}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile",
		Method:      http.MethodPost,
		Path:        "/admin/reconcile",
		Summary:     "Sweep pending payout submissions",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReconcileResponse `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		n, err := r.Sweep(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReconcileResponse `json:"body"`
		}{Body: ReconcileResponse{Resolved: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/admin/submissions",
		Summary:     "List payout submissions by status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" default:"inconsistent" enum:"pending,confirmed,failed,inconsistent"`
	}) (*struct {
		Body []domain.PayoutSubmission `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListSubmissionsByStatus(ctx, domain.SubmissionStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.PayoutSubmission{}
		}
		return &struct {
			Body []domain.PayoutSubmission `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-submission",
		Method:      http.MethodPost,
		Path:        "/admin/submissions/{submission_id}/resolve",
		Summary:     "Resolve an inconsistent submission",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SubmissionID int64                    `path:"submission_id"`
		Body         ResolveSubmissionRequest `json:"body"`
	}) (*struct {
		Body domain.PayoutSubmission `json:"body"`
	}, error) {
		if authErr := requireOperator(ctx); authErr != nil {
			return nil, authErr
		}
		if err := r.ResolveInconsistent(ctx, input.SubmissionID, input.Body.Confirmed, input.Body.TxRef); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetSubmission(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PayoutSubmission `json:"body"`
		}{Body: s}, nil
	})
}
