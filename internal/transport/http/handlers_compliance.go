package httptransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"custos/internal/audit"
	"custos/internal/compliance"
	"custos/internal/registry"
	"custos/pkg/domain"
	"custos/pkg/platform/httputil"
	"custos/pkg/platform/middleware/auth"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// ComplianceHandler exposes the pre-transfer checks and settlement
// notifications to the ledger, and policy administration to operators.
type ComplianceHandler struct {
	engine   *compliance.Engine
	registry *registry.Service
	balances compliance.BalanceReader
	audit    *audit.Publisher
	logger   *slog.Logger
}

func NewComplianceHandler(engine *compliance.Engine, reg *registry.Service, balances compliance.BalanceReader, publisher *audit.Publisher, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		engine:   engine,
		registry: reg,
		balances: balances,
		audit:    publisher,
		logger:   logger,
	}
}

// Register mounts the ledger and admin surfaces.
func (h *ComplianceHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleLedger, h.logger))
		r.Get("/v1/compliance/check", h.handleCheck)
		r.Post("/v1/compliance/transferred", h.handleTransferred)
		r.Post("/v1/compliance/created", h.handleCreated)
		r.Post("/v1/compliance/destroyed", h.handleDestroyed)
		r.Get("/v1/registry/verified/{holder}", h.handleVerified)
		r.Get("/v1/preflight/{from}/{to}/{amount}", h.handlePreflight)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleAdmin, h.logger))
		r.Get("/v1/compliance/limits", h.handleGetLimits)
		r.Put("/v1/compliance/limits", h.handleSetLimits)
		r.Put("/v1/compliance/countries/{country}/restriction", h.handleSetRestriction)
		r.Put("/v1/compliance/countries/{country}/holder-cap", h.handleSetHolderCap)
		r.Get("/v1/compliance/countries/{country}/stats", h.handleCountryStats)
		r.Get("/v1/compliance/holders/{holder}", h.handleHolderInfo)
		r.Post("/v1/compliance/token", h.handleBindToken)
		r.Get("/v1/audit/{subject}", h.handleAuditTrail)
	})
}

type decisionResponse struct {
	Allowed bool              `json:"allowed"`
	Reason  compliance.Reason `json:"reason"`
}

func (h *ComplianceHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to, amount, err := transferQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, err := h.engine.CanTransfer(ctx, from, to, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitDecision(ctx, "can_transfer", from, decision)
	httputil.WriteJSON(w, http.StatusOK, decisionResponse{Allowed: decision.Allowed, Reason: decision.Reason})
}

func (h *ComplianceHandler) handleTransferred(w http.ResponseWriter, r *http.Request) {
	h.handleSettlement(w, r, "transferred", func(ctx context.Context, caller domain.Address, req settlementRequest) (domain.Address, error) {
		from, err := parseOptionalAddress("from", req.From)
		if err != nil {
			return domain.ZeroAddress, err
		}
		to, err := parseOptionalAddress("to", req.To)
		if err != nil {
			return domain.ZeroAddress, err
		}
		return from, h.engine.Transferred(ctx, caller, from, to, req.Amount)
	})
}

func (h *ComplianceHandler) handleCreated(w http.ResponseWriter, r *http.Request) {
	h.handleSettlement(w, r, "created", func(ctx context.Context, caller domain.Address, req settlementRequest) (domain.Address, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return domain.ZeroAddress, err
		}
		return to, h.engine.Created(ctx, caller, to, req.Amount)
	})
}

func (h *ComplianceHandler) handleDestroyed(w http.ResponseWriter, r *http.Request) {
	h.handleSettlement(w, r, "destroyed", func(ctx context.Context, caller domain.Address, req settlementRequest) (domain.Address, error) {
		from, err := parseAddress("from", req.From)
		if err != nil {
			return domain.ZeroAddress, err
		}
		return from, h.engine.Destroyed(ctx, caller, from, req.Amount)
	})
}

func (h *ComplianceHandler) handleSettlement(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, domain.Address, settlementRequest) (domain.Address, error)) {
	ctx := r.Context()
	var req settlementRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.Caller(ctx)
	subject, err := apply(ctx, caller, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(ctx, audit.Event{
		Kind:    audit.KindSettlement,
		Action:  action,
		Actor:   caller,
		Subject: subject,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplianceHandler) handleVerified(w http.ResponseWriter, r *http.Request) {
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verified, err := h.registry.IsVerified(r.Context(), holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

type preflightResponse struct {
	Verified bool              `json:"verified"`
	Allowed  bool              `json:"allowed"`
	Reason   compliance.Reason `json:"reason"`
}

// handlePreflight answers both questions the ledger asks before settling a
// transfer. Verification and policy are independent reads, so they run
// concurrently.
func (h *ComplianceHandler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, err := addressParam(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := addressParam(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := uint64Param(r, "amount")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var (
		verified bool
		decision compliance.Decision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verified, err = h.registry.IsVerified(gctx, to)
		return err
	})
	g.Go(func() error {
		var err error
		decision, err = h.engine.CanTransfer(gctx, from, to, amount)
		return err
	})
	if err := g.Wait(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitDecision(ctx, "preflight", from, decision)
	httputil.WriteJSON(w, http.StatusOK, preflightResponse{
		Verified: verified,
		Allowed:  decision.Allowed,
		Reason:   decision.Reason,
	})
}

type limitsResponse struct {
	DailyLimit       uint64 `json:"daily_limit"`
	MonthlyLimit     uint64 `json:"monthly_limit"`
	MaxBalance       uint64 `json:"max_balance"`
	MinHoldingPeriod string `json:"min_holding_period"`
}

func (h *ComplianceHandler) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	limits := h.engine.GetLimits(r.Context())
	httputil.WriteJSON(w, http.StatusOK, limitsResponse{
		DailyLimit:       limits.DailyLimit,
		MonthlyLimit:     limits.MonthlyLimit,
		MaxBalance:       limits.MaxBalance,
		MinHoldingPeriod: limits.MinHoldingPeriod.String(),
	})
}

func (h *ComplianceHandler) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req limitsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var holding time.Duration
	if req.MinHoldingPeriod != "" {
		var err error
		if holding, err = time.ParseDuration(req.MinHoldingPeriod); err != nil {
			httputil.WriteError(w, fmt.Errorf("min_holding_period: %v: %w", err, sentinel.ErrInvalidArgument))
			return
		}
	}
	h.engine.SetLimits(ctx, compliance.Limits{
		DailyLimit:       req.DailyLimit,
		MonthlyLimit:     req.MonthlyLimit,
		MaxBalance:       req.MaxBalance,
		MinHoldingPeriod: holding,
	})
	h.emitAdmin(ctx, "set_limits", domain.ZeroAddress)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplianceHandler) handleSetRestriction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	country, err := uint64Param(r, "country")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req restrictionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.engine.SetCountryRestriction(ctx, domain.CountryCode(country), req.Restricted)
	h.emitAdmin(ctx, "set_country_restriction", domain.ZeroAddress)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplianceHandler) handleSetHolderCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	country, err := uint64Param(r, "country")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req holderCapRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.engine.SetMaxHoldersPerCountry(ctx, domain.CountryCode(country), req.Cap)
	h.emitAdmin(ctx, "set_holder_cap", domain.ZeroAddress)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplianceHandler) handleCountryStats(w http.ResponseWriter, r *http.Request) {
	country, err := uint64Param(r, "country")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stats := h.engine.StatsFor(r.Context(), domain.CountryCode(country))
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type holderInfoResponse struct {
	IsHolder       bool       `json:"is_holder"`
	LastReceivedAt *time.Time `json:"last_received_at,omitempty"`
}

func (h *ComplianceHandler) handleHolderInfo(w http.ResponseWriter, r *http.Request) {
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state := h.engine.HolderInfo(r.Context(), holder)
	resp := holderInfoResponse{IsHolder: state.IsHolder}
	if !state.LastReceivedAt.IsZero() {
		resp.LastReceivedAt = &state.LastReceivedAt
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *ComplianceHandler) handleBindToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req bindTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.engine.BindToken(ctx, token, h.balances); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "bind_token", token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplianceHandler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	subject, err := addressParam(r, "subject")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.audit.List(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]audit.Event{"events": events})
}

func (h *ComplianceHandler) emitDecision(ctx context.Context, action string, subject domain.Address, decision compliance.Decision) {
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "rejected"
	}
	h.audit.Emit(ctx, audit.Event{
		Kind:    audit.KindDecision,
		Action:  action,
		Actor:   requestcontext.Caller(ctx),
		Subject: subject,
		Outcome: outcome,
		Reason:  string(decision.Reason),
	})
}

func (h *ComplianceHandler) emitAdmin(ctx context.Context, action string, subject domain.Address) {
	h.audit.Emit(ctx, audit.Event{
		Kind:    audit.KindAdmin,
		Action:  action,
		Actor:   requestcontext.Caller(ctx),
		Subject: subject,
	})
}

func transferQuery(r *http.Request) (from, to domain.Address, amount uint64, err error) {
	q := r.URL.Query()
	if from, err = parseOptionalAddress("from", q.Get("from")); err != nil {
		return
	}
	if to, err = parseOptionalAddress("to", q.Get("to")); err != nil {
		return
	}
	amount, parseErr := strconv.ParseUint(q.Get("amount"), 10, 64)
	if parseErr != nil {
		err = fmt.Errorf("amount: malformed number: %w", sentinel.ErrInvalidArgument)
		return
	}
	return from, to, amount, nil
}
