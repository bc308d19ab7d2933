package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/audit"
	"custos/internal/registry"
	"custos/pkg/domain"
	"custos/pkg/platform/httputil"
	"custos/pkg/platform/middleware/auth"
	"custos/pkg/requestcontext"
)

// RegistryHandler exposes holder registration to transfer agents and the
// verification read to the ledger.
type RegistryHandler struct {
	registry *registry.Service
	audit    *audit.Publisher
	logger   *slog.Logger
}

func NewRegistryHandler(registry *registry.Service, publisher *audit.Publisher, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{registry: registry, audit: publisher, logger: logger}
}

// Register mounts the agent-gated registration routes.
func (h *RegistryHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleAgent, h.logger))
		r.Post("/v1/registry", h.handleRegister)
		r.Post("/v1/registry/batch", h.handleRegisterBatch)
		r.Get("/v1/registry/{holder}", h.handleGet)
		r.Delete("/v1/registry/{holder}", h.handleDelete)
		r.Put("/v1/registry/{holder}/identity", h.handleUpdateIdentity)
		r.Put("/v1/registry/{holder}/country", h.handleUpdateCountry)
	})
}

func (h *RegistryHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	reg, err := req.toRegistration()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.registry.Register(ctx, reg); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "register", reg.Holder)
	w.WriteHeader(http.StatusCreated)
}

func (h *RegistryHandler) handleRegisterBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registrationBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	regs := make([]registry.Registration, 0, len(req.Registrations))
	for _, entry := range req.Registrations {
		reg, err := entry.toRegistration()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		regs = append(regs, reg)
	}
	if err := h.registry.RegisterBatch(ctx, regs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	for _, reg := range regs {
		h.emitAdmin(ctx, "register", reg.Holder)
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *RegistryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.registry.Get(r.Context(), holder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordResponse{
		Holder:   holder.Hex(),
		Identity: rec.Identity.Hex(),
		Country:  rec.Country,
	})
}

func (h *RegistryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.registry.Delete(ctx, holder); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "delete_registration", holder)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateIdentityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	identityAddr, err := parseAddress("identity", req.Identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.registry.Update(ctx, holder, identityAddr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "update_identity", holder)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) handleUpdateCountry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateCountryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.registry.UpdateCountry(ctx, holder, req.Country); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "update_country", holder)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) emitAdmin(ctx context.Context, action string, subject domain.Address) {
	h.audit.Emit(ctx, audit.Event{
		Kind:    audit.KindAdmin,
		Action:  action,
		Actor:   requestcontext.Caller(ctx),
		Subject: subject,
	})
}

func (req registrationRequest) toRegistration() (registry.Registration, error) {
	holder, err := parseAddress("holder", req.Holder)
	if err != nil {
		return registry.Registration{}, err
	}
	identityAddr, err := parseAddress("identity", req.Identity)
	if err != nil {
		return registry.Registration{}, err
	}
	return registry.Registration{Holder: holder, Identity: identityAddr, Country: req.Country}, nil
}

type recordResponse struct {
	Holder   string             `json:"holder"`
	Identity string             `json:"identity"`
	Country  domain.CountryCode `json:"country"`
}
