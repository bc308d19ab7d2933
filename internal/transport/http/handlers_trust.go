package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/audit"
	"custos/internal/claimtopics"
	"custos/internal/trustedissuers"
	"custos/pkg/domain"
	"custos/pkg/platform/httputil"
	"custos/pkg/platform/middleware/auth"
	"custos/pkg/requestcontext"
)

// TrustHandler exposes the claim-topic and trusted-issuer registries.
// Mutations need the manager role; the read side is public so issuers can
// discover what the operator requires.
type TrustHandler struct {
	topics  *claimtopics.Registry
	issuers *trustedissuers.Registry
	audit   *audit.Publisher
	logger  *slog.Logger
}

func NewTrustHandler(topics *claimtopics.Registry, issuers *trustedissuers.Registry, publisher *audit.Publisher, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{topics: topics, issuers: issuers, audit: publisher, logger: logger}
}

// Register mounts the manager-gated mutation routes.
func (h *TrustHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleManager, h.logger))
		r.Post("/v1/topics", h.handleAddTopic)
		r.Post("/v1/topics/batch", h.handleAddTopicBatch)
		r.Delete("/v1/topics/{topic}", h.handleRemoveTopic)
		r.Post("/v1/issuers", h.handleAddIssuer)
		r.Post("/v1/issuers/batch", h.handleAddIssuerBatch)
		r.Delete("/v1/issuers/{issuer}", h.handleRemoveIssuer)
		r.Put("/v1/issuers/{issuer}/topics", h.handleUpdateIssuerTopics)
	})
}

// RegisterPublic mounts the unauthenticated read routes.
func (h *TrustHandler) RegisterPublic(r chi.Router) {
	r.Get("/v1/topics", h.handleListTopics)
	r.Get("/v1/topics/{topic}/issuers", h.handleIssuersForTopic)
	r.Get("/v1/issuers", h.handleListIssuers)
	r.Get("/v1/issuers/{issuer}", h.handleGetIssuer)
}

func (h *TrustHandler) handleAddTopic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req topicRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.topics.Add(ctx, req.Topic); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "add_topic", domain.ZeroAddress)
	w.WriteHeader(http.StatusCreated)
}

func (h *TrustHandler) handleAddTopicBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req topicBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.topics.AddBatch(ctx, req.Topics); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "add_topic_batch", domain.ZeroAddress)
	w.WriteHeader(http.StatusCreated)
}

func (h *TrustHandler) handleRemoveTopic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topic, err := uint64Param(r, "topic")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.topics.Remove(ctx, domain.ClaimTopic(topic)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "remove_topic", domain.ZeroAddress)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrustHandler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics := h.topics.Topics(r.Context())
	if topics == nil {
		topics = []domain.ClaimTopic{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]domain.ClaimTopic{"topics": topics})
}

func (h *TrustHandler) handleAddIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req issuerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuer, identityAddr, err := req.addresses()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.issuers.Add(ctx, issuer, identityAddr, req.Topics); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "add_issuer", issuer)
	w.WriteHeader(http.StatusCreated)
}

func (h *TrustHandler) handleAddIssuerBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req issuerBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	records := make([]trustedissuers.IssuerRecord, 0, len(req.Issuers))
	for _, entry := range req.Issuers {
		issuer, identityAddr, err := entry.addresses()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		records = append(records, trustedissuers.IssuerRecord{
			Issuer:   issuer,
			Identity: identityAddr,
			Topics:   entry.Topics,
		})
	}
	if err := h.issuers.AddBatch(ctx, records); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "add_issuer_batch", domain.ZeroAddress)
	w.WriteHeader(http.StatusCreated)
}

func (h *TrustHandler) handleRemoveIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := addressParam(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.issuers.Remove(ctx, issuer); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "remove_issuer", issuer)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrustHandler) handleUpdateIssuerTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := addressParam(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req issuerTopicsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.issuers.UpdateTopics(ctx, issuer, req.Topics); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.emitAdmin(ctx, "update_issuer_topics", issuer)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrustHandler) handleIssuersForTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := uint64Param(r, "topic")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuers := h.issuers.IssuersForTopic(r.Context(), domain.ClaimTopic(topic))
	out := make([]string, len(issuers))
	for i, issuer := range issuers {
		out[i] = issuer.Hex()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"issuers": out})
}

func (h *TrustHandler) handleListIssuers(w http.ResponseWriter, r *http.Request) {
	issuers := h.issuers.Issuers(r.Context())
	out := make([]string, len(issuers))
	for i, issuer := range issuers {
		out[i] = issuer.Hex()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"issuers": out})
}

func (h *TrustHandler) handleGetIssuer(w http.ResponseWriter, r *http.Request) {
	issuer, err := addressParam(r, "issuer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.issuers.Get(r.Context(), issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issuerResponse{
		Issuer:   rec.Issuer.Hex(),
		Identity: rec.Identity.Hex(),
		Topics:   rec.Topics,
	})
}

func (h *TrustHandler) emitAdmin(ctx context.Context, action string, subject domain.Address) {
	h.audit.Emit(ctx, audit.Event{
		Kind:    audit.KindAdmin,
		Action:  action,
		Actor:   requestcontext.Caller(ctx),
		Subject: subject,
	})
}

func (req issuerRequest) addresses() (issuer, identity domain.Address, err error) {
	if issuer, err = parseAddress("issuer", req.Issuer); err != nil {
		return
	}
	identity, err = parseAddress("identity", req.Identity)
	return
}

type issuerResponse struct {
	Issuer   string              `json:"issuer"`
	Identity string              `json:"identity"`
	Topics   []domain.ClaimTopic `json:"topics"`
}
