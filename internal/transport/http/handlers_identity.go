package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"custos/internal/identity"
	"custos/pkg/domain"
	"custos/pkg/platform/httputil"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// IdentityHandler exposes key and claim management. Any authenticated caller
// may reach these routes; the service enforces key-purpose authority, so a
// caller without the management or claim purpose on the target identity is
// rejected there.
type IdentityHandler struct {
	identity *identity.Service
	logger   *slog.Logger
}

func NewIdentityHandler(svc *identity.Service, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{identity: svc, logger: logger}
}

// Register mounts the authenticated identity routes.
func (h *IdentityHandler) Register(r chi.Router) {
	r.Post("/v1/identity", h.handleCreate)
	r.Post("/v1/identity/{entity}/keys", h.handleAddKey)
	r.Get("/v1/identity/{entity}/keys/{hash}", h.handleGetKey)
	r.Delete("/v1/identity/{entity}/keys/{hash}/{purpose}", h.handleRemoveKey)
	r.Post("/v1/identity/{entity}/claims", h.handleAddClaim)
	r.Get("/v1/identity/{entity}/claims", h.handleClaimsByTopic)
	r.Get("/v1/identity/{entity}/claims/{id}", h.handleGetClaim)
	r.Delete("/v1/identity/{entity}/claims/{id}", h.handleRemoveClaim)
}

func (h *IdentityHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if err := h.identity.CreateIdentity(ctx, caller); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"identity": caller.Hex()})
}

func (h *IdentityHandler) handleAddKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	keyHash, err := parseHash("key_hash", req.KeyHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.Caller(ctx)
	if err := h.identity.AddKey(ctx, caller, entity, keyHash, req.Purpose, req.KeyType); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type keyResponse struct {
	Hash     string              `json:"hash"`
	Type     domain.KeyType      `json:"type"`
	Purposes []domain.KeyPurpose `json:"purposes"`
}

func (h *IdentityHandler) handleGetKey(w http.ResponseWriter, r *http.Request) {
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	hash, err := hashParam(r, "hash")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key, err := h.identity.GetKey(r.Context(), entity, hash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, keyResponse{
		Hash:     key.Hash.Hex(),
		Type:     key.Type,
		Purposes: key.Purposes,
	})
}

func (h *IdentityHandler) handleRemoveKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	hash, err := hashParam(r, "hash")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purpose, err := uint64Param(r, "purpose")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.Caller(ctx)
	if err := h.identity.RemoveKey(ctx, caller, entity, hash, domain.KeyPurpose(purpose)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentityHandler) handleAddClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addClaimRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuer, err := parseAddress("issuer", req.Issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.Caller(ctx)
	id, err := h.identity.AddClaim(ctx, caller, identity.AddClaimRequest{
		Subject:   entity,
		Topic:     req.Topic,
		Scheme:    req.Scheme,
		Issuer:    issuer,
		Signature: req.Signature,
		Data:      req.Data,
		URI:       req.URI,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"claim_id": id.Hex()})
}

type claimResponse struct {
	ID        string             `json:"id"`
	Subject   string             `json:"subject"`
	Topic     domain.ClaimTopic  `json:"topic"`
	Scheme    domain.ClaimScheme `json:"scheme"`
	Issuer    string             `json:"issuer"`
	Signature hexutil.Bytes      `json:"signature"`
	Data      hexutil.Bytes      `json:"data"`
	URI       string             `json:"uri,omitempty"`
}

func (h *IdentityHandler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := hashParam(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	claim, err := h.identity.GetClaim(r.Context(), entity, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claimResponse{
		ID:        claim.ID.Hex(),
		Subject:   claim.Subject.Hex(),
		Topic:     claim.Topic,
		Scheme:    claim.Scheme,
		Issuer:    claim.Issuer.Hex(),
		Signature: claim.Signature,
		Data:      claim.Data,
		URI:       claim.URI,
	})
}

func (h *IdentityHandler) handleClaimsByTopic(w http.ResponseWriter, r *http.Request) {
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	topic, err := strconv.ParseUint(r.URL.Query().Get("topic"), 10, 64)
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("topic: malformed number: %w", sentinel.ErrInvalidArgument))
		return
	}
	ids, err := h.identity.ClaimIDsByTopic(r.Context(), entity, domain.ClaimTopic(topic))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"claim_ids": out})
}

func (h *IdentityHandler) handleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, err := addressParam(r, "entity")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := hashParam(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.Caller(ctx)
	if err := h.identity.RemoveClaim(ctx, caller, entity, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
