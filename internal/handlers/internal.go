package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-goods/shipping-api/internal/platform/httpx"
	"github.com/meridian-goods/shipping-api/internal/registry"
)

// RegistryStore is the slice of the registry store the internal endpoints use.
type RegistryStore interface {
	RegistryReloader
	Snapshot() (*registry.Snapshot, error)
}

// InternalHandlers exposes operator-only endpoints. Authentication is applied
// as group middleware by the router.
type InternalHandlers struct {
	registry RegistryStore
}

// NewInternalHandlers constructs the internal endpoints.
func NewInternalHandlers(registry RegistryStore) *InternalHandlers {
	return &InternalHandlers{registry: registry}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/registry:reload", h.postRegistryReload)
	r.Get("/registry", h.getRegistry)
}

func (h *InternalHandlers) postRegistryReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "registry is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.registry.Reload(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("reload_failed", "failed to reload carrier registry", http.StatusBadGateway))
		return
	}

	snapshot, err := h.registry.Snapshot()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "registry is not loaded", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, registrySummary(snapshot))
}

func (h *InternalHandlers) getRegistry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "registry is unavailable", http.StatusServiceUnavailable))
		return
	}

	snapshot, err := h.registry.Snapshot()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "registry is not loaded", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, registrySummary(snapshot))
}

func registrySummary(snapshot *registry.Snapshot) map[string]any {
	partners := make([]map[string]any, 0, len(snapshot.Partners))
	for _, partner := range snapshot.Partners {
		partners = append(partners, map[string]any{
			"id":               partner.ID,
			"name":             partner.Name,
			"coverage":         partner.Coverage,
			"maxWeightKg":      partner.MaxWeightKg,
			"commissionRate":   partner.CommissionRate,
			"affiliateEnabled": partner.AffiliateEnabled,
		})
	}

	return map[string]any{
		"version":   snapshot.Version,
		"currency":  snapshot.Currency,
		"countries": len(snapshot.Zones),
		"zones":     len(snapshot.ZoneConfigs),
		"partners":  partners,
		"loadedAt":  formatTime(snapshot.LoadedAt),
	}
}
