package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pixelgate/pixelgate/internal/clientscript"
	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
	"github.com/pixelgate/pixelgate/internal/port/eventlog"
	"github.com/pixelgate/pixelgate/internal/service"
)

// headerPlatformDomain carries the shop domain on platform webhook deliveries.
const headerPlatformDomain = "X-Platform-Domain"

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Ingest   *service.IngestService
	Tenants  *service.TenantService
	Webhooks *service.WebhookService
	Events   eventlog.Store

	// PublicURL is the externally reachable base URL baked into the
	// storefront tag.
	PublicURL string

	script      *clientscript.Renderer
	eventSchema *jsonschema.Schema
}

// NewHandlers builds the handler set, compiling the strict event schema and
// the storefront tag template.
func NewHandlers(ingest *service.IngestService, tenants *service.TenantService, webhooks *service.WebhookService, events eventlog.Store, publicURL string) (*Handlers, error) {
	script, err := clientscript.New()
	if err != nil {
		return nil, err
	}
	sch, err := compileEventSchema()
	if err != nil {
		return nil, err
	}
	return &Handlers{
		Ingest:      ingest,
		Tenants:     tenants,
		Webhooks:    webhooks,
		Events:      events,
		PublicURL:   publicURL,
		script:      script,
		eventSchema: sch,
	}, nil
}

// ---------------------------------------------------------------------------
// Ingestion
// ---------------------------------------------------------------------------

// HandlePixelQuery is the image transport path: the whole event rides in the
// d query parameter. Whatever arrives is ingested; a payload that is not
// JSON is wrapped raw so the attempt still produces a log record.
func (h *Handlers) HandlePixelQuery(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("d")

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload == nil {
		payload = map[string]any{"raw": raw}
	}

	if err := h.Ingest.Ingest(r.Context(), inboundFromPayload(payload, event.TransportQuery)); err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store, private")
	writeSuccess(w)
}

// HandleBeacon is the sendBeacon / keepalive fetch path. The body is
// parsed leniently; malformed JSON degrades to a raw wrapper rather than
// an error, because beacon callers never see the response.
func (h *Handlers) HandleBeacon(w http.ResponseWriter, r *http.Request) {
	// Oversize bodies are truncated, not rejected: the beacon caller cannot
	// act on an error, so whatever arrived is still recorded.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		body = nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		payload = map[string]any{"raw": string(body)}
	}

	if err := h.Ingest.Ingest(r.Context(), inboundFromPayload(payload, event.TransportBeacon)); err != nil {
		writeInternalError(w, err)
		return
	}
	writeSuccess(w)
}

// HandleEventJSON is the strict JSON path. Unlike the beacon path the
// caller can act on the response, so malformed or schema-invalid payloads
// are rejected with 400.
func (h *Handlers) HandleEventJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.eventSchema.Validate(map[string]any(payload)); err != nil {
		writeError(w, http.StatusBadRequest, "event does not match schema: "+err.Error())
		return
	}

	if err := h.Ingest.Ingest(r.Context(), inboundFromPayload(payload, event.TransportJSON)); err != nil {
		writeInternalError(w, err)
		return
	}
	writeSuccess(w)
}

// inboundFromPayload lifts the routing fields out of a decoded client
// payload. Missing fields stay empty; downstream normalization and
// dispatch decide what an unattributable event becomes.
func inboundFromPayload(payload map[string]any, tr event.Transport) *event.Inbound {
	tenantKey := stringField(payload, "shop")
	if tenantKey == "" {
		tenantKey = stringField(payload, "shop_domain")
	}

	return &event.Inbound{
		TenantKey:  tenantKey,
		Name:       stringField(payload, "event_name"),
		OccurredAt: timestampField(payload),
		RawPayload: payload,
		Transport:  tr,
		Trust:      event.TrustClient,
	}
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// timestampField reads a client timestamp leniently: epoch seconds as a
// number or numeric string, or RFC 3339. Anything else yields the zero
// time and normalization stamps the event on arrival.
func timestampField(payload map[string]any) time.Time {
	switch v := payload["timestamp"].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case string:
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// HandleWebhook processes a signed platform webhook. The HMAC middleware
// has already verified the signature; this handler routes by topic.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "*")
	tenantKey := r.Header.Get(headerPlatformDomain)
	if !requireField(w, topic, "topic") || !requireField(w, tenantKey, headerPlatformDomain+" header") {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if err := h.Webhooks.HandleTopic(r.Context(), topic, tenantKey, body); err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeSuccess(w)
}

// ---------------------------------------------------------------------------
// Storefront surface
// ---------------------------------------------------------------------------

// HandleConfig reports whether a storefront already has a gateway
// configuration and, when linked, which account backs it.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	tenantKey := r.URL.Query().Get("tenant")
	if !requireField(w, tenantKey, "tenant") {
		return
	}

	pixelID, status, err := h.Tenants.ConfigStatus(r.Context(), tenantKey)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no configuration for tenant")
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pixelId":             pixelID,
		"configurationStatus": status,
	})
}

// HandleScript serves the storefront tag with the gateway endpoint and shop
// baked in.
func (h *Handlers) HandleScript(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tenant")
	if raw == "" {
		raw = r.URL.Query().Get("shop")
	}
	shop := tenant.NormalizeDomain(raw)

	body, err := h.script.Render(h.PublicURL, shop)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

type upsertTenantRequest struct {
	AccountID string `json:"accountId"`
}

// HandleUpsertTenant creates or updates the configuration for the tenant in
// the path. The body is optional; a bare PUT registers the domain.
func (h *Handlers) HandleUpsertTenant(w http.ResponseWriter, r *http.Request) {
	domainKey := chi.URLParam(r, "domain")

	var req upsertTenantRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cfg, err := h.Tenants.UpsertTenant(r.Context(), domainKey, req.AccountID)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// HandleGetTenant returns the stored configuration for one tenant.
func (h *Handlers) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	r2, err := h.Tenants.Resolve(r.Context(), chi.URLParam(r, "domain"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config": r2.Config,
		"active": r2.Active(),
	})
}

type linkCredentialRequest struct {
	AccountID string `json:"accountId"`
}

type linkCredentialResponse struct {
	Config  *tenant.Config `json:"config"`
	Pending bool           `json:"pending"`
}

// HandleLinkCredential links a credential set to the tenant in the path. A
// link to a credential with no access token yet leaves the gateway pending.
func (h *Handlers) HandleLinkCredential(w http.ResponseWriter, r *http.Request) {
	domainKey := chi.URLParam(r, "domain")
	req, ok := readJSON[linkCredentialRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AccountID, "accountId") {
		return
	}

	cfg, pending, err := h.Tenants.LinkCredential(r.Context(), domainKey, req.AccountID)
	if err != nil {
		writeDomainError(w, err, "credential set not found")
		return
	}
	writeJSON(w, http.StatusOK, linkCredentialResponse{Config: cfg, Pending: pending})
}

type upsertCredentialRequest struct {
	AccessToken string `json:"accessToken"`
	DisplayName string `json:"displayName"`
}

type credentialResponse struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Activated   bool   `json:"activated"`
}

// HandleUpsertCredential creates or updates the credential set in the path.
// The access token is never echoed back.
func (h *Handlers) HandleUpsertCredential(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	req, ok := readJSON[upsertCredentialRequest](w, r)
	if !ok {
		return
	}

	cs, err := h.Tenants.FindOrCreateCredential(r.Context(), accountID, req.AccessToken, req.DisplayName)
	if err != nil {
		writeDomainError(w, err, "credential set not found")
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{
		AccountID:   cs.AccountID,
		DisplayName: cs.DisplayName,
		Activated:   cs.Activated(),
	})
}

// HandleListEvents returns recent dispatch log records, optionally scoped
// to one tenant.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	var (
		records []event.LogRecord
		err     error
	)
	if tenantKey := r.URL.Query().Get("tenant"); tenantKey != "" {
		records, err = h.Events.ListByTenant(r.Context(), tenant.NormalizeDomain(tenantKey), limit)
	} else {
		records, err = h.Events.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if records == nil {
		records = []event.LogRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
