package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pgotel "github.com/pixelgate/pixelgate/internal/adapter/otel"
	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
)

// WebhookService turns verified platform webhook payloads into inbound
// events. The signature has already been checked by the time a payload
// reaches this service; bodies here are trusted.
type WebhookService struct {
	tenants *TenantService
	ingest  *IngestService
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(tenants *TenantService, ingest *IngestService) *WebhookService {
	return &WebhookService{tenants: tenants, ingest: ingest}
}

// HandleTopic processes one webhook delivery. tenantKey is the raw shop
// domain from the platform header. Unknown topics are ignored with a debug
// log rather than rejected, so new platform topics never bounce.
func (s *WebhookService) HandleTopic(ctx context.Context, topic, tenantKey string, body []byte) error {
	ctx, span := pgotel.StartWebhookSpan(ctx, topic, tenantKey)
	defer span.End()

	switch topic {
	case "orders/create":
		return s.handleOrderCreate(ctx, tenantKey, body)
	case "checkouts/create":
		return s.handleCheckout(ctx, tenantKey, body, "checkout_started")
	case "checkouts/update":
		return s.handleCheckoutUpdate(ctx, tenantKey, body)
	case "carts/update":
		return s.handleCartUpdate(ctx, tenantKey, body)
	case "app/uninstalled":
		return s.handleUninstall(ctx, tenantKey)
	default:
		slog.Debug("ignoring webhook topic", "topic", topic, "tenant", tenantKey)
		return nil
	}
}

// orderPayload is the subset of the platform order shape the gateway reads.
type orderPayload struct {
	ID         int64  `json:"id"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	LineItems  []struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	} `json:"line_items"`
}

func (s *WebhookService) handleOrderCreate(ctx context.Context, tenantKey string, body []byte) error {
	var order orderPayload
	if err := json.Unmarshal(body, &order); err != nil {
		return fmt.Errorf("%w: parse order payload: %v", domain.ErrValidation, err)
	}

	payload := map[string]any{
		"order_id": fmt.Sprintf("%d", order.ID),
		"value":    order.TotalPrice,
		"currency": order.Currency,
	}
	if order.Email != "" {
		payload["email"] = order.Email
	}
	if order.Phone != "" {
		payload["phone"] = order.Phone
	}

	var ids []string
	items := 0
	for _, li := range order.LineItems {
		ids = append(ids, fmt.Sprintf("%d", li.ProductID))
		items += li.Quantity
	}
	if len(ids) > 0 {
		payload["content_ids"] = ids
		payload["num_items"] = items
	}

	return s.ingest.Ingest(ctx, &event.Inbound{
		TenantKey:  tenantKey,
		Name:       "checkout_completed",
		OccurredAt: time.Now(),
		RawPayload: payload,
		Transport:  event.TransportWebhook,
		Trust:      event.TrustWebhook,
	})
}

// checkoutPayload is the subset of the platform checkout shape the gateway reads.
type checkoutPayload struct {
	Token      string `json:"token"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	Email      string `json:"email"`
	Gateway    string `json:"gateway"`
}

func (s *WebhookService) handleCheckout(ctx context.Context, tenantKey string, body []byte, name string) error {
	var co checkoutPayload
	if err := json.Unmarshal(body, &co); err != nil {
		return fmt.Errorf("%w: parse checkout payload: %v", domain.ErrValidation, err)
	}

	payload := map[string]any{
		"value":    co.TotalPrice,
		"currency": co.Currency,
	}
	if co.Email != "" {
		payload["email"] = co.Email
	}

	return s.ingest.Ingest(ctx, &event.Inbound{
		TenantKey:  tenantKey,
		Name:       name,
		OccurredAt: time.Now(),
		RawPayload: payload,
		Transport:  event.TransportWebhook,
		Trust:      event.TrustWebhook,
	})
}

// handleCheckoutUpdate emits AddPaymentInfo once payment details appear on
// the checkout; updates without a gateway yet are ignored.
func (s *WebhookService) handleCheckoutUpdate(ctx context.Context, tenantKey string, body []byte) error {
	var co checkoutPayload
	if err := json.Unmarshal(body, &co); err != nil {
		return fmt.Errorf("%w: parse checkout payload: %v", domain.ErrValidation, err)
	}
	if co.Gateway == "" {
		return nil
	}

	payload := map[string]any{
		"value":    co.TotalPrice,
		"currency": co.Currency,
	}
	if co.Email != "" {
		payload["email"] = co.Email
	}

	return s.ingest.Ingest(ctx, &event.Inbound{
		TenantKey:  tenantKey,
		Name:       "payment_info_submitted",
		OccurredAt: time.Now(),
		RawPayload: payload,
		Transport:  event.TransportWebhook,
		Trust:      event.TrustWebhook,
	})
}

func (s *WebhookService) handleCartUpdate(ctx context.Context, tenantKey string, body []byte) error {
	var cart struct {
		Token string `json:"token"`
		Items []struct {
			ProductID int64   `json:"product_id"`
			Quantity  int     `json:"quantity"`
			Price     float64 `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &cart); err != nil {
		return fmt.Errorf("%w: parse cart payload: %v", domain.ErrValidation, err)
	}

	var ids []string
	var value float64
	items := 0
	for _, it := range cart.Items {
		ids = append(ids, fmt.Sprintf("%d", it.ProductID))
		value += it.Price * float64(it.Quantity)
		items += it.Quantity
	}

	payload := map[string]any{"value": value}
	if len(ids) > 0 {
		payload["content_ids"] = ids
		payload["num_items"] = items
	}

	return s.ingest.Ingest(ctx, &event.Inbound{
		TenantKey:  tenantKey,
		Name:       "product_added_to_cart",
		OccurredAt: time.Now(),
		RawPayload: payload,
		Transport:  event.TransportWebhook,
		Trust:      event.TrustWebhook,
	})
}

// handleUninstall disables the tenant but keeps its config; configs are
// never hard-deleted.
func (s *WebhookService) handleUninstall(ctx context.Context, tenantKey string) error {
	err := s.tenants.Disable(ctx, tenantKey)
	if errors.Is(err, domain.ErrNotFound) {
		// Uninstall for a storefront we never configured; nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("disable tenant %s: %w", tenantKey, err)
	}
	slog.Info("gateway disabled on uninstall", "tenant", tenantKey)
	return nil
}
