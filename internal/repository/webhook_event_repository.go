package repository

import (
	"context"
	"fmt"

	"github.com/livecast/backend/internal/database"
)

// WebhookEventRepository is the ledger of provider deliveries already seen.
type WebhookEventRepository struct {
	db database.Querier
}

func NewWebhookEventRepository(db database.Querier) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores the delivery id and reports whether it was new.
func (r *WebhookEventRepository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `INSERT INTO webhook_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return n == 1, nil
}

// Forget removes a delivery id so a later redelivery is treated as new.
func (r *WebhookEventRepository) Forget(ctx context.Context, eventID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", err)
	}
	return nil
}
