// Package events owns the append-only event table and its write paths.
package events

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// TrackEvent appends a single event row. The caller supplies pre-enriched
// dimension values; no GeoIP or user-agent parsing happens here.
func TrackEvent(db *gorm.DB, logger *slog.Logger, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}

	if err := db.Create(event).Error; err != nil {
		logger.Error("Failed to insert event",
			slog.String("entity_id", event.EntityID),
			slog.Any("error", err))
		return fmt.Errorf("error inserting event: %w", err)
	}

	return nil
}

// DeleteByEntity removes all events belonging to an entity. This is the only
// sanctioned bulk delete against the events table (administrative cleanup
// when an entity is removed).
func DeleteByEntity(db *gorm.DB, logger *slog.Logger, entityID string) (int64, error) {
	result := db.Where("entity_id = ?", entityID).Delete(&Event{})
	if result.Error != nil {
		logger.Error("Failed to delete events for entity",
			slog.String("entity_id", entityID),
			slog.Any("error", result.Error))
		return 0, fmt.Errorf("error deleting events for entity %s: %w", entityID, result.Error)
	}

	logger.Info("Deleted events for entity",
		slog.String("entity_id", entityID),
		slog.Int64("rows", result.RowsAffected))
	return result.RowsAffected, nil
}

// CountByEntity returns the number of stored events for an entity.
func CountByEntity(db *gorm.DB, entityID string) (int64, error) {
	var count int64
	if err := db.Model(&Event{}).Where("entity_id = ?", entityID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting events for entity %s: %w", entityID, err)
	}
	return count, nil
}
