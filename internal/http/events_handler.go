package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"vantage/internal/events"
	"vantage/internal/reports"
)

const (
	msgEventAdded     = "Event added successfully"
	errInvalidRequest = "Invalid request"
)

// CreateEventParams is the beacon payload. Dimension fields are optional and
// arrive pre-enriched; empty pointers stay NULL in the event row.
type CreateEventParams struct {
	EntityID  string    `json:"entityId"`
	VisitorID string    `json:"visitorId"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	Fqdn     *string `json:"fqdn"`
	Path     *string `json:"path"`
	Referrer *string `json:"referrer"`
	Platform *string `json:"platform"`
	Browser  *string `json:"browser"`
	Mobile   *bool   `json:"mobile"`
	Country  *string `json:"country"`
	City     *string `json:"city"`

	UtmSource   *string `json:"utmSource"`
	UtmMedium   *string `json:"utmMedium"`
	UtmCampaign *string `json:"utmCampaign"`
	UtmContent  *string `json:"utmContent"`
	UtmTerm     *string `json:"utmTerm"`
}

// CreateEventAction appends one beacon to the event table.
func CreateEventAction(ctx *cartridge.Context) error {
	var params CreateEventParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if params.EntityID == "" || params.VisitorID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	// Same allow-list the report engine enforces; a beacon with a hostile
	// entity id never reaches the table.
	if !reports.IsValidID(params.EntityID) || !reports.IsValidID(params.VisitorID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid identifier"})
	}

	eventName := params.Event
	if eventName == "" {
		eventName = events.EventPageview
	}

	event := &events.Event{
		EntityID:  params.EntityID,
		VisitorID: params.VisitorID,
		Event:     eventName,
		CreatedAt: params.Timestamp,

		Fqdn:     params.Fqdn,
		Path:     params.Path,
		Referrer: params.Referrer,
		Platform: params.Platform,
		Browser:  params.Browser,
		Mobile:   params.Mobile,
		Country:  params.Country,
		City:     params.City,

		UtmSource:   params.UtmSource,
		UtmMedium:   params.UtmMedium,
		UtmCampaign: params.UtmCampaign,
		UtmContent:  params.UtmContent,
		UtmTerm:     params.UtmTerm,
	}

	if err := events.TrackEvent(ctx.DB(), ctx.Logger, event); err != nil {
		ctx.Logger.Error("Failed to collect event", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to collect event",
		})
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": msgEventAdded,
		"status":  fiber.StatusAccepted,
	})
}
