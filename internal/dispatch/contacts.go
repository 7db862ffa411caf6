package dispatch

import (
	"context"
	"errors"

	"orgcore.org/internal/event"
	"orgcore.org/internal/projection"
)

func (r *Router) contactRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"contact.address_set":    r.handleAddressSet,
		"contact.phone_set":      r.handlePhoneSet,
		"contact.phone_removed":  r.handlePhoneRemoved,
		"contact.email_set":      r.handleEmailSet,
		"contact.email_removed":  r.handleEmailRemoved,
		"contact.preference_set": r.handlePreferenceSet,
	}
}

func (r *Router) requireContactUser(ctx context.Context, userID string) error {
	if _, err := r.proj.Users().Find(ctx, userID); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return &PreconditionError{Missing: "user", Detail: userID}
		}
		return err
	}
	return nil
}

func (r *Router) handleAddressSet(ctx context.Context, e event.Event) error {
	var p struct {
		Street     string `json:"street"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.requireContactUser(ctx, e.StreamID); err != nil {
		return err
	}
	return r.proj.Contacts().UpsertAddress(ctx, &projection.Address{
		UserID:      e.StreamID,
		Street:      p.Street,
		City:        p.City,
		PostalCode:  p.PostalCode,
		Country:     p.Country,
		LastEventID: e.ID,
		UpdatedAt:   e.CreatedAt,
	})
}

func (r *Router) handlePhoneSet(ctx context.Context, e event.Event) error {
	var p struct {
		Number   string `json:"number"`
		Verified bool   `json:"verified"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.requireContactUser(ctx, e.StreamID); err != nil {
		return err
	}
	return r.proj.Contacts().UpsertPhone(ctx, &projection.Phone{
		UserID:      e.StreamID,
		Number:      p.Number,
		Verified:    p.Verified,
		LastEventID: e.ID,
		UpdatedAt:   e.CreatedAt,
	})
}

// handlePhoneRemoved hard-deletes the phone row and, as a side effect inside
// the same handler, disables SMS notification preferences routed to that
// number. Cross-aggregate effects stay here rather than being re-emitted, so
// one event's blast radius remains auditable in one place.
func (r *Router) handlePhoneRemoved(ctx context.Context, e event.Event) error {
	var p struct {
		Number string `json:"number"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.proj.Contacts().RemovePhone(ctx, e.StreamID, p.Number); err != nil {
		return err
	}
	_, err := r.proj.Contacts().DisablePrefs(ctx, e.StreamID, projection.ChannelSMS, p.Number, e.ID)
	return err
}

func (r *Router) handleEmailSet(ctx context.Context, e event.Event) error {
	var p struct {
		Address  string `json:"address"`
		Verified bool   `json:"verified"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.requireContactUser(ctx, e.StreamID); err != nil {
		return err
	}
	return r.proj.Contacts().UpsertEmail(ctx, &projection.Email{
		UserID:      e.StreamID,
		Address:     p.Address,
		Verified:    p.Verified,
		LastEventID: e.ID,
		UpdatedAt:   e.CreatedAt,
	})
}

func (r *Router) handleEmailRemoved(ctx context.Context, e event.Event) error {
	var p struct {
		Address string `json:"address"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.proj.Contacts().RemoveEmail(ctx, e.StreamID, p.Address); err != nil {
		return err
	}
	_, err := r.proj.Contacts().DisablePrefs(ctx, e.StreamID, projection.ChannelEmail, p.Address, e.ID)
	return err
}

func (r *Router) handlePreferenceSet(ctx context.Context, e event.Event) error {
	var p struct {
		Channel string `json:"channel"`
		Target  string `json:"target"`
		Enabled bool   `json:"enabled"`
	}
	if err := decode(e, &p); err != nil {
		return err
	}
	if err := r.requireContactUser(ctx, e.StreamID); err != nil {
		return err
	}
	return r.proj.Contacts().UpsertPref(ctx, &projection.NotificationPref{
		UserID:      e.StreamID,
		Channel:     p.Channel,
		Target:      p.Target,
		Enabled:     p.Enabled,
		LastEventID: e.ID,
		UpdatedAt:   e.CreatedAt,
	})
}
