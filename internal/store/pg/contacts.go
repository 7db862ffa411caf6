package pg

import (
	"context"
	"database/sql"

	"orgcore.org/internal/projection"
)

type contactStore struct{ db *sql.DB }

func (s contactStore) UpsertAddress(ctx context.Context, a *projection.Address) error {
	_, err := s.db.ExecContext(ctx, `
		insert into addresses(user_id, street, city, postal_code, country, last_event_id, updated_at)
		values ($1, $2, $3, $4, $5, $6, now())
		on conflict (user_id) do update set
			street = excluded.street,
			city = excluded.city,
			postal_code = excluded.postal_code,
			country = excluded.country,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, a.UserID, a.Street, a.City, a.PostalCode, a.Country, a.LastEventID)
	return err
}

func (s contactStore) FindAddress(ctx context.Context, userID string) (*projection.Address, error) {
	var a projection.Address
	err := s.db.QueryRowContext(ctx, `
		select user_id, street, city, postal_code, country, last_event_id, updated_at
		from addresses where user_id = $1
	`, userID).Scan(&a.UserID, &a.Street, &a.City, &a.PostalCode, &a.Country, &a.LastEventID, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s contactStore) UpsertPhone(ctx context.Context, p *projection.Phone) error {
	_, err := s.db.ExecContext(ctx, `
		insert into phones(user_id, number, verified, last_event_id, updated_at)
		values ($1, $2, $3, $4, now())
		on conflict (user_id, number) do update set
			verified = excluded.verified,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, p.UserID, p.Number, p.Verified, p.LastEventID)
	return err
}

func (s contactStore) RemovePhone(ctx context.Context, userID, number string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from phones where user_id = $1 and number = $2`, userID, number)
	return err
}

func (s contactStore) ListPhones(ctx context.Context, userID string) ([]*projection.Phone, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, number, verified, last_event_id, updated_at
		from phones where user_id = $1 order by number asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Phone
	for rows.Next() {
		var p projection.Phone
		if err := rows.Scan(&p.UserID, &p.Number, &p.Verified, &p.LastEventID, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s contactStore) UpsertEmail(ctx context.Context, e *projection.Email) error {
	_, err := s.db.ExecContext(ctx, `
		insert into emails(user_id, address, verified, last_event_id, updated_at)
		values ($1, $2, $3, $4, now())
		on conflict (user_id, address) do update set
			verified = excluded.verified,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, e.UserID, e.Address, e.Verified, e.LastEventID)
	return err
}

func (s contactStore) RemoveEmail(ctx context.Context, userID, address string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from emails where user_id = $1 and address = $2`, userID, address)
	return err
}

func (s contactStore) ListEmails(ctx context.Context, userID string) ([]*projection.Email, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, address, verified, last_event_id, updated_at
		from emails where user_id = $1 order by address asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Email
	for rows.Next() {
		var e projection.Email
		if err := rows.Scan(&e.UserID, &e.Address, &e.Verified, &e.LastEventID, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s contactStore) UpsertPref(ctx context.Context, p *projection.NotificationPref) error {
	_, err := s.db.ExecContext(ctx, `
		insert into notification_prefs(user_id, channel, target, enabled, last_event_id, updated_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (user_id, channel, target) do update set
			enabled = excluded.enabled,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, p.UserID, p.Channel, p.Target, p.Enabled, p.LastEventID)
	return err
}

func (s contactStore) ListPrefs(ctx context.Context, userID string) ([]*projection.NotificationPref, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, channel, target, enabled, last_event_id, updated_at
		from notification_prefs where user_id = $1 order by channel asc, target asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.NotificationPref
	for rows.Next() {
		var p projection.NotificationPref
		if err := rows.Scan(&p.UserID, &p.Channel, &p.Target, &p.Enabled, &p.LastEventID, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s contactStore) DisablePrefs(ctx context.Context, userID, channel, target, eventID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update notification_prefs set enabled = false, last_event_id = $4, updated_at = now()
		where user_id = $1 and channel = $2 and target = $3 and enabled
	`, userID, channel, target, eventID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
