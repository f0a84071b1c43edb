package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

func insertIdentity(tx *sqlx.Tx, identity *domain.TrackIdentity) error {
	query := `INSERT INTO track_identities (track_id, provider, provider_track_id, provider_url, fingerprint, created_at)
		VALUES (:track_id, :provider, :provider_track_id, :provider_url, :fingerprint, :created_at)
		RETURNING id`
	rows, err := tx.NamedQuery(query, identity)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&identity.ID)
	}
	return rows.Err()
}

// AddIdentity attaches another provider reference to an existing track.
// The (provider, provider_track_id) pair is globally unique.
func (db *DB) AddIdentity(identity *domain.TrackIdentity) error {
	identity.CreatedAt = time.Now().UTC()
	return db.inTx(func(tx *sqlx.Tx) error {
		return insertIdentity(tx, identity)
	})
}

func (db *DB) ListIdentities(trackID int64) ([]*domain.TrackIdentity, error) {
	var identities []*domain.TrackIdentity
	err := db.Select(&identities,
		`SELECT * FROM track_identities WHERE track_id = ? ORDER BY id ASC`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

func (db *DB) GetTrackByProviderID(provider domain.SourceProvider, providerTrackID string) (*domain.Track, error) {
	var track domain.Track
	err := db.Get(&track,
		`SELECT t.* FROM tracks t
		 JOIN track_identities i ON i.track_id = t.id
		 WHERE i.provider = ? AND i.provider_track_id = ?`,
		provider, providerTrackID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get track by provider id")
	}
	return &track, nil
}
