package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaScript string

type SqliteBackend struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// eventRow is the events table layout. List columns are stored as JSON text.
type eventRow struct {
	ID           string    `db:"id"`
	ManuscriptID string    `db:"manuscript_id"`
	Description  string    `db:"description"`
	EventType    string    `db:"event_type"`
	OrderIndex   int       `db:"order_index"`
	Timestamp    string    `db:"timestamp"`
	LocationID   string    `db:"location_id"`
	CharacterIDs string    `db:"character_ids"`
	Metadata     string    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type inconsistencyRow struct {
	ID               string     `db:"id"`
	ManuscriptID     string     `db:"manuscript_id"`
	DedupKey         string     `db:"dedup_key"`
	Type             string     `db:"inconsistency_type"`
	Description      string     `db:"description"`
	Severity         string     `db:"severity"`
	AffectedEventIDs string     `db:"affected_event_ids"`
	ExtraData        string     `db:"extra_data"`
	Status           string     `db:"status"`
	CreatedAt        time.Time  `db:"created_at"`
	ResolvedAt       *time.Time `db:"resolved_at"`
}

// NewSqliteBackend creates a new SQLite backend with the specified database path and WAL mode setting
func NewSqliteBackend(dbPath string, walMode bool) (*SqliteBackend, error) {
	logger := logging.GetGlobalLogger("storage.sqlite")

	// Configure connection string with appropriate settings
	connStr := "file:" + dbPath + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=true"
	if walMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	} else {
		connStr += "&_synchronous=FULL"
	}

	db, err := sqlx.Connect("sqlite3", connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageConnection, "failed to open database")
	}
	// A single writer connection avoids SQLITE_BUSY between concurrent transactions
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(time.Hour)

	if _, err := db.Exec(schemaScript); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageInitialization, "failed to initialize schema")
	}

	logger.Info("Opened sqlite backend",
		slog.String("path", dbPath),
		slog.Bool("wal_mode", walMode),
	)
	return &SqliteBackend{db: db, logger: logger}, nil
}

// UpsertEntities inserts or replaces entities; created_at is preserved on update
func (s *SqliteBackend) UpsertEntities(ctx context.Context, entities []timeline.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	for _, entity := range entities {
		if strings.TrimSpace(entity.ID) == "" {
			return errors.New(errors.ErrCodeValidationRequired, "Entity ID cannot be empty or whitespace-only")
		}
		if entity.Kind != timeline.EntityKindCharacter && entity.Kind != timeline.EntityKindLocation {
			return errors.Newf(errors.ErrCodeValidationType, "Entity '%s' has unsupported kind '%s'", entity.ID, entity.Kind)
		}
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, entity := range entities {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO entities (id, name, kind, world_id, created_at, updated_at)
				VALUES (:id, :name, :kind, :world_id, :created_at, :updated_at)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					kind = excluded.kind,
					world_id = excluded.world_id,
					updated_at = excluded.updated_at
			`, entity)
			if err != nil {
				return fmt.Errorf("failed to upsert entity %s: %w", entity.ID, err)
			}
		}
		return nil
	})
}

// GetEntity retrieves a single entity by ID
func (s *SqliteBackend) GetEntity(ctx context.Context, id string) (*timeline.Entity, error) {
	var entity timeline.Entity
	err := s.db.GetContext(ctx, &entity, `SELECT id, name, kind, world_id, created_at, updated_at FROM entities WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &entity, nil
}

// UpsertManuscript inserts or replaces a manuscript identity record
func (s *SqliteBackend) UpsertManuscript(ctx context.Context, manuscript timeline.Manuscript) error {
	if strings.TrimSpace(manuscript.ID) == "" {
		return errors.ValidationRequired("manuscript id")
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO manuscripts (id, world_id, title, created_at)
		VALUES (:id, :world_id, :title, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			world_id = excluded.world_id,
			title = excluded.title
	`, manuscript)
	if err != nil {
		return fmt.Errorf("failed to upsert manuscript %s: %w", manuscript.ID, err)
	}
	return nil
}

// GetManuscript retrieves a manuscript by ID
func (s *SqliteBackend) GetManuscript(ctx context.Context, id string) (*timeline.Manuscript, error) {
	var manuscript timeline.Manuscript
	err := s.db.GetContext(ctx, &manuscript, `SELECT id, world_id, title, created_at FROM manuscripts WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get manuscript: %w", err)
	}
	return &manuscript, nil
}

// ListManuscripts returns the manuscripts of a world ordered by creation time
func (s *SqliteBackend) ListManuscripts(ctx context.Context, worldID string) ([]timeline.Manuscript, error) {
	var manuscripts []timeline.Manuscript
	err := s.db.SelectContext(ctx, &manuscripts, `
		SELECT id, world_id, title, created_at FROM manuscripts
		WHERE world_id = ?
		ORDER BY created_at, id
	`, worldID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manuscripts: %w", err)
	}
	return manuscripts, nil
}

// DeleteManuscript removes a manuscript together with everything scoped to it
func (s *SqliteBackend) DeleteManuscript(ctx context.Context, id string) error {
	timer := logging.StartTimer(ctx, s.logger, "deleteManuscript")
	defer timer.End()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM manuscripts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.ErrCodeManuscriptNotFound, "Manuscript", id)
		}
		for _, stmt := range []string{
			`DELETE FROM events WHERE manuscript_id = ?`,
			`DELETE FROM character_locations WHERE manuscript_id = ?`,
			`DELETE FROM location_distances WHERE scope_id = ?`,
			`DELETE FROM travel_profiles WHERE manuscript_id = ?`,
			`DELETE FROM validation_policies WHERE manuscript_id = ?`,
			`DELETE FROM inconsistencies WHERE manuscript_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateEvent inserts an event and its derived character locations atomically
func (s *SqliteBackend) CreateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	timer := logging.StartTimer(ctx, s.logger, "createEvent")
	defer timer.End()

	if strings.TrimSpace(event.ID) == "" {
		return errors.ValidationRequired("event id")
	}
	if strings.TrimSpace(event.ManuscriptID) == "" {
		return errors.ValidationRequired("manuscript id")
	}
	row, err := toEventRow(event)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO events (id, manuscript_id, description, event_type, order_index, timestamp,
				location_id, character_ids, metadata, created_at, updated_at)
			VALUES (:id, :manuscript_id, :description, :event_type, :order_index, :timestamp,
				:location_id, :character_ids, :metadata, :created_at, :updated_at)
		`, row)
		if err != nil {
			return s.mapConstraint(err, event)
		}
		return insertLocations(ctx, tx, event)
	})
}

// UpdateEvent replaces an existing event, keeping its manuscript and creation time
func (s *SqliteBackend) UpdateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	timer := logging.StartTimer(ctx, s.logger, "updateEvent")
	defer timer.End()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing eventRow
		if err := tx.GetContext(ctx, &existing, `SELECT * FROM events WHERE id = ?`, event.ID); err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				return errors.NotFound(errors.ErrCodeEventNotFound, "Event", event.ID)
			}
			return err
		}
		event.ManuscriptID = existing.ManuscriptID
		event.CreatedAt = existing.CreatedAt

		row, err := toEventRow(event)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			UPDATE events SET description = :description, event_type = :event_type,
				order_index = :order_index, timestamp = :timestamp, location_id = :location_id,
				character_ids = :character_ids, metadata = :metadata, updated_at = :updated_at
			WHERE id = :id
		`, row)
		if err != nil {
			return s.mapConstraint(err, event)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM character_locations WHERE event_id = ?`, event.ID); err != nil {
			return err
		}
		return insertLocations(ctx, tx, event)
	})
}

// DeleteEvent removes an event and its derived character locations
func (s *SqliteBackend) DeleteEvent(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.ErrCodeEventNotFound, "Event", id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM character_locations WHERE event_id = ?`, id)
		return err
	})
}

// GetEvent retrieves an event by ID
func (s *SqliteBackend) GetEvent(ctx context.Context, id string) (*timeline.TimelineEvent, error) {
	var row eventRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE id = ?`, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	event, err := row.toEvent()
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns a manuscript's events in story order
func (s *SqliteBackend) ListEvents(ctx context.Context, manuscriptID string) ([]timeline.TimelineEvent, error) {
	timer := logging.StartTimer(ctx, s.logger, "listEvents")
	defer timer.End()

	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM events
		WHERE manuscript_id = ?
		ORDER BY order_index, created_at, id
	`, manuscriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]timeline.TimelineEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// LocationAt returns the latest located appearance of a character at or before orderIndex
func (s *SqliteBackend) LocationAt(ctx context.Context, manuscriptID, characterID string, orderIndex int) (*timeline.CharacterLocation, error) {
	var loc timeline.CharacterLocation
	err := s.db.GetContext(ctx, &loc, `
		SELECT manuscript_id, character_id, event_id, location_id, order_index
		FROM character_locations
		WHERE manuscript_id = ? AND character_id = ? AND order_index <= ?
		ORDER BY order_index DESC
		LIMIT 1
	`, manuscriptID, characterID, orderIndex)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get character location: %w", err)
	}
	return &loc, nil
}

// SetDistance stores an undirected distance edge under its canonical key
func (s *SqliteBackend) SetDistance(ctx context.Context, distance timeline.LocationDistance) error {
	distance.LocationA, distance.LocationB = CanonicalPair(distance.LocationA, distance.LocationB)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO location_distances (scope_id, location_a, location_b, distance)
		VALUES (:scope_id, :location_a, :location_b, :distance)
		ON CONFLICT(scope_id, location_a, location_b) DO UPDATE SET distance = excluded.distance
	`, distance)
	if err != nil {
		return fmt.Errorf("failed to set distance: %w", err)
	}
	return nil
}

// GetDistance looks up a distance edge in one scope
func (s *SqliteBackend) GetDistance(ctx context.Context, scopeID, locationA, locationB string) (*timeline.LocationDistance, error) {
	a, b := CanonicalPair(locationA, locationB)
	var distance timeline.LocationDistance
	err := s.db.GetContext(ctx, &distance, `
		SELECT scope_id, location_a, location_b, distance FROM location_distances
		WHERE scope_id = ? AND location_a = ? AND location_b = ?
	`, scopeID, a, b)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get distance: %w", err)
	}
	return &distance, nil
}

// ListProfiles returns all travel profiles of a manuscript
func (s *SqliteBackend) ListProfiles(ctx context.Context, manuscriptID string) ([]timeline.TravelSpeedProfile, error) {
	var profiles []timeline.TravelSpeedProfile
	err := s.db.SelectContext(ctx, &profiles, `
		SELECT * FROM travel_profiles WHERE manuscript_id = ? ORDER BY subject, transport_mode
	`, manuscriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// CreateProfileIfAbsent stores the profile unless one exists for the same
// (manuscript, subject, mode) and returns whichever profile is stored
func (s *SqliteBackend) CreateProfileIfAbsent(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	return s.writeProfile(ctx, profile, `ON CONFLICT(manuscript_id, subject, transport_mode) DO NOTHING`)
}

// UpsertProfile creates or updates a profile. An existing profile keeps its ID.
func (s *SqliteBackend) UpsertProfile(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	return s.writeProfile(ctx, profile, `ON CONFLICT(manuscript_id, subject, transport_mode) DO UPDATE SET
		speed = excluded.speed,
		updated_at = excluded.updated_at`)
}

func (s *SqliteBackend) writeProfile(ctx context.Context, profile timeline.TravelSpeedProfile, onConflict string) (*timeline.TravelSpeedProfile, error) {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	var stored timeline.TravelSpeedProfile
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO travel_profiles (id, manuscript_id, subject, transport_mode, speed, created_at, updated_at)
			VALUES (:id, :manuscript_id, :subject, :transport_mode, :speed, :created_at, :updated_at)
		`+onConflict, profile)
		if err != nil {
			return err
		}
		return tx.GetContext(ctx, &stored, `
			SELECT * FROM travel_profiles WHERE manuscript_id = ? AND subject = ? AND transport_mode = ?
		`, profile.ManuscriptID, profile.Subject, profile.TransportMode)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetPolicy returns the manuscript's validation policy overrides
func (s *SqliteBackend) GetPolicy(ctx context.Context, manuscriptID string) (*timeline.ValidationPolicy, error) {
	var policy timeline.ValidationPolicy
	err := s.db.GetContext(ctx, &policy, `SELECT * FROM validation_policies WHERE manuscript_id = ?`, manuscriptID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &policy, nil
}

// SetPolicy replaces the manuscript's validation policy overrides
func (s *SqliteBackend) SetPolicy(ctx context.Context, policy timeline.ValidationPolicy) error {
	if strings.TrimSpace(policy.ManuscriptID) == "" {
		return errors.ValidationRequired("manuscript id")
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO validation_policies (manuscript_id, hours_per_order_gap, tolerance, transition_threshold)
		VALUES (:manuscript_id, :hours_per_order_gap, :tolerance, :transition_threshold)
		ON CONFLICT(manuscript_id) DO UPDATE SET
			hours_per_order_gap = excluded.hours_per_order_gap,
			tolerance = excluded.tolerance,
			transition_threshold = excluded.transition_threshold
	`, policy)
	if err != nil {
		return fmt.Errorf("failed to set policy: %w", err)
	}
	return nil
}

// ReconcileInconsistencies diffs findings against the stored rows in one transaction
func (s *SqliteBackend) ReconcileInconsistencies(ctx context.Context, manuscriptID string, findings []timeline.Finding, now time.Time) (timeline.ReconcileResult, error) {
	timer := logging.StartTimer(ctx, s.logger, "reconcileInconsistencies")
	defer timer.End()

	var result timeline.ReconcileResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var rows []inconsistencyRow
		if err := tx.SelectContext(ctx, &rows, `SELECT * FROM inconsistencies WHERE manuscript_id = ?`, manuscriptID); err != nil {
			return err
		}
		stored := make(map[string]timeline.Inconsistency, len(rows))
		for _, row := range rows {
			item, err := row.toInconsistency()
			if err != nil {
				return err
			}
			stored[item.Key()] = item
		}

		plan := planReconcile(manuscriptID, stored, findings, now)
		for _, item := range plan.upserts {
			row, err := toInconsistencyRow(item)
			if err != nil {
				return err
			}
			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO inconsistencies (id, manuscript_id, dedup_key, inconsistency_type, description,
					severity, affected_event_ids, extra_data, status, created_at, resolved_at)
				VALUES (:id, :manuscript_id, :dedup_key, :inconsistency_type, :description,
					:severity, :affected_event_ids, :extra_data, :status, :created_at, :resolved_at)
				ON CONFLICT(manuscript_id, dedup_key) DO UPDATE SET
					description = excluded.description,
					severity = excluded.severity,
					extra_data = excluded.extra_data,
					status = excluded.status,
					resolved_at = excluded.resolved_at
			`, row)
			if err != nil {
				return fmt.Errorf("failed to write inconsistency %s: %w", item.ID, err)
			}
		}
		result = plan.result
		return nil
	})
	return result, err
}

// ListInconsistencies returns a manuscript's findings ordered by dedup key
func (s *SqliteBackend) ListInconsistencies(ctx context.Context, manuscriptID string, includeResolved bool) ([]timeline.Inconsistency, error) {
	query := `SELECT * FROM inconsistencies WHERE manuscript_id = ?`
	args := []interface{}{manuscriptID}
	if !includeResolved {
		query += ` AND status = ?`
		args = append(args, string(timeline.StatusOpen))
	}
	query += ` ORDER BY dedup_key`

	var rows []inconsistencyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list inconsistencies: %w", err)
	}

	result := make([]timeline.Inconsistency, 0, len(rows))
	for _, row := range rows {
		item, err := row.toInconsistency()
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

// Close closes the database connection
func (s *SqliteBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// inTx runs fn in a transaction. AppErrors pass through unchanged; anything
// else is reported as a transaction failure.
func (s *SqliteBackend) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageTransaction, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if errors.GetCode(err) != errors.ErrCodeInternal {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeStorageTransaction, "transaction failed")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageTransaction, "failed to commit transaction")
	}
	return nil
}

// mapConstraint turns the (manuscript_id, order_index) unique violation into a validation error
func (s *SqliteBackend) mapConstraint(err error, event timeline.TimelineEvent) error {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return duplicateOrderIndex(event)
		case sqlite3.ErrConstraintPrimaryKey:
			return errors.Newf(errors.ErrCodeEntityAlreadyExists, "Event with ID '%s' already exists", event.ID)
		}
	}
	return err
}

func insertLocations(ctx context.Context, tx *sqlx.Tx, event timeline.TimelineEvent) error {
	for _, loc := range deriveLocations(event) {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO character_locations (manuscript_id, character_id, event_id, location_id, order_index)
			VALUES (:manuscript_id, :character_id, :event_id, :location_id, :order_index)
		`, loc)
		if err != nil {
			return fmt.Errorf("failed to insert character location: %w", err)
		}
	}
	return nil
}

func toEventRow(event timeline.TimelineEvent) (eventRow, error) {
	characterIDs := event.CharacterIDs
	if characterIDs == nil {
		characterIDs = []string{}
	}
	ids, err := json.Marshal(characterIDs)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to marshal character ids: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return eventRow{
		ID:           event.ID,
		ManuscriptID: event.ManuscriptID,
		Description:  event.Description,
		EventType:    string(event.EventType),
		OrderIndex:   event.OrderIndex,
		Timestamp:    event.Timestamp,
		LocationID:   event.LocationID,
		CharacterIDs: string(ids),
		Metadata:     string(metadata),
		CreatedAt:    event.CreatedAt,
		UpdatedAt:    event.UpdatedAt,
	}, nil
}

func (r eventRow) toEvent() (timeline.TimelineEvent, error) {
	event := timeline.TimelineEvent{
		ID:           r.ID,
		ManuscriptID: r.ManuscriptID,
		Description:  r.Description,
		EventType:    timeline.EventType(r.EventType),
		OrderIndex:   r.OrderIndex,
		Timestamp:    r.Timestamp,
		LocationID:   r.LocationID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.CharacterIDs), &event.CharacterIDs); err != nil {
		return event, fmt.Errorf("failed to unmarshal character ids: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &event.Metadata); err != nil {
		return event, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return event, nil
}

func toInconsistencyRow(item timeline.Inconsistency) (inconsistencyRow, error) {
	ids, err := json.Marshal(timeline.SortedIDs(item.AffectedEventIDs))
	if err != nil {
		return inconsistencyRow{}, fmt.Errorf("failed to marshal affected ids: %w", err)
	}
	extra, err := json.Marshal(item.ExtraData)
	if err != nil {
		return inconsistencyRow{}, fmt.Errorf("failed to marshal extra data: %w", err)
	}
	return inconsistencyRow{
		ID:               item.ID,
		ManuscriptID:     item.ManuscriptID,
		DedupKey:         item.Key(),
		Type:             string(item.Type),
		Description:      item.Description,
		Severity:         string(item.Severity),
		AffectedEventIDs: string(ids),
		ExtraData:        string(extra),
		Status:           string(item.Status),
		CreatedAt:        item.CreatedAt,
		ResolvedAt:       item.ResolvedAt,
	}, nil
}

func (r inconsistencyRow) toInconsistency() (timeline.Inconsistency, error) {
	item := timeline.Inconsistency{
		ID:           r.ID,
		ManuscriptID: r.ManuscriptID,
		Type:         timeline.InconsistencyType(r.Type),
		Description:  r.Description,
		Severity:     timeline.Severity(r.Severity),
		Status:       timeline.InconsistencyStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		ResolvedAt:   r.ResolvedAt,
	}
	if err := json.Unmarshal([]byte(r.AffectedEventIDs), &item.AffectedEventIDs); err != nil {
		return item, fmt.Errorf("failed to unmarshal affected ids: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ExtraData), &item.ExtraData); err != nil {
		return item, fmt.Errorf("failed to unmarshal extra data: %w", err)
	}
	return item, nil
}
