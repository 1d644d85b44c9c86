package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and single-node deployments; production runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	outlet       TEXT NOT NULL,
	country      TEXT NOT NULL,
	outlet_type  TEXT NOT NULL,
	headline     TEXT NOT NULL,
	published_at TEXT NOT NULL,
	url          TEXT,
	author       TEXT,
	status       TEXT NOT NULL,
	decision     TEXT NOT NULL,
	triage       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS document_fragments (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	fragment_id     TEXT NOT NULL,
	sequence        INTEGER NOT NULL,
	total_fragments INTEGER NOT NULL,
	ingested_at     TEXT NOT NULL,
	metadata        TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (document_id, fragment_id)
);

CREATE TABLE IF NOT EXISTS entities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT,
	first_seen  DATETIME NOT NULL DEFAULT (datetime('now')),
	last_seen   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_entities_name_type ON entities (lower(name), type);

CREATE TABLE IF NOT EXISTS unit_entities (
	unit_id   TEXT NOT NULL,
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	temp_id   INTEGER NOT NULL,
	PRIMARY KEY (unit_id, temp_id)
);

CREATE TABLE IF NOT EXISTS facts (
	id                TEXT PRIMARY KEY,
	unit_id           TEXT NOT NULL,
	temp_id           INTEGER NOT NULL,
	description       TEXT NOT NULL,
	type              TEXT NOT NULL,
	country           TEXT,
	date_start        TEXT,
	date_end          TEXT,
	is_future_event   INTEGER NOT NULL DEFAULT 0,
	importance        INTEGER NOT NULL,
	system_importance INTEGER NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (unit_id, temp_id)
);

CREATE TABLE IF NOT EXISTS quotes (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	text        TEXT NOT NULL,
	speaker     TEXT,
	entity_refs TEXT,
	fact_refs   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS figures (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	description TEXT NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT,
	entity_refs TEXT,
	fact_refs   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS relationships (
	id           TEXT PRIMARY KEY,
	unit_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	from_temp_id INTEGER NOT NULL,
	to_temp_id   INTEGER NOT NULL,
	type         TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processing_errors (
	id              TEXT PRIMARY KEY,
	unit_id         TEXT NOT NULL,
	last_phase      TEXT,
	partial_payload TEXT NOT NULL,
	reason          TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS daily_trends (
	trend_date     TEXT PRIMARY KEY,
	hot_topics     TEXT,
	hot_entities   TEXT,
	active_threads TEXT,
	computed_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_fragments_document ON document_fragments(document_id);
CREATE INDEX IF NOT EXISTS idx_facts_unit_id ON facts(unit_id);
CREATE INDEX IF NOT EXISTS idx_quotes_unit_id ON quotes(unit_id);
CREATE INDEX IF NOT EXISTS idx_figures_unit_id ON figures(unit_id);
CREATE INDEX IF NOT EXISTS idx_relationships_unit_id ON relationships(unit_id);
CREATE INDEX IF NOT EXISTS idx_processing_errors_unit_id ON processing_errors(unit_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertArticle(ctx context.Context, st *model.PipelineState, status model.OutcomeStatus) error {
	art := st.Unit.Article
	if art == nil {
		return eris.New("sqlite: unit carries no article payload")
	}

	decision := ""
	var triageJSON []byte
	if st.Triage != nil {
		decision = st.Triage.Decision
		var err error
		triageJSON, err = json.Marshal(st.Triage)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal triage")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite(err, "sqlite: begin insert article")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (id, outlet, country, outlet_type, headline, published_at, url, author, status, decision, triage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Unit.ID, art.Outlet, art.Country, art.OutletType, art.Headline,
		art.PublishedAt, art.URL, art.Author, string(status), decision,
		string(triageJSON), time.Now().UTC(),
	)
	if err != nil {
		return classifySQLite(err, "sqlite: insert article")
	}

	if err := s.insertElements(ctx, tx, st); err != nil {
		return err
	}
	return classifySQLite(tx.Commit(), "sqlite: commit insert article")
}

func (s *SQLiteStore) InsertFragment(ctx context.Context, st *model.PipelineState) error {
	frag := st.Unit.Fragment
	if frag == nil {
		return eris.New("sqlite: unit carries no fragment payload")
	}

	var metaJSON []byte
	if len(frag.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(frag.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fragment metadata")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite(err, "sqlite: begin insert fragment")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_fragments (id, document_id, fragment_id, sequence, total_fragments, ingested_at, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Unit.ID, frag.DocumentID, frag.FragmentID, frag.Sequence,
		frag.TotalFragments, frag.IngestedAt, string(metaJSON), time.Now().UTC(),
	)
	if err != nil {
		return classifySQLite(err, "sqlite: insert fragment")
	}

	if err := s.insertElements(ctx, tx, st); err != nil {
		return err
	}
	return classifySQLite(tx.Commit(), "sqlite: commit insert fragment")
}

func (s *SQLiteStore) insertElements(ctx context.Context, tx *sql.Tx, st *model.PipelineState) error {
	unitID := st.Unit.ID

	for i := range st.ProcessedEntities {
		ent := &st.ProcessedEntities[i]

		var entityID int64
		if ent.StoreID != nil {
			entityID = *ent.StoreID
			if _, err := tx.ExecContext(ctx,
				`UPDATE entities SET last_seen = datetime('now') WHERE id = ?`,
				entityID,
			); err != nil {
				return classifySQLite(err, "sqlite: touch entity")
			}
		} else {
			err := tx.QueryRowContext(ctx,
				`INSERT INTO entities (name, type, description)
				 VALUES (?, ?, ?)
				 ON CONFLICT (lower(name), type) DO UPDATE
				   SET last_seen = datetime('now')
				 RETURNING id`,
				ent.Name, ent.Type, ent.Description,
			).Scan(&entityID)
			if err != nil {
				return classifySQLite(err, "sqlite: upsert entity")
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unit_entities (unit_id, entity_id, temp_id) VALUES (?, ?, ?)`,
			unitID, entityID, ent.TempID,
		); err != nil {
			return classifySQLite(err, "sqlite: link entity")
		}
	}

	for i := range st.ProcessedFacts {
		f := &st.ProcessedFacts[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO facts (id, unit_id, temp_id, description, type, country, date_start, date_end, is_future_event, importance, system_importance)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), unitID, f.TempID, f.Description, f.Type,
			f.Country, f.DateStart, f.DateEnd, f.IsFutureEvent,
			f.Importance, f.SystemImportance,
		); err != nil {
			return classifySQLite(err, "sqlite: insert fact")
		}
	}

	for i := range st.Quotes {
		q := &st.Quotes[i]
		entityRefs, factRefs, err := marshalRefs(q.EntityRefs, q.FactRefs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quotes (id, unit_id, text, speaker, entity_refs, fact_refs)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), unitID, q.Text, q.Speaker,
			string(entityRefs), string(factRefs),
		); err != nil {
			return classifySQLite(err, "sqlite: insert quote")
		}
	}

	for i := range st.Figures {
		fig := &st.Figures[i]
		entityRefs, factRefs, err := marshalRefs(fig.EntityRefs, fig.FactRefs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO figures (id, unit_id, description, value, unit, entity_refs, fact_refs)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), unitID, fig.Description, fig.Value, fig.Unit,
			string(entityRefs), string(factRefs),
		); err != nil {
			return classifySQLite(err, "sqlite: insert figure")
		}
	}

	for i := range st.Relationships {
		rel := &st.Relationships[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO relationships (id, unit_id, kind, from_temp_id, to_temp_id, type)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), unitID, string(rel.Kind), rel.FromTempID,
			rel.ToTempID, rel.Type,
		); err != nil {
			return classifySQLite(err, "sqlite: insert relationship")
		}
	}

	return nil
}

func (s *SQLiteStore) FindSimilarEntity(ctx context.Context, name, entityType string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE lower(name) = lower(?) AND type = ? ORDER BY last_seen DESC LIMIT 1`,
		name, entityType,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, classifySQLite(err, "sqlite: find similar entity")
	}
	return id, true, nil
}

func (s *SQLiteStore) ReadDailyTrends(ctx context.Context, date time.Time) (*model.DailyTrends, error) {
	day := date.UTC().Format("2006-01-02")

	var topicsJSON, entitiesJSON, threadsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT hot_topics, hot_entities, active_threads FROM daily_trends WHERE trend_date = ?`,
		day,
	).Scan(&topicsJSON, &entitiesJSON, &threadsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifySQLite(err, "sqlite: read daily trends")
	}

	trends := &model.DailyTrends{Date: day}
	for _, pair := range []struct {
		raw sql.NullString
		dst *[]string
	}{
		{topicsJSON, &trends.HotTopics},
		{entitiesJSON, &trends.HotEntities},
		{threadsJSON, &trends.ActiveThreads},
	} {
		if !pair.raw.Valid || pair.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw.String), pair.dst); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trends")
		}
	}
	return trends, nil
}

func (s *SQLiteStore) RecordError(ctx context.Context, rec *model.PersistentError) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_errors (id, unit_id, last_phase, partial_payload, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UnitID, string(rec.LastPhase), string(rec.PartialPayload),
		rec.Reason, rec.Timestamp,
	)
	return classifySQLite(err, "sqlite: record error")
}
