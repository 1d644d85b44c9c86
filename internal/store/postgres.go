package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/prensa-labs/newsgraph/internal/db"
	"github.com/prensa-labs/newsgraph/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"find_similar_entity": `SELECT id FROM entities WHERE lower(name) = lower($1) AND type = $2 ORDER BY last_seen DESC LIMIT 1`,
	"read_daily_trends":   `SELECT trend_date, hot_topics, hot_entities, active_threads FROM daily_trends WHERE trend_date = $1`,
	"record_error":        `INSERT INTO processing_errors (id, unit_id, last_phase, partial_payload, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wires an existing pool; used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
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
	triage       JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_fragments (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	fragment_id     TEXT NOT NULL,
	sequence        INTEGER NOT NULL,
	total_fragments INTEGER NOT NULL,
	ingested_at     TEXT NOT NULL,
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, fragment_id)
);

CREATE TABLE IF NOT EXISTS entities (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT,
	first_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_entities_name_type ON entities (lower(name), type);

CREATE TABLE IF NOT EXISTS unit_entities (
	unit_id   TEXT NOT NULL,
	entity_id BIGINT NOT NULL REFERENCES entities(id),
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
	is_future_event   BOOLEAN NOT NULL DEFAULT false,
	importance        INTEGER NOT NULL,
	system_importance INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (unit_id, temp_id)
);

CREATE TABLE IF NOT EXISTS quotes (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	text        TEXT NOT NULL,
	speaker     TEXT,
	entity_refs JSONB,
	fact_refs   JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS figures (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	description TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT,
	entity_refs JSONB,
	fact_refs   JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relationships (
	id           TEXT PRIMARY KEY,
	unit_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	from_temp_id INTEGER NOT NULL,
	to_temp_id   INTEGER NOT NULL,
	type         TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processing_errors (
	id              TEXT PRIMARY KEY,
	unit_id         TEXT NOT NULL,
	last_phase      TEXT,
	partial_payload JSONB NOT NULL,
	reason          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_trends (
	trend_date     DATE PRIMARY KEY,
	hot_topics     JSONB,
	hot_entities   JSONB,
	active_threads JSONB,
	computed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_fragments_document ON document_fragments(document_id);
CREATE INDEX IF NOT EXISTS idx_facts_unit_id ON facts(unit_id);
CREATE INDEX IF NOT EXISTS idx_quotes_unit_id ON quotes(unit_id);
CREATE INDEX IF NOT EXISTS idx_figures_unit_id ON figures(unit_id);
CREATE INDEX IF NOT EXISTS idx_relationships_unit_id ON relationships(unit_id);
CREATE INDEX IF NOT EXISTS idx_processing_errors_unit_id ON processing_errors(unit_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertArticle(ctx context.Context, st *model.PipelineState, status model.OutcomeStatus) error {
	art := st.Unit.Article
	if art == nil {
		return eris.New("postgres: unit carries no article payload")
	}

	decision := ""
	var triageJSON []byte
	if st.Triage != nil {
		decision = st.Triage.Decision
		var err error
		triageJSON, err = json.Marshal(st.Triage)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal triage")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPg(err, "postgres: begin insert article")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO articles (id, outlet, country, outlet_type, headline, published_at, url, author, status, decision, triage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		st.Unit.ID, art.Outlet, art.Country, art.OutletType, art.Headline,
		art.PublishedAt, art.URL, art.Author, string(status), decision,
		triageJSON, time.Now().UTC(),
	)
	if err != nil {
		return classifyPg(err, "postgres: insert article")
	}

	if err := insertElements(ctx, tx, st); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(err, "postgres: commit insert article")
	}
	return nil
}

func (s *PostgresStore) InsertFragment(ctx context.Context, st *model.PipelineState) error {
	frag := st.Unit.Fragment
	if frag == nil {
		return eris.New("postgres: unit carries no fragment payload")
	}

	var metaJSON []byte
	if len(frag.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(frag.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fragment metadata")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPg(err, "postgres: begin insert fragment")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO document_fragments (id, document_id, fragment_id, sequence, total_fragments, ingested_at, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.Unit.ID, frag.DocumentID, frag.FragmentID, frag.Sequence,
		frag.TotalFragments, frag.IngestedAt, metaJSON, time.Now().UTC(),
	)
	if err != nil {
		return classifyPg(err, "postgres: insert fragment")
	}

	if err := insertElements(ctx, tx, st); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(err, "postgres: commit insert fragment")
	}
	return nil
}

// insertElements persists the extracted structure shared by both unit kinds
// inside the caller's transaction, so a failure in any element rolls back the
// whole unit.
func insertElements(ctx context.Context, tx pgx.Tx, st *model.PipelineState) error {
	unitID := st.Unit.ID

	for i := range st.ProcessedEntities {
		ent := &st.ProcessedEntities[i]

		var entityID int64
		if ent.StoreID != nil {
			entityID = *ent.StoreID
			if _, err := tx.Exec(ctx,
				`UPDATE entities SET last_seen = now() WHERE id = $1`,
				entityID,
			); err != nil {
				return classifyPg(err, "postgres: touch entity")
			}
		} else {
			err := tx.QueryRow(ctx,
				`INSERT INTO entities (name, type, description)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (lower(name), type) DO UPDATE
				   SET last_seen = now(),
				       description = COALESCE(NULLIF(EXCLUDED.description, ''), entities.description)
				 RETURNING id`,
				ent.Name, ent.Type, ent.Description,
			).Scan(&entityID)
			if err != nil {
				return classifyPg(err, "postgres: upsert entity")
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO unit_entities (unit_id, entity_id, temp_id) VALUES ($1, $2, $3)`,
			unitID, entityID, ent.TempID,
		); err != nil {
			return classifyPg(err, "postgres: link entity")
		}
	}

	for i := range st.ProcessedFacts {
		f := &st.ProcessedFacts[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO facts (id, unit_id, temp_id, description, type, country, date_start, date_end, is_future_event, importance, system_importance)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New().String(), unitID, f.TempID, f.Description, f.Type,
			f.Country, f.DateStart, f.DateEnd, f.IsFutureEvent,
			f.Importance, f.SystemImportance,
		); err != nil {
			return classifyPg(err, "postgres: insert fact")
		}
	}

	for i := range st.Quotes {
		q := &st.Quotes[i]
		entityRefs, factRefs, err := marshalRefs(q.EntityRefs, q.FactRefs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO quotes (id, unit_id, text, speaker, entity_refs, fact_refs)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), unitID, q.Text, q.Speaker, entityRefs, factRefs,
		); err != nil {
			return classifyPg(err, "postgres: insert quote")
		}
	}

	for i := range st.Figures {
		fig := &st.Figures[i]
		entityRefs, factRefs, err := marshalRefs(fig.EntityRefs, fig.FactRefs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO figures (id, unit_id, description, value, unit, entity_refs, fact_refs)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), unitID, fig.Description, fig.Value, fig.Unit,
			entityRefs, factRefs,
		); err != nil {
			return classifyPg(err, "postgres: insert figure")
		}
	}

	for i := range st.Relationships {
		rel := &st.Relationships[i]
		if _, err := tx.Exec(ctx,
			`INSERT INTO relationships (id, unit_id, kind, from_temp_id, to_temp_id, type)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), unitID, string(rel.Kind), rel.FromTempID,
			rel.ToTempID, rel.Type,
		); err != nil {
			return classifyPg(err, "postgres: insert relationship")
		}
	}

	return nil
}

func marshalRefs(entityRefs, factRefs []int) ([]byte, []byte, error) {
	eJSON, err := json.Marshal(entityRefs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: marshal entity refs")
	}
	fJSON, err := json.Marshal(factRefs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: marshal fact refs")
	}
	return eJSON, fJSON, nil
}

func (s *PostgresStore) FindSimilarEntity(ctx context.Context, name, entityType string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM entities WHERE lower(name) = lower($1) AND type = $2 ORDER BY last_seen DESC LIMIT 1`,
		name, entityType,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, classifyPg(err, "postgres: find similar entity")
	}
	return id, true, nil
}

func (s *PostgresStore) ReadDailyTrends(ctx context.Context, date time.Time) (*model.DailyTrends, error) {
	var trendDate time.Time
	var topicsJSON, entitiesJSON, threadsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT trend_date, hot_topics, hot_entities, active_threads FROM daily_trends WHERE trend_date = $1`,
		date.UTC().Truncate(24*time.Hour),
	).Scan(&trendDate, &topicsJSON, &entitiesJSON, &threadsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPg(err, "postgres: read daily trends")
	}

	trends := &model.DailyTrends{Date: trendDate.Format("2006-01-02")}
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{topicsJSON, &trends.HotTopics},
		{entitiesJSON, &trends.HotEntities},
		{threadsJSON, &trends.ActiveThreads},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal trends")
		}
	}
	return trends, nil
}

func (s *PostgresStore) RecordError(ctx context.Context, rec *model.PersistentError) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_errors (id, unit_id, last_phase, partial_payload, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UnitID, string(rec.LastPhase), []byte(rec.PartialPayload),
		rec.Reason, rec.Timestamp,
	)
	return classifyPg(err, "postgres: record error")
}
