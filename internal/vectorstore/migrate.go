package vectorstore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Embedder is the subset of the embedding provider the migration routine
// depends on (re-embedding every chunk's content with the new model).
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// MigrationRunner executes the §4.6.1 embedding-dimension migration
// routine: probe the new dimension, stage a parallel table, re-embed every
// chunk into it, then atomically swap it into place.
type MigrationRunner struct {
	store        *Store
	newEmbedder  Embedder
	dryRun       bool
	skipCleanup  bool
	progressEach int
}

// NewMigrationRunner builds a runner. progressEach defaults to 10 (report
// every 10 rows, per the spec).
func NewMigrationRunner(store *Store, newEmbedder Embedder, dryRun, skipCleanup bool) *MigrationRunner {
	return &MigrationRunner{store: store, newEmbedder: newEmbedder, dryRun: dryRun, skipCleanup: skipCleanup, progressEach: 10}
}

const migrationTablePrefix = "content_chunks_migration_"

func migrationTableName(dim int) string {
	return fmt.Sprintf("%s%d", migrationTablePrefix, dim)
}

// Plan is the outcome of steps 1-3: whether a migration is actually
// needed, and if so, what it's from/to.
type Plan struct {
	FromDim int
	ToDim   int
	NoOp    bool
}

func buildPlan(fromDim, toDim int) Plan {
	return Plan{FromDim: fromDim, ToDim: toDim, NoOp: fromDim == toDim}
}

// currentDimension inspects content_chunks.embedding's type modifier
// (step 2); if the column is unconstrained (no rows ever written with a
// fixed dimension), it falls back to configuredDefault.
func (r *MigrationRunner) currentDimension(ctx context.Context, configuredDefault int) (int, error) {
	const q = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'content_chunks'::regclass AND attname = 'embedding'`
	var typmod int
	if err := r.store.pool.QueryRow(ctx, q).Scan(&typmod); err != nil {
		return 0, fmt.Errorf("%w: inspecting embedding column: %v", ErrTransport, err)
	}
	if typmod <= 0 {
		return configuredDefault, nil
	}
	return typmod, nil
}

// Run executes the full routine (or, if dryRun, only steps 1-3).
func (r *MigrationRunner) Run(ctx context.Context, configuredDim int) (Plan, error) {
	newVec, err := r.newEmbedder.EmbedSingle(ctx, "dimension probe")
	if err != nil {
		return Plan{}, fmt.Errorf("probing new embedding dimension: %w", err)
	}
	toDim := len(newVec)

	fromDim, err := r.currentDimension(ctx, configuredDim)
	if err != nil {
		return Plan{}, err
	}

	plan := buildPlan(fromDim, toDim)
	if plan.NoOp {
		log.Printf("[Migration] no migration needed: both dimensions are %d", fromDim)
		return plan, nil
	}

	if r.dryRun {
		log.Printf("[Migration] dry run: would migrate content_chunks from dim %d to dim %d", fromDim, toDim)
		return plan, nil
	}

	if err := r.runLive(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

func (r *MigrationRunner) runLive(ctx context.Context, plan Plan) error {
	migTable := migrationTableName(plan.ToDim)

	if err := r.createMigrationTable(ctx, migTable, plan.ToDim); err != nil {
		return fmt.Errorf("creating migration table: %w", err)
	}

	statusID, err := r.recordStatus(ctx, plan, migTable)
	if err != nil {
		return fmt.Errorf("recording migration_status: %w", err)
	}

	if err := r.reembedAll(ctx, migTable); err != nil {
		r.markFailed(ctx, statusID, err)
		return fmt.Errorf("re-embedding chunks: %w", err)
	}

	if err := r.swapTables(ctx, migTable); err != nil {
		r.markFailed(ctx, statusID, err)
		return fmt.Errorf("swapping tables: %w", err)
	}

	if err := r.markCompleted(ctx, statusID); err != nil {
		return fmt.Errorf("marking migration completed: %w", err)
	}

	if !r.skipCleanup {
		if err := r.cleanupLeftovers(ctx, migTable); err != nil {
			log.Printf("[Migration] cleanup warning: %v", err)
		}
	}
	return nil
}

func (r *MigrationRunner) createMigrationTable(ctx context.Context, name string, dim int) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE %s (
			id               SERIAL PRIMARY KEY,
			story_id         INT NOT NULL REFERENCES stories(id),
			content_type     VARCHAR(50) NOT NULL,
			content_subtype  VARCHAR(50),
			title            VARCHAR(255),
			content          TEXT NOT NULL,
			metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding        VECTOR(%d) NOT NULL,
			created_at       TIMESTAMP NOT NULL DEFAULT now(),
			chapter_number   INT,
			scene_number     INT
		)`, name, dim)
	if _, err := r.store.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	for _, idx := range migrationIndexStatements(name) {
		if _, err := r.store.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil
}

// migrationIndexStatements returns the CREATE INDEX statements for a
// staged migration table, named so canonicalIndexRenames can retarget them
// onto content_chunks' canonical names after the swap.
func migrationIndexStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE INDEX %s_story_id ON %s (story_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_content_type ON %s (content_type)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_chapter_scene ON %s (chapter_number, scene_number)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_created_at ON %s (created_at)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_type_subtype ON %s (content_type, content_subtype)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_metadata ON %s USING gin (metadata)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
		fmt.Sprintf(`CREATE INDEX %s_embedding_ivfflat ON %s USING ivfflat (embedding vector_cosine_ops)`, table, table),
	}
}

// canonicalIndexRenames pairs each migration-table index name with the
// canonical name it must carry once swapped into place as content_chunks.
func canonicalIndexRenames(table string) map[string]string {
	return map[string]string{
		table + "_story_id":         "idx_content_chunks_story_id",
		table + "_content_type":     "idx_content_chunks_content_type",
		table + "_chapter_scene":    "idx_content_chunks_chapter_scene",
		table + "_created_at":       "idx_content_chunks_created_at",
		table + "_type_subtype":     "idx_content_chunks_type_subtype",
		table + "_metadata":         "idx_content_chunks_metadata",
		table + "_embedding_hnsw":   "idx_content_chunks_embedding_hnsw",
		table + "_embedding_ivfflat": "idx_content_chunks_embedding_ivfflat",
	}
}

func (r *MigrationRunner) recordStatus(ctx context.Context, plan Plan, migTable string) (int, error) {
	const q = `
		INSERT INTO migration_status (type, from_dim, to_dim, status, migration_table_name)
		VALUES ('embedding_dimension', $1, $2, $3, $4)
		RETURNING id`
	var id int
	err := r.store.pool.QueryRow(ctx, q, plan.FromDim, plan.ToDim, MigrationStatusInProgress, migTable).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return id, nil
}

func (r *MigrationRunner) reembedAll(ctx context.Context, migTable string) error {
	rows, err := r.store.pool.Query(ctx, `
		SELECT id, story_id, content_type, content_subtype, title, content, metadata, chapter_number, scene_number
		FROM content_chunks ORDER BY id`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	chunks, err := scanChunks(rows)
	rows.Close()
	if err != nil {
		return err
	}

	insertStmt := fmt.Sprintf(`
		INSERT INTO %s (story_id, content_type, content_subtype, title, content, metadata, embedding, chapter_number, scene_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9)`, migTable)

	var errs []string
	for i, c := range chunks {
		vec, err := r.newEmbedder.EmbedSingle(ctx, c.Content)
		if err != nil {
			errs = append(errs, fmt.Sprintf("chunk %d: %v", c.ID, err))
			continue
		}
		metadataJSON, err := marshalMetadata(c.Metadata)
		if err != nil {
			errs = append(errs, fmt.Sprintf("chunk %d: %v", c.ID, err))
			continue
		}
		_, err = r.store.pool.Exec(ctx, insertStmt,
			c.StoryID, c.ContentType, c.ContentSubtype, c.Title, c.Content, metadataJSON,
			vectorLiteral(vec), c.ChapterNumber, c.SceneNumber)
		if err != nil {
			errs = append(errs, fmt.Sprintf("chunk %d: %v", c.ID, err))
			continue
		}
		if (i+1)%r.progressEach == 0 {
			log.Printf("[Migration] re-embedded %d/%d chunks", i+1, len(chunks))
		}
	}

	if len(errs) > 0 {
		if r.dryRun {
			log.Printf("[Migration] %d errors during dry-run re-embed, skipping", len(errs))
			return nil
		}
		return fmt.Errorf("%d of %d chunks failed to re-embed: %s", len(errs), len(chunks), strings.Join(errs, "; "))
	}
	return nil
}

func (r *MigrationRunner) swapTables(ctx context.Context, migTable string) error {
	var count int
	if err := r.store.pool.QueryRow(ctx, `SELECT count(*) FROM content_chunks`).Scan(&count); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer tx.Rollback(ctx)

	if count > 0 {
		if _, err := tx.Exec(ctx, `ALTER TABLE content_chunks RENAME TO content_chunks_backup`); err != nil {
			return fmt.Errorf("%w: renaming old table: %v", ErrTransport, err)
		}
	} else {
		if _, err := tx.Exec(ctx, `DROP TABLE content_chunks`); err != nil {
			return fmt.Errorf("%w: dropping empty old table: %v", ErrTransport, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO content_chunks`, migTable)); err != nil {
		return fmt.Errorf("%w: renaming migration table: %v", ErrTransport, err)
	}

	for oldName, newName := range canonicalIndexRenames(migTable) {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER INDEX %s RENAME TO %s`, oldName, newName)); err != nil {
			return fmt.Errorf("%w: renaming index %s: %v", ErrTransport, oldName, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *MigrationRunner) markCompleted(ctx context.Context, statusID int) error {
	_, err := r.store.pool.Exec(ctx, `
		UPDATE migration_status SET status = $1, completed_at = $2 WHERE id = $3`,
		MigrationStatusCompleted, time.Now(), statusID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (r *MigrationRunner) markFailed(ctx context.Context, statusID int, cause error) {
	_, err := r.store.pool.Exec(ctx, `
		UPDATE migration_status SET status = $1, error_message = $2 WHERE id = $3`,
		MigrationStatusFailed, cause.Error(), statusID)
	if err != nil {
		log.Printf("[Migration] failed to record failure status: %v", err)
	}
}

// cleanupLeftovers drops the renamed backup table and any stray
// content_chunks_migration_* tables from aborted prior runs (step 11).
func (r *MigrationRunner) cleanupLeftovers(ctx context.Context, justSwapped string) error {
	if _, err := r.store.pool.Exec(ctx, `DROP TABLE IF EXISTS content_chunks_backup`); err != nil {
		return fmt.Errorf("%w: dropping backup table: %v", ErrTransport, err)
	}

	rows, err := r.store.pool.Query(ctx, `
		SELECT tablename FROM pg_tables WHERE tablename LIKE $1`, migrationTablePrefix+"%")
	if err != nil {
		return fmt.Errorf("%w: listing leftover tables: %v", ErrTransport, err)
	}
	var leftovers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if name != justSwapped {
			leftovers = append(leftovers, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range leftovers {
		if _, err := r.store.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
			return fmt.Errorf("%w: dropping leftover %s: %v", ErrTransport, name, err)
		}
	}
	return nil
}
