package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPlanNoOpWhenDimensionsMatch(t *testing.T) {
	plan := buildPlan(1536, 1536)
	assert.True(t, plan.NoOp)
}

func TestBuildPlanMigratesWhenDimensionsDiffer(t *testing.T) {
	plan := buildPlan(1536, 768)
	assert.False(t, plan.NoOp)
	assert.Equal(t, 1536, plan.FromDim)
	assert.Equal(t, 768, plan.ToDim)
}

func TestMigrationTableName(t *testing.T) {
	assert.Equal(t, "content_chunks_migration_768", migrationTableName(768))
}

func TestMigrationIndexStatementsCoverAllEightIndexes(t *testing.T) {
	stmts := migrationIndexStatements("content_chunks_migration_768")
	assert.Len(t, stmts, 8)
	for _, s := range stmts {
		assert.Contains(t, s, "content_chunks_migration_768")
	}
}

func TestCanonicalIndexRenamesCoverAllEightIndexes(t *testing.T) {
	renames := canonicalIndexRenames("content_chunks_migration_768")
	assert.Len(t, renames, 8)
	for oldName, newName := range renames {
		assert.Contains(t, oldName, "content_chunks_migration_768")
		assert.Contains(t, newName, "idx_content_chunks_")
	}
}

func TestVectorLiteralFormatsAsFloatArray(t *testing.T) {
	lit := vectorLiteral([]float32{0.1, 0.2, -1})
	assert.Equal(t, "[0.1,0.2,-1]", lit)
}
