package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fossapp/internal/generate"
)

// ProjectRepositoryPG implements generate.ProjectSource against the catalog
// database.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// ProjectArea loads the metadata the case-study workflow validates before
// generating: the area's floor-plan reference and the project's storage
// bucket. Nullable columns come back as empty strings so the workflow can
// report a precise validation error instead of a scan failure.
func (r *ProjectRepositoryPG) ProjectArea(ctx context.Context, projectID, areaID string) (*generate.ProjectArea, error) {
	query := `
SELECT p.name,
       a.name,
       COALESCE(a.floor_plan_key, ''),
       COALESCE(p.storage_bucket, '')
FROM projects p
JOIN areas a ON a.project_id = p.id
WHERE p.id = $1 AND a.id = $2;
`
	var meta generate.ProjectArea
	err := r.pool.QueryRow(ctx, query, projectID, areaID).Scan(
		&meta.ProjectName,
		&meta.AreaName,
		&meta.FloorPlanKey,
		&meta.Bucket,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, generate.ErrProjectNotFound
		}
		return nil, fmt.Errorf("repo: load project area: %w", err)
	}
	return &meta, nil
}
