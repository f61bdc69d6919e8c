package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// GetBySourceJob returns the asset created for jobID.
func (r *AssetRepositoryPG) GetBySourceJob(ctx context.Context, jobID string) (*domain.Asset, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return scanAsset(r.sql.QueryRow(ctx, sqlinline.QSelectAssetBySourceJob, jobID))
}

// ListByOwner returns the newest assets owned by userID.
func (r *AssetRepositoryPG) ListByOwner(ctx context.Context, userID string, limit int) ([]domain.Asset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListAssetsByOwner, userID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var (
		asset                 domain.Asset
		mediaType, visibility string
		meta                  []byte
	)
	if err := row.Scan(
		&asset.ID,
		&asset.OwnerUserID,
		&asset.SourceJobID,
		&asset.MediaURL,
		&mediaType,
		&visibility,
		&asset.AllowRemix,
		&meta,
		&asset.CreatedAt,
	); err != nil {
		return nil, mapStoreErr(err)
	}
	asset.MediaType = domain.MediaType(mediaType)
	asset.Visibility = domain.Visibility(visibility)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &asset.Meta); err != nil {
			return nil, fmt.Errorf("decode asset meta: %w", err)
		}
	}
	return &asset, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
