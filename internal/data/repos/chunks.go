package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

const chunkInsertBatchSize = 200

type ChunkRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*types.DocumentChunk) ([]*types.DocumentChunk, error)
	// ReplaceForDocument swaps a document's chunks atomically: old rows are
	// deleted and the new set inserted in the same transaction.
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.DocumentChunk) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentChunk, error)
	GetByDocumentAndIndices(dbc dbctx.Context, documentID uuid.UUID, indices []int) ([]*types.DocumentChunk, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) CreateBatch(dbc dbctx.Context, rows []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	if len(rows) == 0 {
		return []*types.DocumentChunk{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).CreateInBatches(&rows, chunkInsertBatchSize).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.DocumentChunk) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	run := func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		// Parents first so child rows satisfy the self-FK.
		parents := make([]*types.DocumentChunk, 0, len(rows))
		rest := make([]*types.DocumentChunk, 0, len(rows))
		for _, row := range rows {
			if row.ChunkLevel == types.ChunkLevelParent {
				parents = append(parents, row)
			} else {
				rest = append(rest, row)
			}
		}
		if len(parents) > 0 {
			if err := tx.CreateInBatches(&parents, chunkInsertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(rest) > 0 {
			if err := tx.CreateInBatches(&rest, chunkInsertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	}
	if dbc.Tx != nil {
		return run(dbc.Tx.WithContext(dbc.Ctx))
	}
	return txx.WithContext(dbc.Ctx).Transaction(run)
}

func (r *chunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DocumentChunk, error) {
	if len(ids) == 0 {
		return []*types.DocumentChunk{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.DocumentChunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) GetByDocumentAndIndices(dbc dbctx.Context, documentID uuid.UUID, indices []int) ([]*types.DocumentChunk, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("missing document_id")
	}
	if len(indices) == 0 {
		return []*types.DocumentChunk{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.DocumentChunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("document_id = ? AND chunk_index IN ?", documentID, indices).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.DocumentChunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	if documentID == uuid.Nil {
		return 0, fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *chunkRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.DocumentChunk{}).Error
}
