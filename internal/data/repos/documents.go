package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, row *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Document, error)
	ListByProjectAndStatus(dbc dbctx.Context, projectID uuid.UUID, statuses []types.DocumentStatus) ([]*types.Document, error)
	CountByProject(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
	Save(dbc dbctx.Context, row *types.Document) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, row *types.Document) (*types.Document, error) {
	if row == nil {
		return nil, fmt.Errorf("missing document")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Document
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &types.DocumentNotFoundError{ID: id.String()}
		}
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.Document
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &types.DocumentNotFoundError{ID: id.String()}
		}
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Document, error) {
	return r.ListByProjectAndStatus(dbc, projectID, nil)
}

func (r *documentRepo) ListByProjectAndStatus(dbc dbctx.Context, projectID uuid.UUID, statuses []types.DocumentStatus) ([]*types.Document, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("missing project_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("project_id = ?", projectID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []*types.Document
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) CountByProject(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	if projectID == uuid.Nil {
		return 0, fmt.Errorf("missing project_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("project_id = ?", projectID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) Save(dbc dbctx.Context, row *types.Document) error {
	if row == nil || row.ID == uuid.Nil {
		return fmt.Errorf("missing document")
	}
	row.UpdatedAt = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Save(row).Error
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &types.DocumentNotFoundError{ID: id.String()}
	}
	return nil
}

func (r *documentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Document{}).Error
}
