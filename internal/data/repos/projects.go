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

type ProjectRepo interface {
	Create(dbc dbctx.Context, row *types.Project) (*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Project, error)
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.Project, error)
	ListPublishedByOrg(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.Project, error)
	Save(dbc dbctx.Context, row *types.Project) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, log *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: log.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, row *types.Project) (*types.Project, error) {
	if row == nil {
		return nil, fmt.Errorf("missing project")
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

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Project
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &types.ProjectNotFoundError{ID: id.String()}
		}
		return nil, err
	}
	return &out, nil
}

func (r *projectRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.Project
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &types.ProjectNotFoundError{ID: id.String()}
		}
		return nil, err
	}
	return &out, nil
}

func (r *projectRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Project, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Project
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) Save(dbc dbctx.Context, row *types.Project) error {
	if row == nil || row.ID == uuid.Nil {
		return fmt.Errorf("missing project")
	}
	row.UpdatedAt = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Save(row).Error
}

func (r *projectRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.Project, error) {
	return r.listByOrg(dbc, orgID, limit, false)
}

func (r *projectRepo) ListPublishedByOrg(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.Project, error) {
	return r.listByOrg(dbc, orgID, limit, true)
}

func (r *projectRepo) listByOrg(dbc dbctx.Context, orgID uuid.UUID, limit int, publishedOnly bool) ([]*types.Project, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("organization_id = ?", orgID)
	if publishedOnly {
		q = q.Where("is_published")
	}
	var out []*types.Project
	if err := q.Order("updated_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &types.ProjectNotFoundError{ID: id.String()}
	}
	return nil
}

func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Project{}).Error
}
