package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

type UserCredentialRepo interface {
	Create(dbc dbctx.Context, row *types.UserProviderCredential) (*types.UserProviderCredential, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserProviderCredential, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserProviderCredential, error)
	FindActive(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider) (*types.UserProviderCredential, error)
	FindByFingerprint(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider, fingerprint string) (*types.UserProviderCredential, error)
	// Activate marks one credential active and deactivates every other row
	// for the same (user, provider).
	Activate(dbc dbctx.Context, userID, id uuid.UUID) error
	Deactivate(dbc dbctx.Context, userID, id uuid.UUID) error
	Delete(dbc dbctx.Context, userID, id uuid.UUID) error
}

type userCredentialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserCredentialRepo(db *gorm.DB, log *logger.Logger) UserCredentialRepo {
	return &userCredentialRepo{db: db, log: log.With("repo", "UserCredentialRepo")}
}

func (r *userCredentialRepo) Create(dbc dbctx.Context, row *types.UserProviderCredential) (*types.UserProviderCredential, error) {
	if row == nil {
		return nil, fmt.Errorf("missing credential")
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

func (r *userCredentialRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserProviderCredential, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.UserProviderCredential
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *userCredentialRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserProviderCredential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.UserProviderCredential
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.UserProviderCredential{}).
		Where("user_id = ?", userID).
		Order("provider ASC, created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userCredentialRepo) FindActive(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider) (*types.UserProviderCredential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.UserProviderCredential
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND provider = ? AND is_active", userID, provider).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userCredentialRepo) FindByFingerprint(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider, fingerprint string) (*types.UserProviderCredential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.UserProviderCredential
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND provider = ? AND key_fingerprint = ?", userID, provider, fingerprint).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userCredentialRepo) Activate(dbc dbctx.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	run := func(tx *gorm.DB) error {
		var target types.UserProviderCredential
		if err := tx.Where("id = ? AND user_id = ?", id, userID).Take(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&types.UserProviderCredential{}).
			Where("user_id = ? AND provider = ? AND id <> ?", userID, target.Provider, id).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&types.UserProviderCredential{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": true, "updated_at": now}).Error
	}
	if dbc.Tx != nil {
		return run(dbc.Tx.WithContext(dbc.Ctx))
	}
	return txx.WithContext(dbc.Ctx).Transaction(run)
}

func (r *userCredentialRepo) Deactivate(dbc dbctx.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.UserProviderCredential{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *userCredentialRepo) Delete(dbc dbctx.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&types.UserProviderCredential{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

type OrgCredentialRepo interface {
	Create(dbc dbctx.Context, row *types.OrgProviderCredential) (*types.OrgProviderCredential, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.OrgProviderCredential, error)
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*types.OrgProviderCredential, error)
	FindActive(dbc dbctx.Context, orgID uuid.UUID, provider types.ModelProvider) (*types.OrgProviderCredential, error)
	FindByFingerprint(dbc dbctx.Context, orgID uuid.UUID, provider types.ModelProvider, fingerprint string) (*types.OrgProviderCredential, error)
	Activate(dbc dbctx.Context, orgID, id uuid.UUID) error
	Deactivate(dbc dbctx.Context, orgID, id uuid.UUID) error
	Delete(dbc dbctx.Context, orgID, id uuid.UUID) error
}

type orgCredentialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrgCredentialRepo(db *gorm.DB, log *logger.Logger) OrgCredentialRepo {
	return &orgCredentialRepo{db: db, log: log.With("repo", "OrgCredentialRepo")}
}

func (r *orgCredentialRepo) Create(dbc dbctx.Context, row *types.OrgProviderCredential) (*types.OrgProviderCredential, error) {
	if row == nil {
		return nil, fmt.Errorf("missing credential")
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

func (r *orgCredentialRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.OrgProviderCredential, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.OrgProviderCredential
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *orgCredentialRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*types.OrgProviderCredential, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.OrgProviderCredential
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.OrgProviderCredential{}).
		Where("organization_id = ?", orgID).
		Order("provider ASC, created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orgCredentialRepo) FindActive(dbc dbctx.Context, orgID uuid.UUID, provider types.ModelProvider) (*types.OrgProviderCredential, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.OrgProviderCredential
	err := txx.WithContext(dbc.Ctx).
		Where("organization_id = ? AND provider = ? AND is_active", orgID, provider).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orgCredentialRepo) FindByFingerprint(dbc dbctx.Context, orgID uuid.UUID, provider types.ModelProvider, fingerprint string) (*types.OrgProviderCredential, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.OrgProviderCredential
	err := txx.WithContext(dbc.Ctx).
		Where("organization_id = ? AND provider = ? AND key_fingerprint = ?", orgID, provider, fingerprint).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orgCredentialRepo) Activate(dbc dbctx.Context, orgID, id uuid.UUID) error {
	if orgID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	run := func(tx *gorm.DB) error {
		var target types.OrgProviderCredential
		if err := tx.Where("id = ? AND organization_id = ?", id, orgID).Take(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&types.OrgProviderCredential{}).
			Where("organization_id = ? AND provider = ? AND id <> ?", orgID, target.Provider, id).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&types.OrgProviderCredential{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": true, "updated_at": now}).Error
	}
	if dbc.Tx != nil {
		return run(dbc.Tx.WithContext(dbc.Ctx))
	}
	return txx.WithContext(dbc.Ctx).Transaction(run)
}

func (r *orgCredentialRepo) Deactivate(dbc dbctx.Context, orgID, id uuid.UUID) error {
	if orgID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.OrgProviderCredential{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *orgCredentialRepo) Delete(dbc dbctx.Context, orgID, id uuid.UUID) error {
	if orgID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&types.OrgProviderCredential{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}
