package repos

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *types.Message) (*types.Message, error)
	CountByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
	// ListRecent returns the newest `limit` messages in chronological order.
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	FindLatestByRole(dbc dbctx.Context, conversationID uuid.UUID, role types.MessageRole) (*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, row *types.Message) (*types.Message, error) {
	if row == nil {
		return nil, fmt.Errorf("missing message")
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

func (r *messageRepo) CountByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	// Flip newest-first to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) FindLatestByRole(dbc dbctx.Context, conversationID uuid.UUID, role types.MessageRole) (*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Message
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("conversation_id = ? AND role = ?", conversationID, role).
		Order("created_at DESC, id DESC").
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
