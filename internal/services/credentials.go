package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/raggae-backend/internal/data/repos"
	types "github.com/yungbote/raggae-backend/internal/domain"
	"github.com/yungbote/raggae-backend/internal/platform/crypto"
	"github.com/yungbote/raggae-backend/internal/platform/dbctx"
	"github.com/yungbote/raggae-backend/internal/platform/logger"
	"github.com/yungbote/raggae-backend/internal/providers"
)

// CredentialView is the caller-facing projection of a stored credential.
// Plaintext never leaves this service.
type CredentialView struct {
	ID        uuid.UUID           `json:"id"`
	Provider  types.ModelProvider `json:"provider"`
	MaskedKey string              `json:"masked_key"`
	IsActive  bool                `json:"is_active"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// CredentialService stores encrypted provider API keys and resolves the
// effective key for a (user, project, provider) triple. Resolution never
// fails: every miss falls through to the next tier and finally to the global
// key map, which may be empty.
type CredentialService struct {
	userCreds     repos.UserCredentialRepo
	orgCreds      repos.OrgCredentialRepo
	users         repos.UserRepo
	cipher        *crypto.KeyCipher
	globalAPIKeys map[string]string
	log           *logger.Logger
}

func NewCredentialService(
	userCreds repos.UserCredentialRepo,
	orgCreds repos.OrgCredentialRepo,
	users repos.UserRepo,
	cipher *crypto.KeyCipher,
	globalAPIKeys map[string]string,
	log *logger.Logger,
) *CredentialService {
	return &CredentialService{
		userCreds:     userCreds,
		orgCreds:      orgCreds,
		users:         users,
		cipher:        cipher,
		globalAPIKeys: globalAPIKeys,
		log:           log.With("service", "CredentialService"),
	}
}

// SaveUserKey validates, encrypts and stores a key, then activates it. A key
// with an already-stored fingerprint re-activates the existing row instead of
// inserting a duplicate.
func (s *CredentialService) SaveUserKey(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider, apiKey string) (*CredentialView, error) {
	if err := providers.ValidateAPIKeyFormat(provider, apiKey); err != nil {
		return nil, err
	}
	fingerprint := s.cipher.Fingerprint(apiKey)

	existing, err := s.userCreds.FindByFingerprint(dbc, userID, provider, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.userCreds.Activate(dbc, userID, existing.ID); err != nil {
			return nil, err
		}
		existing.IsActive = true
		return userCredentialView(existing), nil
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}
	row := &types.UserProviderCredential{
		ID:              uuid.New(),
		UserID:          userID,
		Provider:        provider,
		EncryptedAPIKey: encrypted,
		KeyFingerprint:  fingerprint,
		KeySuffix:       types.MaskKeySuffix(apiKey),
		IsActive:        false,
	}
	created, err := s.userCreds.Create(dbc, row)
	if err != nil {
		return nil, err
	}
	if err := s.userCreds.Activate(dbc, userID, created.ID); err != nil {
		return nil, err
	}
	created.IsActive = true
	s.log.Info("stored provider credential", "user_id", userID, "provider", provider)
	return userCredentialView(created), nil
}

// SaveOrgKey is the organization-scoped variant of SaveUserKey.
func (s *CredentialService) SaveOrgKey(dbc dbctx.Context, orgID uuid.UUID, provider types.ModelProvider, apiKey string) (*CredentialView, error) {
	if err := providers.ValidateAPIKeyFormat(provider, apiKey); err != nil {
		return nil, err
	}
	fingerprint := s.cipher.Fingerprint(apiKey)

	existing, err := s.orgCreds.FindByFingerprint(dbc, orgID, provider, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.orgCreds.Activate(dbc, orgID, existing.ID); err != nil {
			return nil, err
		}
		existing.IsActive = true
		return orgCredentialView(existing), nil
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}
	row := &types.OrgProviderCredential{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		Provider:        provider,
		EncryptedAPIKey: encrypted,
		KeyFingerprint:  fingerprint,
		KeySuffix:       types.MaskKeySuffix(apiKey),
		IsActive:        false,
	}
	created, err := s.orgCreds.Create(dbc, row)
	if err != nil {
		return nil, err
	}
	if err := s.orgCreds.Activate(dbc, orgID, created.ID); err != nil {
		return nil, err
	}
	created.IsActive = true
	s.log.Info("stored provider credential", "organization_id", orgID, "provider", provider)
	return orgCredentialView(created), nil
}

func (s *CredentialService) ListUserKeys(dbc dbctx.Context, userID uuid.UUID) ([]*CredentialView, error) {
	rows, err := s.userCreds.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*CredentialView, 0, len(rows))
	for _, row := range rows {
		out = append(out, userCredentialView(row))
	}
	return out, nil
}

func (s *CredentialService) ListOrgKeys(dbc dbctx.Context, orgID uuid.UUID) ([]*CredentialView, error) {
	rows, err := s.orgCreds.ListByOrg(dbc, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]*CredentialView, 0, len(rows))
	for _, row := range rows {
		out = append(out, orgCredentialView(row))
	}
	return out, nil
}

func (s *CredentialService) ActivateUserKey(dbc dbctx.Context, userID, credentialID uuid.UUID) error {
	return s.userCreds.Activate(dbc, userID, credentialID)
}

func (s *CredentialService) DeactivateUserKey(dbc dbctx.Context, userID, credentialID uuid.UUID) error {
	return s.userCreds.Deactivate(dbc, userID, credentialID)
}

func (s *CredentialService) DeleteUserKey(dbc dbctx.Context, userID, credentialID uuid.UUID) error {
	return s.userCreds.Delete(dbc, userID, credentialID)
}

func (s *CredentialService) ActivateOrgKey(dbc dbctx.Context, orgID, credentialID uuid.UUID) error {
	return s.orgCreds.Activate(dbc, orgID, credentialID)
}

func (s *CredentialService) DeactivateOrgKey(dbc dbctx.Context, orgID, credentialID uuid.UUID) error {
	return s.orgCreds.Deactivate(dbc, orgID, credentialID)
}

func (s *CredentialService) DeleteOrgKey(dbc dbctx.Context, orgID, credentialID uuid.UUID) error {
	return s.orgCreds.Delete(dbc, orgID, credentialID)
}

// ResolveKey walks the fallback chain for user U executing against project P
// with provider PV:
//
//  1. project-scoped user credential, if owned by U and active
//  2. project-scoped org credential, if U belongs to P's organization and it
//     is active
//  3. U's active credential for PV
//  4. the active credential of P's organization for PV
//  5. the process-wide global key for PV (possibly empty)
//
// It never returns an error: lookup failures are logged and treated as
// misses so chat degrades to the global key rather than hard-failing.
func (s *CredentialService) ResolveKey(dbc dbctx.Context, project *types.Project, userID uuid.UUID, provider types.ModelProvider) string {
	if key, ok := s.resolveProjectUserKey(dbc, project, userID); ok {
		return key
	}
	if key, ok := s.resolveProjectOrgKey(dbc, project, userID); ok {
		return key
	}
	if key, ok := s.resolveActiveUserKey(dbc, userID, provider); ok {
		return key
	}
	if key, ok := s.resolveActiveOrgKey(dbc, project, provider); ok {
		return key
	}
	return s.globalAPIKeys[string(provider)]
}

func (s *CredentialService) resolveProjectUserKey(dbc dbctx.Context, project *types.Project, userID uuid.UUID) (string, bool) {
	if project == nil || project.UserCredentialID == nil {
		return "", false
	}
	cred, err := s.userCreds.GetByID(dbc, *project.UserCredentialID)
	if err != nil || cred == nil || cred.UserID != userID || !cred.IsActive {
		return "", false
	}
	return s.decrypt(cred.EncryptedAPIKey)
}

func (s *CredentialService) resolveProjectOrgKey(dbc dbctx.Context, project *types.Project, userID uuid.UUID) (string, bool) {
	if project == nil || project.OrgCredentialID == nil || project.OrganizationID == nil {
		return "", false
	}
	if !s.isMember(dbc, userID, *project.OrganizationID) {
		return "", false
	}
	cred, err := s.orgCreds.GetByID(dbc, *project.OrgCredentialID)
	if err != nil || cred == nil || cred.OrganizationID != *project.OrganizationID || !cred.IsActive {
		return "", false
	}
	return s.decrypt(cred.EncryptedAPIKey)
}

func (s *CredentialService) resolveActiveUserKey(dbc dbctx.Context, userID uuid.UUID, provider types.ModelProvider) (string, bool) {
	cred, err := s.userCreds.FindActive(dbc, userID, provider)
	if err != nil || cred == nil {
		return "", false
	}
	return s.decrypt(cred.EncryptedAPIKey)
}

func (s *CredentialService) resolveActiveOrgKey(dbc dbctx.Context, project *types.Project, provider types.ModelProvider) (string, bool) {
	if project == nil || project.OrganizationID == nil {
		return "", false
	}
	cred, err := s.orgCreds.FindActive(dbc, *project.OrganizationID, provider)
	if err != nil || cred == nil {
		return "", false
	}
	return s.decrypt(cred.EncryptedAPIKey)
}

func (s *CredentialService) isMember(dbc dbctx.Context, userID, orgID uuid.UUID) bool {
	orgIDs, err := s.users.OrgIDs(dbc, userID)
	if err != nil {
		return false
	}
	for _, id := range orgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

func (s *CredentialService) decrypt(encrypted string) (string, bool) {
	plain, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		s.log.Warn("failed to decrypt stored credential", "error", err)
		return "", false
	}
	return plain, true
}

func userCredentialView(row *types.UserProviderCredential) *CredentialView {
	return &CredentialView{
		ID:        row.ID,
		Provider:  row.Provider,
		MaskedKey: row.MaskedKey(),
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func orgCredentialView(row *types.OrgProviderCredential) *CredentialView {
	return &CredentialView{
		ID:        row.ID,
		Provider:  row.Provider,
		MaskedKey: row.MaskedKey(),
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
