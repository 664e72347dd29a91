package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
)

// CreateUser registers a user with the role's configured default
// capabilities. Bootstrap (the first user) bypasses the actor check so an
// empty workspace can seed its super admin.
func (e Engine) CreateUser(ctx context.Context, actorID, id, name string, role domain.Role) (domain.User, error) {
	if id == "" {
		return domain.User{}, errors.New("id required")
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	if actorID != "" {
		actor, err := e.Repo.GetUser(ctx, actorID)
		if err != nil {
			return domain.User{}, fmt.Errorf("actor %s: %w", actorID, err)
		}
		if err := e.Graph.Require(actor, domain.CapUsersManage); err != nil {
			return domain.User{}, err
		}
	}
	u := domain.User{
		ID:          id,
		Name:        name,
		Role:        role,
		Permissions: e.Config.DefaultPermissions(role),
		CreatedAt:   e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureUserTx(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	logAs := actorID
	if logAs == "" {
		logAs = id
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", logAs, events.Payload{"user_id": id, "role": string(role)}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UpdatePermissions replaces a user's stored capability set. The set is
// sanitized against the role policy, so restricted capabilities are dropped
// and mandatory ones re-added before storage.
func (e Engine) UpdatePermissions(ctx context.Context, actorID, userID string, perms []domain.Capability) (domain.User, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.User{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if err := e.Graph.Require(actor, domain.CapUsersManage); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	u.Permissions = e.Graph.Sanitize(perms, u.Role).Slice()
	if err := e.Repo.UpdateUserPermissions(ctx, userID, u.Permissions); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, nil, "user.permissions", "", actorID,
		events.Payload{"user_id": userID, "count": len(u.Permissions)}); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// SetRole changes a user's role and resets their permissions to the new
// role's defaults.
func (e Engine) SetRole(ctx context.Context, actorID, userID string, role domain.Role) (domain.User, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.User{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if err := e.Graph.Require(actor, domain.CapUsersManage); err != nil {
		return domain.User{}, err
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = role
	u.Permissions = e.Config.DefaultPermissions(role)
	if err := e.Repo.UpdateUserRole(ctx, userID, role, u.Permissions); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, nil, "user.role", "", actorID,
		events.Payload{"user_id": userID, "role": string(role)}); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// IssueAPIKey mints a key for a user and returns the plaintext once.
func (e Engine) IssueAPIKey(ctx context.Context, actorID, userID, name string) (string, domain.APIKey, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return "", domain.APIKey{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if err := e.Graph.Require(actor, domain.CapUsersManage); err != nil {
		return "", domain.APIKey{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	plaintext := "al_" + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plaintext, key, nil
}

// AssetInput describes stock entered into inventory outside of a request's
// staging flow.
type AssetInput struct {
	Name     string
	Brand    string
	Tracking domain.TrackingMode
	Serial   string
	Quantity int
}

// AddAsset registers inventory stock directly.
func (e Engine) AddAsset(ctx context.Context, actorID string, in AssetInput) (domain.Asset, error) {
	actor, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if err := e.Graph.Require(actor, domain.CapAssetsCreate); err != nil {
		return domain.Asset{}, err
	}
	if in.Name == "" {
		return domain.Asset{}, errors.New("name required")
	}
	tracking := in.Tracking
	if tracking == "" {
		tracking = domain.TrackSerialized
	}
	qty := in.Quantity
	if tracking == domain.TrackSerialized {
		qty = 1
	} else if qty <= 0 {
		return domain.Asset{}, errors.New("quantity must be positive for bulk stock")
	}
	a := domain.Asset{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Brand:     in.Brand,
		Tracking:  tracking,
		Serial:    in.Serial,
		Quantity:  qty,
		Status:    domain.AssetAvailable,
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAssetTx(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.created", "", actorID, events.Payload{"asset_id": a.ID, "name": a.Name}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}
