package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrChannelNotFound = errors.New("channel not found")

// MembershipRepository authorizes room joins against the membership store.
type MembershipRepository interface {
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	CanJoinChannel(ctx context.Context, channelID, userID string) (bool, error)
	ChannelWorkspace(ctx context.Context, channelID string) (string, error)
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// IsWorkspaceMember checks workspace membership.
func (r *MembershipRepo) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id=$1 AND user_id=$2)`, workspaceID, userID)
	return exists, err
}

// CanJoinChannel allows public channels for any workspace member and private
// channels only for explicitly listed members.
func (r *MembershipRepo) CanJoinChannel(ctx context.Context, channelID, userID string) (bool, error) {
	var ch struct {
		WorkspaceID string `db:"workspace_id"`
		IsPrivate   bool   `db:"is_private"`
	}
	err := r.db.GetContext(ctx, &ch, `SELECT workspace_id, is_private FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrChannelNotFound
	}
	if err != nil {
		return false, err
	}

	if ch.IsPrivate {
		var listed bool
		err := r.db.GetContext(ctx, &listed, `SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id=$1 AND user_id=$2)`, channelID, userID)
		return listed, err
	}
	return r.IsWorkspaceMember(ctx, ch.WorkspaceID, userID)
}

// ChannelWorkspace resolves the workspace a channel belongs to.
func (r *MembershipRepo) ChannelWorkspace(ctx context.Context, channelID string) (string, error) {
	var workspaceID string
	err := r.db.GetContext(ctx, &workspaceID, `SELECT workspace_id FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrChannelNotFound
	}
	return workspaceID, err
}
