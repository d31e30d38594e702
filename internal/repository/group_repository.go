package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

type GroupRepository struct {
	DB *sqlx.DB
}

// CreateGroup inserts the group, makes the creator its owner and adds the
// other members in one transaction.
func (r *GroupRepository) CreateGroup(ctx context.Context, group models.Group, memberIDs []int) (*models.Group, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO groups (name, description, avatar_url, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		group.Name, group.Description, group.AvatarURL, group.CreatedBy,
	).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert group")
	}

	// Добавляем владельца
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`,
		group.ID, group.CreatedBy, models.RoleOwner,
	); err != nil {
		return nil, errors.Wrap(err, "insert owner")
	}
	// Добавляем остальных
	for _, id := range memberIDs {
		if id == group.CreatedBy {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			group.ID, id, models.RoleMember,
		); err != nil {
			return nil, errors.Wrapf(err, "insert member %d", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return &group, nil
}

func (r *GroupRepository) GetUserGroups(ctx context.Context, userID int) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.DB.SelectContext(ctx, &groups, `
		SELECT g.id, g.name, g.description, g.avatar_url, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select user groups")
	}
	return groups, nil
}

// MemberRole returns the role of userID in groupID, or ErrNotFound if the
// user is not a member.
func (r *GroupRepository) MemberRole(ctx context.Context, groupID, userID int) (string, error) {
	var role string
	err := r.DB.GetContext(ctx, &role,
		`SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "select member role")
	}
	return role, nil
}

func (r *GroupRepository) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	ids := []int{}
	if err := r.DB.SelectContext(ctx, &ids,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return nil, errors.Wrap(err, "select members")
	}
	return ids, nil
}

// UpdateGroup applies the non-nil fields of patch and returns the result.
func (r *GroupRepository) UpdateGroup(ctx context.Context, patch models.GroupPatch) (*models.Group, error) {
	var g models.Group
	err := r.DB.GetContext(ctx, &g, `
		UPDATE groups
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    avatar_url = COALESCE($4, avatar_url)
		WHERE id = $1
		RETURNING id, name, description, avatar_url, created_by, created_at`,
		patch.ID, patch.Name, patch.Description, patch.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update group")
	}
	return &g, nil
}

func (r *GroupRepository) DeleteGroup(ctx context.Context, groupID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return errors.Wrap(err, "delete group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
