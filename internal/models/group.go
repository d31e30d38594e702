package models

import "time"

type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url"`
	CreatedBy   int       `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GroupPatch carries the fields changed by a group edit. Nil fields are untouched.
type GroupPatch struct {
	ID          int     `json:"id"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// Apply merges the patch into g. Identity (ID, CreatedBy, CreatedAt) is preserved.
func (p GroupPatch) Apply(g *Group) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.AvatarURL != nil {
		g.AvatarURL = *p.AvatarURL
	}
}

func (p GroupPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.AvatarURL == nil
}

type GroupMember struct {
	GroupID int    `db:"group_id" json:"group_id"`
	UserID  int    `db:"user_id" json:"user_id"`
	Role    string `db:"role" json:"role"` // "owner", "admin" или "member"
}

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
	MemberIDs   []int  `json:"member_ids"`
}

type GroupDeleted struct {
	ID int `json:"id"`
}
