package noteboard

import (
	"sort"

	"github.com/dalemusser/recoveryhub/internal/app/policy/postpolicy"
	"github.com/dalemusser/recoveryhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const unknownUser = "Unknown user"

// PostView is a post as one viewer sees it.
type PostView struct {
	models.Post
	BodyHTML          string            `json:"body_html"`
	AuthorName        string            `json:"author_name"`
	VisibilityDetails VisibilityDetails `json:"visibility_details"`
	Replies           []ReplyView       `json:"replies"`
	CanEdit           bool              `json:"can_edit"`
	CanDelete         bool              `json:"can_delete"`
}

// VisibilityDetails explains who can read a post and why this viewer can.
type VisibilityDetails struct {
	Mode          models.VisibilityMode `json:"mode"`
	Roles         []RoleRef             `json:"roles,omitempty"`
	Users         []UserRef             `json:"users,omitempty"`
	Description   string                `json:"description"`
	Reason        postpolicy.Reason     `json:"reason"`
	AdminOverride bool                  `json:"admin_override"`
}

// RoleRef is one granted role with its display label.
type RoleRef struct {
	Role  models.Role `json:"role"`
	Label string      `json:"label"`
}

// UserRef is one granted user with their display name.
type UserRef struct {
	ID   primitive.ObjectID `json:"id"`
	Name string             `json:"name"`
}

// ReplyView is a reply as one viewer sees it.
type ReplyView struct {
	models.Reply
	BodyHTML   string `json:"body_html"`
	AuthorName string `json:"author_name"`
	CanEdit    bool   `json:"can_edit"`
	CanDelete  bool   `json:"can_delete"`
}

func nameOr(names map[primitive.ObjectID]string, id primitive.ObjectID) string {
	if n := names[id]; n != "" {
		return n
	}
	return unknownUser
}

func (s *Service) buildPostView(viewer models.Identity, p models.Post, vis models.Visibility, replies []models.Reply, names map[primitive.ObjectID]string) PostView {
	access := postpolicy.Explain(p, vis, viewer)

	details := VisibilityDetails{
		Mode:          vis.Mode(),
		Description:   postpolicy.Describe(vis, names),
		Reason:        access.Reason,
		AdminOverride: access.AdminOverride(),
	}
	g := vis.Grants()
	for _, r := range g.Roles {
		details.Roles = append(details.Roles, RoleRef{Role: r, Label: r.Label()})
	}
	for _, id := range g.Users {
		details.Users = append(details.Users, UserRef{ID: id, Name: nameOr(names, id)})
	}

	sorted := make([]models.Reply, len(replies))
	copy(sorted, replies)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID.Hex() < sorted[j].ID.Hex()
	})
	views := make([]ReplyView, len(sorted))
	for i, r := range sorted {
		views[i] = s.buildReplyView(viewer, r, names)
	}

	return PostView{
		Post:              p,
		BodyHTML:          s.renderBody(p.Body),
		AuthorName:        nameOr(names, p.AuthorID),
		VisibilityDetails: details,
		Replies:           views,
		CanEdit:           postpolicy.CanEdit(p, viewer),
		CanDelete:         postpolicy.CanDelete(p, viewer),
	}
}

func (s *Service) buildReplyView(viewer models.Identity, r models.Reply, names map[primitive.ObjectID]string) ReplyView {
	return ReplyView{
		Reply:      r,
		BodyHTML:   s.renderBody(r.Body),
		AuthorName: nameOr(names, r.AuthorID),
		CanEdit:    postpolicy.CanEditReply(r, viewer),
		CanDelete:  postpolicy.CanDeleteReply(r, viewer),
	}
}
