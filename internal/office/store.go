package office

import (
	"context"

	"github.com/halolight/halolight-api-go/internal/auth"
)

// TeamStore persists teams and memberships.
type TeamStore interface {
	ListTeamsForUser(ctx context.Context, userID string) ([]Team, error)
	GetTeam(ctx context.Context, id string) (Team, error)
	// CreateTeam inserts the team and its owner membership atomically.
	CreateTeam(ctx context.Context, t *Team) error
	UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error)
	DeleteTeam(ctx context.Context, id string) error
	AddTeamMember(ctx context.Context, teamID, userID, role string) error
	RemoveTeamMember(ctx context.Context, teamID, userID string) error
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
}

// DocumentStore persists documents with their tags and shares.
type DocumentStore interface {
	ListDocuments(ctx context.Context, q DocumentQuery) ([]Document, int, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	CreateDocument(ctx context.Context, d *Document) error
	UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ShareDocument(ctx context.Context, docID, userID string, perm SharePermission) error
	UnshareDocument(ctx context.Context, docID, userID string) error
	SetDocumentTags(ctx context.Context, docID string, tags []string) error
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, q NotificationQuery) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	CreateNotification(ctx context.Context, n *Notification) error
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// StatsStore provides the counts behind the dashboard. Empty filters count everything.
type StatsStore interface {
	CountUsers(ctx context.Context, status auth.UserStatus) (int64, error)
	CountDocuments(ctx context.Context, ownerID string) (int64, error)
	CountTeams(ctx context.Context, memberID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type Store interface {
	TeamStore
	DocumentStore
	NotificationStore
	StatsStore
	FindUserByID(ctx context.Context, id string) (auth.User, error)
}
