package office

import "time"

// Team groups users. The creator owns it and is its first member.
type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	OwnerID     string       `json:"ownerId"`
	Members     []TeamMember `json:"members,omitempty"`
	MemberCount int          `json:"memberCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Member roles inside a team.
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

type TeamMember struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type TeamInput struct {
	Name        string
	Description string
}

// TeamUpdate is a partial update. Nil fields are left untouched.
type TeamUpdate struct {
	Name        *string
	Description *string
}

// SharePermission is the access level granted by a document share.
type SharePermission string

const (
	ShareRead SharePermission = "read"
	ShareEdit SharePermission = "edit"
)

func (p SharePermission) Valid() bool {
	return p == ShareRead || p == ShareEdit
}

type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Type      string          `json:"type"`
	Size      int64           `json:"size"`
	OwnerID   string          `json:"ownerId"`
	TeamID    string          `json:"teamId,omitempty"`
	Tags      []string        `json:"tags"`
	Shares    []DocumentShare `json:"shares,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// permissionFor returns the share level userID holds, if any.
func (d Document) permissionFor(userID string) (SharePermission, bool) {
	for _, s := range d.Shares {
		if s.UserID == userID {
			return s.Permission, true
		}
	}
	return "", false
}

type DocumentShare struct {
	UserID     string          `json:"userId"`
	Permission SharePermission `json:"permission"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type DocumentInput struct {
	Title   string
	Content string
	Type    string
	TeamID  string
	Tags    []string
}

// DocumentUpdate is a partial update. An empty TeamID detaches the document from its team.
type DocumentUpdate struct {
	Title   *string
	Content *string
	Type    *string
	TeamID  *string
}

// DocumentQuery lists documents visible to ViewerID: owned, shared, or
// belonging to one of the viewer's teams.
type DocumentQuery struct {
	ViewerID string
	Search   string
	Type     string
	TeamID   string
	Tag      string
	Page     int
	PageSize int
}

func (q DocumentQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Notification kinds emitted by the service.
const (
	NotificationDocumentShared = "document_shared"
	NotificationTeamJoined     = "team_joined"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationQuery struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}

func (q NotificationQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// DashboardStats is a caller-scoped summary.
type DashboardStats struct {
	TotalUsers          int64 `json:"totalUsers"`
	ActiveUsers         int64 `json:"activeUsers"`
	TotalDocuments      int64 `json:"totalDocuments"`
	MyDocuments         int64 `json:"myDocuments"`
	TotalTeams          int64 `json:"totalTeams"`
	MyTeams             int64 `json:"myTeams"`
	UnreadNotifications int64 `json:"unreadNotifications"`
}
