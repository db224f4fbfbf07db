package office

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halolight/halolight-api-go/internal/auth"
)

type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]auth.User
	teams     map[string]*Team
	docs      map[string]*Document
	notes     []Notification
	noteErr   error
	countCall atomic.Int32
}

func newMemStore(userIDs ...string) *memStore {
	m := &memStore{
		users: make(map[string]auth.User),
		teams: make(map[string]*Team),
		docs:  make(map[string]*Document),
	}
	for _, id := range userIDs {
		m.users[id] = auth.User{ID: id, Username: id, Name: id, Status: auth.StatusActive}
	}
	return m
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) FindUserByID(_ context.Context, id string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (m *memStore) ListTeamsForUser(_ context.Context, userID string) ([]Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Team
	for _, t := range m.teams {
		for _, mem := range t.Members {
			if mem.UserID == userID {
				out = append(out, *t)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return Team{}, auth.ErrNotFound
	}
	cp := *t
	cp.Members = append([]TeamMember(nil), t.Members...)
	cp.MemberCount = len(cp.Members)
	return cp, nil
}

func (m *memStore) CreateTeam(_ context.Context, t *Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("team")
	t.Members = []TeamMember{{UserID: t.OwnerID, Role: MemberRoleOwner}}
	cp := *t
	m.teams[t.ID] = &cp
	return nil
}

func (m *memStore) UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error) {
	m.mu.Lock()
	t, ok := m.teams[id]
	if !ok {
		m.mu.Unlock()
		return Team{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	m.mu.Unlock()
	return m.GetTeam(ctx, id)
}

func (m *memStore) DeleteTeam(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.teams, id)
	return nil
}

func (m *memStore) AddTeamMember(_ context.Context, teamID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return auth.ErrNotFound
	}
	for _, mem := range t.Members {
		if mem.UserID == userID {
			return auth.ErrConflict
		}
	}
	t.Members = append(t.Members, TeamMember{UserID: userID, Role: role})
	return nil
}

func (m *memStore) RemoveTeamMember(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return auth.ErrNotFound
	}
	for i, mem := range t.Members {
		if mem.UserID == userID {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memStore) IsTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return false, nil
	}
	for _, mem := range t.Members {
		if mem.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListDocuments(_ context.Context, q DocumentQuery) ([]Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, d := range m.docs {
		if _, shared := d.permissionFor(q.ViewerID); d.OwnerID == q.ViewerID || shared {
			out = append(out, *d)
		}
	}
	return out, len(out), nil
}

func (m *memStore) GetDocument(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return Document{}, auth.ErrNotFound
	}
	cp := *d
	cp.Shares = append([]DocumentShare(nil), d.Shares...)
	return cp, nil
}

func (m *memStore) CreateDocument(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextID("doc")
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memStore) UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (Document, error) {
	m.mu.Lock()
	d, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return Document{}, auth.ErrNotFound
	}
	if upd.Title != nil {
		d.Title = *upd.Title
	}
	if upd.Content != nil {
		d.Content = *upd.Content
		d.Size = int64(len(d.Content))
	}
	if upd.Type != nil {
		d.Type = *upd.Type
	}
	if upd.TeamID != nil {
		d.TeamID = *upd.TeamID
	}
	m.mu.Unlock()
	return m.GetDocument(ctx, id)
}

func (m *memStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memStore) ShareDocument(_ context.Context, docID, userID string, perm SharePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return auth.ErrNotFound
	}
	for i, s := range d.Shares {
		if s.UserID == userID {
			d.Shares[i].Permission = perm
			return nil
		}
	}
	d.Shares = append(d.Shares, DocumentShare{UserID: userID, Permission: perm})
	return nil
}

func (m *memStore) UnshareDocument(_ context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return auth.ErrNotFound
	}
	for i, s := range d.Shares {
		if s.UserID == userID {
			d.Shares = append(d.Shares[:i], d.Shares[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memStore) SetDocumentTags(_ context.Context, docID string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return auth.ErrNotFound
	}
	d.Tags = tags
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, q NotificationQuery) ([]Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.notes {
		if n.UserID == q.UserID && (!q.UnreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memStore) CountUnread(_ context.Context, userID string) (int64, error) {
	m.countCall.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, note := range m.notes {
		if note.UserID == userID && !note.Read {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noteErr != nil {
		return m.noteErr
	}
	n.ID = m.nextID("note")
	n.CreatedAt = time.Now()
	m.notes = append(m.notes, *n)
	return nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		if m.notes[i].ID == id && m.notes[i].UserID == userID {
			m.notes[i].Read = true
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.notes {
		if m.notes[i].UserID == userID && !m.notes[i].Read {
			m.notes[i].Read = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteNotification(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		if m.notes[i].ID == id && m.notes[i].UserID == userID {
			m.notes = append(m.notes[:i], m.notes[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memStore) CountUsers(_ context.Context, status auth.UserStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if status == "" || u.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountDocuments(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if ownerID == "" || d.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountTeams(_ context.Context, memberID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.teams {
		if memberID == "" {
			n++
			continue
		}
		for _, mem := range t.Members {
			if mem.UserID == memberID {
				n++
				break
			}
		}
	}
	return n, nil
}

func newTestService(t *testing.T, store *memStore, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, opts...)
	require.NoError(t, err)
	return svc
}

var (
	alice = auth.Identity{UserID: "alice", Roles: []string{"user"}}
	bob   = auth.Identity{UserID: "bob", Roles: []string{"user"}}
	carol = auth.Identity{UserID: "carol", Roles: []string{"user"}}
	admin = auth.Identity{UserID: "root", Roles: []string{"admin"}}
)

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestTeamLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob", "carol")
	svc := newTestService(t, store)

	team, err := svc.CreateTeam(ctx, alice, TeamInput{Name: "  Platform ", Description: "infra"})
	require.NoError(t, err)
	assert.Equal(t, "Platform", team.Name)
	assert.Equal(t, "alice", team.OwnerID)
	require.Len(t, team.Members, 1)
	assert.Equal(t, MemberRoleOwner, team.Members[0].Role)

	_, err = svc.CreateTeam(ctx, alice, TeamInput{Name: "   "})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	// non-members cannot see the team
	_, err = svc.GetTeam(ctx, bob, team.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = svc.AddMember(ctx, bob, team.ID, "carol", "")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	team, err = svc.AddMember(ctx, alice, team.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 2, team.MemberCount)

	_, err = svc.AddMember(ctx, alice, team.ID, "bob", "")
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = svc.AddMember(ctx, alice, team.ID, "carol", "janitor")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	got, err := svc.GetTeam(ctx, bob, team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.ID, got.ID)

	page, err := svc.ListNotifications(ctx, bob, NotificationQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, NotificationTeamJoined, page.Items[0].Type)

	name := "Renamed"
	_, err = svc.UpdateTeam(ctx, bob, team.ID, TeamUpdate{Name: &name})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	updated, err := svc.UpdateTeam(ctx, admin, team.ID, TeamUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	assert.ErrorIs(t, svc.RemoveMember(ctx, alice, team.ID, "alice"), auth.ErrInvalidInput)
	// members may leave on their own
	require.NoError(t, svc.RemoveMember(ctx, bob, team.ID, "bob"))

	assert.ErrorIs(t, svc.DeleteTeam(ctx, bob, team.ID), auth.ErrForbidden)
	require.NoError(t, svc.DeleteTeam(ctx, alice, team.ID))
	teams, err := svc.ListTeams(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestDocumentAccessRules(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob", "carol")
	svc := newTestService(t, store)

	doc, err := svc.CreateDocument(ctx, alice, DocumentInput{
		Title:   " Roadmap ",
		Content: "hello",
		Tags:    []string{"Plan", "plan", " q3 ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", doc.Title)
	assert.Equal(t, defaultDocumentType, doc.Type)
	assert.Equal(t, int64(5), doc.Size)
	assert.Equal(t, []string{"plan", "q3"}, doc.Tags)

	_, err = svc.GetDocument(ctx, bob, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	title := "Hijacked"
	_, err = svc.UpdateDocument(ctx, bob, doc.ID, DocumentUpdate{Title: &title})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.ShareDocument(ctx, bob, doc.ID, "carol", ShareRead)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.ShareDocument(ctx, alice, doc.ID, "bob", "owner")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = svc.ShareDocument(ctx, alice, doc.ID, "alice", ShareRead)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = svc.ShareDocument(ctx, alice, doc.ID, "nobody", ShareRead)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	shared, err := svc.ShareDocument(ctx, alice, doc.ID, "bob", ShareRead)
	require.NoError(t, err)
	require.Len(t, shared.Shares, 1)

	// read share: visible but not editable
	_, err = svc.GetDocument(ctx, bob, doc.ID)
	require.NoError(t, err)
	_, err = svc.UpdateDocument(ctx, bob, doc.ID, DocumentUpdate{Title: &title})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.ShareDocument(ctx, alice, doc.ID, "bob", ShareEdit)
	require.NoError(t, err)
	updated, err := svc.UpdateDocument(ctx, bob, doc.ID, DocumentUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hijacked", updated.Title)

	// edit share cannot move or delete
	team := ""
	_, err = svc.UpdateDocument(ctx, bob, doc.ID, DocumentUpdate{TeamID: &team})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteDocument(ctx, bob, doc.ID), auth.ErrForbidden)

	tagged, err := svc.SetTags(ctx, bob, doc.ID, []string{"Final"})
	require.NoError(t, err)
	assert.Equal(t, []string{"final"}, tagged.Tags)

	unread, err := svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	require.NoError(t, svc.UnshareDocument(ctx, alice, doc.ID, "bob"))
	_, err = svc.GetDocument(ctx, bob, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, svc.DeleteDocument(ctx, alice, doc.ID))
	_, err = svc.GetDocument(ctx, alice, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTeamDocumentsVisibleToMembers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob", "carol")
	svc := newTestService(t, store)

	team, err := svc.CreateTeam(ctx, alice, TeamInput{Name: "Docs"})
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, alice, team.ID, "bob", MemberRoleMember)
	require.NoError(t, err)

	_, err = svc.CreateDocument(ctx, carol, DocumentInput{Title: "x", TeamID: team.ID})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	doc, err := svc.CreateDocument(ctx, alice, DocumentInput{Title: "Roadmap", TeamID: team.ID})
	require.NoError(t, err)

	_, err = svc.GetDocument(ctx, bob, doc.ID)
	require.NoError(t, err)
	_, err = svc.GetDocument(ctx, carol, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = svc.GetDocument(ctx, admin, doc.ID)
	require.NoError(t, err)
}

func TestNotificationFailureDoesNotFailShare(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob")
	store.noteErr = errors.New("disk full")
	svc := newTestService(t, store)

	doc, err := svc.CreateDocument(ctx, alice, DocumentInput{Title: "Notes"})
	require.NoError(t, err)
	_, err = svc.ShareDocument(ctx, alice, doc.ID, "bob", "")
	require.NoError(t, err)

	got, err := svc.GetDocument(ctx, bob, doc.ID)
	require.NoError(t, err)
	perm, ok := got.permissionFor("bob")
	require.True(t, ok)
	assert.Equal(t, ShareRead, perm)
}

func TestNotificationsAreScopedToCaller(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob")
	store.notes = []Notification{
		{ID: "n1", UserID: "alice", Title: "one"},
		{ID: "n2", UserID: "alice", Title: "two"},
		{ID: "n3", UserID: "bob", Title: "three"},
	}
	svc := newTestService(t, store)

	assert.ErrorIs(t, svc.MarkRead(ctx, alice, "n3"), auth.ErrNotFound)
	require.NoError(t, svc.MarkRead(ctx, alice, "n1"))

	unread, err := svc.ListNotifications(ctx, alice, NotificationQuery{UnreadOnly: true, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	assert.Equal(t, "n2", unread.Items[0].ID)
	assert.Equal(t, maxPageSize, unread.PageSize)

	n, err := svc.MarkAllRead(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, svc.DeleteNotification(ctx, bob, "n1"), auth.ErrNotFound)
	require.NoError(t, svc.DeleteNotification(ctx, bob, "n3"))
	count, err := svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStatsAreCachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("alice", "bob")
	svc := newTestService(t, store, WithStatsTTL(time.Minute))

	stats, err := svc.Stats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.Zero(t, stats.MyDocuments)
	calls := store.countCall.Load()

	_, err = svc.Stats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, calls, store.countCall.Load(), "second read should hit the cache")

	_, err = svc.CreateDocument(ctx, alice, DocumentInput{Title: "a"})
	require.NoError(t, err)
	stats, err = svc.Stats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.MyDocuments)
	assert.Equal(t, int64(1), stats.TotalDocuments)

	uncached := newTestService(t, store, WithStatsTTL(0))
	before := store.countCall.Load()
	_, err = uncached.Stats(ctx, bob)
	require.NoError(t, err)
	_, err = uncached.Stats(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, before+2, store.countCall.Load())
}

func TestNormalizeTagsLimits(t *testing.T) {
	tags := make([]string, 0, maxTags+1)
	for i := 0; i <= maxTags; i++ {
		tags = append(tags, fmt.Sprintf("t%d", i))
	}
	_, err := normalizeTags(tags)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	got, err := normalizeTags(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"a\x1fb", "line\nbreak", "tab\there"} {
		_, err = normalizeTags([]string{"ok", bad})
		assert.ErrorIs(t, err, auth.ErrInvalidInput, "tag %q", bad)
	}

	got, err = normalizeTags([]string{" Go ", "go", "Ünïcode"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "ünïcode"}, got)
}
