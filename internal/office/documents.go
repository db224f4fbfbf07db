package office

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/halolight/halolight-api-go/internal/auth"
)

const (
	defaultDocumentType = "doc"
	maxTags             = 20
)

func (s *Service) ListDocuments(ctx context.Context, actor auth.Identity, q DocumentQuery) (auth.Page[Document], error) {
	q.ViewerID = actor.UserID
	q.Search = strings.TrimSpace(q.Search)
	q.Type = strings.TrimSpace(q.Type)
	q.TeamID = strings.TrimSpace(q.TeamID)
	q.Tag = strings.ToLower(strings.TrimSpace(q.Tag))
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)

	docs, total, err := s.store.ListDocuments(ctx, q)
	if err != nil {
		return auth.Page[Document]{}, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return auth.Page[Document]{Items: docs, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetDocument returns a document the caller can read. Documents the caller
// cannot see are reported as NotFound.
func (s *Service) GetDocument(ctx context.Context, actor auth.Identity, id string) (Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	ok, err := s.canRead(ctx, actor, doc)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, auth.ErrNotFound
	}
	return doc, nil
}

func (s *Service) CreateDocument(ctx context.Context, actor auth.Identity, in DocumentInput) (Document, error) {
	title, err := documentTitle(in.Title)
	if err != nil {
		return Document{}, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return Document{}, err
	}
	docType := strings.ToLower(strings.TrimSpace(in.Type))
	if docType == "" {
		docType = defaultDocumentType
	}
	teamID := strings.TrimSpace(in.TeamID)
	if teamID != "" {
		if err := s.requireMembership(ctx, actor, teamID); err != nil {
			return Document{}, err
		}
	}
	doc := Document{
		Title:   title,
		Content: in.Content,
		Type:    docType,
		Size:    int64(len(in.Content)),
		OwnerID: actor.UserID,
		TeamID:  teamID,
		Tags:    tags,
	}
	if err := s.store.CreateDocument(ctx, &doc); err != nil {
		return Document{}, err
	}
	s.invalidateStats(actor.UserID)
	return doc, nil
}

// UpdateDocument is allowed for the owner and for users holding an edit share.
func (s *Service) UpdateDocument(ctx context.Context, actor auth.Identity, id string, upd DocumentUpdate) (Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !canEdit(actor, doc) {
		return Document{}, fmt.Errorf("%w: no edit access to document", auth.ErrForbidden)
	}
	if upd.Title != nil {
		title, err := documentTitle(*upd.Title)
		if err != nil {
			return Document{}, err
		}
		upd.Title = &title
	}
	if upd.Type != nil {
		t := strings.ToLower(strings.TrimSpace(*upd.Type))
		if t == "" {
			t = defaultDocumentType
		}
		upd.Type = &t
	}
	if upd.TeamID != nil {
		if !canManage(actor, doc.OwnerID) {
			return Document{}, fmt.Errorf("%w: only the owner can move a document", auth.ErrForbidden)
		}
		teamID := strings.TrimSpace(*upd.TeamID)
		if teamID != "" {
			if err := s.requireMembership(ctx, actor, teamID); err != nil {
				return Document{}, err
			}
		}
		upd.TeamID = &teamID
	}
	return s.store.UpdateDocument(ctx, id, upd)
}

func (s *Service) DeleteDocument(ctx context.Context, actor auth.Identity, id string) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, doc.OwnerID) {
		return fmt.Errorf("%w: only the owner can delete a document", auth.ErrForbidden)
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(doc.OwnerID)
	return nil
}

// ShareDocument grants userID access and notifies them. Re-sharing replaces the level.
func (s *Service) ShareDocument(ctx context.Context, actor auth.Identity, docID, userID string, perm SharePermission) (Document, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Document{}, fmt.Errorf("%w: userId is required", auth.ErrInvalidInput)
	}
	if perm == "" {
		perm = ShareRead
	}
	if !perm.Valid() {
		return Document{}, fmt.Errorf("%w: permission must be read or edit", auth.ErrInvalidInput)
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	if !canManage(actor, doc.OwnerID) {
		return Document{}, fmt.Errorf("%w: only the owner can share a document", auth.ErrForbidden)
	}
	if userID == doc.OwnerID {
		return Document{}, fmt.Errorf("%w: cannot share a document with its owner", auth.ErrInvalidInput)
	}
	if _, err := s.store.FindUserByID(ctx, userID); err != nil {
		return Document{}, err
	}
	if err := s.store.ShareDocument(ctx, docID, userID, perm); err != nil {
		return Document{}, err
	}
	s.notify(ctx, Notification{
		UserID:  userID,
		Type:    NotificationDocumentShared,
		Title:   "Document shared: " + doc.Title,
		Content: fmt.Sprintf("You were given %s access.", perm),
		Link:    "/documents/" + doc.ID,
	})
	return s.store.GetDocument(ctx, docID)
}

func (s *Service) UnshareDocument(ctx context.Context, actor auth.Identity, docID, userID string) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if !canManage(actor, doc.OwnerID) {
		return fmt.Errorf("%w: only the owner can unshare a document", auth.ErrForbidden)
	}
	return s.store.UnshareDocument(ctx, docID, strings.TrimSpace(userID))
}

// SetTags replaces the document's tags.
func (s *Service) SetTags(ctx context.Context, actor auth.Identity, docID string, tags []string) (Document, error) {
	tags, err := normalizeTags(tags)
	if err != nil {
		return Document{}, err
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	if !canEdit(actor, doc) {
		return Document{}, fmt.Errorf("%w: no edit access to document", auth.ErrForbidden)
	}
	if err := s.store.SetDocumentTags(ctx, docID, tags); err != nil {
		return Document{}, err
	}
	doc.Tags = tags
	return doc, nil
}

func (s *Service) canRead(ctx context.Context, actor auth.Identity, doc Document) (bool, error) {
	if canManage(actor, doc.OwnerID) {
		return true, nil
	}
	if _, ok := doc.permissionFor(actor.UserID); ok {
		return true, nil
	}
	if doc.TeamID == "" {
		return false, nil
	}
	return s.store.IsTeamMember(ctx, doc.TeamID, actor.UserID)
}

func canEdit(actor auth.Identity, doc Document) bool {
	if canManage(actor, doc.OwnerID) {
		return true
	}
	perm, ok := doc.permissionFor(actor.UserID)
	return ok && perm == ShareEdit
}

func (s *Service) requireMembership(ctx context.Context, actor auth.Identity, teamID string) error {
	if actor.HasAnyRole(adminRole) {
		return nil
	}
	ok, err := s.store.IsTeamMember(ctx, teamID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of team %s", auth.ErrForbidden, teamID)
	}
	return nil
}

func documentTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < 1 || n > 200 {
		return "", fmt.Errorf("%w: title must be 1-200 characters", auth.ErrInvalidInput)
	}
	return title, nil
}

// normalizeTags lowercases, trims, dedupes and sorts. Control characters are
// rejected; the store uses one as its aggregation separator.
func normalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > 50 {
			return nil, fmt.Errorf("%w: tag %q is longer than 50 characters", auth.ErrInvalidInput, t)
		}
		if strings.IndexFunc(t, unicode.IsControl) >= 0 {
			return nil, fmt.Errorf("%w: tag %q contains control characters", auth.ErrInvalidInput, t)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, fmt.Errorf("%w: at most %d tags", auth.ErrInvalidInput, maxTags)
	}
	sort.Strings(out)
	return out, nil
}
