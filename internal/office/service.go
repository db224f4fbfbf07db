package office

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/halolight/halolight-api-go/internal/auth"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultStatsTTL = 30 * time.Second
	adminRole       = auth.RoleAdmin
)

// Service implements teams, documents, notifications and the dashboard.
// Callers pass the authenticated identity; ownership is enforced here, coarse
// permissions are enforced by the HTTP guards.
type Service struct {
	store  Store
	logger *slog.Logger
	stats  *cache.Cache
}

// Option configures Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatsTTL sets how long dashboard stats are cached per user. Zero disables caching.
func WithStatsTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.stats = nil
			return
		}
		s.stats = cache.New(ttl, 2*ttl)
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("office: store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stats:  cache.New(defaultStatsTTL, 2*defaultStatsTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func canManage(actor auth.Identity, ownerID string) bool {
	return actor.UserID == ownerID || actor.HasAnyRole(adminRole)
}

// ListTeams returns the teams the caller belongs to.
func (s *Service) ListTeams(ctx context.Context, actor auth.Identity) ([]Team, error) {
	teams, err := s.store.ListTeamsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []Team{}
	}
	return teams, nil
}

// GetTeam returns the team with members. Non-members get NotFound.
func (s *Service) GetTeam(ctx context.Context, actor auth.Identity, id string) (Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if actor.HasAnyRole(adminRole) {
		return team, nil
	}
	for _, m := range team.Members {
		if m.UserID == actor.UserID {
			return team, nil
		}
	}
	return Team{}, auth.ErrNotFound
}

func (s *Service) CreateTeam(ctx context.Context, actor auth.Identity, in TeamInput) (Team, error) {
	name, err := teamName(in.Name)
	if err != nil {
		return Team{}, err
	}
	team := Team{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		OwnerID:     actor.UserID,
	}
	if err := s.store.CreateTeam(ctx, &team); err != nil {
		return Team{}, err
	}
	s.invalidateStats(actor.UserID)
	return s.store.GetTeam(ctx, team.ID)
}

func (s *Service) UpdateTeam(ctx context.Context, actor auth.Identity, id string, upd TeamUpdate) (Team, error) {
	if err := s.requireTeamOwner(ctx, actor, id); err != nil {
		return Team{}, err
	}
	if upd.Name != nil {
		name, err := teamName(*upd.Name)
		if err != nil {
			return Team{}, err
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateTeam(ctx, id, upd)
}

func (s *Service) DeleteTeam(ctx context.Context, actor auth.Identity, id string) error {
	if err := s.requireTeamOwner(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteTeam(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(actor.UserID)
	return nil
}

// AddMember adds userID to the team and notifies them.
func (s *Service) AddMember(ctx context.Context, actor auth.Identity, teamID, userID, role string) (Team, error) {
	if err := s.requireTeamOwner(ctx, actor, teamID); err != nil {
		return Team{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Team{}, fmt.Errorf("%w: userId is required", auth.ErrInvalidInput)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = MemberRoleMember
	}
	if role != MemberRoleMember && role != MemberRoleOwner {
		return Team{}, fmt.Errorf("%w: unsupported member role %s", auth.ErrInvalidInput, role)
	}
	if err := s.store.AddTeamMember(ctx, teamID, userID, role); err != nil {
		return Team{}, err
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	s.invalidateStats(userID)
	s.notify(ctx, Notification{
		UserID: userID,
		Type:   NotificationTeamJoined,
		Title:  "Added to team " + team.Name,
		Link:   "/teams/" + team.ID,
	})
	return team, nil
}

// RemoveMember removes a member. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor auth.Identity, teamID, userID string) error {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !canManage(actor, team.OwnerID) && actor.UserID != userID {
		return fmt.Errorf("%w: only the team owner can remove members", auth.ErrForbidden)
	}
	if userID == team.OwnerID {
		return fmt.Errorf("%w: the team owner cannot be removed", auth.ErrInvalidInput)
	}
	if err := s.store.RemoveTeamMember(ctx, teamID, userID); err != nil {
		return err
	}
	s.invalidateStats(userID)
	return nil
}

func (s *Service) requireTeamOwner(ctx context.Context, actor auth.Identity, teamID string) error {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !canManage(actor, team.OwnerID) {
		return fmt.Errorf("%w: only the team owner can change the team", auth.ErrForbidden)
	}
	return nil
}

func teamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 100 {
		return "", fmt.Errorf("%w: team name must be 1-100 characters", auth.ErrInvalidInput)
	}
	return name, nil
}

// notify is best-effort; a failed notification never fails the triggering call.
func (s *Service) notify(ctx context.Context, n Notification) {
	if err := s.store.CreateNotification(ctx, &n); err != nil {
		s.logger.WarnContext(ctx, "create notification failed",
			slog.String("user_id", n.UserID),
			slog.String("type", n.Type),
			slog.Any("error", err))
		return
	}
	s.invalidateStats(n.UserID)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
