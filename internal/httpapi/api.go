package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/obs"
	"github.com/halolight/halolight-api-go/internal/office"
)

// AuthService is the credential and token surface used by the auth routes and guards.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (auth.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	CurrentUser(ctx context.Context, userID string) (auth.UserWithRoles, error)
	Authenticate(ctx context.Context, accessToken string) (auth.Identity, error)
	Authorize(ctx context.Context, userID, required string) error
}

// AdminService manages users, roles and permissions.
type AdminService interface {
	ListUsers(ctx context.Context, q auth.UserQuery) (auth.Page[auth.User], error)
	GetUser(ctx context.Context, userID string) (auth.UserWithRoles, error)
	CreateUser(ctx context.Context, in auth.UserInput) (auth.User, error)
	UpdateUser(ctx context.Context, actorID, userID string, upd auth.UserUpdate) (auth.User, error)
	UpdateStatus(ctx context.Context, actorID, userID string, status auth.UserStatus) (auth.User, error)
	DeleteUser(ctx context.Context, actorID, userID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error

	ListRoles(ctx context.Context) ([]auth.Role, error)
	GetRole(ctx context.Context, roleID string) (auth.Role, error)
	CreateRole(ctx context.Context, name, label, description string) (auth.Role, error)
	UpdateRole(ctx context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (auth.Role, error)

	ListPermissions(ctx context.Context) ([]auth.Permission, error)
	CreatePermission(ctx context.Context, resource, action, description string) (auth.Permission, error)
	DeletePermission(ctx context.Context, id string) error
}

// OfficeService covers teams, documents, notifications and the dashboard.
type OfficeService interface {
	ListTeams(ctx context.Context, actor auth.Identity) ([]office.Team, error)
	GetTeam(ctx context.Context, actor auth.Identity, id string) (office.Team, error)
	CreateTeam(ctx context.Context, actor auth.Identity, in office.TeamInput) (office.Team, error)
	UpdateTeam(ctx context.Context, actor auth.Identity, id string, upd office.TeamUpdate) (office.Team, error)
	DeleteTeam(ctx context.Context, actor auth.Identity, id string) error
	AddMember(ctx context.Context, actor auth.Identity, teamID, userID, role string) (office.Team, error)
	RemoveMember(ctx context.Context, actor auth.Identity, teamID, userID string) error

	ListDocuments(ctx context.Context, actor auth.Identity, q office.DocumentQuery) (auth.Page[office.Document], error)
	GetDocument(ctx context.Context, actor auth.Identity, id string) (office.Document, error)
	CreateDocument(ctx context.Context, actor auth.Identity, in office.DocumentInput) (office.Document, error)
	UpdateDocument(ctx context.Context, actor auth.Identity, id string, upd office.DocumentUpdate) (office.Document, error)
	DeleteDocument(ctx context.Context, actor auth.Identity, id string) error
	ShareDocument(ctx context.Context, actor auth.Identity, docID, userID string, perm office.SharePermission) (office.Document, error)
	UnshareDocument(ctx context.Context, actor auth.Identity, docID, userID string) error
	SetTags(ctx context.Context, actor auth.Identity, docID string, tags []string) (office.Document, error)

	ListNotifications(ctx context.Context, actor auth.Identity, q office.NotificationQuery) (auth.Page[office.Notification], error)
	UnreadCount(ctx context.Context, actor auth.Identity) (int64, error)
	MarkRead(ctx context.Context, actor auth.Identity, id string) error
	MarkAllRead(ctx context.Context, actor auth.Identity) (int64, error)
	DeleteNotification(ctx context.Context, actor auth.Identity, id string) error

	Stats(ctx context.Context, actor auth.Identity) (office.DashboardStats, error)
}

// Options tunes the middleware stack.
type Options struct {
	AllowedOrigins []string
	RateRPS        float64
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	TrustProxy     bool
}

// Deps wires services into the HTTP layer.
type Deps struct {
	Auth    AuthService
	Admin   AdminService
	Office  OfficeService
	Ready   ReadinessChecker
	Logger  *slog.Logger
	Version string
	Options Options
}

// API is the HTTP layer.
type API struct {
	auth    AuthService
	admin   AdminService
	office  OfficeService
	ready   ReadinessChecker
	logger  *slog.Logger
	version string
	opts    Options
	limiter *RateLimiter
}

func New(d Deps) *API {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ready := d.Ready
	if ready == nil {
		ready = ReadyProbe{}
	}
	return &API{
		auth:    d.Auth,
		admin:   d.Admin,
		office:  d.Office,
		ready:   ready,
		logger:  logger,
		version: d.Version,
		opts:    d.Options,
		limiter: NewRateLimiter(d.Options.RateRPS, d.Options.RateBurst),
	}
}

// Handler builds the router with the full middleware stack.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if a.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(Logging(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         600,
	}))
	if a.opts.MaxBodyBytes > 0 {
		r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))
	}
	if a.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(a.opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.limiter.Middleware)
		a.authRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			a.userRoutes(r)
			a.roleRoutes(r)
			a.permissionRoutes(r)
			a.teamRoutes(r)
			a.documentRoutes(r)
			a.notificationRoutes(r)
			r.Get("/dashboard/stats", a.dashboardStats)
		})
	})

	return r
}

func (a *API) authRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
		r.With(a.authenticate).Post("/logout-all", a.logoutAll)
		r.With(a.authenticate).Get("/me", a.me)
	})
}

func (a *API) userRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.With(a.RequirePermission(auth.PermUsersRead)).Get("/", a.listUsers)
		r.With(a.RequirePermission(auth.PermUsersCreate)).Post("/", a.createUser)
		r.Route("/{id}", func(r chi.Router) {
			r.With(a.RequirePermission(auth.PermUsersRead)).Get("/", a.getUser)
			r.With(a.RequirePermission(auth.PermUsersUpdate)).Patch("/", a.updateUser)
			r.With(a.RequirePermission(auth.PermUsersUpdate)).Patch("/status", a.updateUserStatus)
			r.With(a.RequirePermission(auth.PermUsersDelete)).Delete("/", a.deleteUser)
			r.With(a.RequirePermission(auth.PermUsersUpdate)).Post("/roles", a.assignRole)
			r.With(a.RequirePermission(auth.PermUsersUpdate)).Delete("/roles/{roleID}", a.unassignRole)
		})
	})
}

func (a *API) roleRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(a.RequirePermission(auth.PermRolesRead)).Get("/", a.listRoles)
		r.With(a.RequirePermission(auth.PermRolesCreate)).Post("/", a.createRole)
		r.Route("/{id}", func(r chi.Router) {
			r.With(a.RequirePermission(auth.PermRolesRead)).Get("/", a.getRole)
			r.With(a.RequirePermission(auth.PermRolesUpdate)).Patch("/", a.updateRole)
			r.With(a.RequirePermission(auth.PermRolesDelete)).Delete("/", a.deleteRole)
			r.With(a.RequirePermission(auth.PermRolesUpdate)).Put("/permissions", a.setRolePermissions)
		})
	})
}

func (a *API) permissionRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.With(a.RequirePermission(auth.PermPermissionsRead)).Get("/", a.listPermissions)
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(auth.RoleAdmin), a.RequirePermission(auth.PermPermissionsManage))
			r.Post("/", a.createPermission)
			r.Delete("/{id}", a.deletePermission)
		})
	})
}

func (a *API) teamRoutes(r chi.Router) {
	r.Route("/teams", func(r chi.Router) {
		r.With(a.RequirePermission(auth.PermTeamsRead)).Get("/", a.listTeams)
		r.With(a.RequirePermission(auth.PermTeamsCreate)).Post("/", a.createTeam)
		r.Route("/{id}", func(r chi.Router) {
			r.With(a.RequirePermission(auth.PermTeamsRead)).Get("/", a.getTeam)
			r.With(a.RequirePermission(auth.PermTeamsUpdate)).Patch("/", a.updateTeam)
			r.With(a.RequirePermission(auth.PermTeamsDelete)).Delete("/", a.deleteTeam)
			r.With(a.RequirePermission(auth.PermTeamsUpdate)).Post("/members", a.addTeamMember)
			r.With(a.RequirePermission(auth.PermTeamsUpdate)).Delete("/members/{userID}", a.removeTeamMember)
		})
	})
}

func (a *API) documentRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.With(a.RequirePermission(auth.PermDocumentsRead)).Get("/", a.listDocuments)
		r.With(a.RequirePermission(auth.PermDocumentsCreate)).Post("/", a.createDocument)
		r.Route("/{id}", func(r chi.Router) {
			r.With(a.RequirePermission(auth.PermDocumentsRead)).Get("/", a.getDocument)
			r.With(a.RequirePermission(auth.PermDocumentsUpdate)).Patch("/", a.updateDocument)
			r.With(a.RequirePermission(auth.PermDocumentsDelete)).Delete("/", a.deleteDocument)
			r.With(a.RequirePermission(auth.PermDocumentsUpdate)).Post("/share", a.shareDocument)
			r.With(a.RequirePermission(auth.PermDocumentsUpdate)).Delete("/share/{userID}", a.unshareDocument)
			r.With(a.RequirePermission(auth.PermDocumentsUpdate)).Put("/tags", a.setDocumentTags)
		})
	})
}

func (a *API) notificationRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", a.listNotifications)
		r.Get("/unread-count", a.unreadCount)
		r.Post("/read-all", a.markAllRead)
		r.Patch("/{id}/read", a.markRead)
		r.Delete("/{id}", a.deleteNotification)
	})
}
