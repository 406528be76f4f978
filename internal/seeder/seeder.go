// Package seeder loads the initial directory from a YAML file at startup.
// Seeding is explicit and idempotent: running the same file twice changes
// nothing the first run created.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	idmodels "keystone/internal/identity/models"
	identity "keystone/internal/identity/service"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	"keystone/pkg/requestcontext"
)

// File is the seed document.
type File struct {
	Tenants []TenantSeed `yaml:"tenants"`
	Apps    []AppSeed    `yaml:"apps"`
	Users   []UserSeed   `yaml:"users"`
}

type TenantSeed struct {
	Name string `yaml:"name"`
}

type AppSeed struct {
	Slug   string `yaml:"slug"`
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

type UserSeed struct {
	Email       string           `yaml:"email"`
	Name        string           `yaml:"name"`
	Password    string           `yaml:"password"`
	Hyper       bool             `yaml:"hyper"`
	MustReset   bool             `yaml:"must_reset"`
	Memberships []MembershipSeed `yaml:"memberships"`
	Grants      []GrantSeed      `yaml:"grants"`
}

type MembershipSeed struct {
	Tenant string `yaml:"tenant"`
	Role   string `yaml:"role"`
}

// GrantSeed names its app by slug. An empty Tenant is a global grant.
type GrantSeed struct {
	App    string `yaml:"app"`
	Tenant string `yaml:"tenant"`
	Role   string `yaml:"role"`
}

type Identities interface {
	Provision(ctx context.Context, in identity.ProvisionInput) (*idmodels.Identity, bool, error)
	SetHyper(ctx context.Context, userID id.UserID, hyper bool) error
}

type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	FindByName(ctx context.Context, name string) (*models.Tenant, error)
}

type AppStore interface {
	Create(ctx context.Context, app *models.App) error
	FindBySlug(ctx context.Context, slug string) (*models.App, error)
}

type MembershipStore interface {
	Create(ctx context.Context, m *models.Membership) error
}

type GrantStore interface {
	Upsert(ctx context.Context, g *models.Grant) error
}

// Stats counts what a run created.
type Stats struct {
	Tenants     int
	Apps        int
	Users       int
	Memberships int
	Grants      int
}

type Seeder struct {
	identities  Identities
	tenants     TenantStore
	apps        AppStore
	memberships MembershipStore
	grants      GrantStore
	logger      *slog.Logger
}

func New(identities Identities, tenants TenantStore, apps AppStore, memberships MembershipStore, grants GrantStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		identities:  identities,
		tenants:     tenants,
		apps:        apps,
		memberships: memberships,
		grants:      grants,
		logger:      logger,
	}
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a seed document. Unknown keys are rejected so typos fail
// loudly instead of seeding half a directory.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Seed applies file. Existing tenants, apps, users and memberships are left
// as they are; grants are upserted.
func (s *Seeder) Seed(ctx context.Context, file *File) (*Stats, error) {
	stats := &Stats{}
	now := requestcontext.Now(ctx)

	tenants := make(map[string]*models.Tenant, len(file.Tenants))
	for _, ts := range file.Tenants {
		tenant, created, err := s.ensureTenant(ctx, ts)
		if err != nil {
			return nil, fmt.Errorf("seed tenant %q: %w", ts.Name, err)
		}
		if created {
			stats.Tenants++
		}
		tenants[strings.ToLower(tenant.Name)] = tenant
	}

	apps := make(map[string]*models.App, len(file.Apps))
	for _, as := range file.Apps {
		app, created, err := s.ensureApp(ctx, as)
		if err != nil {
			return nil, fmt.Errorf("seed app %q: %w", as.Slug, err)
		}
		if created {
			stats.Apps++
		}
		apps[app.Slug] = app
	}

	for _, us := range file.Users {
		user, created, err := s.identities.Provision(ctx, identity.ProvisionInput{
			Email:     us.Email,
			Name:      us.Name,
			Password:  us.Password,
			MustReset: us.MustReset,
			IsHyper:   us.Hyper,
		})
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", us.Email, err)
		}
		if created {
			stats.Users++
		} else if us.Hyper && !user.IsHyper {
			if err := s.identities.SetHyper(ctx, user.ID, true); err != nil {
				return nil, fmt.Errorf("seed user %q: %w", us.Email, err)
			}
		}

		for _, ms := range us.Memberships {
			tenant, ok := tenants[strings.ToLower(ms.Tenant)]
			if !ok {
				return nil, fmt.Errorf("seed user %q: unknown tenant %q", us.Email, ms.Tenant)
			}
			role, err := models.ParseRole(ms.Role)
			if err != nil {
				return nil, fmt.Errorf("seed user %q: %w", us.Email, err)
			}
			err = s.memberships.Create(ctx, &models.Membership{UserID: user.ID, TenantID: tenant.ID, Role: role, CreatedAt: now})
			switch {
			case err == nil:
				stats.Memberships++
			case errors.Is(err, sentinel.ErrAlreadyExists):
			default:
				return nil, fmt.Errorf("seed membership %q in %q: %w", us.Email, ms.Tenant, err)
			}
		}

		for _, gs := range us.Grants {
			app, ok := apps[gs.App]
			if !ok {
				return nil, fmt.Errorf("seed user %q: unknown app %q", us.Email, gs.App)
			}
			grant := &models.Grant{UserID: user.ID, AppID: app.ID, Role: models.DefaultAppRole, CreatedAt: now}
			if gs.Role != "" {
				if grant.Role, err = models.ParseRole(gs.Role); err != nil {
					return nil, fmt.Errorf("seed user %q: %w", us.Email, err)
				}
			}
			if gs.Tenant != "" {
				tenant, ok := tenants[strings.ToLower(gs.Tenant)]
				if !ok {
					return nil, fmt.Errorf("seed user %q: unknown tenant %q", us.Email, gs.Tenant)
				}
				tenantID := tenant.ID
				grant.TenantID = &tenantID
			}
			if err := s.grants.Upsert(ctx, grant); err != nil {
				return nil, fmt.Errorf("seed grant %q for %q: %w", gs.App, us.Email, err)
			}
			stats.Grants++
		}
	}

	s.logger.InfoContext(ctx, "seed applied",
		"tenants_created", stats.Tenants,
		"apps_created", stats.Apps,
		"users_created", stats.Users,
		"memberships_created", stats.Memberships,
		"grants_upserted", stats.Grants,
	)
	return stats, nil
}

func (s *Seeder) ensureTenant(ctx context.Context, ts TenantSeed) (*models.Tenant, bool, error) {
	existing, err := s.tenants.FindByName(ctx, strings.TrimSpace(ts.Name))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, err
	}
	tenant, err := models.NewTenant(id.NewTenantID(), ts.Name, requestcontext.Now(ctx))
	if err != nil {
		return nil, false, err
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, false, err
	}
	return tenant, true, nil
}

func (s *Seeder) ensureApp(ctx context.Context, as AppSeed) (*models.App, bool, error) {
	slug := strings.TrimSpace(as.Slug)
	existing, err := s.apps.FindBySlug(ctx, slug)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, err
	}
	app, err := models.NewApp(id.NewAppID(), slug, as.Name, as.Domain, requestcontext.Now(ctx))
	if err != nil {
		return nil, false, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, false, err
	}
	return app, true, nil
}
