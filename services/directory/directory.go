package directory

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"go.uber.org/zap"
)

const lockStripes = 64

// User listing page bounds
const (
	DefaultUserPage = 50
	MaxUserPage     = 200
)

// MsgListUsersForbidden is returned to callers without the admin role
const MsgListUsersForbidden = "Only admins can list users"

// Auditor receives directory events. *audit.AuditService satisfies it.
type Auditor interface {
	LogUserCreated(ctx context.Context, user *models.User)
	LogRoleChanged(ctx context.Context, user *models.User, from models.Role)
}

// Directory maps verified identities to persisted users and assigns roles.
type Directory struct {
	users      repositories.UserRepository
	txMgr      repositories.TransactionManager
	adminEmail string
	auditor    Auditor
	logger     *zap.Logger

	locks [lockStripes]sync.Mutex
}

// NewDirectory creates a Directory. adminEmail may be empty; auditor may be nil.
func NewDirectory(users repositories.UserRepository, txMgr repositories.TransactionManager, adminEmail string, auditor Auditor, logger *zap.Logger) *Directory {
	return &Directory{
		users:      users,
		txMgr:      txMgr,
		adminEmail: models.NormalizeEmail(adminEmail),
		auditor:    auditor,
		logger:     logger,
	}
}

// change is what ResolveOrCreate did, reported after the transaction commits.
type change struct {
	created  bool
	roleFrom models.Role
	roleSet  bool
}

// ResolveOrCreate returns the user for email, creating it on first sight.
// Calls for the same email are serialized here and, across processes, by the
// unique email index. Repeating a call with the same input changes nothing.
func (d *Directory) ResolveOrCreate(ctx context.Context, email, subjectID, displayName string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, services.ErrInvalidEmail
	}

	mu := d.lockFor(email)
	mu.Lock()
	defer mu.Unlock()

	var ch change
	user, err := services.WithTransactionResult(ctx, d.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		ch = change{}
		return d.resolve(ctx, email, subjectID, displayName, &ch)
	})
	if err != nil {
		return nil, err
	}

	if d.auditor != nil {
		if ch.created {
			d.auditor.LogUserCreated(ctx, user)
		}
		if ch.roleSet {
			d.auditor.LogRoleChanged(ctx, user, ch.roleFrom)
		}
	}
	return user, nil
}

func (d *Directory) resolve(ctx context.Context, email, subjectID, displayName string, ch *change) (*models.User, error) {
	user, err := d.users.GetByEmail(ctx, email)
	if err != nil && !services.IsNotFoundError(err) {
		return nil, services.WrapInternal("failed to look up user", err)
	}

	if user == nil {
		candidate := models.NewGoogleUser(email, subjectID, displayName, d.roleFor(email, ""))
		created, err := d.users.CreateIfAbsent(ctx, candidate)
		if err != nil {
			return nil, services.WrapInternal("failed to create user", err)
		}
		if created {
			ch.created = true
			d.logger.Info("user created",
				zap.String("email", email),
				zap.String("role", candidate.Role.String()))
			return candidate, nil
		}

		// Another process inserted the row first.
		user, err = d.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, services.WrapInternal("failed to re-read user", err)
		}
	}

	if want := d.roleFor(email, user.Role); want != user.Role {
		if err := d.users.UpdateRole(ctx, email, want); err != nil {
			return nil, services.WrapInternal("failed to update user role", err)
		}
		d.logger.Info("user role changed",
			zap.String("email", email),
			zap.String("from", user.Role.String()),
			zap.String("to", want.String()))
		ch.roleFrom, ch.roleSet = user.Role, true
		user.Role = want
	}

	if user.ProviderSubject == "" && subjectID != "" {
		if err := d.users.UpdateProviderSubject(ctx, email, subjectID); err != nil {
			return nil, services.WrapInternal("failed to link identity", err)
		}
		user.ProviderSubject = subjectID
	} else if subjectID != "" && user.ProviderSubject != subjectID {
		d.logger.Warn("identity subject differs from stored subject",
			zap.String("email", email))
	}

	return user, nil
}

// roleFor applies the role policy: the configured admin email is always admin,
// anything else keeps a valid stored role and falls back to student.
func (d *Directory) roleFor(email string, stored models.Role) models.Role {
	if d.adminEmail != "" && email == d.adminEmail {
		return models.RoleAdmin
	}
	if stored.IsValid() {
		return stored
	}
	return models.RoleStudent
}

func (d *Directory) lockFor(email string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return &d.locks[h.Sum32()%lockStripes]
}

// ProvisionAdmin makes sure the configured admin email has an admin user row.
func (d *Directory) ProvisionAdmin(ctx context.Context) error {
	if d.adminEmail == "" {
		d.logger.Warn("no admin email configured; nobody will be able to modify courses")
		return nil
	}

	user, err := d.ResolveOrCreate(ctx, d.adminEmail, "", "")
	if err != nil {
		return err
	}
	d.logger.Info("admin provisioned", zap.String("email", user.Email))
	return nil
}

// ListUsers returns a page of users in sign-up order. Admin only.
// limit is clamped to [1, MaxUserPage]; zero selects DefaultUserPage.
func (d *Directory) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgListUsersForbidden); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultUserPage
	}
	if limit > MaxUserPage {
		limit = MaxUserPage
	}
	if offset < 0 {
		offset = 0
	}

	users, err := d.users.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return users, nil
}
