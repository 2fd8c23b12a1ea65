package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
	"github.com/sakif/jobboard/internal/model"
	"github.com/sakif/jobboard/internal/payment"
	"github.com/sakif/jobboard/internal/repository"
)

// invalidCredentials is deliberately the same for an unknown email and a
// wrong password.
const invalidCredentials = "These credentials do not match our records."

// AccountService owns user accounts: self-registration, sign-in, and the
// inline provisioning of anonymous submitters during publication.
//
//	AuthHandler / PublishService → AccountService → UserRepository (DB)
//	                                             ↘ payment.Gateway (customer)
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	gateway   payment.Gateway
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	gateway payment.Gateway,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		gateway:   gateway,
		logger:    logger,
	}
}

// Registration is the account part of a sign-up or publication form.
type Registration struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

func (r Registration) normalized() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r
}

// Validate adds an entry to errs for every invalid registration field. The
// email uniqueness check reads the database; a storage failure is returned
// as an error rather than a field message.
func (s *AccountService) Validate(ctx context.Context, reg Registration, errs apperror.FieldErrors) error {
	reg = reg.normalized()

	switch {
	case reg.Name == "":
		errs["name"] = requiredMessage("name")
	case tooLong(reg.Name):
		errs["name"] = "The name may not be greater than 255 characters."
	}

	switch {
	case reg.Email == "":
		errs["email"] = requiredMessage("email")
	case !validEmail(reg.Email):
		errs["email"] = "The email must be a valid email address."
	default:
		taken, err := s.EmailTaken(ctx, reg.Email)
		if err != nil {
			return err
		}
		if taken {
			errs["email"] = "The email has already been taken."
		}
	}

	switch {
	case reg.Password == "":
		errs["password"] = requiredMessage("password")
	case utf8.RuneCountInString(reg.Password) < MinPasswordLength:
		errs["password"] = fmt.Sprintf("The password must be at least %d characters.", MinPasswordLength)
	case len(reg.Password) > 72:
		errs["password"] = "The password may not be greater than 72 bytes."
	case reg.Password != reg.PasswordConfirmation:
		errs["password"] = "The password confirmation does not match."
	}

	return nil
}

// EmailTaken reports whether an account already uses email.
func (s *AccountService) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("service/account: checking email: %w", err)
	}
}

// Register creates an account from the sign-up form. The account is
// registered with the payment gateway lazily, on its first publication.
func (s *AccountService) Register(ctx context.Context, reg Registration) (*model.User, error) {
	errs := apperror.FieldErrors{}
	if err := s.Validate(ctx, reg, errs); err != nil {
		return nil, err
	}
	if err := apperror.Invalid(errs); err != nil {
		return nil, err
	}

	return s.create(ctx, reg.normalized())
}

// Provision creates an account for an anonymous submitter and registers it
// with the payment gateway. The caller has already validated reg.
//
// The account is persisted before the gateway is contacted and is never
// rolled back. When the gateway step fails the returned user is non-nil
// together with the error, so the caller can still sign the new account in.
func (s *AccountService) Provision(ctx context.Context, reg Registration) (*model.User, error) {
	user, err := s.create(ctx, reg.normalized())
	if err != nil {
		return nil, err
	}

	if err := s.EnsureCustomer(ctx, user); err != nil {
		return user, err
	}
	return user, nil
}

// EnsureCustomer registers user with the payment gateway if that has not
// happened yet and stores the customer reference.
func (s *AccountService) EnsureCustomer(ctx context.Context, user *model.User) error {
	if user.CustomerID != "" {
		return nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, payment.Customer{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	})
	if err != nil {
		return fmt.Errorf("service/account: registering customer for %s: %w", user.ID, err)
	}

	if err := s.users.SetCustomerID(ctx, user.ID, customerID); err != nil {
		return fmt.Errorf("service/account: saving customer for %s: %w", user.ID, err)
	}
	user.CustomerID = customerID

	s.logger.Info("customer registered",
		slog.String("userID", user.ID),
		slog.String("customerID", customerID),
	)
	return nil
}

// Login checks an email and password pair.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/account: loading %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/account: verifying password: %w", err)
	}

	return user, nil
}

// GetUserByID returns the account behind a session.
func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not signed in")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AccountService) create(ctx context.Context, reg Registration) (*model.User, error) {
	hash, err := s.passwords.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("service/account: %w", err)
	}

	user := &model.User{
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race with another sign-up for the same address.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", "The email has already been taken.")
		}
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("account created", slog.String("userID", user.ID))
	return user, nil
}
