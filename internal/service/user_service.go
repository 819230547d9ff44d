package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"update-user-service/internal/domain"
	"update-user-service/internal/events"
	"update-user-service/internal/metrics"
	"update-user-service/internal/repository"
)

const (
	// passwordCost is the bcrypt work factor for stored credentials.
	passwordCost = 10
	// maxPasswordBytes is the longest input bcrypt digests; longer
	// passwords are cut to this length before hashing and verifying.
	maxPasswordBytes = 72
)

var (
	// ErrPasswordRequired is returned when an update carries no password.
	ErrPasswordRequired = errors.New("password is required")
	// ErrUsernameRequired is returned when the target username is blank.
	ErrUsernameRequired = errors.New("username is required")
)

// UserService describes user update operations.
type UserService interface {
	UpdateUser(ctx context.Context, username string, update domain.UserUpdate) (domain.UpdateResult, error)
}

type userService struct {
	users     repository.UserRepository
	publisher events.Publisher
	logger    *logrus.Logger
	metrics   *metrics.Recorder
}

func NewUserService(users repository.UserRepository, publisher events.Publisher, logger *logrus.Logger, rec *metrics.Recorder) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:     users,
		publisher: publisher,
		logger:    logger,
		metrics:   rec,
	}
}

// UpdateUser hashes the password, applies the partial update and, only once
// the store accepted it, emits a UserUpdated event. Event delivery problems
// are logged and never change the result.
func (s *userService) UpdateUser(ctx context.Context, username string, update domain.UserUpdate) (domain.UpdateResult, error) {
	if strings.TrimSpace(username) == "" {
		s.metrics.Update(metrics.OutcomeFailure)
		return domain.UpdateResult{}, ErrUsernameRequired
	}

	hash, err := hashPassword(update.Password)
	if err != nil {
		s.metrics.Update(metrics.OutcomeFailure)
		return domain.UpdateResult{}, err
	}

	fields := domain.UserFields{
		FirstName:    update.FirstName,
		LastName:     update.LastName,
		Email:        update.Email,
		PasswordHash: hash,
	}

	result, err := s.users.Update(ctx, username, fields)
	if err != nil {
		s.metrics.Update(metrics.OutcomeFailure)
		return domain.UpdateResult{}, err
	}
	s.metrics.Update(metrics.OutcomeSuccess)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, domain.EventUserUpdated, fields.Record(username)); err != nil {
			s.logger.WithError(err).WithField("username", username).Warn("user updated but event not dispatched")
		}
	}

	return result, nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	hash, err := bcrypt.GenerateFromPassword(truncatePassword(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches a hash stored by UpdateUser.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncatePassword(password)) == nil
}

func truncatePassword(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
