// Package identity is the user/identity collaborator: user lookup with a
// redis read-through cache, backed by the relational user store.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/marketplace/pkg/config"
	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ErrNoUser is returned when a user id does not resolve.
var ErrNoUser = errors.New("user not found")

// Service resolves user ids to identity records and role flags.
type Service struct {
	db     *gorm.DB
	redis  *repository.RedisRepository
	logger *zap.Logger
}

func NewService(cfg *config.MySQLConfig, redis *repository.RedisRepository, logger *zap.Logger) (*Service, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Service{db: db, redis: redis, logger: logger}, nil
}

// Lookup resolves a user id, serving from the redis cache when warm.
func (s *Service) Lookup(ctx context.Context, id string) (*models.User, error) {
	if cached, err := s.redis.GetUserCache(ctx, id); err == nil {
		return &models.User{
			ID:    cached.ID,
			Name:  cached.Name,
			Email: cached.Email,
			Role:  models.Role(cached.Role),
		}, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoUser
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.redis.CacheUser(ctx, &repository.UserCache{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
	}); err != nil {
		s.logger.Warn("failed to cache user", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &user, nil
}

// Email resolves a user id to its delivery address, for the notification
// dispatcher.
func (s *Service) Email(ctx context.Context, id string) (string, error) {
	user, err := s.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// Actor resolves a user id to the request actor the order lifecycle manager
// consumes.
func (s *Service) Actor(ctx context.Context, id string) (models.Actor, error) {
	user, err := s.Lookup(ctx, id)
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}
