package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/repos"
	"github.com/yungbote/teachpack-backend/internal/requestdata"
	"github.com/yungbote/teachpack-backend/internal/types"
)

type UserService interface {
	GetMe(ctx context.Context, tx *gorm.DB) (*types.User, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo) UserService {
	return &userService{
		db:       db,
		log:      log.With("service", "UserService"),
		userRepo: userRepo,
	}
}

func (us *userService) GetMe(ctx context.Context, tx *gorm.DB) (*types.User, error) {
	userID, ok := requestdata.UserIDFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("No request data found in context")
	}
	users, err := us.userRepo.GetByIDs(ctx, tx, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("User not found")
	}
	return users[0], nil
}
