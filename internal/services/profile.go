package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/lostboard/apiserver/internal/store"
	"github.com/lostboard/apiserver/types"
	"go.uber.org/zap"
)

var contactNumberPattern = regexp.MustCompile(`^[0-9 +()-]+$`)

// ProfileService reads and updates the authenticated user's own account.
type ProfileService struct {
	users  UserRepository
	images *ImageStore
	logger *zap.Logger
}

func NewProfileService(users UserRepository, images *ImageStore, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{users: users, images: images, logger: logger}
}

// ProfileUpdate carries the editable profile fields. A nil ContactNumber
// keeps the stored value and a blank one clears it. A nil ProfilePic keeps
// the current picture.
type ProfileUpdate struct {
	Username      string
	Email         string
	ContactNumber *string
	ProfilePic    *Upload
}

func (s *ProfileService) GetSelf(ctx context.Context, userID int) (types.User, error) {
	if userID < 1 {
		return types.User{}, newError(KindUnauthenticated, "authentication required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newError(KindNotFound, "user not found")
		}
		return types.User{}, internalError("failed to load user", err)
	}
	return user, nil
}

// UpdateSelf applies in to the user's row and returns the stored result.
func (s *ProfileService) UpdateSelf(ctx context.Context, userID int, in ProfileUpdate) (types.User, error) {
	if userID < 1 {
		return types.User{}, newError(KindUnauthenticated, "authentication required")
	}
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" {
		return types.User{}, newError(KindInvalidArgument, "username and email are required")
	}

	current, err := s.GetSelf(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	updated := current
	updated.Username = username
	updated.Email = email

	if in.ContactNumber != nil {
		contact := strings.TrimSpace(*in.ContactNumber)
		switch {
		case contact == "":
			updated.ContactNumber = nil
		case contactNumberPattern.MatchString(contact):
			updated.ContactNumber = &contact
		default:
			return types.User{}, newError(KindInvalidArgument, "invalid contact number format")
		}
	}

	var newPic string
	if in.ProfilePic != nil {
		newPic, err = s.images.Save(ctx, folderProfiles, *in.ProfilePic)
		if err != nil {
			return types.User{}, err
		}
		updated.ProfilePic = &newPic
	}

	if err := s.users.UpdateProfile(ctx, updated); err != nil {
		if newPic != "" {
			s.removeImage(ctx, newPic)
		}
		if conflict := conflictError(err); conflict != nil {
			return types.User{}, conflict
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newError(KindNotFound, "user not found")
		}
		return types.User{}, internalError("failed to update user", err)
	}

	if newPic != "" && current.ProfilePic != nil && *current.ProfilePic != newPic {
		s.removeImage(ctx, *current.ProfilePic)
	}

	return s.GetSelf(ctx, userID)
}

func (s *ProfileService) removeImage(ctx context.Context, path string) {
	if err := s.images.Remove(ctx, path); err != nil {
		s.logger.Warn("failed to remove profile picture", zap.String("path", path), zap.Error(err))
	}
}
