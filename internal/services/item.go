package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lostboard/apiserver/internal/mq"
	"github.com/lostboard/apiserver/internal/store"
	"github.com/lostboard/apiserver/types"
	"go.uber.org/zap"
)

// ItemRepository defines persistence operations for reports.
type ItemRepository interface {
	List(ctx context.Context, itemType types.ItemType) ([]types.Item, error)
	Get(ctx context.Context, id int) (types.Item, error)
	Create(ctx context.Context, item types.Item) (types.Item, error)
	DeleteOwned(ctx context.Context, id, userID int) (*string, error)
}

// EventPublisher sends serialized events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// DefaultPublishTimeout bounds how long a create or delete waits on the broker.
const DefaultPublishTimeout = 2 * time.Second

// ItemService encapsulates report use-cases.
type ItemService struct {
	items          ItemRepository
	images         *ImageStore
	events         EventPublisher
	channel        string
	publishTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewItemService(items ItemRepository, images *ImageStore, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{
		items:          items,
		images:         images,
		publishTimeout: DefaultPublishTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// WithEvents makes the service publish item events to channel.
func (s *ItemService) WithEvents(events EventPublisher, channel string) *ItemService {
	s.events = events
	s.channel = channel
	return s
}

type CreateItemInput struct {
	Name        string
	Description string
	Location    string
	Type        string
	UserID      int
	Image       *Upload
}

// List returns reports newest first. A filter other than "lost" or "found"
// returns every report.
func (s *ItemService) List(ctx context.Context, filter string) ([]types.Item, error) {
	itemType, _ := types.ParseItemType(filter)
	items, err := s.items.List(ctx, itemType)
	if err != nil {
		return nil, internalError("failed to list items", err)
	}
	return items, nil
}

func (s *ItemService) Get(ctx context.Context, id int) (types.Item, error) {
	if id < 1 {
		return types.Item{}, newError(KindInvalidArgument, "item id is required")
	}
	item, err := s.items.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Item{}, newError(KindNotFound, "item not found")
		}
		return types.Item{}, internalError("failed to fetch item", err)
	}
	return item, nil
}

// Create validates and stores a report, saving the optional image first.
func (s *ItemService) Create(ctx context.Context, in CreateItemInput) (types.Item, error) {
	item := types.Item{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		UserID:      in.UserID,
	}
	if item.Name == "" || item.Description == "" || item.Location == "" || in.Type == "" || item.UserID < 1 {
		return types.Item{}, newError(KindInvalidArgument, "name, description, location, type and user_id are required")
	}
	itemType, ok := types.ParseItemType(strings.TrimSpace(in.Type))
	if !ok {
		return types.Item{}, newError(KindInvalidArgument, "type must be lost or found")
	}
	item.Type = itemType

	if in.Image != nil {
		path, err := s.images.Save(ctx, folderItems, *in.Image)
		if err != nil {
			return types.Item{}, err
		}
		item.ImageURL = &path
	}

	created, err := s.items.Create(ctx, item)
	if err != nil {
		if item.ImageURL != nil {
			s.removeImage(ctx, *item.ImageURL)
		}
		return types.Item{}, internalError("failed to create item", err)
	}

	s.publish(ctx, types.EventItemCreated, created)
	return created, nil
}

// Delete permanently removes a report owned by requesterID.
func (s *ItemService) Delete(ctx context.Context, id, requesterID int) error {
	if requesterID < 1 {
		return newError(KindUnauthenticated, "authentication required")
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.UserID != requesterID {
		return newError(KindForbidden, "you can only delete your own reports")
	}

	imageURL, err := s.items.DeleteOwned(ctx, id, requesterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "item not found")
		}
		return internalError("failed to delete item", err)
	}
	if imageURL != nil {
		s.removeImage(ctx, *imageURL)
	}

	s.publish(ctx, types.EventItemDeleted, item)
	return nil
}

func (s *ItemService) removeImage(ctx context.Context, path string) {
	if err := s.images.Remove(ctx, path); err != nil {
		s.logger.Warn("failed to remove item image", zap.String("path", path), zap.Error(err))
	}
}

func (s *ItemService) publish(ctx context.Context, event string, item types.Item) {
	if s.events == nil {
		return
	}
	data, attrs, err := mq.EncodeItemEvent(types.ItemEvent{
		Event:      event,
		ItemID:     item.ID,
		UserID:     item.UserID,
		Type:       item.Type,
		OccurredAt: s.now().UTC(),
	})
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		_, err = s.events.Publish(pubCtx, s.channel, data, attrs)
		cancel()
	}
	if err != nil {
		s.logger.Warn("failed to publish item event",
			zap.String("event", event),
			zap.Int("item_id", item.ID),
			zap.Error(err),
		)
	}
}
