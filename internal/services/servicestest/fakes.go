// Package servicestest provides in-memory implementations of the
// repositories, object storage and broker used by the services.
package servicestest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/lostboard/apiserver/internal/mq"
	"github.com/lostboard/apiserver/internal/storage"
	"github.com/lostboard/apiserver/internal/store"
	"github.com/lostboard/apiserver/types"
)

// Users is an in-memory user repository with unique username and email.
type Users struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.User

	// Err, when set, is returned by every call.
	Err error
}

func NewUsers() *Users {
	return &Users{nextID: 1, rows: make(map[int]types.User)}
}

func (u *Users) GetByID(ctx context.Context, id int) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return types.User{}, u.Err
	}
	user, ok := u.rows[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return types.User{}, u.Err
	}
	for _, user := range u.rows {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return types.User{}, u.Err
	}
	if err := u.checkUnique(0, user); err != nil {
		return types.User{}, err
	}
	user.ID = u.nextID
	u.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	u.rows[user.ID] = user
	return user, nil
}

func (u *Users) UpdateProfile(ctx context.Context, user types.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	current, ok := u.rows[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := u.checkUnique(user.ID, user); err != nil {
		return err
	}
	current.Username = user.Username
	current.Email = user.Email
	current.ContactNumber = user.ContactNumber
	current.ProfilePic = user.ProfilePic
	current.UpdatedAt = time.Now()
	u.rows[user.ID] = current
	return nil
}

// Count returns the number of stored users.
func (u *Users) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rows)
}

func (u *Users) checkUnique(selfID int, user types.User) error {
	for id, existing := range u.rows {
		if id == selfID {
			continue
		}
		if existing.Username == user.Username {
			return &store.UniqueViolation{Field: "username"}
		}
		if existing.Email == user.Email {
			return &store.UniqueViolation{Field: "email"}
		}
	}
	return nil
}

func (u *Users) contact(id int) types.Contact {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.rows[id]
	if !ok {
		return types.Contact{}
	}
	username, email := user.Username, user.Email
	return types.Contact{Username: &username, Email: &email, ContactNumber: user.ContactNumber}
}

// Items is an in-memory report repository. Owner contact details are joined
// from Users when it is set.
type Items struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.Item
	users  *Users

	// Err, when set, is returned by every call.
	Err error
}

func NewItems(users *Users) *Items {
	return &Items{nextID: 1, rows: make(map[int]types.Item), users: users}
}

func (i *Items) List(ctx context.Context, itemType types.ItemType) ([]types.Item, error) {
	i.mu.Lock()
	if i.Err != nil {
		i.mu.Unlock()
		return nil, i.Err
	}
	items := make([]types.Item, 0, len(i.rows))
	for _, item := range i.rows {
		if itemType == "" || item.Type == itemType {
			items = append(items, item)
		}
	}
	i.mu.Unlock()

	sort.Slice(items, func(a, b int) bool { return items[a].ID > items[b].ID })
	for idx := range items {
		items[idx] = i.join(items[idx])
	}
	return items, nil
}

func (i *Items) Get(ctx context.Context, id int) (types.Item, error) {
	i.mu.Lock()
	if i.Err != nil {
		i.mu.Unlock()
		return types.Item{}, i.Err
	}
	item, ok := i.rows[id]
	i.mu.Unlock()
	if !ok {
		return types.Item{}, store.ErrNotFound
	}
	return i.join(item), nil
}

func (i *Items) Create(ctx context.Context, item types.Item) (types.Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Err != nil {
		return types.Item{}, i.Err
	}
	item.ID = i.nextID
	i.nextID++
	item.CreatedAt = time.Now()
	item.Contact = types.Contact{}
	i.rows[item.ID] = item
	return item, nil
}

func (i *Items) DeleteOwned(ctx context.Context, id, userID int) (*string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Err != nil {
		return nil, i.Err
	}
	item, ok := i.rows[id]
	if !ok || item.UserID != userID {
		return nil, store.ErrNotFound
	}
	delete(i.rows, id)
	return item.ImageURL, nil
}

// Count returns the number of stored reports.
func (i *Items) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.rows)
}

func (i *Items) join(item types.Item) types.Item {
	if i.users != nil {
		item.Contact = i.users.contact(item.UserID)
	}
	return item
}

// Objects is an in-memory object store satisfying storage.ObjectStorage.
type Objects struct {
	mu   sync.Mutex
	data map[string][]byte

	// PutErr, when set, is returned by Put.
	PutErr error
}

var _ storage.ObjectStorage = (*Objects)(nil)

func NewObjects() *Objects {
	return &Objects{data: make(map[string][]byte)}
}

func (o *Objects) EnsureBucket(ctx context.Context) error { return nil }

func (o *Objects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if o.PutErr != nil {
		return o.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[key] = data
	return nil
}

func (o *Objects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.data[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *Objects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.data, key)
	return nil
}

func (o *Objects) Bucket() string { return "memory" }

func (o *Objects) Close() error { return nil }

// Keys returns the stored keys in sorted order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.data))
	for key := range o.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Publisher records published item events.
type Publisher struct {
	mu       sync.Mutex
	events   []types.ItemEvent
	channels []string

	// Err, when set, is returned by Publish.
	Err error
}

func (p *Publisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	event, err := mq.DecodeItemEvent(mq.Message{Data: data, Attributes: attrs})
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.channels = append(p.channels, channel)
	return "", nil
}

// Events returns the published events in order.
func (p *Publisher) Events() []types.ItemEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ItemEvent(nil), p.events...)
}

// Channels returns the channel of each published event.
func (p *Publisher) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

// ErrUnavailable is a generic backend failure for tests.
var ErrUnavailable = errors.New("backend unavailable")

// PNG is the smallest byte sequence sniffed as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
