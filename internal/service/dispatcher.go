package service

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/events"
	"github.com/fathima-sithara/school-chat/internal/models"
	"go.uber.org/zap"
)

// ListLimit caps how many notifications List returns.
const ListLimit = 50

// Dispatcher owns the notification records.
type Dispatcher struct {
	store NotificationStore
	bus   EventPublisher
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewDispatcher(store NotificationStore, bus EventPublisher, log *zap.SugaredLogger) *Dispatcher {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Dispatcher{store: store, bus: bus, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (d *Dispatcher) prepare(n *models.Notification) error {
	if n.UserID == "" || n.Title == "" || n.Message == "" {
		return apperr.Validation("Missing required notification fields")
	}
	if !n.UserModel.IsParticipant() {
		return apperr.Validation("Invalid userModel")
	}
	if !n.Type.Valid() {
		return apperr.Validation("Invalid notification type")
	}
	if n.ID == "" {
		n.ID = models.NewID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = d.now()
	}
	n.Read = false
	return nil
}

// Create stores one notification, unread.
func (d *Dispatcher) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n == nil {
		return nil, apperr.Validation("Missing required notification fields")
	}
	if err := d.prepare(n); err != nil {
		return nil, err
	}
	if err := d.store.Insert(ctx, n); err != nil {
		return nil, apperr.Persistence("Failed to create notification", err)
	}
	if err := d.bus.Publish(ctx, n.UserID, events.TypeNotificationCreated, n); err != nil {
		d.log.Warnw("event publish failed", "type", events.TypeNotificationCreated, "userId", n.UserID, "error", err)
	}
	return n, nil
}

// CreateBatch stores many notifications with one bulk write. Invalid entries are
// skipped and logged; the stored ones are returned and announced on the bus.
func (d *Dispatcher) CreateBatch(ctx context.Context, ns []models.Notification) ([]models.Notification, error) {
	valid := make([]models.Notification, 0, len(ns))
	for i := range ns {
		n := ns[i]
		if err := d.prepare(&n); err != nil {
			d.log.Warnw("skipping notification", "userId", n.UserID, "error", err)
			continue
		}
		valid = append(valid, n)
	}
	if len(valid) == 0 {
		return nil, nil
	}
	if err := d.store.InsertMany(ctx, valid); err != nil {
		return nil, apperr.Persistence("Failed to create notifications", err)
	}
	for i := range valid {
		if err := d.bus.Publish(ctx, valid[i].UserID, events.TypeNotificationCreated, &valid[i]); err != nil {
			d.log.Warnw("event publish failed", "type", events.TypeNotificationCreated, "userId", valid[i].UserID, "error", err)
		}
	}
	d.log.Infow("notifications created", "count", len(valid))
	return valid, nil
}

func parseOptionalRole(role string) (models.Role, error) {
	if role == "" {
		return "", nil
	}
	r, ok := models.ParseRole(role)
	if !ok {
		return "", apperr.Validation("Invalid role")
	}
	return r, nil
}

// List returns the newest notifications of a user together with the total number of
// unread ones. role narrows the result to notifications addressed to that role.
func (d *Dispatcher) List(ctx context.Context, userID, role string) (*models.NotificationPage, error) {
	if userID == "" {
		return nil, apperr.Validation("User ID is required")
	}
	r, err := parseOptionalRole(role)
	if err != nil {
		return nil, err
	}
	list, err := d.store.ListRecent(ctx, userID, r, ListLimit)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch notifications", err)
	}
	unread, err := d.store.CountUnread(ctx, userID, r)
	if err != nil {
		return nil, apperr.Persistence("Failed to fetch notifications", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return &models.NotificationPage{Notifications: list, UnreadCount: unread}, nil
}

func (d *Dispatcher) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	if id == "" {
		return nil, apperr.Validation("Notification ID is required")
	}
	n, err := d.store.MarkRead(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("Notification not found")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to update notification", err)
	}
	return n, nil
}

// MarkAllRead returns how many notifications changed state.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID, role string) (int64, error) {
	if userID == "" {
		return 0, apperr.Validation("User ID is required")
	}
	r, err := parseOptionalRole(role)
	if err != nil {
		return 0, err
	}
	n, err := d.store.MarkAllRead(ctx, userID, r)
	if err != nil {
		return 0, apperr.Persistence("Failed to update notifications", err)
	}
	return n, nil
}

func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("Notification ID is required")
	}
	err := d.store.Delete(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("Notification not found")
	}
	if err != nil {
		return apperr.Persistence("Failed to delete notification", err)
	}
	return nil
}
