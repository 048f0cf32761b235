package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/observability"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
)

// NotificationIntent asks an external dispatcher to notify one user about an event.
// The engine never performs delivery itself.
type NotificationIntent struct {
	RecipientID uint                         `json:"recipient_id"`
	EventType   models.NotificationEventType `json:"event_type"`
	EntityID    uint                         `json:"entity_id"`
	Payload     map[string]interface{}       `json:"payload"`
}

// Dispatcher hands notification intents to whatever delivers them.
type Dispatcher interface {
	Dispatch(ctx context.Context, intents []NotificationIntent) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, intents []NotificationIntent) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, intents []NotificationIntent) error {
	return f(ctx, intents)
}

type storeDispatcher struct {
	repo repository.NotificationRepository
}

// NewStoreDispatcher persists intents as notification rows for an outbox-style consumer.
func NewStoreDispatcher(repo repository.NotificationRepository) Dispatcher {
	return &storeDispatcher{repo: repo}
}

func (d *storeDispatcher) Dispatch(ctx context.Context, intents []NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}

	rows := make([]models.Notification, 0, len(intents))
	for _, intent := range intents {
		rows = append(rows, models.Notification{
			RecipientID: intent.RecipientID,
			EventType:   intent.EventType,
			EntityID:    intent.EntityID,
			Payload:     datatypes.JSONMap(intent.Payload),
		})
	}

	if err := d.repo.CreateBatch(ctx, rows); err != nil {
		return err
	}

	for _, intent := range intents {
		observability.NotificationsPublished().WithLabelValues(string(intent.EventType)).Inc()
	}
	return nil
}

type brokerEvent struct {
	Source string             `json:"source"`
	Intent NotificationIntent `json:"intent"`
	SentAt time.Time          `json:"sent_at"`
}

type brokerDispatcher struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	nodeID      string
	clock       clock.Clock
}

// NewBrokerDispatcher publishes intents on Redis pub/sub and/or NATS so that
// external delivery workers can consume them. Either client may be nil.
func NewBrokerDispatcher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, clk clock.Clock) Dispatcher {
	if clk == nil {
		clk = clock.System()
	}

	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &brokerDispatcher{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		nodeID:      uuid.NewString(),
		clock:       clk,
	}
}

func (d *brokerDispatcher) Dispatch(ctx context.Context, intents []NotificationIntent) error {
	var errs []error
	for _, intent := range intents {
		payload, err := json.Marshal(brokerEvent{Source: d.nodeID, Intent: intent, SentAt: d.clock.Now()})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if d.redis != nil && d.redisStream != "" {
			if err := d.redis.Publish(ctx, d.redisStream, payload).Err(); err != nil {
				errs = append(errs, err)
			}
		}

		if d.nats != nil && d.natsSubject != "" {
			if err := d.nats.Publish(d.natsSubject, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

type multiDispatcher struct {
	primary   Dispatcher
	secondary []Dispatcher
	logger    zerolog.Logger
}

// NewMultiDispatcher fans intents out. Only the primary's error is returned;
// secondary failures are logged.
func NewMultiDispatcher(logger zerolog.Logger, primary Dispatcher, secondary ...Dispatcher) Dispatcher {
	return &multiDispatcher{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "notification_dispatcher").Logger(),
	}
}

func (d *multiDispatcher) Dispatch(ctx context.Context, intents []NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}

	if err := d.primary.Dispatch(ctx, intents); err != nil {
		return err
	}

	for _, next := range d.secondary {
		if next == nil {
			continue
		}
		if err := next.Dispatch(ctx, intents); err != nil {
			d.logger.Warn().Err(err).Int("intents", len(intents)).Msg("failed to publish notification intents to broker")
		}
	}
	return nil
}

// NotificationService lets recipients read their stored intents.
type NotificationService interface {
	List(ctx context.Context, recipientID uint, limit, offset int) ([]dto.NotificationResponse, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

// NewNotificationService constructs a notification read service.
func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, recipientID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	if recipientID == 0 {
		return nil, errors.New("recipient id is required")
	}

	notifications, err := s.repo.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func lifecycleIntents(event LifecycleEvent, assignment models.Assignment) []NotificationIntent {
	if !event.Changed {
		return nil
	}

	eventType := models.NotificationAssignmentPublished
	if event.To == models.AssignmentStatusClosed {
		eventType = models.NotificationAssignmentClosed
	}

	intents := make([]NotificationIntent, 0, len(event.Recipients))
	for _, recipient := range event.Recipients {
		intents = append(intents, NotificationIntent{
			RecipientID: recipient,
			EventType:   eventType,
			EntityID:    assignment.ID,
			Payload: map[string]interface{}{
				"assignment_id": assignment.ID,
				"title":         assignment.Title,
				"status":        string(event.To),
				"due_at":        assignment.DueAt.Format(time.RFC3339),
				"at":            event.At.Format(time.RFC3339),
			},
		})
	}
	return intents
}
