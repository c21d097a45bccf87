package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	ChannelStore  = "store"
	ChannelPubSub = "pubsub"
	ChannelChat   = "chat"
)

// StoreChannel keeps a row per message so staff can see what each customer was told.
type StoreChannel struct {
	repo Repository
	now  func() time.Time
}

func NewStoreChannel(repo Repository) *StoreChannel {
	return &StoreChannel{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (c *StoreChannel) Name() string { return ChannelStore }

func (c *StoreChannel) Accepts(enums.NotificationAudience) bool { return true }

func (c *StoreChannel) Deliver(ctx context.Context, msg Message) error {
	return c.repo.Create(ctx, &models.Notification{
		ID:        uuid.New(),
		OrderID:   msg.OrderID,
		Audience:  msg.Audience,
		Channel:   ChannelStore,
		Message:   msg.Text,
		CreatedAt: c.now(),
	})
}

// JSONPublisher publishes a JSON payload to a topic.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// CustomerEmailRequest is the payload the mailer consumes from the notification topic.
type CustomerEmailRequest struct {
	OrderID        string `json:"order_id"`
	To             string `json:"to"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Message        string `json:"message"`
}

// PubSubChannel hands customer messages to the mailer through Pub/Sub.
type PubSubChannel struct {
	publisher JSONPublisher
}

func NewPubSubChannel(publisher JSONPublisher) *PubSubChannel {
	return &PubSubChannel{publisher: publisher}
}

func (c *PubSubChannel) Name() string { return ChannelPubSub }

func (c *PubSubChannel) Accepts(audience enums.NotificationAudience) bool {
	return audience == enums.NotificationAudienceCustomer
}

func (c *PubSubChannel) Deliver(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.CustomerEmail) == "" {
		return fmt.Errorf("customer email missing")
	}
	_, err := c.publisher.PublishJSON(ctx, CustomerEmailRequest{
		OrderID:        msg.OrderID.String(),
		To:             msg.CustomerEmail,
		Name:           msg.CustomerName,
		Status:         string(msg.Status),
		PreviousStatus: string(msg.PreviousStatus),
		Message:        msg.Text,
	}, map[string]string{
		"event_type": "order_status_changed",
		"order_id":   msg.OrderID.String(),
	})
	return err
}

// ChatChannel posts staff messages to an incoming chat webhook.
type ChatChannel struct {
	client     *resty.Client
	webhookURL string
}

// NewChatChannel returns nil when no webhook is configured.
func NewChatChannel(cfg config.NotificationsConfig) *ChatChannel {
	webhookURL := strings.TrimSpace(cfg.ChatWebhookURL)
	if webhookURL == "" {
		return nil
	}
	timeout := cfg.ChatTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.ChatRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= 500 || resp.StatusCode() == 429
		})
	return &ChatChannel{client: client, webhookURL: webhookURL}
}

func (c *ChatChannel) Name() string { return ChannelChat }

func (c *ChatChannel) Accepts(audience enums.NotificationAudience) bool {
	return audience == enums.NotificationAudienceStaff
}

func (c *ChatChannel) Deliver(ctx context.Context, msg Message) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": msg.Text}).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("post chat webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("chat webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
