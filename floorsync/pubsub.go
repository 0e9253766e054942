package floorsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// PubSubPushHandler accepts MES events pushed by a Pub/Sub subscription.
// Malformed envelopes are acked with 204 so they do not loop; a transient
// delivery failure returns 500 and lets Pub/Sub redeliver into the dedupe.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var event FloorEvent
		if err := json.Unmarshal(envelope.Message.Data, &event); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if event.MessageId == "" {
			event.MessageId = envelope.Message.ID
		}

		if err := processFloorEvent(c.Request.Context(), logger, event); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// RunFloorSubscriber pulls MES events when the deployment has no push
// subscription. Nack on error; the dedupe row absorbs the redelivery.
func RunFloorSubscriber(ctx context.Context) error {
	logger := config.GetLogger()

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := strings.TrimSpace(os.Getenv("FLOOR_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "floor-events"
	}
	subName := strings.TrimSpace(os.Getenv("FLOOR_SYNC_SUBSCRIPTION"))
	if subName == "" {
		subName = "floor-events-sync"
	}

	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		var event FloorEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			config.LogError(logger, "pubsub.go", "RunFloorSubscriber", "Unmarshaling floor event", msg.Data, err)
			msg.Ack()
			return
		}
		if event.MessageId == "" {
			event.MessageId = msg.ID
		}
		if err := processFloorEvent(ctx, logger, event); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "pubsub.go", "RunFloorSubscriber", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}
