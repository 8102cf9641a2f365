package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/mqtt"
)

// revokeTimeout bounds one revoke command.
const revokeTimeout = 10 * time.Second

// ErrInvalidCommand is returned for a revoke payload without an account id.
var ErrInvalidCommand = errors.New("events: invalid revoke command")

// Revoker ends an account's session.
type Revoker interface {
	Logout(ctx context.Context, accountID string) error
}

// Subscriber is the part of the MQTT client the revoke listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
}

// RevokeCommand is the payload accepted on {prefix}/command/revoke.
type RevokeCommand struct {
	AccountID string `json:"account_id"`
}

// SubscribeRevoke listens for revoke commands and ends the named account's
// session. Other services use it to force a sign-out without calling the
// HTTP API. Access tokens already issued stay valid until they expire.
func SubscribeRevoke(client Subscriber, revoker Revoker, logger *logging.Logger) error {
	topic := client.Topics().RevokeCommand()
	if err := client.Subscribe(topic, 1, RevokeHandler(revoker, logger)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	logger.Info("listening for revoke commands", "topic", topic)
	return nil
}

// RevokeHandler returns the MQTT message handler behind SubscribeRevoke.
func RevokeHandler(revoker Revoker, logger *logging.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		var cmd RevokeCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if cmd.AccountID == "" {
			return fmt.Errorf("%w: account_id is required", ErrInvalidCommand)
		}

		ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		defer cancel()
		ctx = auth.WithRemoteAddr(ctx, "mqtt:"+topic)

		if err := revoker.Logout(ctx, cmd.AccountID); err != nil {
			return fmt.Errorf("revoking session: %w", err)
		}
		logger.Info("session revoked by command", "account_id", cmd.AccountID)
		return nil
	}
}
