package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"switchboard-sdk/pkg/types"
)

// Send writes msg to the session. Only type, context, content and to_user are sent;
// the server assigns the rest. Every failure is a SendFailed error. Permission
// checks are the server's job and come back as message_error frames.
func (c *Client) Send(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return types.NewError(types.KindSendFailed, "failed to send message", types.ErrMissingContent)
	}

	ctx, span := c.tracer.Start(ctx, "switchboard.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("switchboard.message_type", string(msg.Type)),
			attribute.String("switchboard.context", msg.Context),
		))
	defer span.End()

	err := c.send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) send(ctx context.Context, msg *types.Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == types.StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		return types.NewError(types.KindSendFailed, "failed to send message", types.ErrNotConnected)
	}

	data, err := types.EncodeMessage(msg)
	if err != nil {
		return types.NewError(types.KindSendFailed, "failed to encode message", err)
	}
	if err := conn.WriteMessage(ctx, data); err != nil {
		c.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("Send failed")
		return types.NewError(types.KindSendFailed, "failed to send message", err)
	}

	c.metrics.MessageSent(msg.Type)
	c.logger.Debug().Str("type", string(msg.Type)).Str("context", msg.Context).Msg("Sent message")
	return nil
}

// SendMessage builds, validates and sends a message. An empty context becomes
// "general". Validation failures are returned as SendFailed without touching the socket.
func (c *Client) SendMessage(ctx context.Context, t types.MessageType, msgContext string, content map[string]any, toUser string) error {
	msg := &types.Message{
		Type:    t,
		Context: msgContext,
		Content: content,
		ToUser:  toUser,
	}
	if msg.Content == nil {
		msg.Content = map[string]any{}
	}
	if err := msg.Validate(); err != nil {
		return types.NewError(types.KindSendFailed, "invalid message", err)
	}
	return c.Send(ctx, msg)
}
