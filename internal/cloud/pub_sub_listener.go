// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects a subscription to the command that runs one job
// task per message.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in the background until ctx is cancelled.
//
// Every message is acknowledged once its command has run, whatever the
// outcome: a job that fails records the failure in its status and is never
// retried as a whole, so redelivery would only repeat the failure.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			if err := m.Process(msgCtx, msg); err != nil {
				slog.ErrorContext(msgCtx, "job task failed", "message_id", msg.ID, "error", err)
			}
			msg.Ack()
		})
		if err != nil {
			slog.Error("error receiving job tasks", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

// Process runs the command on one message body and returns its joined
// errors.
func (m *PubSubListener) Process(ctx context.Context, msg *pubsub.Message) error {
	spanCtx, span := otel.Tracer("job-listener").Start(ctx, "receive-job-task")
	defer span.End()
	span.SetAttributes(
		attribute.String("message_id", msg.ID),
		attribute.String("job_id", msg.Attributes["job_id"]),
		attribute.String("kind", msg.Attributes["kind"]),
	)

	chainCtx := cor.NewContext(spanCtx)
	defer chainCtx.Close()
	chainCtx.Add(cor.CtxIn, string(msg.Data))

	m.command.Execute(chainCtx)

	if err := cor.JoinErrors(chainCtx); err != nil {
		span.SetStatus(codes.Error, "failed")
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}
