package notify

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Sender delivers one rendered message to an address. The transport behind
// it (SMTP, provider API) is outside this subsystem.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender is the default transport: it logs the message instead of
// handing it to a mail provider.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.Logger.Info("notification sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

// SendEmail asks the send actor to deliver one message.
type SendEmail struct {
	To      string
	Subject string
	Body    string
}

// SendResult reports the delivery outcome back to the dispatcher.
type SendResult struct {
	Err string
}

// SendActor serializes deliveries through the configured sender.
type SendActor struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
}

func (a *SendActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *SendEmail:
		sendCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.sender.Send(sendCtx, msg.To, msg.Subject, msg.Body)
		cancel()

		result := &SendResult{}
		if err != nil {
			result.Err = err.Error()
		}
		ctx.Respond(result)

	case *actor.Started:
		a.logger.Info("send actor started")

	case *actor.Stopped:
		a.logger.Info("send actor stopped")
	}
}

// SpawnSendActor starts the delivery actor in system.
func SpawnSendActor(system *actor.ActorSystem, sender Sender, timeout time.Duration, logger *zap.Logger) (*actor.PID, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &SendActor{sender: sender, timeout: timeout, logger: logger.Named("send-actor")}
	})
	return system.Root.SpawnNamed(props, "notify-send-actor")
}
