package notifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/torsoroso16/api-project/internal/domain/notification"
	"go.uber.org/zap"
)

type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error
}

type Handler struct {
	Store       NotificationStore
	Out         notification.EmailSender
	Clock       notification.Clock
	FrontendURL string
	AppName     string
	Log         *zap.Logger
}

type rendered struct {
	Subject string
	Body    string
}

// Render builds the message for ev. The token only ever appears inside the link.
func (h *Handler) Render(ev notification.EmailRequested) (rendered, error) {
	var path, subject, intro, outro string
	switch ev.Kind {
	case notification.EmailVerification:
		path = "/auth/verify-email"
		subject = "Verify your email address"
		intro = "Thanks for signing up. Confirm your email address by opening the link below:"
		outro = "If you did not create an account, you can ignore this message."
	case notification.EmailPasswordReset:
		path = "/auth/reset-password"
		subject = "Reset your password"
		intro = "We received a request to reset your password. Open the link below to choose a new one:"
		outro = "The link expires in one hour. If you did not ask for a reset, no action is needed."
	default:
		return rendered{}, fmt.Errorf("unknown email kind %q", ev.Kind)
	}

	link, err := h.link(path, ev.Token)
	if err != nil {
		return rendered{}, err
	}
	name := h.AppName
	if name == "" {
		name = "Storefront"
	}
	body := fmt.Sprintf("Hello,\n\n%s\n\n%s\n\n%s\n\n%s team\n", intro, link, outro, name)
	return rendered{Subject: subject, Body: body}, nil
}

func (h *Handler) link(path, token string) (string, error) {
	base, err := url.Parse(strings.TrimRight(h.FrontendURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("bad frontend url %q", h.FrontendURL)
	}
	u := base.JoinPath(path)
	u.RawQuery = url.Values{"token": []string{token}}.Encode()
	return u.String(), nil
}

func (h *Handler) HandleEmailRequested(ctx context.Context, ev notification.EmailRequested) error {
	if ev.To == "" || ev.Token == "" {
		h.logger().Warn("email request without recipient or token", zap.String("kind", string(ev.Kind)))
		return nil
	}
	msg, err := h.Render(ev)
	if err != nil {
		return err
	}
	if err := h.Out.Send(ctx, ev.To, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	// the payload keeps only what was sent, without the token
	if err := h.Store.Create(ctx, &notification.Notification{
		Kind:      ev.Kind,
		Recipient: ev.To,
		SentAt:    h.Clock.Now().UTC(),
		Payload:   msg.Subject,
	}); err != nil {
		h.logger().Warn("record notification", zap.Error(err))
	}
	return nil
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
