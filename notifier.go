package identity

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/mrz1836/postmark"
)

// PostmarkSender is the slice of the Postmark API the notifier uses.
type PostmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// NotifierConfig holds the delivery options for token emails. BaseURL is
// the public origin used to build activation and reset links.
type NotifierConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	ProductName  string
	BaseURL      string
}

// PostmarkNotifier delivers activation and recovery tokens through the
// Postmark transactional API.
type PostmarkNotifier struct {
	client PostmarkSender
	config NotifierConfig
	logger Logger
}

var _ Notifier = (*PostmarkNotifier)(nil)

// NewPostmarkNotifier creates a Postmark backed notifier.
func NewPostmarkNotifier(config NotifierConfig) (*PostmarkNotifier, error) {
	if config.ServerToken == "" {
		return nil, goerrors.New("postmark server token is required", goerrors.CategoryValidation)
	}
	if config.SenderEmail == "" {
		return nil, goerrors.New("sender email is required", goerrors.CategoryValidation)
	}

	return &PostmarkNotifier{
		client: postmark.NewClient(config.ServerToken, config.AccountToken),
		config: config,
		logger: defLogger{},
	}, nil
}

// WithClient overrides the underlying Postmark client, mainly for tests.
func (n *PostmarkNotifier) WithClient(client PostmarkSender) *PostmarkNotifier {
	if client != nil {
		n.client = client
	}
	return n
}

// WithLogger overrides the logger used by the notifier.
func (n *PostmarkNotifier) WithLogger(logger Logger) *PostmarkNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

func (n *PostmarkNotifier) SendActivation(ctx context.Context, user *User, token string) error {
	link := fmt.Sprintf("%s/activate?token=%s", n.config.BaseURL, token)

	return n.send(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		To:       user.Email,
		Subject:  fmt.Sprintf("Confirm your %s account", n.config.ProductName),
		Tag:      "account-activation",
		HTMLBody: fmt.Sprintf(activationBody, userDisplayName(user), n.config.ProductName, link),
	})
}

func (n *PostmarkNotifier) SendPasswordReset(ctx context.Context, user *User, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", n.config.BaseURL, token)

	return n.send(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		To:       user.Email,
		Subject:  fmt.Sprintf("Reset your %s password", n.config.ProductName),
		Tag:      "password-reset",
		HTMLBody: fmt.Sprintf(resetBody, userDisplayName(user), link),
	})
}

func (n *PostmarkNotifier) send(ctx context.Context, email postmark.Email) error {
	resp, err := n.client.SendEmail(ctx, email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "postmark delivery failed")
	}

	if resp.ErrorCode > 0 {
		return goerrors.New("postmark rejected the message", goerrors.CategoryInternal).
			WithMetadata(map[string]any{
				"error_code": resp.ErrorCode,
				"message":    resp.Message,
			})
	}

	n.logger.Debug("delivered %s email to %s", email.Tag, email.To)
	return nil
}

func userDisplayName(user *User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	return user.Email
}

const activationBody = `<p>Hi %s,</p>
<p>Welcome to %s. Confirm your email address to activate your account:</p>
<p><a href="%s">Activate account</a></p>
<p>If you did not create this account you can ignore this message.</p>`

const resetBody = `<p>Hi %s,</p>
<p>We received a request to reset your password. The link below works once:</p>
<p><a href="%s">Reset password</a></p>
<p>If you did not request this, your password is unchanged.</p>`

// LogNotifier writes tokens to the logger instead of delivering email.
// Meant for development and tests.
type LogNotifier struct {
	logger Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger Logger) *LogNotifier {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendActivation(_ context.Context, user *User, token string) error {
	n.logger.Info("activation token for %s: %s", user.Email, token)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, user *User, token string) error {
	n.logger.Info("password reset token for %s: %s", user.Email, token)
	return nil
}
