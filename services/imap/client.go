package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailbridge_errors "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/enum"
	"github.com/taskcloud/mailbridge/internal/models"
	"github.com/taskcloud/mailbridge/internal/tracing"
)

// connectMailbox establishes an authenticated connection for one user mailbox.
func (s *mailSource) connectMailbox(ctx context.Context, user *models.UserMailbox) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailSource.connectMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, user.ID)
	span.SetTag("server", user.ImapServer)
	span.SetTag("port", user.ImapPort)
	span.SetTag("tls", user.ImapTLS)

	serverAddr := fmt.Sprintf("%s:%d", user.ImapServer, user.ImapPort)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if user.ImapTLS {
		tlsConfig := &tls.Config{
			ServerName: user.ImapServer,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}

	if err != nil {
		err = errors.Wrapf(mailbridge_errors.ErrMailConnection, "failed to connect to %s: %v", serverAddr, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	c.Timeout = 30 * time.Second

	if _, err := c.Capability(); err != nil {
		c.Logout()
		err = errors.Wrapf(mailbridge_errors.ErrMailConnection, "capability check failed: %v", err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Authenticate with either a static secret or an OAuth-issued bearer token.
	switch user.AuthMethod {
	case enum.AuthOAuth:
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: user.MailboxAddress,
			Token:    user.AuthSecret,
		})
		err = c.Authenticate(saslClient)
	default:
		err = c.Login(user.MailboxAddress, user.AuthSecret)
	}

	if err != nil {
		c.Logout()
		err = errors.Wrapf(mailbridge_errors.ErrMailAuth, "failed to login as %s: %v", user.MailboxAddress, err)
		tracing.TraceErr(span, err)
		return nil, err
	}

	// No timeout for normal operations
	c.Timeout = 0

	return c, nil
}

// disconnect logs out with a bounded wait so a dead server cannot hang a pass.
func (s *mailSource) disconnect(c *client.Client) {
	if c == nil {
		return
	}

	c.Timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
		close(done)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warnf("Error during logout: %v", err)
		}
	case <-time.After(5 * time.Second):
		s.log.Warn("Logout timed out")
	}
}
