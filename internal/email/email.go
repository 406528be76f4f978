// Package email delivers the portal's account emails: the welcome message
// sent on invite and the password recovery link.
package email

import "context"

// Message is one outbound email with a plain-text body and an optional HTML
// alternative.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message. Implementations must not log message bodies
// outside development.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
