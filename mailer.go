package auth

import (
	"context"
	"fmt"
)

// LogMailer writes outgoing notifications to stdout. It stands in for a real
// transport during development and in tests.
type LogMailer struct {
	logger Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: defLogger{}}
}

func (m *LogMailer) WithLogger(l Logger) *LogMailer {
	if l != nil {
		m.logger = l
	}
	return m
}

func (m *LogMailer) SendWelcome(ctx context.Context, to, name string) error {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", to)
	fmt.Printf("subject: Welcome, %s!\n", name)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", to)
	fmt.Printf("subject: Your password reset token (valid for 10 min)\n")
	fmt.Printf("link: %s\n", resetURL)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
