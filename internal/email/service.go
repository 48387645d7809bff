package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Service handles email sending via SMTP
type Service struct {
	host   string
	port   string
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewService(host, port, from string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		host:   host,
		port:   port,
		from:   from,
		send:   smtp.SendMail,
		logger: logger.Named("email"),
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to string, c Confirmation) error {
	body, err := BuildOrderConfirmationBody(c)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Order confirmed: %s", c.OrderID)
	if err := s.deliver(to, subject, body); err != nil {
		return fmt.Errorf("send confirmation for %s: %w", c.OrderID, err)
	}
	s.logger.Info("order confirmation sent", zap.String("order_id", c.OrderID), zap.String("to", to))
	return nil
}

func (s *Service) deliver(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("email: header contains a line break")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}
