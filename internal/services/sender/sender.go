// Package sender отправляет письма по событиям из очередей уведомлений.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/lib/smtp"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// Service формирует и отправляет письма через SMTP.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendPaymentReceived обработчик очереди payment.paid.
func (s *Service) SendPaymentReceived(body []byte) error {
	const op = "services.sender.SendPaymentReceived"

	var message models.PaymentNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if message.Email == "" {
		return fmt.Errorf("%s: message without recipient, order %d", op, message.OrderID)
	}

	planName := message.PlanID
	if plan, ok := models.LookupPlan(message.PlanID); ok {
		planName = plan.Name
	}
	subject := "Оплата получена"
	bodyText := fmt.Sprintf("Здравствуйте!\n\nОплата заказа №%d на сумму %s получена.\n%s действует до %s.\n\nСпасибо, что вы с нами.",
		message.OrderID,
		models.FormatAmount(message.Amount),
		planName,
		message.EndDate.Format("02.01.2006"))

	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

// SendExpiringReminder обработчик очереди subscription.expiring.
func (s *Service) SendExpiringReminder(body []byte) error {
	const op = "services.sender.SendExpiringReminder"

	var message models.ExpiringNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if message.Email == "" {
		return fmt.Errorf("%s: message without recipient, account %s", op, message.AccountID)
	}

	subject := "Подписка заканчивается завтра"
	bodyText := fmt.Sprintf("Здравствуйте!\n\nВаша подписка заканчивается %s.\nПродлите её заранее, чтобы не потерять доступ.",
		message.EndDate.Format("02.01.2006 15:04 MST"))
	if message.PlanID == models.PlanTrial {
		subject = "Пробный период заканчивается завтра"
		bodyText = fmt.Sprintf("Здравствуйте!\n\nПробный период заканчивается %s.\nОформите подписку, чтобы продолжить пользоваться сервисом.",
			message.EndDate.Format("02.01.2006 15:04 MST"))
	}

	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	const op = "services.sender.sendEmail"
	log := s.log.With(slog.String("op", op))

	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = wc.Close(); err != nil {
		log.Error("failed to close Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email sent", slog.Any("to", to), slog.String("subject", subject))
	return nil
}
