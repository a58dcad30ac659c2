package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/model"
)

// DueLoan describes a loan that is coming due or overdue, as reported by the
// loan directory collaborator.
type DueLoan struct {
	LoanID    string
	User      string
	BookTitle string
	DueDate   time.Time
}

// Overdue returns true if the loan's due date has already passed.
func (l *DueLoan) Overdue(now time.Time) bool {
	return l.DueDate.Before(now)
}

// LoanDirectory describes the loan service collaborator used to find loans that
// need reminders.
type LoanDirectory interface {
	ListDueLoans(ctx context.Context, daysBeforeDue int, includeOverdue bool) ([]DueLoan, error)
}

// SendLoanReminders dispatches one loan-reminder notification per loan due
// within the requested horizon. Overdue loans get high-priority reminders.
// Reminder records are deduplicated per (request, loan), so retrying a reminder
// run never notifies a borrower twice for the same loan.
func (e *Engine) SendLoanReminders(
	ctx context.Context,
	loans LoanDirectory,
	request *model.LoanReminderRequest,
) (*model.DispatchSummary, error) {
	if request.DaysBeforeDue < 0 {
		return nil, common.NewValidationError("days_before_due", "must not be negative")
	}
	if len(request.CustomMessage) > model.MaxMessageLength {
		return nil, common.NewValidationError("custom_message", "must be at most %d characters", model.MaxMessageLength)
	}

	requestID := request.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	dueLoans, err := loans.ListDueLoans(ctx, request.DaysBeforeDue, request.IncludeOverdue)
	if err != nil {
		return nil, common.NewDependencyError(err, "unable to list due loans")
	}

	now := e.now()
	summary := &model.DispatchSummary{}
	for i := range dueLoans {
		loan := &dueLoans[i]

		subject, message, priority := loanReminderContent(loan, now, request.CustomMessage)
		created, suppressed, err := e.dispatchOne(
			ctx,
			requestID+"|"+loan.LoanID,
			loan.User,
			model.TypeLoan,
			subject,
			message,
			priority,
			true,
			map[string]interface{}{
				"loan_id":    loan.LoanID,
				"book_title": loan.BookTitle,
				"due_date":   loan.DueDate.Format(time.RFC3339),
			},
		)
		if err != nil {
			log.Errorf("unable to send a loan reminder to %s: %s", loan.User, err.Error())
			summary.Failed = append(summary.Failed, loan.User)
			continue
		}
		if created {
			summary.Created++
		}
		if suppressed {
			summary.Suppressed++
		}
	}

	return summary, nil
}

// loanReminderContent builds the subject, message, and priority for a single
// loan reminder.
func loanReminderContent(loan *DueLoan, now time.Time, customMessage string) (string, string, model.Priority) {
	if loan.Overdue(now) {
		subject := fmt.Sprintf("Overdue: %s", loan.BookTitle)
		message := customMessage
		if message == "" {
			message = fmt.Sprintf(
				"Your loan of %s was due on %s. Please return it as soon as possible.",
				loan.BookTitle, loan.DueDate.Format("January 2, 2006"),
			)
		}
		return subject, message, model.PriorityHigh
	}

	subject := fmt.Sprintf("Due soon: %s", loan.BookTitle)
	message := customMessage
	if message == "" {
		message = fmt.Sprintf(
			"Your loan of %s is due on %s.",
			loan.BookTitle, loan.DueDate.Format("January 2, 2006"),
		)
	}
	return subject, message, model.PriorityNormal
}
