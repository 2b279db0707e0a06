package session

import "time"

// Status is the lifecycle state of a campaign session. "sending" is the
// only non-terminal state; transitions only move forward and a terminal
// session is never mutated again.
type Status string

const (
	StatusSending    Status = "sending"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDailyLimit Status = "daily_limit_reached"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool { return s != StatusSending }

// SendError records one failed recipient.
type SendError struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// Session is the progress record of one bulk-dispatch run. It is written
// by exactly one dispatcher goroutine; the control surface reads snapshots
// and may flip the Cancelled flag.
type Session struct {
	ID              string `json:"id"`
	AccountID       string `json:"accountId"`
	TotalRecipients int    `json:"totalRecipients"`

	SentCount        int    `json:"sentCount"`
	FailedCount      int    `json:"failedCount"`
	CurrentIndex     int    `json:"currentIndex"`
	CurrentRecipient string `json:"currentRecipient"`

	Status    Status `json:"status"`
	Cancelled bool   `json:"cancelled"`

	StartTime        time.Time  `json:"startTime"`
	EstimatedEndTime time.Time  `json:"estimatedEndTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`

	Errors []SendError `json:"errors"`
}

func (s Session) clone() Session {
	cp := s
	if len(s.Errors) > 0 {
		cp.Errors = append([]SendError(nil), s.Errors...)
	}
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return cp
}
