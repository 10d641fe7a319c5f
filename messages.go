package coopvest

import "time"

// Server-to-client frames for the realtime protocol. Each frame carries a
// literal type tag so clients can switch on it; constructors keep the tags in
// one place.

type ConnectedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

func NewConnectedFrame(connectionID string) ConnectedFrame {
	return ConnectedFrame{Type: "connected", ConnectionID: connectionID}
}

type AuthenticatedFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

func NewAuthenticatedFrame(userID string) AuthenticatedFrame {
	return AuthenticatedFrame{Type: "authenticated", UserID: userID}
}

type SubscriptionFrame struct {
	Type   string `json:"type"`
	LoanID string `json:"loanId"`
}

func NewSubscribedFrame(loanID string) SubscriptionFrame {
	return SubscriptionFrame{Type: "subscribed", LoanID: loanID}
}

func NewUnsubscribedFrame(loanID string) SubscriptionFrame {
	return SubscriptionFrame{Type: "unsubscribed", LoanID: loanID}
}

type LoanProgressFrame struct {
	Type       string      `json:"type"`
	LoanID     string      `json:"loanId"`
	Timestamp  time.Time   `json:"timestamp"`
	Progress   Progress    `json:"progress"`
	Guarantors []Guarantor `json:"guarantors"`
}

func NewLoanProgressFrame(loanID string, progress Progress, guarantors []Guarantor) LoanProgressFrame {
	if guarantors == nil {
		guarantors = []Guarantor{}
	}
	return LoanProgressFrame{
		Type:       "loan_progress",
		LoanID:     loanID,
		Timestamp:  time.Now().UTC(),
		Progress:   progress,
		Guarantors: guarantors,
	}
}

type GuarantorActionFrame struct {
	Type      string          `json:"type"`
	LoanID    string          `json:"loanId"`
	Timestamp time.Time       `json:"timestamp"`
	Action    GuarantorAction `json:"action"`
}

func NewGuarantorActionFrame(loanID string, action GuarantorAction) GuarantorActionFrame {
	return GuarantorActionFrame{
		Type:      "guarantor_action",
		LoanID:    loanID,
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}

type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewPongFrame(at time.Time) PongFrame {
	return PongFrame{Type: "pong", Timestamp: at.UnixMilli()}
}

type NotificationFrame struct {
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	Notification any       `json:"notification"`
}

func NewNotificationFrame(notification any) NotificationFrame {
	return NotificationFrame{Type: "notification", Timestamp: time.Now().UTC(), Notification: notification}
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}
