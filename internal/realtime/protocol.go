package realtime

import (
	"encoding/json"
	"fmt"
)

// inboundFrame is the closed set of client-originated messages. Adding a
// message kind means adding a variant here and a case to the hub's dispatch
// switch.
type inboundFrame interface {
	isInbound()
}

type authenticateFrame struct {
	Token string
}

type subscribeFrame struct {
	LoanID string
}

type unsubscribeFrame struct {
	LoanID string
}

type pingFrame struct{}

func (authenticateFrame) isInbound() {}
func (subscribeFrame) isInbound()    {}
func (unsubscribeFrame) isInbound()  {}
func (pingFrame) isInbound()         {}

type rawFrame struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	LoanID string `json:"loanId"`
}

// decodeFrame parses and validates one inbound message. Errors are
// user-facing; the hub echoes them back without closing the connection.
func decodeFrame(data []byte) (inboundFrame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid message format")
	}

	switch raw.Type {
	case "authenticate":
		if raw.Token == "" {
			return nil, fmt.Errorf("authentication token required")
		}
		return authenticateFrame{Token: raw.Token}, nil
	case "subscribe_loan":
		if raw.LoanID == "" {
			return nil, fmt.Errorf("loan ID required")
		}
		return subscribeFrame{LoanID: raw.LoanID}, nil
	case "unsubscribe_loan":
		if raw.LoanID == "" {
			return nil, fmt.Errorf("loan ID required")
		}
		return unsubscribeFrame{LoanID: raw.LoanID}, nil
	case "ping":
		return pingFrame{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %s", raw.Type)
	}
}
