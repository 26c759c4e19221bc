package encounter

import (
	"github.com/abhisek/medisim/internal/orders"
	"github.com/abhisek/medisim/internal/session"
)

// replyMsg is sent when the patient has answered a question.
type replyMsg struct {
	Exchange *session.Exchange
	Err      error
}

// orderMsg is sent when an order has been placed or rejected.
type orderMsg struct {
	TestName    string
	Fulfillment *orders.Fulfillment
	Err         error
}

// resultsMsg carries every result ordered so far.
type resultsMsg struct {
	Fulfillments []orders.Fulfillment
	Err          error
}

// submittedMsg is sent when the run has been scored.
type submittedMsg struct {
	Report *session.Report
	Err    error
}
