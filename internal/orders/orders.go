// Package orders enforces a case's test allow-list and resolves canned
// results.
package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/medisim/internal/casedoc"
)

// ErrTestNotAllowed is returned when a test is not on the case's allow-list.
var ErrTestNotAllowed = errors.New("test not allowed for this case")

// Order is a requested diagnostic test.
type Order struct {
	TestName  string
	CreatedAt time.Time
}

// Result is the canned outcome of an Order.
type Result struct {
	Text      string
	CreatedAt time.Time
}

// Fulfillment pairs an Order with its Result. The two are always created
// and stored together.
type Fulfillment struct {
	Order  Order
	Result Result
}

// Fulfill checks testName against c.OrdersAllowed (exact match) and, when
// allowed, returns the order with its result. Tests without a canned result
// resolve to casedoc.PendingResult.
func Fulfill(testName string, c *casedoc.Case, now time.Time) (*Fulfillment, error) {
	if !c.Allows(testName) {
		return nil, fmt.Errorf("%q: %w", testName, ErrTestNotAllowed)
	}
	return &Fulfillment{
		Order:  Order{TestName: testName, CreatedAt: now},
		Result: Result{Text: c.ResultFor(testName), CreatedAt: now},
	}, nil
}

// Suggest returns allowed tests whose names contain query, ignoring case.
// It lets callers point a student at the right spelling after a rejection.
func Suggest(query string, c *casedoc.Case) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []string
	for _, name := range c.OrdersAllowed {
		l := strings.ToLower(name)
		if strings.Contains(l, q) || strings.Contains(q, l) {
			out = append(out, name)
		}
	}
	return out
}

// TestNames returns the test names of fs in order.
func TestNames(fs []Fulfillment) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Order.TestName
	}
	return out
}
