package orders

import (
	"github.com/google/uuid"
	"strconv"
	"strings"
	"time"
)

// NewOrderNo returns a customer-facing number like ORD-20261014-3F9A0C1B.
// Uniqueness is enforced by the orders_order_no_key constraint.
func NewOrderNo(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + t.UTC().Format("20060102") + "-" + suffix
}

func itoa(i int) string { return strconv.Itoa(i) }
