package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

const orderReferenceRandomLength = 10

// UUIDReferenceGenerator produces ORD_<RANDOM>_<unix> order references and
// TXN_<uuid> transaction references.
type UUIDReferenceGenerator struct{}

func (UUIDReferenceGenerator) NewID() string {
	return uuid.NewString()
}

func (UUIDReferenceGenerator) OrderReference(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD_%s_%d", random[:orderReferenceRandomLength], now.Unix())
}

func (UUIDReferenceGenerator) TransactionReference() string {
	return "TXN_" + uuid.NewString()
}
