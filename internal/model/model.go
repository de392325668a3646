// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownKind reports a service kind code that is not part of the
// closed ServiceKind set. A stored row carrying such a code is corrupt
// and gets skipped, never silently coerced.
var ErrUnknownKind = errors.New("unknown service kind")

// ServiceKind identifies one of the update categories the bot can watch.
// The integer code is the persisted representation; the set is closed.
type ServiceKind int

// Supported service kinds.
const (
	KindWeather ServiceKind = 1
	KindBlog    ServiceKind = 2
	KindManga   ServiceKind = 3
)

// EpochSentinel is the high-water mark assigned on subscribe and
// unsubscribe for BLOG and MANGA so that a later poll treats every
// upstream entry as new.
var EpochSentinel = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// String returns the stable name of the kind, matching the seeded
// service_kinds rows.
func (k ServiceKind) String() string {
	switch k {
	case KindWeather:
		return "WEATHER"
	case KindBlog:
		return "BLOG"
	case KindManga:
		return "MANGA"
	default:
		return fmt.Sprintf("ServiceKind(%d)", int(k))
	}
}

// Code returns the persisted integer code of the kind.
func (k ServiceKind) Code() int { return int(k) }

// Multi reports whether the kind permits multiple subscription rows per
// chat, one per distinct detail. Single-instance kinds keep detail empty.
func (k ServiceKind) Multi() bool { return k == KindManga }

// KindFromCode validates a persisted integer code.
func KindFromCode(code int) (ServiceKind, error) {
	switch k := ServiceKind(code); k {
	case KindWeather, KindBlog, KindManga:
		return k, nil
	default:
		return 0, fmt.Errorf("%w: code %d", ErrUnknownKind, code)
	}
}

// KindFromName resolves a kind by its stable name, case-insensitively.
func KindFromName(name string) (ServiceKind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "WEATHER":
		return KindWeather, nil
	case "BLOG":
		return KindBlog, nil
	case "MANGA":
		return KindManga, nil
	default:
		return 0, fmt.Errorf("%w: name %q", ErrUnknownKind, name)
	}
}

// Kinds returns all members of the closed set in code order.
func Kinds() []ServiceKind {
	return []ServiceKind{KindWeather, KindBlog, KindManga}
}

// Chat is an addressable conversation the bot can message. Chats are
// deactivated on opt-out, never deleted.
type Chat struct {
	ID          string
	Active      bool
	LastUpdated time.Time
}

// Subscription controls whether and from-when the bot watches one
// update source for a chat. For BLOG and MANGA, LastUpdated doubles as
// the high-water mark of the last notified item. Detail is empty except
// for MANGA, where it holds the watched title ID and a chat may own one
// row per distinct detail.
type Subscription struct {
	ID          int64
	ChatID      string
	Kind        ServiceKind
	Active      bool
	LastUpdated time.Time
	Detail      string
}
