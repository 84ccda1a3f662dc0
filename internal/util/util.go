package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NormalizePhone(p string) string {
	// keep it simple for MVP
	// TODO -  may use libphonenumber
	return strings.ReplaceAll(strings.TrimSpace(p), " ", "")
}

func newID(prefix string) string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewActionID() string  { return newID("act") }
func NewContactID() string { return newID("ct") }
func NewProfileID() string { return newID("pr") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
