package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Protocol record kinds understood by this service. Everything else is
// ignored at ingest time.
const (
	KindDateEvent = 31922 // all-day calendar event
	KindTimeEvent = 31923 // timed calendar event
	KindCalendar  = 31924 // calendar definition
	KindRSVP      = 31925 // event rsvp
)

// RecordKinds lists the kinds the store is asked for.
var RecordKinds = []int{KindDateEvent, KindTimeEvent, KindCalendar, KindRSVP}

// Tag is a single record tag: a name followed by value fields.
type Tag []string

// Name returns the tag name or "" for malformed tags.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first tag value or "".
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// TagList is the ordered tag set of a record. It round-trips to JSONB.
type TagList []Tag

// First returns the first tag with the given name.
func (l TagList) First(name string) (Tag, bool) {
	for _, tag := range l {
		if tag.Name() == name {
			return tag, true
		}
	}
	return nil, false
}

// FirstValue returns the first value of the named tag or "".
func (l TagList) FirstValue(name string) string {
	if tag, ok := l.First(name); ok {
		return tag.Value()
	}
	return ""
}

// Values collects the first value of every tag with the given name.
func (l TagList) Values(name string) []string {
	var values []string
	for _, tag := range l {
		if tag.Name() == name && tag.Value() != "" {
			values = append(values, tag.Value())
		}
	}
	return values
}

// Value implements driver.Valuer for JSONB storage.
func (l TagList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for JSONB storage.
func (l *TagList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported tags source %T", src)
	}
}

// Record is a raw signed protocol record as persisted by the relay ingest
// pipeline. Seq is the store-assigned monotonic sequence used for polling.
type Record struct {
	ID        string  `db:"id" json:"id"`
	Pubkey    string  `db:"pubkey" json:"pubkey"`
	Kind      int     `db:"kind" json:"kind"`
	CreatedAt int64   `db:"created_at" json:"created_at"`
	Tags      TagList `db:"tags" json:"tags"`
	Content   string  `db:"content" json:"content"`
	Sig       string  `db:"sig" json:"sig"`
	Seq       int64   `db:"seq" json:"-"`
}
