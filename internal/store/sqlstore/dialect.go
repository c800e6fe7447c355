package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// sqliteTime is fixed width so TEXT comparisons order chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// rebind rewrites ? placeholders to $n for Postgres. Queries never carry a
// literal question mark.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d Dialect) list(v []string) any {
	if v == nil {
		v = []string{}
	}
	if d == Postgres {
		return pq.Array(v)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func (d Dialect) time(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTime)
}

func (d Dialect) timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.time(*t)
}

// containsMember matches rows whose member_ids array holds the bound value.
func (d Dialect) containsMember() string {
	if d == Postgres {
		return "? = ANY(member_ids)"
	}
	return "EXISTS (SELECT 1 FROM json_each(projects.member_ids) WHERE value = ?)"
}

// stringList scans TEXT[] from Postgres and JSON arrays from SQLite.
type stringList []string

func (l *stringList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = []string{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("stringList: unsupported type %T", src)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		*l = []string{}
	case strings.HasPrefix(raw, "["):
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return fmt.Errorf("stringList: %w", err)
		}
		*l = out
	default:
		var arr pq.StringArray
		if err := arr.Scan([]byte(raw)); err != nil {
			return err
		}
		*l = []string(arr)
	}
	if *l == nil {
		*l = []string{}
	}
	return nil
}

// timestamp scans TIMESTAMPTZ values and the SQLite text encoding.
type timestamp struct {
	Time  time.Time
	Valid bool
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("timestamp: unsupported type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{sqliteTime, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}

func (t timestamp) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// jsonValue stores structured columns as JSON text on both dialects.
type jsonValue struct{ v any }

func (j jsonValue) Value() (driver.Value, error) {
	if j.v == nil {
		return nil, nil
	}
	b, err := json.Marshal(j.v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("json column: unsupported type %T", src)
	}
}

type jsonScanner struct{ dst any }

func (j jsonScanner) Scan(src any) error { return scanJSON(src, j.dst) }
