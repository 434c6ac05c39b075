package cadencesdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Backends have served the same record with snake_case, camelCase and
// all-lowercase keys, and numeric columns as JSON strings. The decoders
// below accept any of those and produce one shape.

type ScheduleEntry struct {
	DayOfWeek int      `json:"day_of_week"`
	Times     []string `json:"times"`
}

func (s *ScheduleEntry) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out ScheduleEntry
	if err := f.int(&out.DayOfWeek, "dayofweek", "day", "weekday"); err != nil {
		return err
	}
	if err := f.decode(&out.Times, "times"); err != nil {
		return err
	}
	for i, t := range out.Times {
		// "HH:MM:SS" from time columns
		if len(t) == 8 && t[2] == ':' && t[5] == ':' {
			out.Times[i] = t[:5]
		}
	}
	*s = out
	return nil
}

// Definition is a task definition as served by the API.
type Definition struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Schedules     []ScheduleEntry `json:"schedules"`
	Priority      int             `json:"priority"`
	TrackBy       string          `json:"track_by"`
	Categories    []string        `json:"categories"`
	DefaultAmount *float64        `json:"default_amount"`
	DailyGoal     int             `json:"daily_goal"`
	WeeklyGoal    int             `json:"weekly_goal"`
	MonthlyGoal   int             `json:"monthly_goal"`
	YearlyGoal    int             `json:"yearly_goal"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// UnmarshalJSON accepts naming variants. A missing priority reads as 1 and
// a missing active flag as true.
func (d *Definition) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	out := Definition{Priority: 1, IsActive: true}
	steps := []error{
		f.int64(&out.ID, "id"),
		f.str(&out.UserID, "userid", "owner", "ownerid"),
		f.str(&out.Name, "name"),
		f.decode(&out.Schedules, "schedules", "schedule"),
		f.int(&out.Priority, "priority"),
		f.str(&out.TrackBy, "trackby", "trackbylabel"),
		f.decode(&out.Categories, "categories"),
		f.optFloat(&out.DefaultAmount, "defaultamount"),
		f.int(&out.DailyGoal, "dailygoal"),
		f.int(&out.WeeklyGoal, "weeklygoal"),
		f.int(&out.MonthlyGoal, "monthlygoal"),
		f.int(&out.YearlyGoal, "yearlygoal"),
		f.bool(&out.IsActive, "isactive", "active"),
		f.str(&out.CreatedAt, "createdat"),
		f.str(&out.UpdatedAt, "updatedat"),
	}
	if raw, ok := f.get("goals"); ok && !isNull(raw) {
		var g map[string]json.RawMessage
		if err := json.Unmarshal(raw, &g); err == nil {
			nested := fields(normalizeKeys(g))
			steps = append(steps,
				nested.int(&out.DailyGoal, "daily"),
				nested.int(&out.WeeklyGoal, "weekly"),
				nested.int(&out.MonthlyGoal, "monthly"),
				nested.int(&out.YearlyGoal, "yearly"),
			)
		}
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	*d = out
	return nil
}

// LogEntry is one completion record.
type LogEntry struct {
	ID           int64     `json:"id"`
	DefinitionID int64     `json:"definition_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Amount       *float64  `json:"amount"`
	Description  string    `json:"description"`
	Category     *string   `json:"category"`
	ClientRef    string    `json:"client_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out LogEntry
	var created string
	steps := []error{
		f.int64(&out.ID, "id"),
		f.int64(&out.DefinitionID, "definitionid", "taskdefinitionid", "taskid"),
		f.str(&out.UserID, "userid", "owner"),
		f.str(&out.Name, "name"),
		f.optFloat(&out.Amount, "amount"),
		f.str(&out.Description, "description"),
		f.optStr(&out.Category, "category"),
		f.str(&out.ClientRef, "clientref"),
		f.str(&created, "createdat", "created", "timestamp"),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	if created != "" {
		ts, err := ParseTimestamp(created)
		if err != nil {
			return fmt.Errorf("log entry %d: %w", out.ID, err)
		}
		out.CreatedAt = ts
	}
	*e = out
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads the timestamp encodings seen on the wire. Values
// without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type fields map[string]json.RawMessage

func normalizeKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
}

func normalizeKeys(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[normalizeKey(k)] = v
	}
	return out
}

func decodeFields(data []byte) (fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fields(normalizeKeys(raw)), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) get(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f fields) decode(dst any, keys ...string) error {
	raw, ok := f.get(keys...)
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", keys[0], err)
	}
	return nil
}

func (f fields) str(dst *string, keys ...string) error {
	raw, ok := f.get(keys...)
	if !ok || isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*dst = s
		return nil
	}
	// numbers and bools are rendered as text
	*dst = strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	return nil
}

func (f fields) optStr(dst **string, keys ...string) error {
	raw, ok := f.get(keys...)
	if !ok || isNull(raw) {
		*dst = nil
		return nil
	}
	var s string
	if err := f.str(&s, keys...); err != nil {
		return err
	}
	*dst = &s
	return nil
}

func (f fields) number(keys ...string) (float64, bool, error) {
	raw, ok := f.get(keys...)
	if !ok || isNull(raw) {
		return 0, false, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, fmt.Errorf("field %s: not a number", keys[0])
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return n, true, nil
}

func (f fields) optFloat(dst **float64, keys ...string) error {
	n, ok, err := f.number(keys...)
	if err != nil {
		return err
	}
	if !ok {
		*dst = nil
		return nil
	}
	*dst = &n
	return nil
}

func (f fields) int(dst *int, keys ...string) error {
	n, ok, err := f.number(keys...)
	if err != nil || !ok {
		return err
	}
	*dst = int(n)
	return nil
}

func (f fields) int64(dst *int64, keys ...string) error {
	n, ok, err := f.number(keys...)
	if err != nil || !ok {
		return err
	}
	*dst = int64(n)
	return nil
}

func (f fields) bool(dst *bool, keys ...string) error {
	raw, ok := f.get(keys...)
	if !ok || isNull(raw) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		*dst = b
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			*dst = parsed
			return nil
		}
	}
	if n, ok, err := f.number(keys...); err == nil && ok {
		*dst = n != 0
		return nil
	}
	return fmt.Errorf("field %s: not a boolean", keys[0])
}
