package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes the read-modify-write transactions used for
	// alerts and provider sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

// --- readings ---

func (s *SQLite) InsertReadings(ctx context.Context, readings []model.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert readings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO readings (id, owner_id, value, unit, trend, trend_arrow, source, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert reading: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range readings {
		r := &readings[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		res, err := stmt.ExecContext(ctx,
			r.ID, r.OwnerID, r.Value, r.Unit, r.Trend, r.TrendArrow, r.Source, toMillis(r.Timestamp))
		if err != nil {
			return 0, fmt.Errorf("insert reading: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("check rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit readings: %w", err)
	}
	return inserted, nil
}

const readingColumns = "id, owner_id, value, unit, trend, trend_arrow, source, ts"

func scanReading(row scanner) (model.Reading, error) {
	var r model.Reading
	var ts int64
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Value, &r.Unit, &r.Trend, &r.TrendArrow, &r.Source, &ts); err != nil {
		return r, err
	}
	r.Timestamp = fromMillis(ts)
	return r, nil
}

func (s *SQLite) FindReadings(ctx context.Context, filter model.ReadingFilter) ([]model.Reading, error) {
	query := "SELECT " + readingColumns + " FROM readings"
	where, args := buildReadingWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *SQLite) LatestReading(ctx context.Context, ownerID string, source model.Source) (*model.Reading, error) {
	r, err := scanReading(s.db.QueryRowContext(ctx,
		"SELECT "+readingColumns+" FROM readings WHERE owner_id = ? AND source = ? ORDER BY ts DESC LIMIT 1",
		ownerID, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return &r, nil
}

func (s *SQLite) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM readings WHERE ts < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) ListOwnersWithReadings(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT owner_id FROM readings WHERE ts >= ? AND ts < ? ORDER BY owner_id",
		toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("list reading owners: %w", err)
	}
	return scanStrings(rows)
}

// --- alerts ---

const alertColumns = `id, owner_id, type, severity, glucose_value, title, message,
	notified_recipients, acknowledgments, status, created_at, expires_at, resolved_at`

func scanAlert(row scanner) (*model.Alert, error) {
	var a model.Alert
	var recipients, acks string
	var createdAt, expiresAt int64
	var resolvedAt sql.NullInt64
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Type, &a.Severity, &a.GlucoseValue, &a.Title, &a.Message,
		&recipients, &acks, &a.Status, &createdAt, &expiresAt, &resolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recipients), &a.NotifiedRecipients); err != nil {
		return nil, fmt.Errorf("decode notified recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(acks), &a.Acknowledgments); err != nil {
		return nil, fmt.Errorf("decode acknowledgments: %w", err)
	}
	a.CreatedAt = fromMillis(createdAt)
	a.ExpiresAt = fromMillis(expiresAt)
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		a.ResolvedAt = &t
	}
	return &a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeAlert(ctx context.Context, db execer, alert *model.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.NotifiedRecipients == nil {
		alert.NotifiedRecipients = []model.NotifiedRecipient{}
	}
	if alert.Acknowledgments == nil {
		alert.Acknowledgments = []model.Acknowledgment{}
	}
	recipients, err := json.Marshal(alert.NotifiedRecipients)
	if err != nil {
		return fmt.Errorf("encode notified recipients: %w", err)
	}
	acks, err := json.Marshal(alert.Acknowledgments)
	if err != nil {
		return fmt.Errorf("encode acknowledgments: %w", err)
	}
	var resolvedAt sql.NullInt64
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: toMillis(*alert.ResolvedAt), Valid: true}
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   severity = excluded.severity,
		   title = excluded.title,
		   message = excluded.message,
		   notified_recipients = excluded.notified_recipients,
		   acknowledgments = excluded.acknowledgments,
		   status = excluded.status,
		   expires_at = excluded.expires_at,
		   resolved_at = excluded.resolved_at`,
		alert.ID, alert.OwnerID, alert.Type, alert.Severity, alert.GlucoseValue, alert.Title, alert.Message,
		string(recipients), string(acks), alert.Status,
		toMillis(alert.CreatedAt), toMillis(alert.ExpiresAt), resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (s *SQLite) SaveAlert(ctx context.Context, alert *model.Alert) error {
	return writeAlert(ctx, s.db, alert)
}

func (s *SQLite) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLite) UpdateAlert(ctx context.Context, id string, fn func(*model.Alert) error) (*model.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update alert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAlert(tx.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	if err := writeAlert(ctx, tx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit alert: %w", err)
	}
	return a, nil
}

func (s *SQLite) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts"
	where, args := buildAlertWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// --- provider sessions ---

func (s *SQLite) GetSession(ctx context.Context, ownerID string, kind model.ProviderKind, dst any) error {
	var state string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM provider_sessions WHERE owner_id = ? AND provider = ?", ownerID, kind,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s session for %q: %w", kind, ownerID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal([]byte(state), dst); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateSessionState(ctx context.Context, ownerID string, kind model.ProviderKind, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	state := map[string]json.RawMessage{}
	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT state FROM provider_sessions WHERE owner_id = ? AND provider = ?", ownerID, kind,
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("get session: %w", err)
	default:
		if err := json.Unmarshal([]byte(current), &state); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
	}

	for key, value := range patch {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode session field %s: %w", key, err)
		}
		if string(raw) == "null" {
			delete(state, key)
			continue
		}
		state[key] = raw
	}

	var connected bool
	if raw, ok := state["connected"]; ok {
		_ = json.Unmarshal(raw, &connected)
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO provider_sessions (owner_id, provider, state, connected, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, provider) DO UPDATE SET
		   state = excluded.state,
		   connected = excluded.connected,
		   updated_at = excluded.updated_at`,
		ownerID, kind, string(encoded), connected, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *SQLite) ListConnectedOwners(ctx context.Context, kind model.ProviderKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_id FROM provider_sessions WHERE provider = ? AND connected = 1 ORDER BY owner_id", kind)
	if err != nil {
		return nil, fmt.Errorf("list connected owners: %w", err)
	}
	return scanStrings(rows)
}

// --- profile data ---

func (s *SQLite) GetThresholds(ctx context.Context, ownerID string) (*model.ThresholdSettings, error) {
	var t model.ThresholdSettings
	err := s.db.QueryRowContext(ctx,
		"SELECT low, high, high_alert_delay_minutes FROM threshold_settings WHERE owner_id = ?", ownerID,
	).Scan(&t.Low, &t.High, &t.HighAlertDelayMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thresholds: %w", err)
	}
	return &t, nil
}

func (s *SQLite) SetThresholds(ctx context.Context, ownerID string, settings model.ThresholdSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threshold_settings (owner_id, low, high, high_alert_delay_minutes)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   low = excluded.low,
		   high = excluded.high,
		   high_alert_delay_minutes = excluded.high_alert_delay_minutes`,
		ownerID, settings.Low, settings.High, settings.HighAlertDelayMinutes,
	)
	if err != nil {
		return fmt.Errorf("set thresholds: %w", err)
	}
	return nil
}

func (s *SQLite) ListCareRelationships(ctx context.Context, ownerID string) ([]model.CareRelationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, recipient_id, status, receive_low_alerts, receive_high_alerts
		 FROM care_relationships WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list care relationships: %w", err)
	}
	defer rows.Close()

	var rels []model.CareRelationship
	for rows.Next() {
		var rel model.CareRelationship
		var recipient sql.NullString
		if err := rows.Scan(&rel.ID, &rel.OwnerID, &recipient, &rel.Status,
			&rel.Permissions.ReceiveLowAlerts, &rel.Permissions.ReceiveHighAlerts); err != nil {
			return nil, fmt.Errorf("scan care relationship: %w", err)
		}
		rel.RecipientID = recipient.String
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (s *SQLite) SaveCareRelationship(ctx context.Context, rel *model.CareRelationship) error {
	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	recipient := sql.NullString{String: rel.RecipientID, Valid: rel.RecipientID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO care_relationships (id, owner_id, recipient_id, status, receive_low_alerts, receive_high_alerts)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   recipient_id = excluded.recipient_id,
		   status = excluded.status,
		   receive_low_alerts = excluded.receive_low_alerts,
		   receive_high_alerts = excluded.receive_high_alerts`,
		rel.ID, rel.OwnerID, recipient, rel.Status,
		rel.Permissions.ReceiveLowAlerts, rel.Permissions.ReceiveHighAlerts,
	)
	if err != nil {
		return fmt.Errorf("save care relationship: %w", err)
	}
	return nil
}

func (s *SQLite) NotificationEnabled(ctx context.Context, userID string, category model.NotificationCategory) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		"SELECT enabled FROM notification_preferences WHERE user_id = ? AND category = ?", userID, category,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get notification preference: %w", err)
	}
	return enabled, nil
}

func (s *SQLite) SetNotificationPreference(ctx context.Context, userID string, category model.NotificationCategory, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, category, enabled) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, category) DO UPDATE SET enabled = excluded.enabled`,
		userID, category, enabled,
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

// --- chat ---

func (s *SQLite) PostChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	alertID := sql.NullString{String: msg.AlertID, Valid: msg.AlertID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, conversation_ref, sender_id, text, kind, alert_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationRef, msg.SenderID, msg.Text, msg.Kind, alertID, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("post chat message: %w", err)
	}
	return nil
}

func (s *SQLite) ListChatMessages(ctx context.Context, conversationRef string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_ref, sender_id, text, kind, alert_id, created_at
		 FROM chat_messages WHERE conversation_ref = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, conversationRef, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var alertID sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ConversationRef, &m.SenderID, &m.Text, &m.Kind, &alertID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.AlertID = alertID.String
		m.CreatedAt = fromMillis(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// --- daily summaries ---

func (s *SQLite) SaveDailySummary(ctx context.Context, summary *model.DailySummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_summaries (owner_id, day, count, mean, min, max, time_in_range_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, day) DO UPDATE SET
		   count = excluded.count,
		   mean = excluded.mean,
		   min = excluded.min,
		   max = excluded.max,
		   time_in_range_pct = excluded.time_in_range_pct`,
		summary.OwnerID, toMillis(summary.Day), summary.Count, summary.Mean,
		summary.Min, summary.Max, summary.TimeInRangePct,
	)
	if err != nil {
		return fmt.Errorf("save daily summary: %w", err)
	}
	return nil
}

func (s *SQLite) ListDailySummaries(ctx context.Context, ownerID string, start, end time.Time) ([]model.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, day, count, mean, min, max, time_in_range_pct
		 FROM daily_summaries WHERE owner_id = ? AND day >= ? AND day < ? ORDER BY day`,
		ownerID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()

	var out []model.DailySummary
	for rows.Next() {
		var d model.DailySummary
		var day int64
		if err := rows.Scan(&d.OwnerID, &day, &d.Count, &d.Mean, &d.Min, &d.Max, &d.TimeInRangePct); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		d.Day = fromMillis(day)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// buildReadingWhere constructs a SQL WHERE clause from a ReadingFilter.
func buildReadingWhere(filter model.ReadingFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, toMillis(filter.Start))
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "ts < ?")
		args = append(args, toMillis(filter.End))
	}

	return strings.Join(conditions, " AND "), args
}

// buildAlertWhere constructs a SQL WHERE clause from an AlertFilter.
func buildAlertWhere(filter model.AlertFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, toMillis(filter.CreatedAfter))
	}

	return strings.Join(conditions, " AND "), args
}
