package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"amphigory/internal/disc"
)

const discColumns = `id, fingerprint, title, year, external_id, kind, scan_snapshot, scanned_at,
	needs_reprocessing, reprocessing_type, reprocessing_notes, created_at, updated_at`

func scanDisc(row *sql.Row) (*Disc, error) {
	var (
		d                 Disc
		year              sql.NullInt64
		externalID        sql.NullString
		scanSnapshot      sql.NullString
		scannedAt         sql.NullString
		reprocessingType  sql.NullString
		reprocessingNotes sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&d.ID, &d.Fingerprint, &d.Title, &year, &externalID, &d.Kind, &scanSnapshot, &scannedAt,
		&d.NeedsReprocessing, &reprocessingType, &reprocessingNotes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Year = int(year.Int64)
	d.ExternalID = stringOrEmpty(externalID)
	d.ScanSnapshot = stringOrEmpty(scanSnapshot)
	d.ReprocessingType = stringOrEmpty(reprocessingType)
	d.ReprocessingNotes = stringOrEmpty(reprocessingNotes)
	if scannedAt.Valid {
		d.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt.String)
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

// GetByFingerprint returns the disc row for fp, or (nil, nil) if no disc
// has been saved under that fingerprint yet.
func (s *Store) GetByFingerprint(ctx context.Context, fp string) (*Disc, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+discColumns+` FROM discs WHERE fingerprint = ?`, fp)
	d, err := scanDisc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get disc by fingerprint: %w", err)
	}
	return d, nil
}

// GetDiscWithTracks returns a disc and its tracks together. Returns
// (nil, nil) if the disc does not exist.
func (s *Store) GetDiscWithTracks(ctx context.Context, fp string) (*DiscWithTracks, error) {
	d, err := s.GetByFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	tracks, err := s.listTracks(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &DiscWithTracks{Disc: *d, Tracks: tracks}, nil
}

// SaveScan upserts the disc row for fp and replaces its tracks with the
// contents of result, inside a single transaction. Returns the disc's row id.
func (s *Store) SaveScan(ctx context.Context, fp string, result *disc.ScanResult) (int64, error) {
	if result == nil {
		return 0, errors.New("metadata: nil scan result")
	}
	snapshot, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal scan snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save_scan tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowRFC3339()
	var discID int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM discs WHERE fingerprint = ?`, fp)
	err = row.Scan(&discID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, insertErr := tx.ExecContext(ctx,
			`INSERT INTO discs (fingerprint, title, kind, scan_snapshot, scanned_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fp, result.DiscName, result.DiscKind, string(snapshot), now, now, now,
		)
		if insertErr != nil {
			return 0, fmt.Errorf("insert disc: %w", insertErr)
		}
		discID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("lookup disc: %w", err)
	default:
		if _, updateErr := tx.ExecContext(ctx,
			`UPDATE discs SET title = ?, kind = ?, scan_snapshot = ?, scanned_at = ?, updated_at = ? WHERE id = ?`,
			result.DiscName, result.DiscKind, string(snapshot), now, now, discID,
		); updateErr != nil {
			return 0, fmt.Errorf("update disc: %w", updateErr)
		}
		if _, delErr := tx.ExecContext(ctx, `DELETE FROM tracks WHERE disc_id = ?`, discID); delErr != nil {
			return 0, fmt.Errorf("clear prior tracks: %w", delErr)
		}
	}

	for _, t := range result.Tracks {
		audioJSON, _ := json.Marshal(t.Audio)
		subsJSON, _ := json.Marshal(t.Subtitles)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracks (
				disc_id, track_number, duration_seconds, size_bytes, resolution, chapter_count,
				audio_streams, subtitle_streams, segment_map, source_file_name, status,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			discID, t.Number, t.Duration, t.SizeBytes, nullableString(t.Resolution), t.Chapters,
			string(audioJSON), string(subsJSON), nullableString(t.SegmentMap), nullableString(t.SourceFileName),
			TrackDiscovered, now, now,
		); err != nil {
			return 0, fmt.Errorf("insert track %d: %w", t.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save_scan: %w", err)
	}
	return discID, nil
}

// UpdateDiscMetadata applies a partial update to a disc's title, year, and
// external id.
func (s *Store) UpdateDiscMetadata(ctx context.Context, fp string, update DiscUpdate) error {
	d, err := s.GetByFingerprint(ctx, fp)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("metadata: disc %s not found", fp)
	}
	if update.Title != nil {
		d.Title = *update.Title
	}
	if update.Year != nil {
		d.Year = *update.Year
	}
	if update.ExternalID != nil {
		d.ExternalID = *update.ExternalID
	}
	_, err = s.execWithRetry(ctx,
		`UPDATE discs SET title = ?, year = ?, external_id = ?, updated_at = ? WHERE id = ?`,
		d.Title, nullableYear(d.Year), nullableString(d.ExternalID), nowRFC3339(), d.ID,
	)
	if err != nil {
		return fmt.Errorf("update disc metadata: %w", err)
	}
	return nil
}

// FlagDisc sets or clears the disc's reprocessing flag. A
// nil flag clears needs_reprocessing and its associated fields.
func (s *Store) FlagDisc(ctx context.Context, discID int64, flag *ReprocessingFlag) error {
	needs := 0
	var flagType, notes any
	if flag != nil {
		needs = 1
		flagType = nullableString(flag.Type)
		notes = nullableString(flag.Notes)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE discs SET needs_reprocessing = ?, reprocessing_type = ?, reprocessing_notes = ?, updated_at = ? WHERE id = ?`,
		needs, flagType, notes, nowRFC3339(), discID,
	)
	if err != nil {
		return fmt.Errorf("flag disc: %w", err)
	}
	return nil
}

// ListDiscs returns summary rows for the library surface, narrowed by
// filter.
func (s *Store) ListDiscs(ctx context.Context, filter DiscFilter) ([]DiscSummary, error) {
	query := `SELECT d.fingerprint, d.title, d.year, d.kind, d.scanned_at,
		COUNT(t.id) AS track_count,
		CASE MAX(CASE t.status
			WHEN 'selected' THEN 1 WHEN 'ripping' THEN 2 WHEN 'ripped' THEN 3
			WHEN 'transcoding' THEN 4 WHEN 'transcoded' THEN 5 WHEN 'inserted' THEN 6
			WHEN 'complete' THEN 7 ELSE 0 END)
			WHEN 1 THEN 'selected' WHEN 2 THEN 'ripping' WHEN 3 THEN 'ripped'
			WHEN 4 THEN 'transcoding' WHEN 5 THEN 'transcoded' WHEN 6 THEN 'inserted'
			WHEN 7 THEN 'complete' ELSE 'scanned' END AS furthest_status
		FROM discs d LEFT JOIN tracks t ON t.disc_id = d.id`
	var (
		conditions []string
		args       []any
	)
	if filter.Kind != "" {
		conditions = append(conditions, "d.kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Search != "" {
		conditions = append(conditions, "d.title LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " GROUP BY d.id ORDER BY d.updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list discs: %w", err)
	}
	defer rows.Close()

	var summaries []DiscSummary
	for rows.Next() {
		var (
			summary   DiscSummary
			year      sql.NullInt64
			scannedAt sql.NullString
		)
		if err := rows.Scan(&summary.Fingerprint, &summary.Title, &year, &summary.Kind, &scannedAt, &summary.TrackCount, &summary.Status); err != nil {
			return nil, fmt.Errorf("scan disc summary: %w", err)
		}
		summary.Year = int(year.Int64)
		if scannedAt.Valid {
			summary.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt.String)
		}
		if filter.Status == "" || filter.Status == summary.Status {
			summaries = append(summaries, summary)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disc summaries: %w", err)
	}
	return summaries, nil
}

func nullableYear(year int) any {
	if year <= 0 {
		return nil
	}
	return year
}
