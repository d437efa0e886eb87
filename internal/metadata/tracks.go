package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const trackColumns = `id, disc_id, track_number, duration_seconds, size_bytes, resolution, chapter_count,
	audio_streams, subtitle_streams, segment_map, source_file_name, status, output_filename,
	ripped_path, transcoded_path, inserted_path, preset_name, makemkv_name,
	classification_label, classification_confidence, classification_score, is_alternate_main,
	created_at, updated_at`

func scanTrack(scanner interface {
	Scan(...any) error
}) (Track, error) {
	var (
		t Track
		resolution, audioJSON, subsJSON, segmentMap, sourceFile, outputFile sql.NullString
		rippedPath, transcodedPath, insertedPath, presetName, makemkvName sql.NullString
		classLabel, classConfidence sql.NullString
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&t.ID, &t.DiscID, &t.TrackNumber, &t.DurationSeconds, &t.SizeBytes, &resolution, &t.ChapterCount,
		&audioJSON, &subsJSON, &segmentMap, &sourceFile, &t.Status, &outputFile,
		&rippedPath, &transcodedPath, &insertedPath, &presetName, &makemkvName,
		&classLabel, &classConfidence, &t.ClassificationScore, &t.IsAlternateMain,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return Track{}, err
	}
	t.Resolution = stringOrEmpty(resolution)
	t.AudioStreamsJSON = stringOrEmpty(audioJSON)
	t.SubtitleStreamsJSON = stringOrEmpty(subsJSON)
	t.SegmentMap = stringOrEmpty(segmentMap)
	t.SourceFileName = stringOrEmpty(sourceFile)
	t.OutputFilename = stringOrEmpty(outputFile)
	t.RippedPath = stringOrEmpty(rippedPath)
	t.TranscodedPath = stringOrEmpty(transcodedPath)
	t.InsertedPath = stringOrEmpty(insertedPath)
	t.PresetName = stringOrEmpty(presetName)
	t.MakeMKVName = stringOrEmpty(makemkvName)
	t.ClassificationLabel = stringOrEmpty(classLabel)
	t.ClassificationConfidence = stringOrEmpty(classConfidence)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

func (s *Store) listTracks(ctx context.Context, discID int64) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE disc_id = ? ORDER BY track_number`, discID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// GetTrack fetches a single track by its surrogate id.
func (s *Store) GetTrack(ctx context.Context, trackID int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, trackID)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return &t, nil
}

// UpdateTrack applies a partial update to one track row.
func (s *Store) UpdateTrack(ctx context.Context, trackID int64, update TrackUpdate) error {
	t, err := s.GetTrack(ctx, trackID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("metadata: track %d not found", trackID)
	}
	if update.Name != nil {
		t.OutputFilename = *update.Name
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.PresetName != nil {
		t.PresetName = *update.PresetName
	}
	if update.RippedPath != nil {
		t.RippedPath = *update.RippedPath
	}
	if update.TranscodedPath != nil {
		t.TranscodedPath = *update.TranscodedPath
	}
	if update.InsertedPath != nil {
		t.InsertedPath = *update.InsertedPath
	}
	_, err = s.execWithRetry(ctx,
		`UPDATE tracks SET output_filename = ?, status = ?, preset_name = ?, ripped_path = ?,
			transcoded_path = ?, inserted_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(t.OutputFilename), t.Status, nullableString(t.PresetName),
		nullableString(t.RippedPath), nullableString(t.TranscodedPath), nullableString(t.InsertedPath),
		nowRFC3339(), trackID,
	)
	if err != nil {
		return fmt.Errorf("update track: %w", err)
	}
	return nil
}

// UpdateTrackClassification persists the classifier's verdict for one
// track.
func (s *Store) UpdateTrackClassification(ctx context.Context, trackID int64, label, confidence string, score float64, isAlternateMain bool) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE tracks SET classification_label = ?, classification_confidence = ?, classification_score = ?,
			is_alternate_main = ?, updated_at = ? WHERE id = ?`,
		label, confidence, score, isAlternateMain, nowRFC3339(), trackID,
	)
	if err != nil {
		return fmt.Errorf("update track classification: %w", err)
	}
	return nil
}

// ResetTrack clears all three pipeline path fields and restores status to
// discovered. Deleting the underlying files is the
// caller's responsibility — this only clears the metadata pointers.
func (s *Store) ResetTrack(ctx context.Context, trackID int64) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE tracks SET ripped_path = NULL, transcoded_path = NULL, inserted_path = NULL,
			status = ?, updated_at = ? WHERE id = ?`,
		TrackDiscovered, nowRFC3339(), trackID,
	)
	if err != nil {
		return fmt.Errorf("reset track: %w", err)
	}
	return nil
}
