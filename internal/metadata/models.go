package metadata

import "time"

// TrackStatus is the lifecycle stage of one track through the pipeline.
type TrackStatus string

const (
	TrackDiscovered  TrackStatus = "discovered"
	TrackSelected    TrackStatus = "selected"
	TrackRipping     TrackStatus = "ripping"
	TrackRipped      TrackStatus = "ripped"
	TrackTranscoding TrackStatus = "transcoding"
	TrackTranscoded  TrackStatus = "transcoded"
	TrackInserted    TrackStatus = "inserted"
	TrackComplete    TrackStatus = "complete"
)

// Disc is one row of the discs table, keyed by fingerprint.
type Disc struct {
	ID                int64
	Fingerprint       string
	Title             string
	Year              int
	ExternalID        string
	Kind              string
	ScanSnapshot      string    // raw JSON of the originating disc.ScanResult
	ScannedAt         time.Time
	NeedsReprocessing bool
	ReprocessingType  string
	ReprocessingNotes string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Track is one row of the tracks table, surrogate-keyed but unique per
// (disc, track_number).
type Track struct {
	ID                       int64
	DiscID                   int64
	TrackNumber              int
	DurationSeconds          int
	SizeBytes                int64
	Resolution               string
	ChapterCount             int
	AudioStreamsJSON         string
	SubtitleStreamsJSON      string
	SegmentMap               string
	SourceFileName           string
	Status                   TrackStatus
	OutputFilename           string
	RippedPath               string
	TranscodedPath           string
	InsertedPath             string
	PresetName               string
	MakeMKVName              string
	ClassificationLabel      string
	ClassificationConfidence string
	ClassificationScore      float64
	IsAlternateMain          bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// DiscWithTracks bundles a disc with its tracks, the shape
// get_disc_with_tracks returns.
type DiscWithTracks struct {
	Disc   Disc
	Tracks []Track
}

// DiscSummary is the row shape ListDiscs returns for the library surface,
// trimmed to what a listing view needs rather than the full disc record.
type DiscSummary struct {
	Fingerprint string
	Title       string
	Year        int
	Kind        string
	TrackCount  int
	Status      string    // derived: furthest-along track status, or "scanned" if none selected
	ScannedAt   time.Time
}

// DiscFilter narrows list_discs results.
type DiscFilter struct {
	Status    string
	Kind      string
	MediaType string
	Search    string
}

// DiscUpdate carries the subset of disc fields update_disc_metadata may
// change; nil fields are left untouched, while a non-nil empty ExternalID
// or a non-nil Year of zero or less clears the stored value.
type DiscUpdate struct {
	Title      *string
	Year       *int
	ExternalID *string
}

// TrackUpdate carries the subset of track fields update_track may change.
type TrackUpdate struct {
	Name           *string
	Status         *TrackStatus
	PresetName     *string
	RippedPath     *string
	TranscodedPath *string
	InsertedPath   *string
}

// ReprocessingFlag is the payload for flag_disc; a nil pointer to this type
// clears the flag entirely.
type ReprocessingFlag struct {
	Type  string
	Notes string
}
