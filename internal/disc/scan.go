package disc

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// TrackType classifies a stream within a scanned title.
type TrackType string

const (
	TrackTypeVideo    TrackType = "video"
	TrackTypeAudio    TrackType = "audio"
	TrackTypeSubtitle TrackType = "subtitle"
	TrackTypeUnknown  TrackType = "unknown"
)

// AudioStream describes one audio stream attached to a scanned title.
type AudioStream struct {
	CodecID       string `json:"codec_id"`
	CodecName     string `json:"codec_name"`
	Language      string `json:"language"`
	LanguageName  string `json:"language_name"`
	ChannelCount  int    `json:"channel_count"`
	ChannelLayout string `json:"channel_layout,omitempty"`
}

// SubtitleStream describes one subtitle stream attached to a scanned title.
type SubtitleStream struct {
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Format       string `json:"format"`
}

// ScannedTrack is one title discovered by a scan.
type ScannedTrack struct {
	Number                int              `json:"number"`
	Name                  string           `json:"name"`
	Duration              int              `json:"duration_seconds"`
	SizeBytes             int64            `json:"size_bytes"`
	Chapters              int              `json:"chapters"`
	Resolution            string           `json:"resolution,omitempty"`
	Audio                 []AudioStream    `json:"audio"`
	Subtitles             []SubtitleStream `json:"subtitles"`
	SegmentMap            string           `json:"segment_map,omitempty"`
	SourceFileName        string           `json:"source_file_name,omitempty"`
	IsMainFeaturePlaylist bool             `json:"is_main_feature_playlist"`
}

// ScanResult is the disc-level outcome of the Scan Driver.
type ScanResult struct {
	DiscName string         `json:"disc_name"`
	DiscKind string         `json:"disc_kind"`
	Tracks   []ScannedTrack `json:"tracks"`
}

// ParseScan decodes the disc-interrogation tool's robot-mode info output:
// CINFO lines (disc-level), TINFO lines (per-title), and SINFO lines
// (per-stream within a title). Unrecognized lines (MSG, PRGV, PRGT, or
// anything else) are ignored; the progress/message families are handled by
// the driver that invokes this parser, not by ParseScan itself.
func ParseScan(data []byte) (*ScanResult, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.New("disc scan produced empty output")
	}

	result := &ScanResult{}
	builders := make(map[int]*titleBuilder)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "CINFO:"):
			parseCInfo(result, line)
		case strings.HasPrefix(line, "TINFO:"):
			parseTInfo(builders, line)
		case strings.HasPrefix(line, "SINFO:"):
			parseSInfo(builders, line)
		}
	}

	ids := make([]int, 0, len(builders))
	for id := range builders {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		result.Tracks = append(result.Tracks, builders[id].build())
	}
	return result, nil
}

// CINFO attribute ids used here (disc-level). MakeMKV emits many more; only
// the ones the core domain model needs are consumed.
const (
	cinfoName = 2
)

func parseCInfo(result *ScanResult, line string) {
	payload := strings.TrimPrefix(line, "CINFO:")
	parts := strings.SplitN(payload, ",", 3)
	if len(parts) < 3 {
		return
	}
	attrID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return
	}
	value := trimQuoted(strings.TrimSpace(parts[2]))
	if attrID == cinfoName && value != "" {
		result.DiscName = value
	}
}

// TINFO attribute ids (per-title). These follow the disc-interrogation
// tool's robot-mode output contract.
const (
	tinfoName          = 2
	tinfoChapters      = 8
	tinfoDuration      = 9
	tinfoDiskSizeBytes = 11
	tinfoSourceFile    = 16
	tinfoSegmentsCount = 25
	tinfoSegmentsMap   = 26
	tinfoMainFeature   = 30
)

func parseTInfo(results map[int]*titleBuilder, line string) {
	payload := strings.TrimPrefix(line, "TINFO:")
	parts := strings.SplitN(payload, ",", 4)
	if len(parts) < 4 {
		return
	}
	titleID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return
	}
	attrID, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return
	}
	value := trimQuoted(strings.TrimSpace(parts[3]))
	entry := ensureTitleBuilder(results, titleID)

	switch attrID {
	case tinfoName:
		if value != "" {
			entry.name = value
		}
	case tinfoChapters:
		if c, err := strconv.Atoi(value); err == nil && c > 0 {
			entry.chapters = c
		}
	case tinfoDuration:
		entry.duration = parseHMS(value)
	case tinfoDiskSizeBytes:
		if sz, err := strconv.ParseInt(value, 10, 64); err == nil && sz > 0 {
			entry.sizeBytes = sz
		}
	case tinfoSourceFile:
		if value != "" {
			entry.sourceFile = value
		}
	case tinfoSegmentsCount:
		if count, err := strconv.Atoi(value); err == nil && count > 0 {
			entry.segments = count
		}
	case tinfoSegmentsMap:
		if value != "" {
			entry.segmentMap = value
			parts := strings.Split(value, ",")
			if len(parts) > entry.segments {
				entry.segments = len(parts)
			}
		}
	case tinfoMainFeature:
		if value != "" && value != "0" {
			entry.mainFeature = true
		}
	}
}

// SINFO attribute ids (per-stream within a title).
const (
	sinfoType          = 1
	sinfoName          = 2
	sinfoLangCode      = 3
	sinfoLangName      = 4
	sinfoCodecID       = 5
	sinfoCodecShort    = 6
	sinfoCodecLong     = 7
	sinfoVideoSize     = 19
	sinfoChannelCount  = 14
	sinfoLangCodeAlt   = 28
	sinfoLangNameAlt   = 29
	sinfoChannelLayout = 40
)

func parseSInfo(results map[int]*titleBuilder, line string) {
	payload := strings.TrimPrefix(line, "SINFO:")
	parts := strings.SplitN(payload, ",", 5)
	if len(parts) < 5 {
		return
	}
	titleID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return
	}
	streamID, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return
	}
	attrID, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return
	}
	value := trimQuoted(strings.TrimSpace(parts[4]))

	entry := ensureTitleBuilder(results, titleID)
	stream := entry.ensureStream(streamID)

	switch attrID {
	case sinfoType:
		stream.streamType = classifyTrackType(value)
	case sinfoName:
		if stream.name == "" {
			stream.name = value
		}
	case sinfoLangCode, sinfoLangCodeAlt:
		if stream.language == "" {
			stream.language = strings.ToLower(value)
		}
	case sinfoLangName, sinfoLangNameAlt:
		if stream.languageName == "" {
			stream.languageName = value
		}
	case sinfoCodecID:
		stream.codecID = value
	case sinfoCodecShort:
		stream.codecShort = value
	case sinfoCodecLong:
		stream.codecLong = value
	case sinfoVideoSize:
		if value != "" {
			entry.resolution = value
		}
	case sinfoChannelCount:
		if ch, err := strconv.Atoi(value); err == nil && ch > 0 {
			stream.channelCount = ch
		}
	case sinfoChannelLayout:
		stream.channelLayout = value
	}
}

func classifyTrackType(value string) TrackType {
	lower := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(lower, "video"):
		return TrackTypeVideo
	case strings.Contains(lower, "audio"):
		return TrackTypeAudio
	case strings.Contains(lower, "sub") || strings.Contains(lower, "text"):
		return TrackTypeSubtitle
	default:
		return TrackTypeUnknown
	}
}

type streamBuilder struct {
	streamType    TrackType
	name          string
	language      string
	languageName  string
	codecID       string
	codecShort    string
	codecLong     string
	channelCount  int
	channelLayout string
}

type titleBuilder struct {
	id          int
	name        string
	duration    int
	sizeBytes   int64
	chapters    int
	resolution  string
	sourceFile  string
	segments    int
	segmentMap  string
	mainFeature bool
	streams     map[int]*streamBuilder
	order       []int
}

func ensureTitleBuilder(results map[int]*titleBuilder, id int) *titleBuilder {
	if existing, ok := results[id]; ok {
		return existing
	}
	builder := &titleBuilder{id: id, streams: make(map[int]*streamBuilder)}
	results[id] = builder
	return builder
}

func (b *titleBuilder) ensureStream(streamID int) *streamBuilder {
	if stream, ok := b.streams[streamID]; ok {
		return stream
	}
	stream := &streamBuilder{streamType: TrackTypeUnknown}
	b.streams[streamID] = stream
	b.order = append(b.order, streamID)
	return stream
}

func (b *titleBuilder) build() ScannedTrack {
	track := ScannedTrack{
		Number:                b.id,
		Name:                  b.name,
		Duration:              b.duration,
		SizeBytes:             b.sizeBytes,
		Chapters:              b.chapters,
		Resolution:            b.resolution,
		SegmentMap:            b.segmentMap,
		SourceFileName:        b.sourceFile,
		IsMainFeaturePlaylist: b.mainFeature,
	}
	for _, id := range b.order {
		s := b.streams[id]
		switch s.streamType {
		case TrackTypeAudio:
			track.Audio = append(track.Audio, AudioStream{
				CodecID:       s.codecID,
				CodecName:     firstNonEmpty(s.codecLong, s.codecShort),
				Language:      s.language,
				LanguageName:  s.languageName,
				ChannelCount:  s.channelCount,
				ChannelLayout: s.channelLayout,
			})
		case TrackTypeSubtitle:
			track.Subtitles = append(track.Subtitles, SubtitleStream{
				Language:     s.language,
				LanguageName: s.languageName,
				Format:       firstNonEmpty(s.codecLong, s.codecShort, s.codecID),
			})
		}
	}
	return track
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimQuoted(s string) string {
	return strings.Trim(s, "\"")
}

// parseHMS converts a MakeMKV "H:M:S" duration string into whole seconds,
// ignoring any leading sprintf-prefix fields (the tool sometimes emits
// `N,"H:M:S"` for the same attribute across versions).
func parseHMS(value string) int {
	clean := value
	if idx := strings.LastIndex(clean, ","); idx >= 0 && strings.Contains(clean[idx+1:], ":") {
		clean = clean[idx+1:]
	}
	clean = trimQuoted(clean)
	segments := strings.Split(clean, ":")
	if len(segments) != 3 {
		return 0
	}
	hours, err := strconv.Atoi(segments[0])
	if err != nil {
		return 0
	}
	minutes, err := strconv.Atoi(segments[1])
	if err != nil {
		return 0
	}
	seconds, err := strconv.Atoi(segments[2])
	if err != nil {
		return 0
	}
	return hours*3600 + minutes*60 + seconds
}

// FormatHMS renders whole seconds back into MakeMKV's "H:M:S" duration
// format, the inverse of parseHMS (parse-then-format
// round-trips under normalization).
func FormatHMS(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return strconv.Itoa(hours) + ":" + pad2(minutes) + ":" + pad2(seconds)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
