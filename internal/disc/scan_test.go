package disc

import "testing"

func TestParseScan_DiscAndTitleAttributes(t *testing.T) {
	input := `
CINFO:2,0,"My Disc"
TINFO:0,2,0,"Main Feature"
TINFO:0,8,0,"24"
TINFO:0,9,0,"1:39:03"
TINFO:0,11,0,"8000000000"
TINFO:0,16,0,"00800.mpls"
TINFO:0,25,0,"1"
TINFO:0,26,0,"1,2,3"
TINFO:0,30,0,"1"
SINFO:0,0,1,4352,"Video"
SINFO:0,0,19,4352,"1920x1080"
SINFO:0,0,6,4352,"MPEG-4 AVC"
SINFO:0,1,1,4353,"Audio"
SINFO:0,1,3,4353,"eng"
SINFO:0,1,4,4353,"English"
SINFO:0,1,6,4353,"TrueHD"
SINFO:0,1,7,4353,"Dolby TrueHD with Atmos"
SINFO:0,1,14,4353,"8"
SINFO:0,2,1,4354,"Subtitles"
SINFO:0,2,3,4354,"fre"
SINFO:0,2,7,4354,"PGS"
`
	result, err := ParseScan([]byte(input))
	if err != nil {
		t.Fatalf("ParseScan returned error: %v", err)
	}
	if result.DiscName != "My Disc" {
		t.Fatalf("unexpected disc name: %q", result.DiscName)
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(result.Tracks))
	}
	track := result.Tracks[0]
	if track.Name != "Main Feature" {
		t.Fatalf("unexpected title name: %q", track.Name)
	}
	if track.Duration != 5943 {
		t.Fatalf("unexpected duration: %d", track.Duration)
	}
	if track.Chapters != 24 {
		t.Fatalf("unexpected chapter count: %d", track.Chapters)
	}
	if track.SizeBytes != 8000000000 {
		t.Fatalf("unexpected size: %d", track.SizeBytes)
	}
	if track.SourceFileName != "00800.mpls" {
		t.Fatalf("unexpected source file: %q", track.SourceFileName)
	}
	if track.SegmentMap != "1,2,3" {
		t.Fatalf("unexpected segment map: %q", track.SegmentMap)
	}
	if !track.IsMainFeaturePlaylist {
		t.Fatal("expected main feature marker to be set")
	}
	if track.Resolution != "1920x1080" {
		t.Fatalf("unexpected resolution: %q", track.Resolution)
	}
	if len(track.Audio) != 1 || track.Audio[0].ChannelCount != 8 {
		t.Fatalf("unexpected audio streams: %+v", track.Audio)
	}
	if track.Audio[0].CodecName != "Dolby TrueHD with Atmos" {
		t.Fatalf("unexpected audio codec name: %q", track.Audio[0].CodecName)
	}
	if len(track.Subtitles) != 1 || track.Subtitles[0].Language != "fre" {
		t.Fatalf("unexpected subtitle streams: %+v", track.Subtitles)
	}
}

func TestParseScan_EmptyInput(t *testing.T) {
	if _, err := ParseScan([]byte("  \n  ")); err == nil {
		t.Fatal("expected error for empty scan output")
	}
}

func TestFormatHMS_RoundTrip(t *testing.T) {
	cases := []int{0, 5, 65, 3661, 5943, 86399}
	for _, seconds := range cases {
		formatted := FormatHMS(seconds)
		got := parseHMS(formatted)
		if got != seconds {
			t.Fatalf("round trip failed for %d: formatted %q parsed back to %d", seconds, formatted, got)
		}
	}
}
