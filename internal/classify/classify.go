package classify

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"amphigory/internal/disc"
)

// Label is the classification assigned to a non-main track, or to the main
// feature itself.
type Label string

const (
	LabelMainFeature   Label = "main_feature"
	LabelTrailers      Label = "trailers"
	LabelFeaturettes   Label = "featurettes"
	LabelDeletedScenes Label = "deleted_scenes"
	LabelOther         Label = "other"
)

// Confidence grades how decisively the main feature was chosen.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the classifier's verdict for one track.
type Result struct {
	TrackNumber     int
	Label           Label
	Confidence      Confidence
	Score           float64
	IsAlternateMain bool
}

// Classify scores every track in tracks and returns one Result per track,
// in the same order tracks were given. The verdicts are independent of
// input ordering because every step below operates over the full set
// rather than relying on position.
func Classify(tracks []disc.ScannedTrack) []Result {
	results := make(map[int]*Result, len(tracks))
	for _, t := range tracks {
		results[t.Number] = &Result{TrackNumber: t.Number}
	}
	if len(tracks) == 0 {
		return nil
	}

	mainIdx, confidence, score := pickMainFeature(tracks)
	main := tracks[mainIdx]
	results[main.Number].Label = LabelMainFeature
	results[main.Number].Confidence = confidence
	results[main.Number].Score = score

	for i, t := range tracks {
		if i == mainIdx {
			continue
		}
		results[t.Number].Label = classifyNonMain(t.Duration)
	}

	flagAlternateMains(tracks, main, results)

	ordered := make([]Result, 0, len(tracks))
	for _, t := range tracks {
		ordered = append(ordered, *results[t.Number])
	}
	return ordered
}

// pickMainFeature chooses the main feature: an authoritative
// is_main_feature_playlist hint wins outright; otherwise every track is
// scored by the weighted metric and the top scorer wins, subject to the
// minimum-metadata disqualification rule.
func pickMainFeature(tracks []disc.ScannedTrack) (index int, confidence Confidence, score float64) {
	hinted := -1
	for i, t := range tracks {
		if t.IsMainFeaturePlaylist && (hinted < 0 || t.Number < tracks[hinted].Number) {
			hinted = i
		}
	}
	if hinted >= 0 {
		return hinted, ConfidenceHigh, 100
	}

	scores := scoreTracks(tracks)
	best, runnerUp := topTwoEligible(tracks, scores)
	if best < 0 {
		// No track has any metadata at all; fall back to the longest track so Classify stays total.
		best = longestTrackIndex(tracks)
		return best, ConfidenceLow, scores[best]
	}

	bestScore := scores[best]
	conf := ConfidenceLow
	if runnerUp >= 0 {
		runnerUpScore := scores[runnerUp]
		if bestScore > 0 {
			gap := (bestScore - runnerUpScore) / bestScore
			switch {
			case gap > 0.3:
				conf = ConfidenceHigh
			case gap > 0:
				conf = ConfidenceMedium
			}
		}
	} else {
		conf = ConfidenceHigh
	}
	return best, conf, bestScore
}

// scoreTracks computes the weighted score for every track: duration
// term (40, gated above 3600s), chapter term (25, gated above 10
// chapters), audio term (20), subtitle term (15, only when any track has
// subtitles at all).
func scoreTracks(tracks []disc.ScannedTrack) []float64 {
	var maxDuration, maxChapters, maxAudio, maxSubs int
	for _, t := range tracks {
		if t.Duration > maxDuration {
			maxDuration = t.Duration
		}
		if t.Chapters > maxChapters {
			maxChapters = t.Chapters
		}
		if n := len(t.Audio); n > maxAudio {
			maxAudio = n
		}
		if n := len(t.Subtitles); n > maxSubs {
			maxSubs = n
		}
	}

	scores := make([]float64, len(tracks))
	for i, t := range tracks {
		var s float64
		if t.Duration > 3600 && maxDuration > 0 {
			s += 40 * float64(t.Duration) / float64(maxDuration)
		}
		if t.Chapters > 10 && maxChapters > 0 {
			s += 25 * float64(t.Chapters) / float64(maxChapters)
		}
		if maxAudio > 0 {
			s += 20 * float64(len(t.Audio)) / float64(maxAudio)
		}
		if maxSubs > 0 {
			s += 15 * float64(len(t.Subtitles)) / float64(maxSubs)
		}
		scores[i] = s
	}
	return scores
}

// hasMinimumMetadata implements the disqualification rule: a track
// with zero chapters, zero audio streams, and zero subtitle streams can
// never be the main feature regardless of score.
func hasMinimumMetadata(t disc.ScannedTrack) bool {
	return t.Chapters > 0 || len(t.Audio) > 0 || len(t.Subtitles) > 0
}

// topTwoEligible returns the indices of the highest- and second-highest
// scoring eligible tracks (best, runnerUp), either of which may be -1 if
// fewer than that many tracks are eligible. Equal scores rank the lower
// track number first.
func topTwoEligible(tracks []disc.ScannedTrack, scores []float64) (best, runnerUp int) {
	better := func(i, j int) bool {
		return scores[i] > scores[j] || (scores[i] == scores[j] && tracks[i].Number < tracks[j].Number)
	}
	best, runnerUp = -1, -1
	for i, t := range tracks {
		if !hasMinimumMetadata(t) {
			continue
		}
		switch {
		case best < 0 || better(i, best):
			runnerUp = best
			best = i
		case runnerUp < 0 || better(i, runnerUp):
			runnerUp = i
		}
	}
	return best, runnerUp
}

func longestTrackIndex(tracks []disc.ScannedTrack) int {
	longest := 0
	for i, t := range tracks {
		if t.Duration > tracks[longest].Duration ||
			(t.Duration == tracks[longest].Duration && t.Number < tracks[longest].Number) {
			longest = i
		}
	}
	return longest
}

// classifyNonMain assigns the duration-banded labels. The bands are not
// contiguous: 151–299s falls through every named band and lands on
// deleted_scenes, the catch-all case.
func classifyNonMain(durationSeconds int) Label {
	switch {
	case durationSeconds > 3600:
		return LabelOther
	case durationSeconds >= 300:
		return LabelFeaturettes
	case durationSeconds >= 90 && durationSeconds <= 150:
		return LabelTrailers
	case durationSeconds < 90:
		return LabelOther
	default:
		return LabelDeletedScenes
	}
}

// flagAlternateMains flags alternate cuts: tracks within 1% of the main
// feature's duration, with a matching chapter count, and a higher track
// number than the main feature, are alternate-language cuts rather than
// extras.
func flagAlternateMains(tracks []disc.ScannedTrack, main disc.ScannedTrack, results map[int]*Result) {
	if main.Duration <= 0 {
		return
	}
	tolerance := float64(main.Duration) * 0.01
	for _, t := range tracks {
		if t.Number == main.Number || t.Number <= main.Number {
			continue
		}
		if t.Chapters != main.Chapters {
			continue
		}
		delta := float64(t.Duration - main.Duration)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance {
			results[t.Number].IsAlternateMain = true
		}
	}
}

// Order produces the presentation ordering: main feature
// first, alternates next (by track number), then everything else by
// duration descending.
func Order(tracks []disc.ScannedTrack, results []Result) []disc.ScannedTrack {
	byNumber := make(map[int]Result, len(results))
	for _, r := range results {
		byNumber[r.TrackNumber] = r
	}

	collator := collate.New(language.Und, collate.IgnoreCase)

	ordered := append([]disc.ScannedTrack(nil), tracks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := byNumber[ordered[i].Number], byNumber[ordered[j].Number]
		rankA, rankB := orderRank(a), orderRank(b)
		if rankA != rankB {
			return rankA < rankB
		}
		if rankA == rankAlternate {
			return ordered[i].Number < ordered[j].Number
		}
		if ordered[i].Duration != ordered[j].Duration {
			return ordered[i].Duration > ordered[j].Duration
		}
		// Equal-duration extras have no natural order; fall back to a
		// locale-aware comparison of the disc's own track name so the
		// presentation list is stable instead of depending on scan order.
		return collator.CompareString(ordered[i].Name, ordered[j].Name) < 0
	})
	return ordered
}

const (
	rankMain = iota
	rankAlternate
	rankOther
)

func orderRank(r Result) int {
	switch {
	case r.Label == LabelMainFeature:
		return rankMain
	case r.IsAlternateMain:
		return rankAlternate
	default:
		return rankOther
	}
}
