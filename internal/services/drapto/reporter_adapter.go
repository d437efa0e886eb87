package drapto

import (
	"time"

	draptolib "github.com/five82/drapto"
)

// amphigoryReporter adapts the Drapto Reporter interface to Amphigory's
// ProgressUpdate callback system.
type amphigoryReporter struct {
	callback func(ProgressUpdate)
}

func newAmphigoryReporter(callback func(ProgressUpdate)) *amphigoryReporter {
	return &amphigoryReporter{callback: callback}
}

func (r *amphigoryReporter) Hardware(s draptolib.HardwareSummary) {
	r.callback(ProgressUpdate{
		Type:      EventTypeHardware,
		Timestamp: time.Now(),
		Hardware:  &HardwareInfo{Hostname: s.Hostname},
	})
}

func (r *amphigoryReporter) Initialization(s draptolib.InitializationSummary) {
	r.callback(ProgressUpdate{
		Type:      EventTypeInitialization,
		Timestamp: time.Now(),
		Video: &VideoInfo{
			InputFile:        s.InputFile,
			OutputFile:       s.OutputFile,
			Duration:         s.Duration,
			Resolution:       s.Resolution,
			Category:         s.Category,
			DynamicRange:     s.DynamicRange,
			AudioDescription: s.AudioDescription,
		},
	})
}

func (r *amphigoryReporter) StageProgress(s draptolib.StageProgress) {
	var eta time.Duration
	if s.ETA != nil {
		eta = *s.ETA
	}
	r.callback(ProgressUpdate{
		Type:      EventTypeStageProgress,
		Timestamp: time.Now(),
		Percent:   float64(s.Percent),
		Stage:     s.Stage,
		Message:   s.Message,
		ETA:       eta,
	})
}

func (r *amphigoryReporter) CropResult(s draptolib.CropSummary) {
	// Convert crop candidates
	var candidates []CropCandidate
	for _, c := range s.Candidates {
		candidates = append(candidates, CropCandidate{
			Crop:    c.Crop,
			Count:   c.Count,
			Percent: c.Percent,
		})
	}

	r.callback(ProgressUpdate{
		Type:      EventTypeCropResult,
		Timestamp: time.Now(),
		Crop: &CropSummary{
			Message:      s.Message,
			Crop:         s.Crop,
			Required:     s.Required,
			Disabled:     s.Disabled,
			Candidates:   candidates,
			TotalSamples: s.TotalSamples,
		},
	})
}

func (r *amphigoryReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	// Convert preset settings from [][2]string to []PresetSetting
	settings := make([]PresetSetting, 0, len(s.DraptoPresetSettings))
	for _, pair := range s.DraptoPresetSettings {
		settings = append(settings, PresetSetting{Key: pair[0], Value: pair[1]})
	}
	r.callback(ProgressUpdate{
		Type:      EventTypeEncodingConfig,
		Timestamp: time.Now(),
		EncodingConfig: &EncodingConfig{
			Encoder:            s.Encoder,
			Preset:             s.Preset,
			Tune:               s.Tune,
			Quality:            s.Quality,
			PixelFormat:        s.PixelFormat,
			MatrixCoefficients: s.MatrixCoefficients,
			AudioCodec:         s.AudioCodec,
			AudioDescription:   s.AudioDescription,
			DraptoPreset:       s.DraptoPreset,
			PresetSettings:     settings,
			SVTParams:          s.SVTAV1Params,
		},
	})
}

func (r *amphigoryReporter) EncodingStarted(totalFrames uint64) {
	r.callback(ProgressUpdate{
		Type:        EventTypeEncodingStarted,
		Timestamp:   time.Now(),
		TotalFrames: int64(totalFrames),
	})
}

func (r *amphigoryReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.callback(ProgressUpdate{
		Type:         EventTypeEncodingProgress,
		Timestamp:    time.Now(),
		Percent:      float64(s.Percent),
		Stage:        "encoding",
		Speed:        float64(s.Speed),
		FPS:          float64(s.FPS),
		ETA:          s.ETA,
		Bitrate:      s.Bitrate,
		TotalFrames:  int64(s.TotalFrames),
		CurrentFrame: int64(s.CurrentFrame),
	})
}

func (r *amphigoryReporter) ValidationComplete(s draptolib.ValidationSummary) {
	steps := make([]ValidationStep, 0, len(s.Steps))
	for _, step := range s.Steps {
		steps = append(steps, ValidationStep{
			Name:    step.Name,
			Passed:  step.Passed,
			Details: step.Details,
		})
	}
	r.callback(ProgressUpdate{
		Type:      EventTypeValidation,
		Timestamp: time.Now(),
		Validation: &ValidationSummary{
			Passed: s.Passed,
			Steps:  steps,
		},
	})
}

func (r *amphigoryReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.callback(ProgressUpdate{
		Type:      EventTypeEncodingComplete,
		Timestamp: time.Now(),
		Result: &EncodingResult{
			InputFile:    s.InputFile,
			OutputFile:   s.OutputFile,
			OriginalSize: int64(s.OriginalSize),
			EncodedSize:  int64(s.EncodedSize),
			VideoStream:  s.VideoStream,
			AudioStream:  s.AudioStream,
			AverageSpeed: float64(s.AverageSpeed),
			OutputPath:   s.OutputPath,
			Duration:     s.TotalTime,
		},
	})
}

func (r *amphigoryReporter) Warning(message string) {
	r.callback(ProgressUpdate{
		Type:      EventTypeWarning,
		Timestamp: time.Now(),
		Warning:   message,
	})
}

func (r *amphigoryReporter) Error(e draptolib.ReporterError) {
	r.callback(ProgressUpdate{
		Type:      EventTypeError,
		Timestamp: time.Now(),
		Error: &ReporterIssue{
			Title:      e.Title,
			Message:    e.Message,
			Context:    e.Context,
			Suggestion: e.Suggestion,
		},
	})
}

func (r *amphigoryReporter) OperationComplete(message string) {
	r.callback(ProgressUpdate{
		Type:              EventTypeOperationComplete,
		Timestamp:         time.Now(),
		OperationComplete: message,
	})
}

func (r *amphigoryReporter) BatchStarted(s draptolib.BatchStartInfo) {
	r.callback(ProgressUpdate{
		Type:      EventTypeBatchStarted,
		Timestamp: time.Now(),
		BatchStart: &BatchStartInfo{
			TotalFiles: s.TotalFiles,
			FileList:   append([]string(nil), s.FileList...),
			OutputDir:  s.OutputDir,
		},
	})
}

func (r *amphigoryReporter) FileProgress(s draptolib.FileProgressContext) {
	r.callback(ProgressUpdate{
		Type:      EventTypeFileProgress,
		Timestamp: time.Now(),
		FileProgress: &FileProgress{
			CurrentFile: s.CurrentFile,
			TotalFiles:  s.TotalFiles,
		},
	})
}

func (r *amphigoryReporter) BatchComplete(s draptolib.BatchSummary) {
	r.callback(ProgressUpdate{
		Type:      EventTypeBatchComplete,
		Timestamp: time.Now(),
		BatchSummary: &BatchSummary{
			SuccessfulCount:   s.SuccessfulCount,
			TotalFiles:        s.TotalFiles,
			TotalOriginalSize: int64(s.TotalOriginalSize),
			TotalEncodedSize:  int64(s.TotalEncodedSize),
			TotalDuration:     s.TotalDuration,
		},
	})
}

var _ draptolib.Reporter = (*amphigoryReporter)(nil)
