package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/ingest"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/queue"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/segmentation"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/storage"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/tracing"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/transcript"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/vad"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// TranscriptFacetName is the subtitle facet written from transcriptions.
const TranscriptFacetName = "transcript"

// runIngest builds a container from a raw video and its subtitle files
func (s *Service) runIngest(ctx context.Context, job *models.Job, workDir string, logger *logging.Logger) error {
	p := job.Params
	if p.VideoKey == "" && (p.SkipSubtitles || len(p.SubtitleKeys) == 0) {
		return fmt.Errorf("%w: ingest job without inputs", queue.ErrPermanent)
	}

	videoPath := filepath.Join(workDir, "input"+filepath.Ext(p.VideoKey))
	if p.VideoKey != "" {
		if err := s.deps.Store.DownloadFile(ctx, p.VideoKey, videoPath); err != nil {
			return fmt.Errorf("failed to fetch video: %w", err)
		}
	}

	var subtitlePaths []string
	if !p.SkipSubtitles {
		for _, key := range p.SubtitleKeys {
			// facets are named after the file, so keep the basename
			path := filepath.Join(workDir, filepath.Base(key))
			if err := s.deps.Store.DownloadFile(ctx, key, path); err != nil {
				return fmt.Errorf("failed to fetch subtitles: %w", err)
			}
			subtitlePaths = append(subtitlePaths, path)
		}
	}

	codec, err := s.frameCodec()
	if err != nil {
		return err
	}

	span, spanCtx := tracing.StartSpan(ctx, "dataset.ingest")
	start := time.Now()
	path, err := ingest.MakeDataset(spanCtx, s.deps.Decoder, ingest.Options{
		VideoPath:     videoPath,
		OutputPath:    filepath.Join(workDir, filepath.Base(job.DatasetKey)),
		SubtitlePaths: subtitlePaths,
		SkipAudio:     p.SkipAudio || p.VideoKey == "",
		SkipVideo:     p.SkipVideo || p.VideoKey == "",
		SkipSubtitles: p.SkipSubtitles,
		Audio: dataset.AudioConfig{
			SampleRate:  s.cfg.Dataset.AudioSampleRate,
			ChunkLength: s.cfg.Dataset.AudioChunkLength,
		},
		Video: dataset.VideoConfig{
			Codec:      codec,
			ChunkBytes: s.cfg.Dataset.VideoChunkBytes,
		},
		ShortSide: s.cfg.Dataset.VideoShortSide,
		Logger:    logger,
	})
	tracing.LogError(span, err)
	tracing.FinishSpan(span)
	if err != nil {
		return err
	}
	metrics.RecordIngestStage("total", time.Since(start).Seconds())

	ds, err := s.publish(ctx, job, path, models.DatasetStatusReady, models.Metadata{
		"source":    p.VideoKey,
		"subtitles": p.SubtitleKeys,
	})
	if err != nil {
		return err
	}
	metrics.RecordContainer(ds.Duration, ds.Size)
	return nil
}

func (s *Service) frameCodec() (dataset.FrameCodec, error) {
	codec, err := dataset.CodecByName(s.cfg.Dataset.FrameCodec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}
	if jpeg, ok := codec.(dataset.JPEGCodec); ok {
		jpeg.Quality = s.cfg.Dataset.JPEGQuality
		codec = jpeg
	}
	return codec, nil
}

// runVoicedSegments annotates every audio facet with voiced segments
func (s *Service) runVoicedSegments(ctx context.Context, job *models.Job, workDir string, logger *logging.Logger) error {
	path, err := s.fetch(ctx, job, workDir)
	if err != nil {
		return err
	}

	seg := vad.NewSegmenter(s.deps.Classifier, vad.Config{
		FrameDuration:   s.cfg.VAD.FrameDuration,
		PaddingDuration: s.cfg.VAD.PaddingDuration,
		TriggerRatio:    s.cfg.VAD.TriggerRatio,
	}, logger)

	span, _ := tracing.StartSpan(ctx, "dataset.voiced_segments")
	var results []segmentation.Result
	err = dataset.With(path, dataset.ModeReadWrite, func(d *dataset.Dataset) error {
		d.SetLogger(logger)
		var err error
		results, err = segmentation.AddVoicedSegments(d, seg, job.Params.Overwrite, logger)
		return err
	})
	tracing.LogError(span, err)
	tracing.FinishSpan(span)
	if err != nil {
		return err
	}

	written := 0
	for _, r := range results {
		if !r.Skipped {
			written++
			metrics.RecordSegmentation(r.Segments, r.Covered, r.Duration)
		}
	}
	if written == 0 {
		logger.Info("Voiced segments already present, nothing to publish")
		return nil
	}

	ds, err := s.publish(ctx, job, path, models.DatasetStatusAnnotated, s.existingMetadata(ctx, job.DatasetKey))
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Skipped {
			continue
		}
		run := &models.SegmentationRun{
			DatasetID:      ds.ID,
			JobID:          job.ID,
			Modality:       dataset.ModalityAudio,
			Facet:          filepath.Base(r.Facet),
			IntervalSet:    segmentation.VoicedSegments,
			Segments:       r.Segments,
			CoveredSeconds: r.Covered,
		}
		if err := s.deps.Catalog.CreateSegmentationRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// runSpeech finds voiced audio without subtitles. With Transcribe set the
// segments are transcribed, the transcript is published next to the container
// and added to it as a subtitle facet.
func (s *Service) runSpeech(ctx context.Context, job *models.Job, workDir string, logger *logging.Logger) error {
	if job.Params.Transcribe && s.deps.Transcriber == nil {
		return fmt.Errorf("%w: no transcriber configured", queue.ErrPermanent)
	}

	path, err := s.fetch(ctx, job, workDir)
	if err != nil {
		return err
	}

	segCfg := segmentation.Config{
		MergeSubtitles: s.cfg.Segmentation.MergeSubtitles,
		MergeVoiced:    s.cfg.Segmentation.MergeVoiced,
		Trim:           s.cfg.Segmentation.Trim,
		Coverage:       s.cfg.Segmentation.Coverage,
	}

	var (
		speech []segmentation.Speech
		rate   float64
	)
	err = dataset.With(path, dataset.ModeRead, func(d *dataset.Dataset) error {
		var err error
		if speech, err = segmentation.NonSubtitledSpeech(d, segCfg); err != nil {
			return err
		}
		rate, err = d.SampleRate(dataset.ModalityAudio)
		return err
	})
	if err != nil {
		return err
	}
	metrics.RecordSpeechSegments(len(speech))

	var seconds float64
	for _, sp := range speech {
		seconds += sp.End - sp.Start
	}
	metadata := s.existingMetadata(ctx, job.DatasetKey)
	metadata["speech_segments"] = len(speech)
	metadata["speech_seconds"] = seconds

	if !job.Params.Transcribe {
		_, err := s.publish(ctx, job, path, models.DatasetStatusAnnotated, metadata)
		return err
	}

	transcripts, err := transcript.TranscribeSegments(ctx, s.deps.Transcriber, speech, int(rate), transcript.Options{
		Limiter: transcript.NewLimiter(s.cfg.Transcript.RequestsPerMinute),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	jsonPath := filepath.Join(workDir, "transcript.json")
	if err := transcript.WriteFile(jsonPath, transcripts); err != nil {
		return err
	}
	transcriptKey := storage.TranscriptKey(job.DatasetKey)
	if err := s.deps.Store.UploadFile(ctx, transcriptKey, jsonPath); err != nil {
		return fmt.Errorf("failed to publish transcript: %w", err)
	}
	metadata["transcript"] = transcriptKey

	if len(transcripts) > 0 {
		srtPath := filepath.Join(workDir, TranscriptFacetName+".srt")
		srt := transcript.ToSubRip(transcripts, s.cfg.Transcript.MergeGap)
		if err := os.WriteFile(srtPath, []byte(srt), 0o644); err != nil {
			return fmt.Errorf("failed to write transcript subtitles: %w", err)
		}
		if err := s.replaceTranscriptFacet(path, srtPath, logger); err != nil {
			return err
		}
	}

	_, err = s.publish(ctx, job, path, models.DatasetStatusAnnotated, metadata)
	return err
}

// replaceTranscriptFacet swaps the transcript subtitle facet for a new one,
// leaving the other subtitle facets in place.
func (s *Service) replaceTranscriptFacet(path, srtPath string, logger *logging.Logger) error {
	err := dataset.With(path, dataset.ModeReadWrite, func(d *dataset.Dataset) error {
		if !d.HasModality(dataset.ModalitySubtitles) {
			return nil
		}
		m, err := d.Modality(dataset.ModalitySubtitles)
		if err != nil {
			return err
		}
		if _, err := m.Facet(TranscriptFacetName); err != nil {
			return nil
		}
		if m.Len() == 1 {
			return d.RemoveModality(dataset.ModalitySubtitles)
		}
		return m.RemoveFacet(TranscriptFacetName)
	})
	if err != nil {
		return err
	}
	return ingest.AddSubtitles(path, []string{srtPath}, false, logger)
}

// runRemoveModality drops one modality from a published container. The
// catalog status is kept; a container without the modality is republished
// unchanged.
func (s *Service) runRemoveModality(ctx context.Context, job *models.Job, workDir string, logger *logging.Logger) error {
	name := job.Params.Modality
	if name == "" {
		return fmt.Errorf("%w: remove_modality job without modality", queue.ErrPermanent)
	}

	path, err := s.fetch(ctx, job, workDir)
	if err != nil {
		return err
	}
	if err := dataset.RemoveModalityFromFile(path, name); err != nil {
		return err
	}
	logger.WithField("modality", name).Info("Modality removed")

	status := models.DatasetStatusReady
	if ds, err := s.deps.Catalog.GetDatasetByKey(ctx, job.DatasetKey); err == nil {
		status = ds.Status
	}
	_, err = s.publish(ctx, job, path, status, s.existingMetadata(ctx, job.DatasetKey))
	return err
}

// existingMetadata returns the catalog metadata of a dataset, or a fresh map
// when it is not catalogued yet
func (s *Service) existingMetadata(ctx context.Context, key string) models.Metadata {
	ds, err := s.deps.Catalog.GetDatasetByKey(ctx, key)
	if err != nil || ds.Metadata == nil {
		return models.Metadata{}
	}
	return ds.Metadata
}
