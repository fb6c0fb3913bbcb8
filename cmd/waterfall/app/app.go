package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/spectrum"
	"github.com/groundstation-io/vrt-ingest/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderWaterfall(ctx, store, config, logger)
}

func renderWaterfall(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", config.SessionID, err)
	}

	var opts []storage.ReaderOption
	var filters []any
	if config.StreamID != nil {
		opts = append(opts, storage.WithStream(*config.StreamID))
		filters = append(filters, slog.String("stream", fmt.Sprintf("%#08x", *config.StreamID)))
	}

	logger.Info("reader configuration",
		append(filters, slog.String("session", session.UUID))...)

	reader, err := store.ReadPackets(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	logger.Info("reading packets, hold on tight, it may take a while")

	analyzer := spectrum.NewAnalyzer(config.FFTSize)
	spec := NewSpectrumData(NewSmoothBounds(0.3))

	var packets, skipped int
	for reader.Next() {
		rec := reader.Current()

		// Without a sample rate from context the row has no frequency
		// axis, so it cannot be placed on the waterfall.
		if rec.SampleRate == nil {
			skipped++
			continue
		}

		var center float64
		if rec.RFReference != nil {
			center = *rec.RFReference
		}

		span := analyzer.Spectrum(rec.Samples(), *rec.SampleRate, center, rec.Time())
		spec.Update(&span)
		packets++
	}
	if err = reader.Error(); err != nil {
		return err
	}
	if packets == 0 {
		return fmt.Errorf("session %d has no renderable packets", config.SessionID)
	}
	if skipped > 0 {
		logger.Warn("skipped packets without stream context", slog.Int("count", skipped))
	}

	bounds := spec.BoundsTracker.Current()
	if config.MinPower != nil {
		bounds.Min = *config.MinPower
	}
	if config.MaxPower != nil {
		bounds.Max = *config.MaxPower
	}

	logger.Info("finished reading packets",
		slog.Group("stats",
			slog.Int("packets", packets),
			slog.String("minTimestamp", spec.TimestampStart.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", spec.TimestampEnd.Local().Format(time.DateTime)),
			slog.String("minFreq", fmt.Sprintf("%0.2fHz", spec.FrequencyMin)),
			slog.String("maxFreq", fmt.Sprintf("%0.2fHz", spec.FrequencyMax)),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	renderer, err := NewSpectrumRenderer(RenderConfig{
		ColorTheme: config.Theme,
		FontFile:   config.FontFile,
		Annotate:   !config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating spectrum renderer: %w", err)
	}

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", spec.Width),
			slog.Int("height", spec.Height),
		))

	img, err := renderer.Render(spec, bounds)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
