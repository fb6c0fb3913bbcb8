package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultFFTSize = 1024
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	StreamID      *uint32
	OutputFile    string
	Format        ImageFormat
	FontFile      string
	Theme         ColorTheme
	FFTSize       int
	MaxPower      *float64
	MinPower      *float64
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

func NewConfig() *Config {
	return &Config{
		Format:  ImagePNG,
		Theme:   ClassicTheme,
		FFTSize: defaultFFTSize,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var minPower, maxPower float64
	var streamID uint
	flag.StringVar(&c.DBPath, "db", "", "Path to the capture database file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.UintVar(&streamID, "stream", 0, "Render a single stream ID only")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(ClassicTheme), "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.StringVar(&c.FontFile, "font", "", "Path to a TTF font file used for annotations")
	flag.IntVar(&c.FFTSize, "fft", defaultFFTSize, "FFT size (bins per row)")
	flag.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power (format nn.n)")
	flag.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power (format nn.n)")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		case "stream":
			id := uint32(streamID)
			c.StreamID = &id
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.FFTSize <= 0 {
		err = errors.New("fft size must be positive")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if !c.NoAnnotations && c.FontFile == "" {
		err = errors.New("font file is required unless -no-annotations is set")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
