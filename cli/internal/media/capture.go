package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	streamID     = "warpcall"
	opusRate     = 48000
	oggPageDelay = 20 * time.Millisecond
)

var (
	ErrNoFile    = errors.New("no capture file configured")
	errEmptyFile = errors.New("capture file has no media")
)

// Files maps each capture to the file that feeds it. Video sources take an
// IVF file (VP8 or VP9), audio takes an Ogg/Opus file. Empty means no device.
type Files struct {
	Camera      string
	Screenshare string
	Audio       string
}

func (f Files) path(source Source) string {
	switch source {
	case SourceCamera:
		return f.Camera
	case SourceScreenshare:
		return f.Screenshare
	case SourceAudio:
		return f.Audio
	}
	return ""
}

// FileCapture stands in for camera, screen and microphone by replaying media
// files into local tracks in a loop.
type FileCapture struct {
	tracks *Tracks
	files  Files
}

// NewFileCapture returns a capture provider that fills tracks from files.
func NewFileCapture(tracks *Tracks, files Files) *FileCapture {
	return &FileCapture{tracks: tracks, files: files}
}

// Has reports whether a file is configured for source.
func (c *FileCapture) Has(source Source) bool {
	return c.files.path(source) != ""
}

// Start opens source's file, fills its slot with a new track and streams the
// file until ctx is done. Without a file the slot is abandoned and ErrNoFile
// is returned.
func (c *FileCapture) Start(ctx context.Context, source Source) error {
	path := c.files.path(source)
	if path == "" {
		c.tracks.Abandon(source)
		return ErrNoFile
	}

	var (
		track  *webrtc.TrackLocalStaticSample
		stream func(context.Context, *webrtc.TrackLocalStaticSample, string) error
		err    error
	)
	if source == SourceAudio {
		track, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, string(source), streamID)
		stream = streamOgg
	} else {
		var mime string
		mime, err = ivfMimeType(path)
		if err != nil {
			c.tracks.Abandon(source)
			return fmt.Errorf("capture %s: %w", source, err)
		}
		track, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: mime}, string(source), streamID)
		stream = streamIVF
	}
	if err != nil {
		c.tracks.Abandon(source)
		return fmt.Errorf("capture %s: %w", source, err)
	}

	if err := c.tracks.Fill(source, track); err != nil {
		return fmt.Errorf("capture %s: %w", source, err)
	}

	go func() {
		if err := stream(ctx, track, path); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("capture stopped", "source", source, "path", path, "err", err)
		}
	}()
	return nil
}

// StartAll starts every configured capture and abandons the rest, except
// screenshare which is left pending so it can be started on demand.
func (c *FileCapture) StartAll(ctx context.Context) error {
	var errs []error
	for _, src := range []Source{SourceCamera, SourceAudio} {
		if err := c.Start(ctx, src); err != nil && !errors.Is(err, ErrNoFile) {
			errs = append(errs, err)
		}
	}
	if !c.Has(SourceScreenshare) {
		c.tracks.Abandon(SourceScreenshare)
	}
	return errors.Join(errs...)
}

func ivfMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", err
	}
	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	default:
		return "", fmt.Errorf("unsupported IVF codec %q", header.FourCC)
	}
}

// streamIVF writes every frame of path to track at the file's frame rate,
// rewinding at EOF.
func streamIVF(ctx context.Context, track *webrtc.TrackLocalStaticSample, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		reader, header, err := ivfreader.NewWith(f)
		if err != nil {
			return err
		}
		frameDuration := time.Duration(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator)*1000) * time.Millisecond
		if frameDuration <= 0 {
			frameDuration = 33 * time.Millisecond
		}

		ticker := time.NewTicker(frameDuration)
		frames := 0
		for {
			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				break
			}
			frames++
			if err != nil {
				ticker.Stop()
				return err
			}

			select {
			case <-ctx.Done():
				ticker.Stop()
				return ctx.Err()
			case <-ticker.C:
			}

			if err := track.WriteSample(pmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
				ticker.Stop()
				return err
			}
		}
		ticker.Stop()
		if frames == 0 {
			return errEmptyFile
		}
	}
}

// streamOgg writes every Opus page of path to track, paced by granule
// position, rewinding at EOF.
func streamOgg(ctx context.Context, track *webrtc.TrackLocalStaticSample, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		reader, _, err := oggreader.NewWith(f)
		if err != nil {
			return err
		}

		var lastGranule uint64
		ticker := time.NewTicker(oggPageDelay)
		pages := 0
		for {
			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				break
			}
			pages++
			if err != nil {
				ticker.Stop()
				return err
			}

			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples)/opusRate*1000) * time.Millisecond

			select {
			case <-ctx.Done():
				ticker.Stop()
				return ctx.Err()
			case <-ticker.C:
			}

			if err := track.WriteSample(pmedia.Sample{Data: page, Duration: duration}); err != nil {
				ticker.Stop()
				return err
			}
		}
		ticker.Stop()
		if pages == 0 {
			return errEmptyFile
		}
	}
}
