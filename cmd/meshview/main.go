// Command meshview renders a mesh headlessly for a number of ticks and
// prints frame statistics.
package main

import (
	"flag"
	"image"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/meshview"
	_ "github.com/gogpu/meshview/backend/native"
	_ "github.com/gogpu/meshview/backend/soft"
	"github.com/gogpu/meshview/config"
	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/timer"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "config file (.toml, .yaml)")
		backend  = flag.String("backend", "", "backend: auto, native, soft")
		ticks    = flag.Int("ticks", 120, "number of ticks to run")
		meshPath = flag.String("mesh", "", "mesh file (.msh, .obj, .txt)")
		capture  = flag.String("capture", "", "write the last frame to this BMP file")
		realtime = flag.Bool("realtime", false, "drive the timer from the wall clock")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	meshview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *meshPath != "" {
		cfg.Mesh = *meshPath
	}

	// Offline runs advance a manual clock by one step per tick so that
	// every tick updates the camera exactly once.
	step := timer.DefaultTarget
	if cfg.TargetFPS > 0 {
		step = time.Second / time.Duration(cfg.TargetFPS)
	}
	opts := []meshview.Option{meshview.WithConfig(cfg)}
	var clock *timer.Manual
	if !*realtime {
		clock = &timer.Manual{}
		opts = append(opts, meshview.WithClock(clock), meshview.WithFixedStep(step))
	}

	r, err := meshview.New(nil, opts...)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	// log.Fatalf skips deferred calls; release the device first.
	fatalf := func(format string, args ...any) {
		if err := r.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
		log.Fatalf(format, args...)
	}

	start := time.Now()
	for i := 0; i < *ticks; i++ {
		if clock != nil {
			clock.Advance(step)
		}
		if err := r.Tick(); err != nil {
			fatalf("Tick %d failed: %v", i, err)
		}
	}
	wall := time.Since(start)

	if *capture != "" {
		img, err := r.Capture()
		if err != nil {
			fatalf("Failed to capture: %v", err)
		}
		if err := writeBMP(*capture, img); err != nil {
			fatalf("Failed to save: %v", err)
		}
		log.Printf("Frame saved to %s (%dx%d)", *capture, img.Width, img.Height)
	}

	s := r.Stats()
	p := message.NewPrinter(language.English)
	p.Printf("adapter:    %s\n", r.Adapter().Name)
	p.Printf("frames:     %d\n", s.Frames)
	p.Printf("updates:    %d\n", s.Updates)
	p.Printf("recoveries: %d\n", s.Recoveries)
	p.Printf("wall time:  %v (%.1f frames/s)\n", wall.Round(time.Millisecond), float64(s.Frames)/wall.Seconds())

	if err := r.Close(); err != nil {
		log.Fatalf("Close: %v", err)
	}
}

// writeBMP converts a captured frame to RGBA and encodes it.
func writeBMP(path string, img *meshview.Image) (err error) {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pix[y*img.Pitch : y*img.Pitch+img.Width*4]
		dst := rgba.Pix[y*rgba.Stride : y*rgba.Stride+img.Width*4]
		copy(dst, src)
		if img.Format == gpucore.FormatBGRA8Unorm {
			for x := 0; x < len(dst); x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return bmp.Encode(f, rgba)
}
