// Command pathtrace renders a generated sphere scene with the progressive
// GPU path tracer and writes the converged image to a file.
//
// Usage:
//
//	pathtrace [-config scene.toml] [-samples 256] [-output out.png] [-watch]
//
// With -watch the scene is re-rendered every time the config file changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	// The noop backend allows dry runs without a GPU.
	_ "github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pathtracer"
	"github.com/gogpu/pathtracer/config"
	"github.com/gogpu/pathtracer/internal/gpu"
	"github.com/gogpu/pathtracer/internal/imagefile"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML or YAML config file")
		width      = flag.Int("width", 0, "image width (overrides config)")
		height     = flag.Int("height", 0, "image height (overrides config)")
		samples    = flag.Int("samples", 0, "samples per pixel (overrides config)")
		seed       = flag.Int64("seed", 0, "scene seed (overrides config)")
		count      = flag.Int("count", 0, "sphere candidates (overrides config)")
		policy     = flag.String("policy", "", "placement policy: scatter or lights (overrides config)")
		skybox     = flag.String("skybox", "", "skybox image (overrides config)")
		kernel     = flag.String("kernel", "", "WGSL path-trace kernel (overrides config)")
		output     = flag.String("output", "", "output image (overrides config)")
		backend    = flag.String("backend", "", "GPU backend: vulkan, metal, dx12, gl or noop (default: best available)")
		label      = flag.Bool("label", false, "stamp the sample count onto the image")
		watch      = flag.Bool("watch", false, "re-render when the config file changes")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	pathtracer.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Flags override the file only when given explicitly.
	override := func(cfg *config.Config) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "width":
				cfg.Render.Width = *width
			case "height":
				cfg.Render.Height = *height
			case "samples":
				cfg.Render.Samples = *samples
			case "seed":
				cfg.Scene.Seed = *seed
			case "count":
				cfg.Scene.Count = *count
			case "policy":
				cfg.Scene.Policy = *policy
			case "skybox":
				cfg.Render.Skybox = *skybox
			case "kernel":
				cfg.Render.Kernel = *kernel
			case "output":
				cfg.Render.Output = *output
			}
		})
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	override(cfg)

	var opts []pathtracer.Option
	if *backend != "" {
		b, err := gpu.ParseBackend(*backend)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, pathtracer.WithBackend(b))
	}

	t, err := pathtracer.New(cfg, opts...)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer t.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reloaded := make(chan *config.Config, 1)
	if *watch {
		if *configPath == "" {
			log.Fatal("-watch needs -config")
		}
		go func() {
			err := config.Watch(ctx, *configPath, func(c *config.Config, err error) {
				if err != nil {
					log.Printf("Config reload failed: %v", err)
					return
				}
				override(c)
				offerLatest(reloaded, c)
			})
			if err != nil {
				log.Printf("Config watch stopped: %v", err)
			}
		}()
	}

	p := message.NewPrinter(language.English)
	for {
		if err := render(ctx, t, cfg, *label, p); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("Render failed: %v", err)
		}
		if !*watch {
			return
		}

		select {
		case <-ctx.Done():
			return
		case c := <-reloaded:
			if err := t.Apply(c); err != nil {
				log.Printf("Config apply failed: %v", err)
				continue
			}
			cfg = c
		}
	}
}

func render(ctx context.Context, t *pathtracer.Tracer, cfg *config.Config, label bool, p *message.Printer) error {
	start := time.Now()
	if err := t.Render(ctx, cfg.Render.Samples, nil); err != nil {
		return err
	}
	img, err := t.Snapshot()
	if err != nil {
		return err
	}
	if label {
		stamp(img, p.Sprintf("%d spp", t.Sample()))
	}
	if err := imagefile.Save(img, cfg.Render.Output); err != nil {
		return err
	}

	elapsed := time.Since(start)
	pixels := cfg.Render.Width * cfg.Render.Height * int(t.Sample())
	log.Print(p.Sprintf("Saved %s: %d spheres, %d samples, %d pixel samples in %v (%.0f/s)",
		cfg.Render.Output, len(t.Spheres()), t.Sample(), pixels,
		elapsed.Round(time.Millisecond), float64(pixels)/elapsed.Seconds()))
	return nil
}

// offerLatest puts v into the single-slot channel ch, replacing a pending
// value that was not consumed yet.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// stamp draws text in the bottom-left corner over a dark backing box.
func stamp(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.White, Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Metrics().Height.Ceil()

	b := img.Bounds()
	box := image.Rect(b.Min.X, b.Max.Y-h-4, b.Min.X+w+6, b.Max.Y).Intersect(b)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	d.Dot = fixed.P(b.Min.X+3, b.Max.Y-2-face.Metrics().Descent.Ceil())
	d.DrawString(text)
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
