package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ConserveLee/snapbuy/internal/config"
	"github.com/ConserveLee/snapbuy/internal/engine/screen"
)

// Scores saved screenshots against the configured templates, to tune thresholds offline.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	screenPath := flag.String("screen", "debug_screen.png", "Screenshot to search")
	only := flag.String("template", "", "Only test this template name")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	screenImg, err := screen.LoadImage(*screenPath)
	if err != nil {
		fmt.Printf("Failed to load screen: %v\n", err)
		os.Exit(1)
	}
	frame := screen.NewFrame(screenImg, image.Point{}, time.Now())
	fmt.Printf("Screen size: %dx%d\n", frame.Width(), frame.Height())

	store := screen.NewTemplateStore()
	for _, name := range sortedKeys(cfg.Templates) {
		if *only != "" && name != *only {
			continue
		}
		tpl, err := store.Load(name, filepath.Join(cfg.TemplatesDir, cfg.Templates[name]))
		if err != nil {
			fmt.Printf("Failed to load template %s: %v\n", name, err)
			continue
		}

		fmt.Printf("\n=== %s (%dx%d) ===\n", name, tpl.Width(), tpl.Height())
		for _, threshold := range []float64{0.7, 0.8, 0.9} {
			start := time.Now()
			res := screen.Match(tpl, frame, threshold)
			fmt.Printf("  threshold %.2f: found=%v score=%.4f at %v center %v (%s)\n",
				threshold, res.Found, res.Score, res.Position, res.Center(tpl), time.Since(start).Round(time.Millisecond))
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
