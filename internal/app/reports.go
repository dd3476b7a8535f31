package app

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/report"
)

func analyzerFromConfig(cfg *config.Config) report.Analyzer {
	return report.Analyzer{
		Thresholds: report.Thresholds{ToleranceDeg: cfg.PassToleranceDeg, PassRatio: cfg.PassRatio},
		Filter:     report.Filter{MaxAngle: cfg.MaxAngle, DropNinety: cfg.DropNinety},
		Invert:     cfg.AntennaUpsideDown,
	}
}

// writeReports analyses one anchor's buckets and writes summary.txt,
// summary.json and one error histogram per emitter into dir.
func writeReports(dir, anchor string, data map[aoa.GroundTruth]*correlator.Bucket, a report.Analyzer) (report.Summary, error) {
	s := a.Summarize(anchor, data)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s, fmt.Errorf("create %s: %w", dir, err)
	}

	if err := writeFile(filepath.Join(dir, "summary.txt"), func(f *os.File) error {
		return report.WriteText(f, s)
	}); err != nil {
		return s, err
	}
	if err := writeFile(filepath.Join(dir, "summary.json"), func(f *os.File) error {
		return report.WriteJSON(f, s)
	}); err != nil {
		return s, err
	}
	for _, e := range s.Combined {
		title := fmt.Sprintf("%s  tag %s", anchor, e.EmitterID)
		if err := writeFile(filepath.Join(dir, e.EmitterID+"_errors.png"), func(f *os.File) error {
			return report.WritePNG(f, title, s.Errors(e.EmitterID), s.Thresholds)
		}); err != nil {
			return s, err
		}
	}
	log.Printf("report: %s written to %s", anchor, dir)
	return s, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
