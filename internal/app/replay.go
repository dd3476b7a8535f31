package app

import (
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/logstore"
	"github.com/relabs-tech/aoa_tester/internal/report"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

// ReplayDir rebuilds the buckets of one logged session directory, one
// log file per orientation.
func ReplayDir(dir string, mode locate.Mode) (map[aoa.GroundTruth]*correlator.Bucket, error) {
	logs, err := logstore.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("no log files found in %s", dir)
	}

	name := filepath.Base(dir)
	data := make(map[aoa.GroundTruth]*correlator.Bucket, len(logs))
	for _, gt := range correlator.SortedKeys(logs) {
		r := locate.NewReader(name, transport.NewReplay(logs[gt]), mode)
		b, err := correlator.New(r).Replay(gt)
		if err != nil {
			return nil, err
		}
		data[gt] = b
		st := r.Stats()
		if st.FramingErrors > 0 || st.Restarts > 0 {
			log.Printf("replay: %s: %d damaged lines, %d restart markers", logstore.FileName(gt), st.FramingErrors, st.Restarts)
		}
	}
	return data, nil
}

// RunReplay analyses logged sessions offline and writes the same reports
// a sweep does into each directory.
func RunReplay(cfg *config.Config, dirs []string, out io.Writer) error {
	mode, err := locate.ParseMode(cfg.ReplayMode)
	if err != nil {
		return err
	}
	analyzer := analyzerFromConfig(cfg)
	log.Printf("replay: mode %s, max angle %d, drop ±90 %v", mode, cfg.MaxAngle, cfg.DropNinety)

	for _, dir := range dirs {
		data, err := ReplayDir(dir, mode)
		if err != nil {
			return fmt.Errorf("replay %s: %w", dir, err)
		}
		s, err := writeReports(dir, filepath.Base(dir), data, analyzer)
		if err != nil {
			return err
		}
		if err := report.WriteText(out, s); err != nil {
			return err
		}
	}
	return nil
}
