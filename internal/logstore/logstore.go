// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package logstore persists collected raw report lines, one file per
// ground truth named "{azimuth}_{elevation}.log".
package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
)

const ext = ".log"

// FileName returns the log file name for gt.
func FileName(gt aoa.GroundTruth) string {
	return gt.String() + ext
}

// ParseFileName recovers the ground truth from a log file name.
func ParseFileName(name string) (aoa.GroundTruth, error) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ext) {
		return aoa.GroundTruth{}, fmt.Errorf("logstore: %s is not a %s file", base, ext)
	}
	parts := strings.Split(strings.TrimSuffix(base, ext), "_")
	if len(parts) != 2 {
		return aoa.GroundTruth{}, fmt.Errorf("logstore: %s: want {azimuth}_{elevation}%s", base, ext)
	}
	az, err := strconv.Atoi(parts[0])
	if err != nil {
		return aoa.GroundTruth{}, fmt.Errorf("logstore: %s: azimuth: %w", base, err)
	}
	el, err := strconv.Atoi(parts[1])
	if err != nil {
		return aoa.GroundTruth{}, fmt.Errorf("logstore: %s: elevation: %w", base, err)
	}
	return aoa.GroundTruth{Azimuth: az, Elevation: el}, nil
}

// SessionDir returns base/report_<dd_mm_YYYY-HH-MM>_<anchor>.
func SessionDir(base string, now time.Time, anchor string) string {
	return filepath.Join(base, fmt.Sprintf("report_%s_%s", now.Format("02_01_2006-15-04"), anchor))
}

// WriteBucket writes the raw lines of one ground truth into dir, creating
// dir when needed. An existing file for gt is replaced.
func WriteBucket(dir string, gt aoa.GroundTruth, lines []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(gt))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}
	return path, nil
}

// WriteAll writes every bucket of a session.
func WriteAll(dir string, data map[aoa.GroundTruth][]string) error {
	for gt, lines := range data {
		if _, err := WriteBucket(dir, gt, lines); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile returns the lines of one log file, trailing newlines removed.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// ReadDir loads every "*.log" file in dir. Files whose names do not carry
// a ground truth are skipped.
func ReadDir(dir string) (map[aoa.GroundTruth][]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	out := make(map[aoa.GroundTruth][]string, len(paths))
	for _, p := range paths {
		gt, err := ParseFileName(p)
		if err != nil {
			continue
		}
		lines, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		out[gt] = lines
	}
	return out, nil
}
