// Package framelog reads recorded per-frame joint angles.
//
// Two formats are supported. CSV files carry a header naming the columns
// elbow_angle, hip_angle and visibility_ok (any order, extra columns are
// ignored); a row whose three fields are empty is a frame without a pose.
// JSON Lines files carry one frame object per line, or null for a frame
// without a pose. Blank JSON lines are skipped.
package framelog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meltforce/repcoach/internal/models"
)

// Format is a frame log encoding.
type Format int

const (
	CSV Format = iota
	JSONL
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSONL:
		return "jsonl"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat is returned for file extensions other than .csv, .jsonl and .ndjson.
var ErrUnknownFormat = errors.New("unknown frame log format")

// FormatOf picks the format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".jsonl", ".ndjson":
		return JSONL, nil
	default:
		return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// ParseFile reads a frame log, choosing the format from the extension.
func ParseFile(path string) ([]*models.Frame, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}

// Parse reads all frames from r. Frames without a pose are nil.
func Parse(r io.Reader, format Format) ([]*models.Frame, error) {
	switch format {
	case CSV:
		return parseCSV(r)
	case JSONL:
		return parseJSONL(r)
	default:
		return nil, ErrUnknownFormat
	}
}

var csvColumns = []string{"elbow_angle", "hip_angle", "visibility_ok"}

func parseCSV(r io.Reader) ([]*models.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("header: missing column %q", name)
		}
		cols[i] = c
	}

	var frames []*models.Frame
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		fields := make([]string, len(cols))
		empty := true
		for i, c := range cols {
			if c < len(rec) {
				fields[i] = strings.TrimSpace(rec[c])
			}
			if fields[i] != "" {
				empty = false
			}
		}
		if empty {
			frames = append(frames, nil)
			continue
		}

		f, err := csvFrame(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
}

func csvFrame(fields []string) (*models.Frame, error) {
	elbow, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("elbow_angle: %w", err)
	}
	hip, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("hip_angle: %w", err)
	}
	visible, err := strconv.ParseBool(fields[2])
	if err != nil {
		return nil, fmt.Errorf("visibility_ok: %w", err)
	}
	return &models.Frame{ElbowAngle: elbow, HipAngle: hip, VisibilityOK: visible}, nil
}

func parseJSONL(r io.Reader) ([]*models.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var frames []*models.Frame
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var f *models.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}
