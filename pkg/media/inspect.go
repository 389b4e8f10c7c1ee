package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	tcmp3 "github.com/tcolgate/mp3"
)

// Report summarises a file inspection.
type Report struct {
	MIME            string
	Extension       string
	SizeBytes       int64
	DurationSeconds *float64
	Valid           bool
	Issues          []string
}

// Rules constrain an inspection.
type Rules struct {
	AllowedMIMEs []string
	MaxBytes     int64
}

// Inspect sniffs data and validates it against rules. Duration is filled for
// MPEG audio only.
func Inspect(data []byte, rules Rules) Report {
	mt := mimetype.Detect(data)
	report := Report{
		MIME:      mt.String(),
		Extension: mt.Extension(),
		SizeBytes: int64(len(data)),
	}

	if len(data) == 0 {
		report.Issues = append(report.Issues, "file is empty")
	}
	if rules.MaxBytes > 0 && report.SizeBytes > rules.MaxBytes {
		report.Issues = append(report.Issues, fmt.Sprintf("file exceeds %d bytes", rules.MaxBytes))
	}
	if len(rules.AllowedMIMEs) > 0 && !allowed(mt, rules.AllowedMIMEs) {
		report.Issues = append(report.Issues, fmt.Sprintf("unsupported content type %s", mt.String()))
	}

	if mt.Is("audio/mpeg") {
		if seconds, err := MP3Duration(bytes.NewReader(data)); err == nil && seconds > 0 {
			report.DurationSeconds = &seconds
		} else {
			report.Issues = append(report.Issues, "audio frames could not be decoded")
		}
	}

	report.Valid = len(report.Issues) == 0
	return report
}

// MP3Duration sums frame durations until EOF.
func MP3Duration(r io.Reader) (float64, error) {
	var (
		dur     float64
		dec     = tcmp3.NewDecoder(r)
		frame   tcmp3.Frame
		skipped int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, err
		}
		dur += frame.Duration().Seconds()
	}
	return dur, nil
}

func allowed(mt *mimetype.MIME, list []string) bool {
	for _, candidate := range list {
		if mt.Is(strings.TrimSpace(candidate)) {
			return true
		}
	}
	return false
}
