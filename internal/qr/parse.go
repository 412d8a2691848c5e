// Package qr decodes the codes printed on fitting tags.
//
// A tag payload looks like:
//
//	RF1:550e8400-e29b-41d4-a716-446655440000:CLIP:ZN-04:7
//
// where the segments are scheme+version, fitting subject ID, fitting type,
// zone label, and a trailing mod-10 check digit computed over everything
// before it.
package qr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	scheme         = "RF"
	currentVersion = '1'
	segmentCount   = 5
)

// Parse failure codes surfaced to the capture UI.
var (
	ErrInvalidFormat      = errors.New("qr: invalid payload format")
	ErrUnsupportedVersion = errors.New("qr: unsupported payload version")
	ErrBadChecksum        = errors.New("qr: checksum mismatch")
)

// Tag is a decoded fitting tag.
type Tag struct {
	SubjectID   string `json:"subject_id"`
	FittingType string `json:"fitting_type"`
	Zone        string `json:"zone"`
	Version     int    `json:"version"`
}

// Parse decodes and validates a scanned payload. It is strict: any
// structural deviation is rejected rather than repaired, since a misread
// tag must never produce a plausible-looking entry.
func Parse(payload string) (*Tag, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}

	parts := strings.Split(payload, ":")
	if len(parts) != segmentCount {
		return nil, fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidFormat, segmentCount, len(parts))
	}

	head := parts[0]
	if len(head) != len(scheme)+1 || !strings.HasPrefix(head, scheme) {
		return nil, fmt.Errorf("%w: bad scheme %q", ErrInvalidFormat, head)
	}

	version := head[len(scheme)]
	if version < '0' || version > '9' {
		return nil, fmt.Errorf("%w: bad version segment %q", ErrInvalidFormat, head)
	}
	if version != currentVersion {
		return nil, fmt.Errorf("%w: version %c", ErrUnsupportedVersion, version)
	}

	subjectID, fittingType, zone, check := parts[1], parts[2], parts[3], parts[4]

	if err := uuid.Validate(subjectID); err != nil {
		return nil, fmt.Errorf("%w: subject ID is not a UUID", ErrInvalidFormat)
	}
	if fittingType == "" || zone == "" {
		return nil, fmt.Errorf("%w: empty segment", ErrInvalidFormat)
	}

	if len(check) != 1 || check[0] < '0' || check[0] > '9' {
		return nil, fmt.Errorf("%w: check digit must be a single digit", ErrInvalidFormat)
	}

	body := payload[:strings.LastIndexByte(payload, ':')]
	if checkDigit(body) != int(check[0]-'0') {
		return nil, ErrBadChecksum
	}

	return &Tag{
		SubjectID:   subjectID,
		FittingType: fittingType,
		Zone:        zone,
		Version:     int(version - '0'),
	}, nil
}

// Encode renders a tag back into payload form. Used by fixtures and the
// label-printing side of the portal.
func Encode(t *Tag) string {
	body := fmt.Sprintf("%s%d:%s:%s:%s", scheme, t.Version, t.SubjectID, t.FittingType, t.Zone)
	return fmt.Sprintf("%s:%d", body, checkDigit(body))
}

// checkDigit is a positional weighted sum mod 10, alternating weights 1
// and 3 in the style of EAN check digits.
func checkDigit(body string) int {
	sum := 0
	for i := 0; i < len(body); i++ {
		w := 1
		if i%2 == 1 {
			w = 3
		}
		sum += w * int(body[i])
	}
	return sum % 10
}
