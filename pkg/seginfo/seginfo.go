// Package seginfo provides the naming conventions for segment files and
// commit points.
//
// Segment file format: _<name>.<ext>, e.g. "_0.post", "_3.liv".
// Commit file format: segments_<gen> with <gen> in lowercase hex, e.g.
// "segments_1", "segments_a", "segments_10". The highest-numbered commit file
// in a directory is the current generation.
package seginfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iamNilotpal/diagon/pkg/filesys"
)

// SegmentsPrefix is the commit file prefix.
const SegmentsPrefix = "segments_"

// FileName composes a segment-relative file name from segment name and
// extension: FileName("_0", "post") == "_0.post".
func FileName(segment, ext string) string {
	return segment + "." + ext
}

// SegmentName formats the canonical name for segment ordinal n: "_0", "_1"...
// Ordinals are rendered in hex to match commit generations.
func SegmentName(n int64) string {
	return "_" + strconv.FormatInt(n, 16)
}

// SegmentsFileName formats the commit file name for a generation.
func SegmentsFileName(gen int64) string {
	return SegmentsPrefix + strconv.FormatInt(gen, 16)
}

// ParseGeneration extracts the generation from a commit file name. Returns an
// error for names that don't carry a parseable hex generation.
func ParseGeneration(fileName string) (int64, error) {
	if !strings.HasPrefix(fileName, SegmentsPrefix) {
		return 0, fmt.Errorf("not a segments file: %s", fileName)
	}
	gen, err := strconv.ParseInt(strings.TrimPrefix(fileName, SegmentsPrefix), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed generation in %s: %w", fileName, err)
	}
	return gen, nil
}

// LatestGeneration scans dir for commit files and returns the highest
// generation found, or -1 when none exist. Foreign files and commit names
// with unparseable generations are skipped; lexicographic order is not
// trusted because generations are hex.
func LatestGeneration(dir string) (int64, error) {
	names, err := filesys.ListFiles(dir)
	if err != nil {
		return -1, fmt.Errorf("scan for segments files: %w", err)
	}

	best := int64(-1)
	for _, name := range names {
		gen, err := ParseGeneration(name)
		if err != nil {
			continue
		}
		if gen > best {
			best = gen
		}
	}
	return best, nil
}
