package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chendingplano/dataviewer/api/stores"
)

// ParseID parses a caller supplied identifier: a base-10 integer, surrounding
// spaces allowed, greater than zero.
func ParseID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty identifier (DVW_PRM_019): %w", stores.ErrInvalidArgument)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed identifier %q (DVW_PRM_023): %w", raw, stores.ErrInvalidArgument)
	}
	return id, nil
}

// ParseEntityIDs parses the entity filter. Each raw value may itself be a
// comma separated list. The whole filter is rejected when any element is
// malformed or it holds more than maxSize distinct ids. Duplicates collapse.
func ParseEntityIDs(raw []string, maxSize int) ([]int64, error) {
	seen := make(map[int64]struct{})
	ids := []int64{}
	for _, value := range raw {
		for _, piece := range strings.Split(value, ",") {
			id, err := ParseID(piece)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if maxSize > 0 && len(ids) > maxSize {
				return nil, fmt.Errorf("entity filter exceeds %d ids (DVW_PRM_045): %w",
					maxSize, stores.ErrInvalidArgument)
			}
		}
	}
	return ids, nil
}

// ParseYears parses the year filter, a JSON array whose elements are
// integral numbers (1990, 1990.0) or integer strings ("1990"). The whole
// filter is rejected when any element is malformed or it holds more than
// maxSize distinct years. Duplicates collapse.
func ParseYears(raw string, maxSize int) ([]int, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, fmt.Errorf("malformed year filter (DVW_PRM_061): %w: %v", stores.ErrInvalidArgument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after year filter (DVW_PRM_064): %w", stores.ErrInvalidArgument)
	}

	seen := make(map[int]struct{}, len(elems))
	years := make([]int, 0, len(elems))
	for _, elem := range elems {
		year, err := parseYear(elem)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[year]; ok {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
		if maxSize > 0 && len(years) > maxSize {
			return nil, fmt.Errorf("year filter exceeds %d years (DVW_PRM_080): %w",
				maxSize, stores.ErrInvalidArgument)
		}
	}
	return years, nil
}

func parseYear(elem any) (int, error) {
	var s string
	switch v := elem.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("year %v is not a number (DVW_PRM_094): %w", elem, stores.ErrInvalidArgument)
	}

	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), nil
	}

	// Numbers only: "1990.0" as a JSON number is integral, as a string it
	// is not an integer string.
	if _, ok := elem.(json.Number); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
			return int(f), nil
		}
	}
	return 0, fmt.Errorf("malformed year %q (DVW_PRM_108): %w", s, stores.ErrInvalidArgument)
}
