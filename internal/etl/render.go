package etl

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

var partitionFormats = map[string]string{
	"ds":        "2006-01-02",
	"ds_nodash": "20060102",
	"ts":        time.RFC3339,
	"year":      "2006",
	"month":     "01",
	"day":       "02",
	"hour":      "15",
}

// ValidateKeyPattern rejects placeholders RenderKey does not know.
func ValidateKeyPattern(pattern string) error {
	for _, m := range placeholder.FindAllStringSubmatch(pattern, -1) {
		if _, ok := partitionFormats[m[1]]; !ok {
			return fmt.Errorf("unknown placeholder {%s} in key pattern %q", m[1], pattern)
		}
	}
	return nil
}

// RenderKey substitutes the run's time partition into a key pattern, e.g.
// "log-data/{year}/{month}" becomes "log-data/2018/11". Times are rendered in UTC.
func RenderKey(pattern string, logicalDate time.Time) string {
	t := logicalDate.UTC()
	return placeholder.ReplaceAllStringFunc(pattern, func(m string) string {
		name := strings.Trim(m, "{}")
		if layout, ok := partitionFormats[name]; ok {
			return t.Format(layout)
		}
		return m
	})
}
