package serialize

import (
	"fmt"
	"strings"
	"time"
)

// currentTimeMarkers are the literal attribute values that request the
// server's clock instead of a client-supplied timestamp.
var currentTimeMarkers = map[string]bool{
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"LOCALTIMESTAMP":    true,
}

// IsCurrentTimeMarker reports whether the value requests the server's
// current time.
func IsCurrentTimeMarker(value any) bool {
	s, ok := value.(string)
	return ok && currentTimeMarkers[strings.ToUpper(s)]
}

// temporalLayouts are the accepted wire formats, most specific first.
var temporalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

func parseTemporal(value string) (time.Time, error) {
	for _, layout := range temporalLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or time", value)
}
