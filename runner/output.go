package runner

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const measurementTag = "<DartMeasurement"

var (
	measurementBlock = regexp.MustCompile(`(?s)(<DartMeasurement.*/DartMeasurement[a-zA-Z]*>)`)
	measurementItem  = regexp.MustCompile(`(<DartMeasurement[^<]*</DartMeasurement[a-zA-Z]*>)`)
)

// extractMeasurements returns the measurement block found in output and the
// output with every individual measurement removed.
func extractMeasurements(output string) (measurement, cleaned string) {
	if output == "" || !strings.Contains(output, measurementTag) {
		return "", output
	}
	m := measurementBlock.FindStringSubmatch(output)
	if m == nil {
		return "", output
	}
	cleaned = output
	for measurementItem.MatchString(cleaned) {
		cleaned = measurementItem.ReplaceAllString(cleaned, "")
	}
	return m[1], cleaned
}

// truncateOutput cuts output to at most limit bytes without splitting a UTF-8
// sequence. A zero limit, short output or the full output marker keep it whole.
func truncateOutput(output string, limit int) string {
	if limit <= 0 || limit >= len(output) || strings.Contains(output, FullOutputMarker) {
		return output
	}
	cut := 0
	for cut < limit {
		r, size := utf8.DecodeRuneInString(output[cut:])
		if r == utf8.RuneError && size <= 1 {
			cut++
			continue
		}
		if cut+size > limit {
			break
		}
		cut += size
	}
	return output[:cut] + fmt.Sprintf("...\nThe rest of the test output was removed since it exceeds the threshold of %d bytes.\n", limit)
}
