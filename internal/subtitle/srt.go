package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// Track selects which text field an SRT render uses.
type Track string

const (
	TrackOriginal   Track = "original"
	TrackTranslated Track = "translated"
)

// FormatSRT renders items as SRT content. Items with an empty text field for
// the selected track fall back to the original text so no cue is ever blank.
func FormatSRT(items []Item, track Track) string {
	var b strings.Builder
	for i, item := range items {
		text := item.Original
		if track == TrackTranslated && strings.TrimSpace(item.Translated) != "" {
			text = item.Translated
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(formatSRTTimestamp(item.Start))
		b.WriteString(" --> ")
		b.WriteString(formatSRTTimestamp(item.End))
		b.WriteByte('\n')
		if speaker := strings.TrimSpace(item.Speaker); speaker != "" {
			b.WriteString("[" + speaker + "] ")
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// ParseSRT reads SRT content into items. Malformed cues are skipped rather
// than failing the whole file.
func ParseSRT(content string) []Item {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	blocks := strings.Split(content, "\n\n")
	items := make([]Item, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}

		parts := strings.Split(lines[1], "-->")
		if len(parts) != 2 {
			continue
		}
		start, err := parseSRTTimestamp(parts[0])
		if err != nil {
			continue
		}
		end, err := parseSRTTimestamp(parts[1])
		if err != nil {
			continue
		}

		items = append(items, Item{
			ID:       strconv.Itoa(index),
			Start:    start,
			End:      end,
			Original: strings.Join(lines[2:], "\n"),
		})
	}
	return items
}

func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int(seconds*1000 + 0.5)
	hours := millis / 3600000
	millis -= hours * 3600000
	minutes := millis / 60000
	millis -= minutes * 60000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

func parseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// Normalize period to comma (SRT standard uses comma for milliseconds).
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
