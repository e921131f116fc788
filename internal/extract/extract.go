// Package extract pulls match details (date, kick-off time, teams) out of free-form
// user text. Parsing never fails: every field falls back to a sentinel.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DateUnknown             = "unknown date"
	TimeUnknown             = "unknown"
	ParticipantsUnspecified = "unspecified"

	// ParticipantSeparator joins the two team names.
	ParticipantSeparator = " — "

	dateLayout = "02.01.2006"
)

// MatchInfo is derived per request and never stored.
type MatchInfo struct {
	Date         string
	Time         string
	Participants string
	Home         string
	Away         string
}

// Known reports whether at least one field was parsed.
func (m MatchInfo) Known() bool {
	return m.Date != DateUnknown || m.Time != TimeUnknown || m.Participants != ParticipantsUnspecified
}

// Summary renders the parsed fields as a short block, empty when nothing was parsed.
func (m MatchInfo) Summary() string {
	if !m.Known() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Детали матча:")
	if m.Participants != ParticipantsUnspecified {
		fmt.Fprintf(&b, "\n- команды: %s", m.Participants)
	}
	if m.Date != DateUnknown {
		fmt.Fprintf(&b, "\n- дата: %s", m.Date)
	}
	if m.Time != TimeUnknown {
		fmt.Fprintf(&b, "\n- время: %s", m.Time)
	}
	return b.String()
}

// Leftmost keyword wins; at the same position the longer phrase is listed first.
var relativeDayRe = regexp.MustCompile(`(?i)day after tomorrow|послезавтра|tomorrow|завтра|today|сегодня`)

var relativeOffsets = map[string]int{
	"day after tomorrow": 2,
	"послезавтра":        2,
	"tomorrow":           1,
	"завтра":             1,
	"today":              0,
	"сегодня":            0,
}

var (
	numericDateRe = regexp.MustCompile(`(^|[^\d:.\-])(\d{1,2})\.(\d{1,2})(?:\.(\d{2,4}))?($|[^\d:\-])`)
	timeRe        = regexp.MustCompile(`(\d{1,2})[:.\-](\d{2})`)
	separatorRe   = regexp.MustCompile(`(?i)\s*[-–—]\s*|(?:^|\s)(?:vs\.?|против|against)(?:\s|$)`)
)

// Extract parses raw text; relative keywords resolve against now's calendar day.
func Extract(raw string, now time.Time) MatchInfo {
	date, rest := extractDate(raw, now)
	tm, rest := extractTime(rest)
	home, away := extractParticipants(rest)

	info := MatchInfo{Date: date, Time: tm, Participants: ParticipantsUnspecified}
	if home != "" && away != "" {
		info.Home = home
		info.Away = away
		info.Participants = home + ParticipantSeparator + away
	}
	return info
}

// extractDate returns the normalized date and the text with the consumed substring removed.
func extractDate(s string, now time.Time) (string, string) {
	if m := relativeDayRe.FindStringIndex(s); m != nil {
		offset := relativeOffsets[strings.ToLower(s[m[0]:m[1]])]
		return now.AddDate(0, 0, offset).Format(dateLayout), cut(s, m[0], m[1])
	}

	for _, m := range numericDateRe.FindAllStringSubmatchIndex(s, -1) {
		day, _ := strconv.Atoi(s[m[4]:m[5]])
		month, _ := strconv.Atoi(s[m[6]:m[7]])
		year := now.Year()
		if m[8] >= 0 {
			year = normalizeYear(s[m[8]:m[9]])
		}
		if month < 1 || month > 12 || day < 1 {
			continue
		}
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		if d.Day() != day {
			// 31.02 and similar overflow into the next month
			continue
		}
		return d.Format(dateLayout), cut(s, m[4], endOfDate(m))
	}
	return DateUnknown, s
}

func endOfDate(m []int) int {
	if m[8] >= 0 {
		return m[9]
	}
	return m[7]
}

func normalizeYear(y string) int {
	n, _ := strconv.Atoi(y)
	switch len(y) {
	case 2:
		return 2000 + n
	case 3:
		return 2000 + n%100
	default:
		return n
	}
}

func extractTime(s string) (string, string) {
	for _, m := range timeRe.FindAllStringSubmatchIndex(s, -1) {
		h, _ := strconv.Atoi(s[m[2]:m[3]])
		mm, _ := strconv.Atoi(s[m[4]:m[5]])
		if h > 23 || mm > 59 {
			continue
		}
		return fmt.Sprintf("%02d:%02d", h, mm), cut(s, m[0], m[1])
	}
	return TimeUnknown, s
}

func extractParticipants(s string) (string, string) {
	var segments []string
	for _, seg := range separatorRe.Split(s, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) < 2 {
		return "", ""
	}
	return trailingName(segments[0]), leadingName(segments[1])
}

// trailingName keeps the capitalized words closest to the separator on the left side.
func trailingName(seg string) string {
	words := strings.Fields(seg)
	i := len(words)
	for i > 0 && isNameWord(words[i-1]) {
		i--
	}
	if i == len(words) {
		return trimPunct(words[len(words)-1])
	}
	return trimPunct(strings.Join(words[i:], " "))
}

// leadingName keeps the capitalized words closest to the separator on the right side.
func leadingName(seg string) string {
	words := strings.Fields(seg)
	i := 0
	for i < len(words) && isNameWord(words[i]) {
		i++
	}
	if i == 0 {
		return trimPunct(words[0])
	}
	return trimPunct(strings.Join(words[:i], " "))
}

func isNameWord(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '.' && r != '\''
	})
}

func cut(s string, from, to int) string {
	return s[:from] + " " + s[to:]
}
