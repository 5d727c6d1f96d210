package analyzer

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
)

const (
	sentimentMarker = "SENTIMENT_JSON:"
	winnerMarker    = "WINNER:"
)

var (
	mentionCacheMu sync.Mutex
	mentionCache   = map[string]*regexp.Regexp{}
)

func mentionPattern(name string) *regexp.Regexp {
	mentionCacheMu.Lock()
	defer mentionCacheMu.Unlock()
	key := strings.ToLower(name)
	if re, ok := mentionCache[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(name) + `)(?:$|[^\p{L}\p{N}])`)
	mentionCache[key] = re
	return re
}

// firstMention returns the byte offset of the first whole-word, case-insensitive
// occurrence of name in text, or -1.
func firstMention(text, name string) int {
	name = strings.TrimSpace(name)
	if name == "" || text == "" {
		return -1
	}
	loc := mentionPattern(name).FindStringSubmatchIndex(text)
	if loc == nil {
		return -1
	}
	return loc[2]
}

func mentions(text, name string) bool { return firstMention(text, name) >= 0 }

// brandPosition ranks brand among every mentioned name by first occurrence.
// It is 1-based and 0 when the brand is not mentioned.
func brandPosition(text, brandName string, competitors []string) int {
	own := firstMention(text, brandName)
	if own < 0 {
		return 0
	}
	type hit struct {
		name string
		at   int
	}
	hits := []hit{{brandName, own}}
	for _, c := range competitors {
		if at := firstMention(text, c); at >= 0 {
			hits = append(hits, hit{c, at})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	for i, h := range hits {
		if h.name == brandName {
			return i + 1
		}
	}
	return 0
}

type sentimentLine struct {
	Score analytics.Number `json:"score"`
	Label string           `json:"label"`
}

// parseSentiment reads the last SENTIMENT_JSON line. ok is false when there is
// none or it does not decode.
func parseSentiment(text string) (score float64, label string, ok bool) {
	line, found := lastMarkerLine(text, sentimentMarker)
	if !found {
		return 0, "", false
	}
	line = strings.Trim(line, "` ")
	if i := strings.Index(line, "{"); i > 0 {
		line = line[i:]
	}
	if i := strings.LastIndex(line, "}"); i >= 0 {
		line = line[:i+1]
	}
	var s sentimentLine
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	if err := dec.Decode(&s); err != nil {
		return 0, "", false
	}
	score = s.Score.Float()
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	label = strings.ToLower(strings.TrimSpace(s.Label))
	switch label {
	case "positive", "neutral", "negative":
	default:
		label = analytics.SentimentLabel(score)
	}
	return score, label, true
}

// parseWinner maps the last WINNER line onto a matchup outcome for brandName
// against competitor. ok is false when the line is missing or names someone else.
func parseWinner(text, brandName, competitor string) (string, bool) {
	line, found := lastMarkerLine(text, winnerMarker)
	if !found {
		return "", false
	}
	name := strings.Trim(line, " *_`\"'.")
	switch strings.ToLower(name) {
	case "tie", "draw", "both", "neither", "equal":
		return analytics.OutcomeTie, true
	}
	brandHit := mentions(name, brandName)
	compHit := competitor != "" && mentions(name, competitor)
	switch {
	case brandHit && !compHit:
		return analytics.OutcomeWin, true
	case compHit && !brandHit:
		return analytics.OutcomeLoss, true
	case brandHit && compHit:
		return analytics.OutcomeTie, true
	}
	return "", false
}

var markerPatterns = map[string]*regexp.Regexp{
	sentimentMarker: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(sentimentMarker)),
	winnerMarker:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(winnerMarker)),
}

func markerPattern(marker string) *regexp.Regexp {
	if re, ok := markerPatterns[marker]; ok {
		return re
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker))
}

// lastMarkerLine returns the text after marker on the last line carrying it.
func lastMarkerLine(text, marker string) (string, bool) {
	re := markerPattern(marker)
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(strings.Trim(strings.TrimSpace(lines[i]), "*_`"))
		loc := re.FindStringIndex(l)
		if loc == nil {
			continue
		}
		return strings.TrimSpace(l[loc[1]:]), true
	}
	return "", false
}

// stripMarkers removes the format lines so they do not count as mentions.
func stripMarkers(text string) string {
	sentiment, winner := markerPattern(sentimentMarker), markerPattern(winnerMarker)
	var b strings.Builder
	for _, l := range strings.Split(text, "\n") {
		if sentiment.MatchString(l) || winner.MatchString(l) {
			continue
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
