// Package extract pulls the inline control directives out of model-generated
// text. The model embeds bracketed spans ([STEP: n/m], [CHART_DATA: {...}],
// [SUGGEST: "..."], [OPTION: "..."]) inside its prose; extraction strips them
// from the display text and surfaces their payloads as structured fields.
//
// Extract is re-run over the whole accumulated text after every streaming
// delta, so it must be pure and idempotent: only fully closed spans are
// matched, and a span split across deltas stays in the display text untouched
// until the delta that completes it arrives.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"advisorai/pkg/domain"
)

// Result holds the cleaned display text plus any structured fields found.
type Result struct {
	DisplayText string
	Step        string
	Chart       *domain.ChartData
	Suggestions []string
	Options     []string
}

var (
	stepRe    = regexp.MustCompile(`\[STEP:\s*(\d+)\s*/\s*(\d+)\s*\]`)
	suggestRe = regexp.MustCompile(`\[SUGGEST:\s*"((?:[^"\\]|\\.)*)"\s*\]`)
	optionRe  = regexp.MustCompile(`\[OPTION:\s*"((?:[^"\\]|\\.)*)"\s*\]`)
)

// Extract parses the full accumulated text and returns the display form with
// all complete directive spans removed. Directives may appear in any order
// and any subset; a malformed CHART_DATA payload is stripped without yielding
// a chart. Stripping a span can splice the surrounding text into a new
// directive, so extraction repeats until the display text stops changing.
// Each pass only removes characters, which bounds the loop.
func Extract(raw string) Result {
	res := extractOnce(raw)
	for {
		next := extractOnce(res.DisplayText)
		if next.DisplayText == res.DisplayText {
			return res
		}
		if next.Step != "" {
			res.Step = next.Step
		}
		if next.Chart != nil {
			res.Chart = next.Chart
		}
		res.Suggestions = append(res.Suggestions, next.Suggestions...)
		res.Options = append(res.Options, next.Options...)
		res.DisplayText = next.DisplayText
	}
}

func extractOnce(raw string) Result {
	text, chart := extractCharts(raw)
	res := Result{Chart: chart}

	if matches := stepRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		res.Step = last[1] + "/" + last[2]
	}
	text = stepRe.ReplaceAllString(text, "")

	for _, m := range suggestRe.FindAllStringSubmatch(text, -1) {
		res.Suggestions = append(res.Suggestions, unescape(m[1]))
	}
	text = suggestRe.ReplaceAllString(text, "")

	for _, m := range optionRe.FindAllStringSubmatch(text, -1) {
		res.Options = append(res.Options, unescape(m[1]))
	}
	text = optionRe.ReplaceAllString(text, "")

	res.DisplayText = text
	return res
}

const chartPrefix = "[CHART_DATA:"

// extractCharts removes every complete CHART_DATA span and returns the last
// payload that parsed as valid chart data. An unclosed span is left in place.
func extractCharts(text string) (string, *domain.ChartData) {
	var chart *domain.ChartData
	var b strings.Builder
	for {
		idx := strings.Index(text, chartPrefix)
		if idx < 0 {
			b.WriteString(text)
			break
		}
		payload, spanLen, closed := chartSpan(text[idx:])
		if !closed {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:idx])
		if parsed := parseChart(payload); parsed != nil {
			chart = parsed
		}
		text = text[idx+spanLen:]
	}
	return b.String(), chart
}

// chartSpan inspects text that starts with the CHART_DATA prefix. It returns
// the embedded payload, the total span length including the closing bracket,
// and whether the span is closed at all. Brace matching is string-aware so a
// "]" or "}" inside a JSON string does not terminate the span early.
func chartSpan(s string) (payload string, spanLen int, closed bool) {
	i := len(chartPrefix)
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	if i >= len(s) {
		return "", 0, false
	}
	if s[i] != '{' {
		// Payload is not a JSON object: span still closes at the first "]".
		end := strings.IndexByte(s[i:], ']')
		if end < 0 {
			return "", 0, false
		}
		return s[i : i+end], i + end + 1, true
	}

	depth := 0
	inString := false
	escaped := false
	j := i
	for ; j < len(s); j++ {
		c := s[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				objEnd := j + 1
				rest := s[objEnd:]
				closeIdx := strings.IndexByte(rest, ']')
				if closeIdx < 0 {
					return "", 0, false
				}
				return s[i:objEnd], objEnd + closeIdx + 1, true
			}
		}
	}
	return "", 0, false
}

func parseChart(payload string) *domain.ChartData {
	var chart domain.ChartData
	if err := json.Unmarshal([]byte(payload), &chart); err != nil {
		return nil
	}
	return &chart
}

// unescape decodes backslash escapes inside a quoted directive argument.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return unquoted
	}
	return s
}
