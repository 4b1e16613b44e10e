package evaluator

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Field aliases observed in model replies, most specific first.
var (
	overallPaths    = []string{"score", "overall_score", "overallScore", "overall"}
	verdictPaths    = []string{"general", "verdict", "result"}
	feedbackPaths   = []string{"feedback", "comment"}
	suggestionPaths = []string{"suggestion", "suggestions", "tip"}
	dimensionParent = []string{"dimensions", "details", "scores"}
)

// Parse reads a model reply into an Assessment. It tolerates markdown code
// fences and text around the JSON object. Fields with the wrong JSON type
// are ignored.
func Parse(content string) (*Assessment, error) {
	body := extractObject(stripMarkdown(content))
	if body == "" || !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: reply is not an object", ErrMalformed)
	}
	if e := root.Get("error"); e.Exists() && isSet(e) {
		return nil, fmt.Errorf("%w: %s", ErrRejected, e.String())
	}

	a := &Assessment{Dimensions: make(map[string]int, len(Dimensions))}
	a.Overall, a.HasOverall = firstNumber(root, overallPaths...)
	for _, d := range Dimensions {
		paths := make([]string, 0, len(dimensionParent)+1)
		for _, parent := range dimensionParent {
			paths = append(paths, parent+"."+d)
		}
		paths = append(paths, d)
		if v, ok := firstNumber(root, paths...); ok {
			a.Dimensions[d] = v
		}
	}
	a.Verdict = strings.ToLower(firstString(root, verdictPaths...))
	a.Feedback = firstString(root, feedbackPaths...)
	a.Suggestion = firstString(root, suggestionPaths...)
	return a, nil
}

// isSet reports whether an "error" value actually signals an error.
func isSet(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return strings.TrimSpace(v.Str) != ""
	default:
		return true
	}
}

func firstNumber(root gjson.Result, paths ...string) (int, bool) {
	for _, p := range paths {
		v := root.Get(p)
		if v.Type == gjson.Number {
			f := v.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			// Bound before converting; huge values do not fit an int.
			return int(math.Round(min(max(f, -1), 101))), true
		}
	}
	return 0, false
}

// firstString returns the first string value found. An array of strings is
// joined with a space.
func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := root.Get(p)
		switch {
		case v.Type == gjson.String:
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		case v.IsArray():
			var parts []string
			for _, item := range v.Array() {
				if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
					parts = append(parts, strings.TrimSpace(item.Str))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
	}
	return ""
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models put around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// extractObject returns the text from the first '{' to the last '}'.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
