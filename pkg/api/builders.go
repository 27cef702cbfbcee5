package api

import (
	"fmt"
	"strings"
	"time"

	errs "searchtweets/pkg/errors"
)

const (
	legacyTimeLayout = "200601021504"
	v2TimeLayout     = "2006-01-02T15:04:05Z"
)

var inputTimeLayouts = []string{
	"200601021504",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339,
}

// ConvertUTCTime parses YYYYmmDDHHMM, YYYY-mm-DD, YYYY-mm-DD HH:MM,
// YYYY-mm-DDTHH:MM or RFC3339 into a UTC time.
func ConvertUTCTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.NewConfigurationError(fmt.Sprintf("unrecognized time %q", s))
}

// FormatLegacyTime renders t as YYYYmmddHHMM.
func FormatLegacyTime(t time.Time) string {
	return t.UTC().Format(legacyTimeLayout)
}

// FormatV2Time renders t as YYYY-mm-ddTHH:MM:SSZ.
func FormatV2Time(t time.Time) string {
	return t.UTC().Format(v2TimeLayout)
}

func validGranularity(g string) bool {
	return g == "day" || g == "hour" || g == "minute"
}

// normalizeQuery collapses runs of whitespace so multi-line queries are accepted.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SearchOptions are the inputs for a v2 search or counts request.
type SearchOptions struct {
	Query          string
	StartTime      string
	EndTime        string
	SinceID        string
	UntilID        string
	ResultsPerCall int
	Granularity    string
	Expansions     string
	TweetFields    string
	UserFields     string
	MediaFields    string
	PlaceFields    string
	PollFields     string
}

// BuildSearchParams builds a v2 payload. A granularity makes it a counts
// request, which drops max_results and the field selections.
func BuildSearchParams(opts SearchOptions) (Params, error) {
	query := normalizeQuery(opts.Query)
	if query == "" {
		return nil, errs.NewConfigurationError("query is required")
	}
	p := Params{"query": query}

	for key, raw := range map[string]string{"start_time": opts.StartTime, "end_time": opts.EndTime} {
		if raw == "" {
			continue
		}
		t, err := ConvertUTCTime(raw)
		if err != nil {
			return nil, err
		}
		p[key] = FormatV2Time(t)
	}
	if opts.SinceID != "" {
		p["since_id"] = opts.SinceID
	}
	if opts.UntilID != "" {
		p["until_id"] = opts.UntilID
	}

	if opts.Granularity != "" {
		if !validGranularity(opts.Granularity) {
			return nil, errs.NewConfigurationError(fmt.Sprintf("invalid granularity %q", opts.Granularity))
		}
		p["granularity"] = opts.Granularity
		return p, nil
	}

	if opts.ResultsPerCall > 0 {
		p["max_results"] = opts.ResultsPerCall
	}
	for key, raw := range map[string]string{
		"expansions":   opts.Expansions,
		"tweet.fields": opts.TweetFields,
		"user.fields":  opts.UserFields,
		"media.fields": opts.MediaFields,
		"place.fields": opts.PlaceFields,
		"poll.fields":  opts.PollFields,
	} {
		if list := splitList(raw); len(list) > 0 {
			p[key] = list
		}
	}
	return p, nil
}

// RuleOptions are the inputs for a legacy premium/enterprise rule payload.
type RuleOptions struct {
	ResultsPerCall int
	FromDate       string
	ToDate         string
	CountBucket    string
	Tag            string
}

// GenRulePayload builds a legacy payload (query, maxResults, fromDate, toDate,
// bucket, tag). A count bucket replaces maxResults.
func GenRulePayload(rule string, opts RuleOptions) (Params, error) {
	query := normalizeQuery(rule)
	if query == "" {
		return nil, errs.NewConfigurationError("rule is required")
	}
	resultsPerCall := opts.ResultsPerCall
	if resultsPerCall <= 0 {
		resultsPerCall = 500
	}
	p := Params{"query": query, "maxResults": resultsPerCall}

	for key, raw := range map[string]string{"toDate": opts.ToDate, "fromDate": opts.FromDate} {
		if raw == "" {
			continue
		}
		t, err := ConvertUTCTime(raw)
		if err != nil {
			return nil, err
		}
		p[key] = FormatLegacyTime(t)
	}
	if opts.CountBucket != "" {
		if !validGranularity(opts.CountBucket) {
			return nil, errs.NewConfigurationError(fmt.Sprintf("invalid count bucket %q", opts.CountBucket))
		}
		p["bucket"] = opts.CountBucket
		delete(p, "maxResults")
	}
	if opts.Tag != "" {
		p["tag"] = opts.Tag
	}
	return p, nil
}
