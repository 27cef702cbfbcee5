package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "searchtweets/pkg/errors"
)

func TestConvertUTCTime(t *testing.T) {
	want := time.Date(2017, 8, 2, 0, 0, 0, 0, time.UTC)
	inputs := []string{
		"201708020000",
		"2017-08-02",
		"2017-08-02 00:00",
		"2017-08-02T00:00",
		"2017-08-02T00:00:00Z",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := ConvertUTCTime(in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
			assert.Equal(t, "201708020000", FormatLegacyTime(got))
			assert.Equal(t, "2017-08-02T00:00:00Z", FormatV2Time(got))
		})
	}

	_, err := ConvertUTCTime("last tuesday")
	assert.True(t, errs.IsConfiguration(err))
}

func TestBuildSearchParams(t *testing.T) {
	p, err := BuildSearchParams(SearchOptions{
		Query: `snow
			has:media   -is:retweet`,
		StartTime:      "2021-03-01",
		EndTime:        "2021-03-02T12:30",
		SinceID:        "100",
		ResultsPerCall: 50,
		Expansions:     "author_id, attachments.media_keys",
		TweetFields:    "created_at",
	})
	require.NoError(t, err)

	assert.Equal(t, "snow has:media -is:retweet", p["query"])
	assert.Equal(t, "2021-03-01T00:00:00Z", p["start_time"])
	assert.Equal(t, "2021-03-02T12:30:00Z", p["end_time"])
	assert.Equal(t, "100", p["since_id"])
	assert.Equal(t, 50, p["max_results"])
	assert.Equal(t, []string{"author_id", "attachments.media_keys"}, p["expansions"])
	assert.Equal(t, []string{"created_at"}, p["tweet.fields"])
	assert.NotContains(t, p, "user.fields")
}

func TestBuildSearchParamsCounts(t *testing.T) {
	p, err := BuildSearchParams(SearchOptions{Query: "snow", Granularity: "hour", ResultsPerCall: 100, TweetFields: "lang"})
	require.NoError(t, err)
	assert.Equal(t, "hour", p["granularity"])
	assert.NotContains(t, p, "max_results")
	assert.NotContains(t, p, "tweet.fields")
	assert.Equal(t, EndpointCounts, InferEndpoint(p))

	_, err = BuildSearchParams(SearchOptions{Query: "snow", Granularity: "week"})
	assert.True(t, errs.IsConfiguration(err))

	_, err = BuildSearchParams(SearchOptions{Query: "   "})
	assert.True(t, errs.IsConfiguration(err))
}

func TestGenRulePayload(t *testing.T) {
	p, err := GenRulePayload("kanye west has:geo", RuleOptions{FromDate: "2017-08-21", ToDate: "2017-08-22"})
	require.NoError(t, err)
	assert.Equal(t, Params{
		"query":      "kanye west has:geo",
		"maxResults": 500,
		"fromDate":   "201708210000",
		"toDate":     "201708220000",
	}, p)

	counts, err := GenRulePayload("beyonce", RuleOptions{CountBucket: "day", Tag: "music"})
	require.NoError(t, err)
	assert.Equal(t, Params{"query": "beyonce", "bucket": "day", "tag": "music"}, counts)

	_, err = GenRulePayload("beyonce", RuleOptions{CountBucket: "fortnight"})
	assert.Error(t, err)
}

func TestParamsMergeOverwritesToken(t *testing.T) {
	base := Params{"query": "snow", "next_token": "stale"}
	next := base.With("next_token", "fresh")

	assert.Equal(t, "fresh", next["next_token"])
	assert.Equal(t, "stale", base["next_token"], "base payload is not mutated")
	assert.Equal(t, "snow", next["query"])
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(`{"query":"snow","maxResults":100}`)
	require.NoError(t, err)
	assert.Equal(t, "snow", p["query"])
	assert.Equal(t, "100", p.Values().Get("maxResults"))

	_, err = ParseParams(`[1,2]`)
	assert.True(t, errs.IsConfiguration(err))
}
