package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	errs "searchtweets/pkg/errors"
)

// Endpoint families.
const (
	EndpointSearch = "search"
	EndpointCounts = "counts"
)

func pathSegments(endpoint string) []string {
	u, err := url.Parse(endpoint)
	path := endpoint
	if err == nil {
		path = u.Path
	}
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// IsV2 reports whether the endpoint is a /2/ API path.
func IsV2(endpoint string) bool {
	segs := pathSegments(endpoint)
	return len(segs) > 0 && segs[0] == "2"
}

// IsFullArchive reports whether the endpoint searches the full archive.
func IsFullArchive(endpoint string) bool {
	for _, seg := range pathSegments(endpoint) {
		if seg == "all" || seg == "fullarchive" {
			return true
		}
	}
	return false
}

// IsCountsEndpoint reports whether the endpoint returns counts instead of items.
func IsCountsEndpoint(endpoint string) bool {
	for _, seg := range pathSegments(endpoint) {
		if strings.TrimSuffix(seg, ".json") == "counts" {
			return true
		}
	}
	return false
}

// ChangeToCountEndpoint maps a search endpoint to its counts sibling.
// v2 paths swap the "search" segment; legacy paths end in "/counts.json".
func ChangeToCountEndpoint(endpoint string) (string, error) {
	if IsCountsEndpoint(endpoint) {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", errs.NewConfigurationError(fmt.Sprintf("invalid endpoint %q", endpoint))
	}

	segs := pathSegments(endpoint)
	if IsV2(endpoint) {
		for i, seg := range segs {
			if seg == "search" {
				segs[i] = "counts"
				u.Path = "/" + strings.Join(segs, "/")
				return u.String(), nil
			}
		}
		return "", errs.NewConfigurationError(fmt.Sprintf("no search segment in endpoint %q", endpoint))
	}

	if len(segs) == 0 {
		return "", errs.NewConfigurationError(fmt.Sprintf("invalid endpoint %q", endpoint))
	}
	segs[len(segs)-1] = strings.TrimSuffix(segs[len(segs)-1], ".json")
	segs = append(segs, "counts.json")
	u.Path = "/" + strings.Join(segs, "/")
	return u.String(), nil
}

// InferEndpoint returns EndpointCounts when the payload asks for bucketed counts.
func InferEndpoint(p Params) string {
	if p.Has("bucket") || p.Has("granularity") {
		return EndpointCounts
	}
	return EndpointSearch
}

// ValidateCountAPI rejects a bucketed payload aimed at a non-counts endpoint.
func ValidateCountAPI(p Params, endpoint string) error {
	if InferEndpoint(p) == EndpointCounts && !IsCountsEndpoint(endpoint) {
		return errs.NewConfigurationError("payload has a count bucket but the endpoint is not a counts endpoint")
	}
	return nil
}

// ResolveEndpoint switches to the counts endpoint when the payload requires it.
func ResolveEndpoint(endpoint string, p Params) (string, error) {
	if InferEndpoint(p) == EndpointCounts {
		return ChangeToCountEndpoint(endpoint)
	}
	return endpoint, nil
}

// DefaultMethod is GET for v2 endpoints and POST for legacy ones.
func DefaultMethod(endpoint string) string {
	if IsV2(endpoint) {
		return http.MethodGet
	}
	return http.MethodPost
}

// DefaultTokenKey is the request key the next-page token is sent under.
func DefaultTokenKey(endpoint string) string {
	if IsV2(endpoint) {
		return "next_token"
	}
	return "next"
}
