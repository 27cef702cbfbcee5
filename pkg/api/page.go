package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	errs "searchtweets/pkg/errors"
)

// Page is one parsed response: primary items, side-tables and metadata.
type Page struct {
	Data      []map[string]interface{}
	Includes  map[string]interface{}
	Meta      map[string]interface{}
	NextToken string
	// Raw is the whole decoded response object.
	Raw map[string]interface{}
}

// ParsePage decodes a response body. It accepts the v2 layout (data,
// includes, meta.next_token) and the legacy one (results, next).
func ParsePage(body []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.NewMalformedError("response body is not a JSON object", err)
	}
	if raw == nil {
		return nil, errs.NewMalformedError("response body is null", nil)
	}

	_, hasData := raw["data"]
	_, hasResults := raw["results"]
	_, hasMeta := raw["meta"]
	if !hasData && !hasResults && !hasMeta {
		return nil, errs.NewMalformedError("response lacks data, results and meta keys", nil)
	}

	page := &Page{Raw: raw}

	itemsKey := "data"
	if !hasData {
		itemsKey = "results"
	}
	if v, ok := raw[itemsKey]; ok && v != nil {
		list, ok := v.([]interface{})
		if !ok {
			return nil, errs.NewMalformedError(fmt.Sprintf("%q is not an array", itemsKey), nil)
		}
		page.Data = make([]map[string]interface{}, 0, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, errs.NewMalformedError(fmt.Sprintf("%s[%d] is not an object", itemsKey, i), nil)
			}
			page.Data = append(page.Data, obj)
		}
	}

	if v, ok := raw["includes"]; ok && v != nil {
		inc, ok := v.(map[string]interface{})
		if !ok {
			return nil, errs.NewMalformedError(`"includes" is not an object`, nil)
		}
		page.Includes = inc
	}

	if v, ok := raw["meta"]; ok && v != nil {
		meta, ok := v.(map[string]interface{})
		if !ok {
			return nil, errs.NewMalformedError(`"meta" is not an object`, nil)
		}
		page.Meta = meta
		if tok, ok := meta["next_token"].(string); ok {
			page.NextToken = tok
		}
	}
	if page.NextToken == "" {
		if tok, ok := raw["next"].(string); ok {
			page.NextToken = tok
		}
	}

	return page, nil
}

// ItemsKey is the top-level key holding the primary items of p.
func (p *Page) ItemsKey() string {
	if _, ok := p.Raw["data"]; ok {
		return "data"
	}
	return "results"
}
