// Package expand merges a page's includes into the items that reference them.
package expand

import (
	"encoding/json"
	"strconv"
)

// Tables indexes one page's includes by the keys items reference them with.
// Build it once per page and reuse it for every item on that page.
type Tables struct {
	users       map[string]map[string]interface{}
	usersByName map[string]map[string]interface{}
	tweets      map[string]map[string]interface{}
	media       map[string]map[string]interface{}
	polls       map[string]map[string]interface{}
	places      map[string]map[string]interface{}
}

// NewTables indexes includes. A nil or partial includes object is fine.
func NewTables(includes map[string]interface{}) *Tables {
	t := &Tables{
		users:       index(includes["users"], "id"),
		usersByName: index(includes["users"], "username"),
		tweets:      index(includes["tweets"], "id"),
		media:       index(includes["media"], "media_key"),
		polls:       index(includes["polls"], "id"),
		places:      index(includes["places"], "id"),
	}
	return t
}

func index(v interface{}, key string) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	list, _ := v.([]interface{})
	for _, entry := range list {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := keyString(obj[key]); ok {
			out[id] = obj
		}
	}
	return out
}

// Expand is a shortcut for NewTables(includes).Expand(item).
func Expand(item, includes map[string]interface{}) map[string]interface{} {
	return NewTables(includes).Expand(item)
}

// Expand returns a copy of item with every known reference resolved.
// item is left untouched. References missing from the tables resolve to {}.
func (t *Tables) Expand(item map[string]interface{}) map[string]interface{} {
	return t.expandMap(item)
}

func (t *Tables) expandValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return t.expandMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = t.expandValue(elem)
		}
		return out
	default:
		return v
	}
}

func (t *Tables) expandMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+2)
	for k, v := range m {
		out[k] = t.expandValue(v)
	}

	if id, ok := keyString(m["author_id"]); ok {
		out["author"] = lookup(t.users, id)
	}
	if id, ok := keyString(m["in_reply_to_user_id"]); ok {
		out["in_reply_to_user"] = lookup(t.users, id)
	}
	if id, ok := keyString(m["pinned_tweet_id"]); ok {
		out["pinned_tweet"] = lookup(t.tweets, id)
	}
	if keys, ok := m["media_keys"].([]interface{}); ok {
		media := make([]interface{}, len(keys))
		for i, k := range keys {
			id, _ := keyString(k)
			media[i] = lookup(t.media, id)
		}
		out["media"] = media
	}
	if ids, ok := m["poll_ids"].([]interface{}); ok && len(ids) > 0 {
		// The API attaches at most one poll per tweet.
		id, _ := keyString(ids[len(ids)-1])
		out["poll"] = lookup(t.polls, id)
	}
	if geo, ok := m["geo"].(map[string]interface{}); ok {
		if id, ok := keyString(geo["place_id"]); ok {
			expanded, _ := out["geo"].(map[string]interface{})
			out["geo"] = merge(expanded, lookup(t.places, id))
		}
	}
	if mentions, ok := m["mentions"].([]interface{}); ok {
		out["mentions"] = t.mergeEach(out["mentions"], mentions, "username", t.usersByName)
	}
	if refs, ok := m["referenced_tweets"].([]interface{}); ok {
		out["referenced_tweets"] = t.mergeEach(out["referenced_tweets"], refs, "id", t.tweets)
	}
	return out
}

// mergeEach merges the entity each raw element references into the matching
// expanded element. Elements that are not objects are kept as they are.
func (t *Tables) mergeEach(expanded interface{}, raw []interface{}, key string, table map[string]map[string]interface{}) []interface{} {
	list, _ := expanded.([]interface{})
	out := make([]interface{}, len(raw))
	for i, elem := range raw {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			out[i] = elem
			continue
		}
		base := obj
		if i < len(list) {
			if m, ok := list[i].(map[string]interface{}); ok {
				base = m
			}
		}
		id, _ := keyString(obj[key])
		out[i] = merge(base, lookup(table, id))
	}
	return out
}

func lookup(table map[string]map[string]interface{}, id string) map[string]interface{} {
	if obj, ok := table[id]; ok && id != "" {
		return clone(obj)
	}
	return map[string]interface{}{}
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	out := clone(base)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func clone(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// keyString normalizes an id that may have been decoded as a string, a
// json.Number or a float.
func keyString(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}
