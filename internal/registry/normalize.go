package registry

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosub/vpadmin/internal/content"
)

// rawRegistry is whatever was found on disk, reduced to loose records.
type rawRegistry struct {
	Version   int
	UpdatedAt string
	Records   []map[string]any
}

// shapeAdapter recognizes one historical layout of the registry file.
type shapeAdapter func(v any) (rawRegistry, bool)

// shapes are tried in order; the first match wins.
var shapes = []shapeAdapter{
	arrayShape,
	listFieldShape("items"),
	listFieldShape("categories"),
	titleMapShape,
}

func decodeRaw(data []byte) rawRegistry {
	if strings.TrimSpace(string(data)) == "" {
		return rawRegistry{}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return rawRegistry{}
	}
	for _, shape := range shapes {
		if raw, ok := shape(v); ok {
			return raw
		}
	}
	return rawRegistry{}
}

// arrayShape: a bare list of entries. Implies schema v1.
func arrayShape(v any) (rawRegistry, bool) {
	arr, ok := v.([]any)
	if !ok {
		return rawRegistry{}, false
	}
	return rawRegistry{Version: 1, Records: records(arr)}, true
}

// listFieldShape: {"version": n, "updatedAt": ..., "<field>": [...]}.
func listFieldShape(field string) shapeAdapter {
	return func(v any) (rawRegistry, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return rawRegistry{}, false
		}
		arr, ok := obj[field].([]any)
		if !ok {
			return rawRegistry{}, false
		}
		return rawRegistry{
			Version:   intOf(obj["version"]),
			UpdatedAt: stringOf(obj["updatedAt"]),
			Records:   records(arr),
		}, true
	}
}

// titleMapShape: {"Title": "dir", ...} or {"Title": {...}, ...}.
func titleMapShape(v any) (rawRegistry, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return rawRegistry{}, false
	}
	titles := make([]string, 0, len(obj))
	for k := range obj {
		switch k {
		case "version", "updatedAt", "items", "categories":
			continue
		}
		titles = append(titles, k)
	}
	sort.Strings(titles)

	var recs []map[string]any
	for _, title := range titles {
		switch val := obj[title].(type) {
		case string:
			recs = append(recs, map[string]any{"title": title, "dir": val})
		case map[string]any:
			rec := make(map[string]any, len(val)+1)
			for k, v := range val {
				rec[k] = v
			}
			if _, ok := rec["title"]; !ok {
				rec["title"] = title
			}
			recs = append(recs, rec)
		}
	}
	return rawRegistry{Records: recs}, true
}

func records(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, v)
		case string:
			out = append(out, map[string]any{"dir": v, "title": v})
		}
	}
	return out
}

// fromRecord coalesces the aliases used by older registry versions. ok is
// false for records with nothing to identify them.
func fromRecord(rec map[string]any, fallback string) (Entry, bool) {
	dir := content.NormalizeDir(firstString(rec, "dir", "path", "rel", "slug"))
	title := firstString(rec, "title", "text", "name")
	label := firstString(rec, "menuLabel", "navLabel", "label")
	if dir == "" && title == "" && label == "" {
		return Entry{}, false
	}

	publish := true
	if b, ok := boolOf(rec["publish"]); ok {
		publish = b
	}

	menuEnabled := true
	if b, ok := firstBool(rec, "menuEnabled", "navEnabled", "enabled"); ok {
		menuEnabled = b
	} else if b, ok := boolOf(rec["visible"]); ok && !b {
		menuEnabled = false
	} else if b, ok := boolOf(rec["publish"]); ok && !b {
		menuEnabled = false
	}

	created := coerceTime(rec["createdAt"], "")
	updated := coerceTime(rec["updatedAt"], "")
	if updated == "" {
		updated = coerceTime(rec["lastUpdated"], "")
	}
	if created == "" {
		created = fallback
	}
	if updated == "" {
		updated = fallback
	}

	return Entry{
		Dir:         dir,
		Title:       title,
		MenuLabel:   label,
		Publish:     publish,
		MenuEnabled: menuEnabled,
		MenuOrder:   orderOf(rec["menuOrder"]),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, true
}

// canonicalize fills defaults, drops entries without a dir, dedupes by dir
// and assigns unique menu orders. The result is sorted by menuOrder.
func canonicalize(items []Entry) []Entry {
	byDir := map[string]int{}
	kept := make([]Entry, 0, len(items))
	for _, e := range items {
		e.Dir = content.NormalizeDir(e.Dir)
		e.Title = strings.TrimSpace(e.Title)
		e.MenuLabel = strings.TrimSpace(e.MenuLabel)
		if e.Dir == "" {
			continue
		}
		if e.Title == "" {
			e.Title = e.MenuLabel
		}
		if e.Title == "" {
			e.Title = e.Dir
		}
		if e.MenuLabel == "" {
			e.MenuLabel = e.Title
		}
		if i, ok := byDir[e.Dir]; ok {
			if !parseTime(e.UpdatedAt).Before(parseTime(kept[i].UpdatedAt)) {
				kept[i] = e
			}
			continue
		}
		byDir[e.Dir] = len(kept)
		kept = append(kept, e)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if (a.MenuOrder > 0) != (b.MenuOrder > 0) {
			return a.MenuOrder > 0
		}
		if a.MenuOrder != b.MenuOrder {
			return a.MenuOrder < b.MenuOrder
		}
		return a.Title < b.Title
	})

	seen := map[int]bool{}
	next := 1
	for i := range kept {
		order := kept[i].MenuOrder
		if order <= 0 {
			order = next
		}
		for seen[order] {
			order++
		}
		seen[order] = true
		kept[i].MenuOrder = order
		if order >= next {
			next = order + 1
		}
	}
	return kept
}

// NextMenuOrder returns one past the highest order in items.
func NextMenuOrder(items []Entry) int {
	highest := 0
	for _, e := range items {
		if e.MenuOrder > highest {
			highest = e.MenuOrder
		}
	}
	return highest + 1
}

// TimeLayout is the ISO-8601 form used for every registry timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// coerceTime converts a string or epoch number to TimeLayout, or returns
// fallback when v is not a recognizable time.
func coerceTime(v any, fallback string) string {
	switch x := v.(type) {
	case string:
		if t := parseTime(x); !t.IsZero() {
			return FormatTime(t)
		}
	case float64:
		if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			break
		}
		if x > 1e12 {
			return FormatTime(time.UnixMilli(int64(x)))
		}
		return FormatTime(time.Unix(int64(x), 0))
	}
	return fallback
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(stringOf(rec[k])); s != "" {
			return s
		}
	}
	return ""
}

func firstBool(rec map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		if b, ok := boolOf(rec[k]); ok {
			return b, true
		}
	}
	return false, false
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func boolOf(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return x != 0, true
	}
	return false, false
}

func intOf(v any) int {
	if f, ok := v.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	if s, ok := v.(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

// orderOf returns a positive menu order, or 0 when v is not one.
func orderOf(v any) int {
	n := intOf(v)
	if n < 0 {
		return 0
	}
	return n
}
