// Package dataset models the song records held in the upstream JSON file.
package dataset

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
)

// Item is one flat record. Fields are kept as decoded so unknown columns
// and numeric formatting survive a round trip.
type Item map[string]any

// ID returns the record id, or "" when absent or not a string.
func (it Item) ID() string {
	id, _ := it["id"].(string)
	return strings.TrimSpace(id)
}

// Decode parses a dataset document, which must be a JSON array of objects.
func Decode(data []byte) ([]Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []Item
	if err := dec.Decode(&items); err != nil {
		return nil, apperrors.Wrapf(err, "[dataset Decode]")
	}
	if items == nil {
		// a literal null is not a collection
		if strings.TrimSpace(string(data)) == "null" {
			return nil, fmt.Errorf("[dataset Decode] expected an array, got null")
		}
		items = []Item{}
	}
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("[dataset Decode] element %d is not an object", i)
		}
	}
	return items, nil
}

// DecodeItems parses a caller-supplied array, reporting failures as invalid
// requests.
func DecodeItems(data json.RawMessage) ([]Item, error) {
	items, err := Decode(data)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Invalid content (expected array)")
	}
	return items, nil
}

// Encode renders the collection deterministically: two-space indent, sorted
// keys, no HTML escaping and a trailing newline.
func Encode(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return nil, apperrors.Wrapf(err, "[dataset Encode]")
	}
	return buf.Bytes(), nil
}

// NewID returns a fresh record id of the form <unix millis>-<8 hex digits>.
func NewID() string {
	return newIDAt(time.Now())
}

func newIDAt(now time.Time) string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + hex.EncodeToString(b[:])
}

// FallbackKey builds the composite key used to find a record whose id is
// unknown or stale.
func (it Item) FallbackKey() string {
	return strings.Join([]string{
		normalize(it.first("anime_en", "anime_romaji")),
		it.text("year"),
		it.text("season"),
		it.text("type"),
		normalize(it.first("song_title_romaji", "song_title_original")),
		normalize(it.first("artist_romaji", "artist_original")),
		it.text("episode"),
		it.text("time_start"),
	}, "|")
}

func (it Item) first(keys ...string) string {
	for _, k := range keys {
		if v := it.text(k); v != "" {
			return v
		}
	}
	return ""
}

// text renders a field the way a loosely typed client would: zero values
// and absent fields become "".
func (it Item) text(key string) string {
	switch v := it[key].(type) {
	case string:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return ""
		}
		return v.String()
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if !v {
			return ""
		}
		return "true"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
