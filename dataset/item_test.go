package dataset

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncode(t *testing.T) {
	src := `[{"year":2003,"id":"a","song_title_romaji":"Tank!","time_start":"1:02.50","score":1.250}]`

	items, err := Decode([]byte(src))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "a", items[0].ID())

	out, err := Encode(items)
	require.NoError(t, err)
	require.Equal(t, `[
  {
    "id": "a",
    "score": 1.250,
    "song_title_romaji": "Tank!",
    "time_start": "1:02.50",
    "year": 2003
  }
]
`, string(out))

	again, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, items, again)
}

func TestDecodeRejectsNonArrays(t *testing.T) {
	for _, src := range []string{`{"a":1}`, `null`, `[1,2]`, `[null]`, `not json`} {
		_, err := Decode([]byte(src))
		require.Error(t, err, src)
	}

	items, err := Decode([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestEncodeKeepsHTML(t *testing.T) {
	out, err := Encode([]Item{{"notes": "<b>&</b>"}})
	require.NoError(t, err)
	require.Contains(t, string(out), `"<b>&</b>"`)

	out, err = Encode(nil)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(out))
}

func TestNewID(t *testing.T) {
	pattern := regexp.MustCompile(`^\d+-[0-9a-f]{8}$`)
	id := NewID()
	require.Regexp(t, pattern, id)
	require.NotEqual(t, id, NewID())

	require.Regexp(t, `^1700000000000-`, newIDAt(time.UnixMilli(1700000000000)))
}

func TestFallbackKey(t *testing.T) {
	a := Item{"anime_en": " Cowboy Bebop ", "year": jsonNumber("1998"), "season": "Spring", "type": "OP",
		"song_title_romaji": "Tank!", "artist_romaji": "The Seatbelts", "episode": jsonNumber("1"), "time_start": "0:00"}
	b := Item{"anime_romaji": "cowboy bebop", "year": jsonNumber("1998"), "season": "Spring", "type": "OP",
		"song_title_original": "TANK!", "artist_original": "the seatbelts", "episode": jsonNumber("1"), "time_start": "0:00"}

	require.Equal(t, "cowboy bebop|1998|Spring|OP|tank!|the seatbelts|1|0:00", a.FallbackKey())
	require.Equal(t, a.FallbackKey(), b.FallbackKey())

	require.Equal(t, "|||||||", Item{"year": jsonNumber("0"), "episode": nil}.FallbackKey())
}
