package lastfm

// Tag is a Last.fm folksonomy tag. Count is its weight for the artist,
// 0 to 100.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// topTagsEnvelope is the body of a successful artist.getTopTags call.
type topTagsEnvelope struct {
	TopTags struct {
		Tags []Tag `json:"tag"`
	} `json:"toptags"`
}

// failure is the body Last.fm returns, with HTTP 200 or 4xx, when a call fails.
type failure struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}
