package resolver

import "encoding/json"

// The source API has shipped three reply shapes over time. They are tried
// in priority order and the first schema yielding a non-empty URL wins.

type replySchema struct {
	name    string
	extract func(reply []byte) string
}

var replySchemas = []replySchema{
	{"sources", extractSourcesReply},
	{"legacy-file", extractLegacyFileReply},
	{"legacy-stream", extractLegacyStreamReply},
}

// extractSourceURL runs the schema parsers in order, returning the first
// non-empty media URL and the name of the schema that produced it.
func extractSourceURL(reply []byte) (mediaURL, schema string, ok bool) {
	for _, s := range replySchemas {
		if u := s.extract(reply); u != "" {
			return u, s.name, true
		}
	}
	return "", "", false
}

// Current schema: {"sources": [{"file": "...", "label": "..."}, ...]}
func extractSourcesReply(reply []byte) string {
	var body struct {
		Sources []struct {
			File  string `json:"file"`
			Label string `json:"label"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(reply, &body); err != nil {
		return ""
	}
	for _, s := range body.Sources {
		if s.File != "" {
			return s.File
		}
	}
	return ""
}

// First legacy schema: {"success": true, "file": "..."}
func extractLegacyFileReply(reply []byte) string {
	var body struct {
		Success bool   `json:"success"`
		File    string `json:"file"`
	}
	if err := json.Unmarshal(reply, &body); err != nil {
		return ""
	}
	if !body.Success {
		return ""
	}
	return body.File
}

// Second legacy schema: {"success": true, "stream": "..."}
func extractLegacyStreamReply(reply []byte) string {
	var body struct {
		Success bool   `json:"success"`
		Stream  string `json:"stream"`
	}
	if err := json.Unmarshal(reply, &body); err != nil {
		return ""
	}
	if !body.Success {
		return ""
	}
	return body.Stream
}
