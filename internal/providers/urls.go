package providers

import (
	"encoding/json"
	"strings"
)

// extractURLs tries each strategy in priority order and returns the first
// non-empty result. A strategy that cannot parse its field contributes
// nothing; it never fails the whole extraction.
func extractURLs(rs *rawStatus) []string {
	for _, strategy := range []func(*rawStatus) []string{
		typedArrayURLs,
		jsonStringURLs,
		singularURLs,
	} {
		if urls := compact(strategy(rs)); len(urls) > 0 {
			return urls
		}
	}
	return nil
}

// rawResponse is the nested "response" object some providers return.
type rawResponse struct {
	ResultURLs     json.RawMessage `json:"resultUrls"`
	ResultImageURL json.RawMessage `json:"resultImageUrl"`
	SunoData       json.RawMessage `json:"sunoData"`
}

type sunoTrack struct {
	AudioURL      json.RawMessage `json:"audio_url"`
	AudioURLCamel json.RawMessage `json:"audioUrl"`
}

type rawVideoInfo struct {
	VideoURL json.RawMessage `json:"videoUrl"`
}

type rawResultJSON struct {
	ResultURLs      json.RawMessage `json:"resultUrls"`
	ResultURLsSnake json.RawMessage `json:"result_urls"`
}

func (r rawResultJSON) urls() []string {
	if urls := stringList(r.ResultURLs); len(urls) > 0 {
		return urls
	}
	return stringList(r.ResultURLsSnake)
}

// response decodes the nested response object; ok is false when it is
// missing or not an object.
func (rs *rawStatus) response() (rawResponse, bool) {
	var r rawResponse
	if len(rs.Response) == 0 || json.Unmarshal(rs.Response, &r) != nil {
		return rawResponse{}, false
	}
	return r, true
}

// typedArrayURLs reads fields that are already JSON arrays or objects.
func typedArrayURLs(rs *rawStatus) []string {
	var urls []string
	if resp, ok := rs.response(); ok {
		urls = append(urls, stringList(resp.ResultURLs)...)
		var tracks []json.RawMessage
		if json.Unmarshal(resp.SunoData, &tracks) == nil {
			for _, raw := range tracks {
				var t sunoTrack
				if json.Unmarshal(raw, &t) == nil {
					urls = append(urls, firstNonEmpty(stringValue(t.AudioURL), stringValue(t.AudioURLCamel)))
				}
			}
		}
	}
	urls = append(urls, stringList(rs.ResultURLs)...)
	var result rawResultJSON
	if json.Unmarshal(rs.ResultJSON, &result) == nil {
		urls = append(urls, result.urls()...)
	}
	urls = append(urls, mjURLs(rs.ResultInfoJSON)...)
	return urls
}

// jsonStringURLs reads fields that carry JSON encoded as a string and need a
// second parse.
func jsonStringURLs(rs *rawStatus) []string {
	var urls []string
	if resp, ok := rs.response(); ok {
		urls = append(urls, parseURLList(stringValue(resp.ResultURLs))...)
	}
	urls = append(urls, parseURLList(stringValue(rs.ResultURLs))...)
	if s := stringValue(rs.ResultJSON); s != "" {
		var result rawResultJSON
		if json.Unmarshal([]byte(s), &result) == nil {
			urls = append(urls, result.urls()...)
		}
	}
	if s := stringValue(rs.ResultInfoJSON); s != "" {
		urls = append(urls, mjURLs(json.RawMessage(s))...)
	}
	return urls
}

// singularURLs reads single-URL fields.
func singularURLs(rs *rawStatus) []string {
	var urls []string
	if resp, ok := rs.response(); ok {
		urls = append(urls, stringValue(resp.ResultImageURL))
	}
	urls = append(urls, stringValue(rs.ResultURL), stringValue(rs.VideoURL))
	var info rawVideoInfo
	if json.Unmarshal(rs.VideoInfo, &info) == nil {
		urls = append(urls, stringValue(info.VideoURL))
	}
	return urls
}

// parseURLList decodes a string holding either a JSON array of URLs or a
// JSON string. A bare URL that is not valid JSON is taken as-is.
func parseURLList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		return stringList(json.RawMessage(s))
	}
	var one string
	if json.Unmarshal([]byte(s), &one) == nil {
		return []string{one}
	}
	if strings.HasPrefix(s, "http") {
		return []string{s}
	}
	return nil
}

// mjURLs reads {"resultUrls":[{"resultUrl":"..."}]}.
func mjURLs(raw json.RawMessage) []string {
	var info struct {
		ResultURLs []json.RawMessage `json:"resultUrls"`
	}
	if json.Unmarshal(raw, &info) != nil {
		return nil
	}
	out := make([]string, 0, len(info.ResultURLs))
	for _, item := range info.ResultURLs {
		var r struct {
			ResultURL json.RawMessage `json:"resultUrl"`
		}
		if json.Unmarshal(item, &r) == nil {
			out = append(out, stringValue(r.ResultURL))
		}
	}
	return out
}

// stringValue returns raw as a string when it is a JSON string, else "".
func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// stringList returns the string elements of a JSON array, skipping elements
// of any other type. Anything but an array gives nil.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

func compact(urls []string) []string {
	out := urls[:0:0]
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
