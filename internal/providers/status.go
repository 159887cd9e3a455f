package providers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/genforge/backend/internal/models"
)

// Shape identifies which status vocabulary a provider speaks.
type Shape int

const (
	// ShapeSuccessFlag: numeric successFlag 0..3 (gpt4o, flux, veo, luma).
	ShapeSuccessFlag Shape = iota
	// ShapeJobState: string state plus resultJson (jobs API: nano-banana, z-image, sora, wan).
	ShapeJobState
	// ShapeMidjourney: successFlag or state, resultInfoJson.
	ShapeMidjourney
	// ShapeRunway: string state plus videoInfo.
	ShapeRunway
	// ShapeSuno: upper-case status plus response.sunoData.
	ShapeSuno
)

func (s Shape) String() string {
	switch s {
	case ShapeSuccessFlag:
		return "success_flag"
	case ShapeJobState:
		return "job_state"
	case ShapeMidjourney:
		return "midjourney"
	case ShapeRunway:
		return "runway"
	case ShapeSuno:
		return "suno"
	}
	return "unknown"
}

// ErrorCodeEmptyResult is set when a provider reports success with no URLs.
const ErrorCodeEmptyResult = "empty_result"

// rawStatus is the union of every status payload field we read. Every field
// stays raw so a field of an unexpected type only loses that field; state and
// error fields are read with scalarString, URL fields by their strategy.
type rawStatus struct {
	SuccessFlag  json.RawMessage `json:"successFlag"`
	State        json.RawMessage `json:"state"`
	Status       json.RawMessage `json:"status"`
	ErrorMessage json.RawMessage `json:"errorMessage"`
	ErrorCode    json.RawMessage `json:"errorCode"`
	FailMsg      json.RawMessage `json:"failMsg"`
	FailCode     json.RawMessage `json:"failCode"`

	Response       json.RawMessage `json:"response"`
	ResultJSON     json.RawMessage `json:"resultJson"`
	ResultURLs     json.RawMessage `json:"resultUrls"`
	ResultURL      json.RawMessage `json:"resultUrl"`
	VideoURL       json.RawMessage `json:"videoUrl"`
	VideoInfo      json.RawMessage `json:"videoInfo"`
	ResultInfoJSON json.RawMessage `json:"resultInfoJson"`
}

// Normalize maps a provider status payload onto the common status model. It
// never fails: a payload that is not a JSON object reads as still processing.
func Normalize(shape Shape, raw json.RawMessage) models.GenerationStatus {
	var rs rawStatus
	if len(raw) == 0 || json.Unmarshal(raw, &rs) != nil {
		return models.GenerationStatus{State: models.TaskStateProcessing}
	}

	st := models.GenerationStatus{State: stateFor(shape, &rs)}
	switch st.State {
	case models.TaskStateSuccess:
		st.ResultURLs = extractURLs(&rs)
		if len(st.ResultURLs) == 0 {
			st.State = models.TaskStateFailed
			st.ErrorCode = ErrorCodeEmptyResult
			st.ErrorMessage = "provider reported success without any result"
		}
	case models.TaskStateFailed:
		st.ErrorMessage = firstNonEmpty(scalarString(rs.ErrorMessage), scalarString(rs.FailMsg))
		st.ErrorCode = firstNonEmpty(scalarString(rs.ErrorCode), scalarString(rs.FailCode))
		if shape == ShapeSuno && st.ErrorCode == "" {
			st.ErrorCode = scalarString(rs.Status)
		}
	}
	return st
}

func stateFor(shape Shape, rs *rawStatus) models.TaskState {
	switch shape {
	case ShapeSuccessFlag:
		return fromSuccessFlag(rs.SuccessFlag)
	case ShapeJobState, ShapeRunway:
		return fromState(scalarString(rs.State))
	case ShapeMidjourney:
		if successFlag(rs.SuccessFlag) != nil {
			return fromSuccessFlag(rs.SuccessFlag)
		}
		return fromState(scalarString(rs.State))
	case ShapeSuno:
		return fromSunoStatus(scalarString(rs.Status))
	}
	return models.TaskStateProcessing
}

// successFlag reads the flag as a number or a numeric string.
func successFlag(raw json.RawMessage) *int {
	n, err := strconv.Atoi(scalarString(raw))
	if err != nil {
		return nil
	}
	return &n
}

func fromSuccessFlag(raw json.RawMessage) models.TaskState {
	flag := successFlag(raw)
	if flag == nil {
		return models.TaskStateProcessing
	}
	switch *flag {
	case 1:
		return models.TaskStateSuccess
	case 2, 3:
		return models.TaskStateFailed
	}
	return models.TaskStateProcessing
}

func fromState(state string) models.TaskState {
	switch strings.ToLower(state) {
	case "success":
		return models.TaskStateSuccess
	case "fail", "failed":
		return models.TaskStateFailed
	case "wait", "waiting", "queuing", "queueing":
		return models.TaskStatePending
	}
	return models.TaskStateProcessing
}

func fromSunoStatus(status string) models.TaskState {
	s := strings.ToUpper(status)
	switch {
	case s == "SUCCESS":
		return models.TaskStateSuccess
	case strings.HasSuffix(s, "FAILED"), strings.HasSuffix(s, "_ERROR"), s == "CALLBACK_EXCEPTION":
		return models.TaskStateFailed
	case s == "PENDING":
		return models.TaskStatePending
	}
	return models.TaskStateProcessing
}

// scalarString renders a JSON string or number; null and other types give "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
