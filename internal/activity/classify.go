package activity

import (
	"errors"
	"strconv"
	"strings"

	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/textutil"
)

// Reason is a coarse failure category recorded in audit metadata.
type Reason string

const (
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonInsufficientCredits Reason = "insufficient_credits"
	ReasonUploadFailed        Reason = "upload_failed"
	ReasonUpstreamFailed      Reason = "upstream_failed"
	ReasonTimeout             Reason = "timeout"
	ReasonUnknown             Reason = "unknown"
)

const (
	maxInternalMessage = 300
	maxRawBody         = 2000
)

// Classification is the audit view of a failure. It is metadata only; no
// caller branches on it.
type Classification struct {
	Reason          Reason `json:"reason"`
	MessageInternal string `json:"messageInternal,omitempty"`
	CodeInternal    string `json:"codeInternal,omitempty"`
	HTTPStatus      int    `json:"httpStatus,omitempty"`
	RawBody         string `json:"rawBody,omitempty"`
}

// Classify inspects structured upstream errors first, then known sentinels,
// then falls back to case-insensitive substring matching on the message.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Reason: ReasonUnknown}
	}
	c := Classification{MessageInternal: textutil.Truncate(err.Error(), maxInternalMessage)}

	var ue *providers.UpstreamError
	if errors.As(err, &ue) {
		c.HTTPStatus = ue.HTTPStatus
		c.RawBody = textutil.Truncate(ue.RawBody, maxRawBody)
		if ue.ProviderCode != 0 {
			c.CodeInternal = strconv.Itoa(ue.ProviderCode)
		}
		if ue.IsTimeout {
			c.Reason = ReasonTimeout
		} else {
			c.Reason = ReasonUpstreamFailed
		}
		return c
	}

	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		c.Reason = ReasonInsufficientCredits
		return c
	case errors.Is(err, providers.ErrInvalidArgument), errors.Is(err, providers.ErrUnknownModel):
		c.Reason = ReasonInvalidInput
		return c
	}

	c.Reason = classifyText(err.Error())
	return c
}

// ClassifyStatus builds a classification for a task the provider reported
// as failed.
func ClassifyStatus(st models.GenerationStatus) Classification {
	c := Classification{
		Reason:          ReasonUpstreamFailed,
		MessageInternal: textutil.Truncate(st.ErrorMessage, maxInternalMessage),
		CodeInternal:    st.ErrorCode,
	}
	if r := classifyText(st.ErrorMessage); r == ReasonTimeout {
		c.Reason = r
	}
	return c
}

func classifyText(msg string) Reason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "insufficient credits"):
		return ReasonInsufficientCredits
	case strings.Contains(m, "upload"):
		return ReasonUploadFailed
	case strings.Contains(m, "invalid"), strings.Contains(m, "require"), strings.Contains(m, "parameter"):
		return ReasonInvalidInput
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"):
		return ReasonTimeout
	case strings.Contains(m, "provider"), strings.Contains(m, "upstream"):
		return ReasonUpstreamFailed
	}
	return ReasonUnknown
}
