package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/vyrodovalexey/avasdk/internal/auth"
)

// Stage names the step of an attempt that failed.
type Stage string

// Attempt stages.
const (
	StageConfig      Stage = "config"
	StageRetry       Stage = "retry"
	StageRequest     Stage = "build request"
	StageAuth        Stage = "auth"
	StageSign        Stage = "sign"
	StageTransmit    Stage = "transmit"
	StageDeserialize Stage = "deserialize"
)

// ErrMissingContentLength is returned for streaming bodies whose length
// is unknown, since aws-chunked framing announces the decoded length.
var ErrMissingContentLength = errors.New("streaming body requires a known content length")

// Error is returned by Invoke. Err is the last concrete error.
type Error struct {
	Operation string
	Stage     Stage
	Scheme    auth.SchemeID
	Attempt   int
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&b, "operation %s: ", e.Operation)
	}
	fmt.Fprintf(&b, "%s failed", e.Stage)
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " on attempt %d", e.Attempt)
	}
	if e.Scheme != "" {
		fmt.Fprintf(&b, " (scheme %s)", e.Scheme)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// ResponseError is the error produced by the default deserializer for
// non-2xx responses. It implements smithy.APIError so error-code
// classification applies to it.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("http %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request id " + e.RequestID + ")"
	}
	return msg
}

// ErrorCode implements smithy.APIError.
func (e *ResponseError) ErrorCode() string {
	return e.Code
}

// ErrorMessage implements smithy.APIError.
func (e *ResponseError) ErrorMessage() string {
	return e.Message
}

// ErrorFault implements smithy.APIError.
func (e *ResponseError) ErrorFault() smithy.ErrorFault {
	switch {
	case e.StatusCode >= 500:
		return smithy.FaultServer
	case e.StatusCode >= 400:
		return smithy.FaultClient
	default:
		return smithy.FaultUnknown
	}
}

// newResponseError reads the error code from the x-amzn-errortype header
// or a JSON body carrying __type, code or message fields.
func newResponseError(resp *http.Response) *ResponseError {
	e := &ResponseError{
		StatusCode: resp.StatusCode,
		RequestID:  firstHeader(resp.Header, "x-amzn-requestid", "x-amz-request-id"),
	}
	if t := resp.Header.Get("x-amzn-errortype"); t != "" {
		e.Code = sanitizeCode(t)
	}

	if resp.Body == nil {
		return e
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return e
	}

	var body struct {
		Type         string `json:"__type"`
		Code         string `json:"code"`
		CodeUpper    string `json:"Code"`
		Message      string `json:"message"`
		MessageUpper string `json:"Message"`
	}
	if json.Unmarshal(data, &body) != nil {
		return e
	}
	if e.Code == "" {
		e.Code = sanitizeCode(firstNonEmpty(body.Type, body.Code, body.CodeUpper))
	}
	e.Message = firstNonEmpty(body.Message, body.MessageUpper)
	return e
}

// sanitizeCode strips the namespace and any ":"-suffixed detail, so
// "aws.protocoltests#FooError:http://..." becomes "FooError".
func sanitizeCode(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		code = code[:i]
	}
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}
	return strings.TrimSpace(code)
}

func firstHeader(h http.Header, names ...string) string {
	for _, n := range names {
		if v := h.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ smithy.APIError = (*ResponseError)(nil)
