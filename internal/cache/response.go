package cache

import "net/http"

// Source records where a response body came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Response is the uniform reply produced by the orchestrator. Every
// strategy returns a Response; transport failures, non-OK statuses and
// missing cache entries are all converted into typed placeholders so the
// calling layer never sees an error.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
	Source Source      `json:"-"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func synthesized(status int) *Response {
	return &Response{Status: status, Source: SourceFallback}
}

// resultKind discriminates how a strategy resolved a request.
type resultKind string

const (
	resultHit          resultKind = "hit"
	resultMissFallback resultKind = "miss-fallback"
	resultFailure      resultKind = "failure"
)

// result is the internal outcome of one strategy run. It is converted to
// the wire Response only at the orchestrator boundary.
type result struct {
	kind resultKind
	resp *Response
}

func hit(resp *Response) result {
	return result{kind: resultHit, resp: resp}
}

func missFallback(resp *Response) result {
	return result{kind: resultMissFallback, resp: resp}
}

func failure(status int) result {
	return result{kind: resultFailure, resp: synthesized(status)}
}

// response flattens the result into the uniform wire contract.
func (r result) response() *Response {
	if r.resp == nil {
		return synthesized(http.StatusNotFound)
	}
	return r.resp
}
