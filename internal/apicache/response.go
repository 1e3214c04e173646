package apicache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/buger/jsonparser"
)

const (
	HeaderCache = "X-Cache"
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
)

// headers that belong to one caller and never go into a shared entry
var privateHeaders = []string{"Set-Cookie", HeaderCache}

// Response is a captured downstream response, as stored in the cache
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Cacheable reports whether a response may be stored: a 2xx status and no
// explicit "success": false in a JSON body.
func (r *Response) Cacheable() bool {
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return false
	}

	success, err := jsonparser.GetBoolean(r.Body, "success")
	if err != nil {
		// no boolean success flag (or not JSON): nothing says it failed
		return true
	}
	return success
}

// WriteTo sends the response to w, marked with the given X-Cache value
func (r *Response) WriteTo(w http.ResponseWriter, marker string) {
	h := w.Header()
	for k, v := range r.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set(HeaderCache, marker)
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}

// HTTP rebuilds an *http.Response for req, as a proxy would return it
func (r *Response) HTTP(req *http.Request, marker string) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCache, marker)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// FromHTTP captures resp. The body is read fully and replaced by an
// equivalent reader, so resp can still be forwarded.
func FromHTTP(resp *http.Response) (*Response, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}

	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		body = b
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     sharedHeader(resp.Header),
		Body:       body,
	}, nil
}

func sharedHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range privateHeaders {
		out.Del(k)
	}
	out.Del("Content-Length")
	return out
}

// recorder buffers a handler's output so it can be stored and replayed
type recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (rec *recorder) Header() http.Header {
	return rec.header
}

func (rec *recorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.status = status
	rec.wroteHeader = true
}

func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.body.Write(b)
}

func (rec *recorder) Response() *Response {
	status := rec.status
	if !rec.wroteHeader {
		status = http.StatusOK
	}
	return &Response{
		StatusCode: status,
		Header:     sharedHeader(rec.header),
		Body:       bytes.Clone(rec.body.Bytes()),
	}
}
