package httpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html/charset"
)

// Result 一次请求的结果，只在回调期间有效
type Result struct {
	URL        string
	Status     string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Err        error
	Request    *Request

	json *gjson.Result
}

func NewResult(req *Request, url string, resp *http.Response, body []byte, d time.Duration, err error) *Result {
	r := &Result{
		URL:      url,
		Body:     body,
		Duration: d,
		Err:      err,
		Request:  req,
		Headers:  http.Header{},
	}
	if resp != nil {
		r.Status = resp.Status
		r.StatusCode = resp.StatusCode
		r.Headers = resp.Header.Clone()
	}
	return r
}

// OK 传输成功且状态码小于 400
func (r *Result) OK() bool {
	return r.Err == nil && r.StatusCode > 0 && r.StatusCode < http.StatusBadRequest
}

// Error 成功时返回空串
func (r *Result) Error() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.OK() {
		return ""
	}
	if msg := r.Get("error.message"); msg.Exists() {
		return msg.String()
	}
	if r.Status != "" {
		return r.Status
	}
	return fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
}

func (r *Result) Bytes() []byte {
	return r.Body
}

// Text 按 Content-Type 里的 charset 解码
func (r *Result) Text() string {
	contentType := r.Headers.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "charset=") {
		reader, err := charset.NewReader(bytes.NewReader(r.Body), contentType)
		if err == nil {
			if converted, err := io.ReadAll(reader); err == nil {
				return string(converted)
			}
		}
	}
	return string(r.Body)
}

func (r *Result) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get 按 gjson 路径取值
func (r *Result) Get(path string) gjson.Result {
	if r.json == nil {
		parsed := gjson.ParseBytes(r.Body)
		r.json = &parsed
	}
	return r.json.Get(path)
}

// ResultDictionary 顶层是 JSON 对象时返回 map，否则 nil
func (r *Result) ResultDictionary() map[string]any {
	if !gjson.ValidBytes(r.Body) {
		return nil
	}
	parsed := gjson.ParseBytes(r.Body)
	if !parsed.IsObject() {
		return nil
	}
	dict, ok := parsed.Value().(map[string]any)
	if !ok {
		return nil
	}
	return dict
}

func (r *Result) HTML() *Selection {
	return ParseHTML(r.Body)
}
