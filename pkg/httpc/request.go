package httpc

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

var (
	ErrInvalidMethod   = errors.New("httpc: unsupported method")
	ErrConflictingBody = errors.New("httpc: form data and query payload are mutually exclusive")
	ErrPayloadOnGet    = errors.New("httpc: query payload cannot be sent with GET")
)

// ParseMethod 不区分大小写
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodGet:
		return MethodGet, nil
	case MethodPost:
		return MethodPost, nil
	case MethodDelete:
		return MethodDelete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// Builder 链式配置请求，Build 之后得到不可变的 Request
type Builder struct {
	url      string
	method   Method
	formData map[string]string
	query    *Form
	headers  map[string]string
	meta     map[string]any
	callback func(*Result)
}

func New(url string) *Builder {
	return &Builder{
		url:     url,
		method:  MethodGet,
		headers: make(map[string]string),
		meta:    make(map[string]any),
	}
}

func (b *Builder) SetURL(url string) *Builder {
	b.url = url
	return b
}

func (b *Builder) SetMethod(method Method) *Builder {
	b.method = method
	return b
}

func (b *Builder) SetFormData(formData map[string]string) *Builder {
	b.formData = formData
	return b
}

func (b *Builder) SetQuery(query *Form) *Builder {
	b.query = query
	return b
}

func (b *Builder) SetHeader(key, value string) *Builder {
	b.headers[key] = value
	return b
}

func (b *Builder) SetMeta(key string, value any) *Builder {
	b.meta[key] = value
	return b
}

func (b *Builder) SetCallback(cb func(*Result)) *Builder {
	b.callback = cb
	return b
}

// Build 校验并冻结配置，map 和 Form 都会被复制。
// URL 不做校验，无效地址由传输层报错并作为失败结果回调
func (b *Builder) Build() (*Request, error) {
	switch b.method {
	case MethodGet, MethodPost, MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, b.method)
	}
	if b.query != nil && b.formData != nil {
		return nil, ErrConflictingBody
	}
	if b.query != nil && b.method == MethodGet {
		return nil, ErrPayloadOnGet
	}

	req := &Request{
		url:      b.url,
		method:   b.method,
		callback: b.callback,
		headers:  copyStrings(b.headers),
		meta:     make(map[string]any, len(b.meta)),
	}
	if b.formData != nil {
		req.formData = copyStrings(b.formData)
	}
	if b.query != nil {
		req.query = b.query.Clone()
	}
	for k, v := range b.meta {
		req.meta[k] = v
	}
	return req, nil
}

// Request 提交后不可修改
type Request struct {
	url      string
	method   Method
	formData map[string]string
	query    *Form
	headers  map[string]string
	meta     map[string]any
	callback func(*Result)
}

func (r *Request) URL() string { return r.url }

func (r *Request) Method() Method { return r.method }

func (r *Request) Callback() func(*Result) { return r.callback }

func (r *Request) FormData() map[string]string {
	if r.formData == nil {
		return nil
	}
	return copyStrings(r.formData)
}

// Query 返回预构建 payload 的副本，没有时为 nil
func (r *Request) Query() *Form {
	if r.query == nil {
		return nil
	}
	return r.query.Clone()
}

func (r *Request) Headers() map[string]string {
	return copyStrings(r.headers)
}

func (r *Request) Meta(key string) (any, bool) {
	v, ok := r.meta[key]
	return v, ok
}

// BuildQueryURL 把表单字段追加到 URL 的查询串上
func BuildQueryURL(base string, form map[string]string) string {
	if len(form) == 0 {
		return base
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, EscapeDataString(k)+"="+EscapeDataString(form[k]))
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(pairs, "&")
}

// EscapeDataString 按 RFC 3986 编码，只保留 unreserved 字符，空格编码为 %20
func EscapeDataString(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
