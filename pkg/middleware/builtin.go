package middleware

import "net/http"

// StaticHeaders 给每个请求补上固定请求头，已存在的不覆盖
type StaticHeaders map[string]string

func (h StaticHeaders) ProcessRequest(req *http.Request) error {
	for k, v := range h {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return nil
}
