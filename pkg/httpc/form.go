package httpc

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type Field struct {
	Name  string
	Value string
}

type BinaryPart struct {
	Field    string
	FileName string
	MimeType string
	Data     []byte
}

// Form POST 请求体，字段保持添加顺序
type Form struct {
	Fields  []Field
	Parts   []BinaryPart
	Headers map[string]string
}

func NewForm() *Form {
	return &Form{Headers: make(map[string]string)}
}

func (f *Form) AddField(name, value string) *Form {
	f.Fields = append(f.Fields, Field{Name: name, Value: value})
	return f
}

func (f *Form) AddBinaryData(field string, data []byte, fileName, mimeType string) *Form {
	if fileName == "" {
		fileName = field + ".dat"
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	f.Parts = append(f.Parts, BinaryPart{
		Field:    field,
		FileName: fileName,
		MimeType: mimeType,
		Data:     append([]byte(nil), data...),
	})
	return f
}

// Value 返回同名字段的第一个值
func (f *Form) Value(name string) (string, bool) {
	for _, fd := range f.Fields {
		if fd.Name == name {
			return fd.Value, true
		}
	}
	return "", false
}

func (f *Form) Clone() *Form {
	out := &Form{
		Fields:  append([]Field(nil), f.Fields...),
		Headers: make(map[string]string, len(f.Headers)),
	}
	for _, p := range f.Parts {
		p.Data = append([]byte(nil), p.Data...)
		out.Parts = append(out.Parts, p)
	}
	for k, v := range f.Headers {
		out.Headers[k] = v
	}
	return out
}

// Encode 只有文本字段时用 urlencoded，包含二进制数据时用 multipart
func (f *Form) Encode() ([]byte, string, error) {
	if len(f.Parts) == 0 {
		pairs := make([]string, 0, len(f.Fields))
		for _, fd := range f.Fields {
			pairs = append(pairs, url.QueryEscape(fd.Name)+"="+url.QueryEscape(fd.Value))
		}
		return []byte(strings.Join(pairs, "&")), "application/x-www-form-urlencoded", nil
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, fd := range f.Fields {
		if err := writer.WriteField(fd.Name, fd.Value); err != nil {
			return nil, "", err
		}
	}

	for _, p := range f.Parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(p.Field), quoteEscaper.Replace(p.FileName)))
		h.Set("Content-Type", p.MimeType)
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(p.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}
