package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

// Response is what the transport hands back to the engine: status,
// headers, the raw body and the decoded JSON when the response
// declared a JSON content type.
type Response struct {
	StatusCode int
	Headers    http.Header
	RawText    string
	JSON       any
}

// Transport sends interpolated request blocks over HTTP.
type Transport struct {
	client *http.Client
}

// NewTransport creates a transport with the given per-request timeout.
func NewTransport(timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Transport{
		client: &http.Client{Timeout: timeout},
	}
}

// Send encodes and performs one HTTP call. The body encoding follows
// the declared Content-Type header: JSON, XML and form bodies are
// encoded accordingly, multipart bodies mix fields and files, and an
// unrecognized or absent content type falls back to form encoding.
func (t *Transport) Send(ctx context.Context, block *RequestBlock, env map[string]any, sink logSink) (*Response, error) {
	sink = sinkOr(sink)

	fullURL, err := t.buildURL(block, env)
	if err != nil {
		return nil, err
	}

	contentType := headerValue(block.Headers, "Content-Type")
	body, sendType, err := encodeBody(block, contentType)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(block.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range block.Headers {
		req.Header.Set(k, stringify(v))
	}
	if sendType != "" {
		req.Header.Set("Content-Type", sendType)
	}

	if len(block.Params) > 0 {
		q := req.URL.Query()
		for k, v := range block.Params {
			q.Set(k, stringify(v))
		}
		req.URL.RawQuery = q.Encode()
	}

	sink.Infof("request %s %s", method, req.URL.String())
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		RawText:    string(raw),
	}
	if isJSONContentType(resp.Header.Get("Content-Type")) && len(raw) > 0 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out.JSON = decoded
		}
	}
	sink.Infof("response %d (%d bytes)", out.StatusCode, len(raw))
	return out, nil
}

func (t *Transport) buildURL(block *RequestBlock, env map[string]any) (string, error) {
	base := block.BaseURL
	if base == "" {
		if v, ok := env["base_url"]; ok {
			base = stringify(v)
		}
	}
	full := strings.TrimRight(base, "/")
	path := block.URL
	if path != "" && !strings.HasPrefix(path, "/") && !strings.Contains(path, "://") {
		path = "/" + path
	}
	if strings.Contains(path, "://") {
		full = path
	} else {
		full += path
	}
	if full == "" {
		return "", fmt.Errorf("request has no url")
	}
	return full, nil
}

func encodeBody(block *RequestBlock, contentType string) (io.Reader, string, error) {
	hasBody := block.Body != nil
	hasFiles := len(block.Files) > 0
	if !hasBody && !hasFiles {
		return nil, "", nil
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "multipart/form-data") || hasFiles:
		return encodeMultipart(block)
	case strings.Contains(ct, "application/json"):
		data, err := json.Marshal(block.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encode JSON body: %w", err)
		}
		return bytes.NewReader(data), contentType, nil
	case strings.Contains(ct, "xml"):
		return strings.NewReader(stringify(block.Body)), contentType, nil
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		return encodeForm(block.Body, contentType)
	default:
		// Unknown or missing content type falls back to form encoding.
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		return encodeForm(block.Body, contentType)
	}
}

func encodeForm(body any, contentType string) (io.Reader, string, error) {
	values := url.Values{}
	if m, ok := body.(map[string]any); ok {
		for k, v := range m {
			values.Set(k, stringify(v))
		}
	} else if body != nil {
		return strings.NewReader(stringify(body)), contentType, nil
	}
	return strings.NewReader(values.Encode()), contentType, nil
}

// encodeMultipart writes form fields from the body and file parts from
// the files map. A file entry is a [filename, path, mime] triple; the
// content type of the whole request is replaced by the encoder's
// boundary-bearing value.
func encodeMultipart(block *RequestBlock) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if m, ok := block.Body.(map[string]any); ok {
		for k, v := range m {
			if err := writer.WriteField(k, stringify(v)); err != nil {
				return nil, "", fmt.Errorf("write form field %q: %w", k, err)
			}
		}
	}

	for field, entry := range block.Files {
		triple, ok := entry.([]any)
		if !ok || len(triple) != 3 {
			// Anything that is not a [filename, path, mime] triple is a
			// plain form value riding along in the files map.
			if err := writer.WriteField(field, stringify(entry)); err != nil {
				return nil, "", fmt.Errorf("write form field %q: %w", field, err)
			}
			continue
		}
		name, path, mimeType := fileTriple(triple)
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open upload file %q: %w", path, err)
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		if mimeType != "" {
			header.Set("Content-Type", mimeType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("create file part %q: %w", field, err)
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("copy upload file %q: %w", path, err)
		}
		f.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// fileTriple unpacks a [filename, path, mime] entry.
func fileTriple(v []any) (name, path, mimeType string) {
	return stringify(v[0]), stringify(v[1]), stringify(v[2])
}

func headerValue(headers map[string]any, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return stringify(v)
		}
	}
	return ""
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}
