package ink

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
)

type diagramState struct {
	Code    string        `json:"code"`
	Mermaid mermaidConfig `json:"mermaid"`
}

type mermaidConfig struct {
	Theme string `json:"theme"`
}

// Pako encodes a diagram the way mermaid.ink and mermaid.live expect in
// their "pako:" paths: zlib-compressed JSON state, URL-safe base64.
func Pako(code, theme string) (string, error) {
	data, err := json.Marshal(diagramState{Code: code, Mermaid: mermaidConfig{Theme: theme}})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return "pako:" + base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}
