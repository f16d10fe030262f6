package schema

import (
	"encoding/json"
	"fmt"
)

// ResultKind tags the variant of a generation result.
type ResultKind string

const (
	ResultKindImage  ResultKind = "image"
	ResultKindVideo  ResultKind = "video"
	ResultKindText   ResultKind = "text"
	ResultKindMesh3D ResultKind = "mesh3d"
)

// Result is the payload a generation collaborator attaches to a completed
// node. It is a sealed sum type: each variant carries only the fields
// relevant to its kind.
type Result interface {
	Kind() ResultKind
	isResult()
}

// ImageResult is a generated image, either a single URL or a batch.
type ImageResult struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// VideoResult is a generated video clip.
type VideoResult struct {
	URL string `json:"url"`
}

// TextResult is generated text, optionally with structured data for
// downstream selectors.
type TextResult struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// MeshResult is a generated 3D asset.
type MeshResult struct {
	URL string `json:"url"`
}

func (ImageResult) Kind() ResultKind { return ResultKindImage }
func (VideoResult) Kind() ResultKind { return ResultKindVideo }
func (TextResult) Kind() ResultKind  { return ResultKindText }
func (MeshResult) Kind() ResultKind  { return ResultKindMesh3D }

func (ImageResult) isResult() {}
func (VideoResult) isResult() {}
func (TextResult) isResult()  {}
func (MeshResult) isResult()  {}

// resultEnvelope is the wire form: the variant fields plus a type tag.
type resultEnvelope struct {
	Type ResultKind     `json:"type"`
	URL  string         `json:"url,omitempty"`
	URLs []string       `json:"urls,omitempty"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// MarshalResult encodes a result as a tagged JSON envelope.
func MarshalResult(r Result) ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	env := resultEnvelope{Type: r.Kind()}
	switch v := r.(type) {
	case ImageResult:
		env.URL, env.URLs = v.URL, v.URLs
	case VideoResult:
		env.URL = v.URL
	case TextResult:
		env.Text, env.Data = v.Text, v.Data
	case MeshResult:
		env.URL = v.URL
	default:
		return nil, fmt.Errorf("unknown result variant %T", r)
	}
	return json.Marshal(env)
}

// UnmarshalResult decodes a tagged JSON envelope into the matching variant.
func UnmarshalResult(data []byte) (Result, error) {
	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case ResultKindImage:
		return ImageResult{URL: env.URL, URLs: env.URLs}, nil
	case ResultKindVideo:
		return VideoResult{URL: env.URL}, nil
	case ResultKindText:
		return TextResult{Text: env.Text, Data: env.Data}, nil
	case ResultKindMesh3D:
		return MeshResult{URL: env.URL}, nil
	default:
		return nil, fmt.Errorf("unknown result kind %q", env.Type)
	}
}

// ResultValue renders a result as a generic map, the input form for jq
// selectors on edges.
func ResultValue(r Result) map[string]any {
	if r == nil {
		return nil
	}
	raw, err := MarshalResult(r)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ResultPortType maps a result kind to the port type it satisfies.
func ResultPortType(k ResultKind) PortType {
	switch k {
	case ResultKindImage:
		return PortTypeImage
	case ResultKindVideo:
		return PortTypeVideo
	case ResultKindText:
		return PortTypeText
	case ResultKindMesh3D:
		return PortTypeMesh3D
	default:
		return PortTypeAny
	}
}
