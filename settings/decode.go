package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/jsonc"
)

// Format names a settings file encoding.
type Format string

// Supported settings encodings.
const (
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
	FormatCBOR  Format = "cbor"
)

// zstdSuffix marks a zstd-compressed settings file
// ("model.json.zst").
const zstdSuffix = ".zst"

// ErrUnknownFormat reports a file extension or format name
// with no decoder.
var ErrUnknownFormat = errors.New("unknown settings format")

//nolint:gochecknoglobals // decoder configured once
var cborDecMode cbor.DecMode

func init() {
	var err error

	cborDecMode, err = cbor.DecOptions{
		// Settings keys are always strings; decode maps
		// into the same shape JSON and YAML produce.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("settings: CBOR decoder initialization failed: " + err.Error())
	}
}

// ParseFormat maps a format name ("json", "yml", ...) to
// a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "json":
		return FormatJSON, nil
	case "jsonc":
		return FormatJSONC, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// FormatFromPath derives the format from a file name,
// looking through a trailing ".zst". The second result
// reports whether the file is compressed.
func FormatFromPath(path string) (Format, bool, error) {
	compressed := strings.HasSuffix(path, zstdSuffix)
	base := strings.TrimSuffix(path, zstdSuffix)

	format, err := ParseFormat(filepath.Ext(base))
	if err != nil {
		return "", compressed, err
	}

	return format, compressed, nil
}

// Decode parses data in the given format into a Document.
// The top level must be an object. YAML streams holding
// several documents are merged in order.
func Decode(data []byte, format Format) (Document, error) {
	const errCtx = "decoding settings"

	var (
		doc Document
		err error
	)

	switch format {
	case FormatJSON:
		err = doc.UnmarshalJSON(data)
	case FormatJSONC:
		err = doc.UnmarshalJSON(jsonc.ToJSON(data))
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatCBOR:
		doc, err = decodeCBOR(data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if err != nil {
		return Document{}, fmt.Errorf("%s: %s: %w", errCtx, format, err)
	}

	return doc, nil
}

// LoadFile reads and decodes a settings file, picking the
// format from its extension.
func LoadFile(path string) (Document, error) {
	const errCtx = "loading settings file"

	data, err := os.ReadFile(path) //nolint:gosec // path from caller
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	doc, err := DecodeNamed(path, data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return doc, nil
}

// DecodeNamed decodes data whose format, and compression,
// follow from name as in FormatFromPath.
func DecodeNamed(name string, data []byte) (Document, error) {
	format, compressed, err := FormatFromPath(name)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", name, err)
	}

	if compressed {
		data, err = decompress(data)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", name, err)
		}
	}

	doc, err := Decode(data, format)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", name, err)
	}

	return doc, nil
}

// LoadDir loads every settings file directly inside dir in
// filename order and merges them, later files winning.
// Subdirectories and files with unknown extensions are
// ignored.
func LoadDir(dir string) (Document, error) {
	const errCtx = "loading settings directory"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	var layers []Document

	// os.ReadDir returns entries sorted by filename.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if _, _, err := FormatFromPath(path); err != nil {
			continue
		}

		doc, err := LoadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", errCtx, err)
		}

		layers = append(layers, doc)
	}

	return Merge(layers...), nil
}

// decodeYAML merges every document of a YAML stream.
// Empty documents are skipped.
func decodeYAML(data []byte) (Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))

	var layers []Document

	for {
		var raw map[string]any

		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return Document{}, err
		}

		if raw == nil {
			continue
		}

		doc, err := New(raw)
		if err != nil {
			return Document{}, err
		}

		layers = append(layers, doc)
	}

	return Merge(layers...), nil
}

func decodeCBOR(data []byte) (Document, error) {
	var raw map[string]any
	if err := cborDecMode.Unmarshal(data, &raw); err != nil {
		return Document{}, err
	}

	return New(raw)
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	defer dec.Close()

	return dec.DecodeAll(data, nil)
}
