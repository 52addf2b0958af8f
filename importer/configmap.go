package importer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
)

// DefaultConfigMapKey is used when a ConfigMapRef names no
// key and the ConfigMap holds several.
const DefaultConfigMapKey = "settings.json"

var (
	// ErrConfigMapRef is returned for a malformed
	// "namespace/name[:key]" reference.
	ErrConfigMapRef = errors.New("invalid configmap reference")

	// ErrConfigMapKey is returned when the ConfigMap lacks
	// the settings key.
	ErrConfigMapKey = errors.New("configmap key not found")
)

// ConfigMapRef locates settings inside a ConfigMap.
type ConfigMapRef struct {
	Namespace string
	Name      string
	// Key is the data key; its extension selects the
	// decoder.
	Key string
}

func (r ConfigMapRef) String() string {
	ref := r.Namespace + "/" + r.Name
	if r.Key != "" {
		ref += ":" + r.Key
	}

	return ref
}

// ParseConfigMapRef parses "namespace/name[:key]".
func ParseConfigMapRef(ref string) (ConfigMapRef, error) {
	location, key, _ := strings.Cut(ref, ":")

	namespace, name, ok := strings.Cut(location, "/")
	if !ok || namespace == "" || name == "" || strings.Contains(name, "/") {
		return ConfigMapRef{}, fmt.Errorf("%w: %q", ErrConfigMapRef, ref)
	}

	return ConfigMapRef{Namespace: namespace, Name: name, Key: key}, nil
}

// ConfigMapSettingsResolver reads settings from a
// ConfigMap on every fetch.
type ConfigMapSettingsResolver struct {
	client kubernetes.Interface
	ref    ConfigMapRef
}

// NewConfigMapSettingsResolver returns a resolver reading
// ref through client.
func NewConfigMapSettingsResolver(
	client kubernetes.Interface,
	ref ConfigMapRef,
) *ConfigMapSettingsResolver {
	return &ConfigMapSettingsResolver{client: client, ref: ref}
}

// FetchSettings implements SettingsResolver.
func (r *ConfigMapSettingsResolver) FetchSettings(
	ctx context.Context,
	reqs iter.Seq[extension.Requirement],
) (settings.Document, error) {
	const errCtx = "fetching settings from configmap"

	cm, err := r.client.CoreV1().
		ConfigMaps(r.ref.Namespace).
		Get(ctx, r.ref.Name, metav1.GetOptions{})
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %s: %w", errCtx, r.ref, err)
	}

	key, data, err := r.pick(cm.Data, cm.BinaryData)
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	all, err := settings.DecodeNamed(key, data)
	if err != nil {
		return settings.Document{}, fmt.Errorf("%s: %s: %w", errCtx, r.ref, err)
	}

	return Minimize(all.Unwrap(), reqs), nil
}

// pick selects the configured key, the only key, or
// DefaultConfigMapKey, looking in Data then BinaryData.
func (r *ConfigMapSettingsResolver) pick(
	data map[string]string,
	binary map[string][]byte,
) (string, []byte, error) {
	key := r.ref.Key

	if key == "" {
		keys := make([]string, 0, len(data)+len(binary))
		for k := range data {
			keys = append(keys, k)
		}

		for k := range binary {
			keys = append(keys, k)
		}

		switch {
		case len(keys) == 1:
			key = keys[0]
		case slices.Contains(keys, DefaultConfigMapKey):
			key = DefaultConfigMapKey
		default:
			return "", nil, fmt.Errorf(
				"%w: %s: no key given and no %s among %d keys",
				ErrConfigMapKey, r.ref, DefaultConfigMapKey, len(keys),
			)
		}
	}

	if val, ok := data[key]; ok {
		return key, []byte(val), nil
	}

	if val, ok := binary[key]; ok {
		return key, val, nil
	}

	return "", nil, fmt.Errorf("%w: %s: %q", ErrConfigMapKey, r.ref, key)
}
