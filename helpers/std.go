package helpers

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/confgen/templating"
)

func stdSet() Set {
	return Set{
		"default":       defaultValue,
		"base64_decode": base64Decode,
		"base64_encode": base64Encode,
		"join_array":    joinArray,
		"quote":         quote,
		"upper":         stringMap(strings.ToUpper),
		"lower":         stringMap(strings.ToLower),
		"to_json":       toJSON,
	}
}

// defaultValue renders value, or fallback when value is
// missing or null: default("ok", settings.motd).
func defaultValue(call *templating.Call, out io.Writer) error {
	if err := call.Expect(2); err != nil {
		return err
	}

	val := call.Args[1]
	if val == nil {
		val = call.Args[0]
	}

	return write(out, templating.Format(val))
}

func base64Decode(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	str, err := call.String(0)
	if err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", templating.ErrHelperArgs, call.Name, err)
	}

	return write(out, string(decoded))
}

func base64Encode(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	str, err := call.String(0)
	if err != nil {
		return err
	}

	return write(out, base64.StdEncoding.EncodeToString([]byte(str)))
}

// joinArray quotes each item and joins them with sep:
// join_array(", ", ["a", "b"]) renders "a", "b".
func joinArray(call *templating.Call, out io.Writer) error {
	if err := call.Expect(2); err != nil {
		return err
	}

	sep, err := call.String(0)
	if err != nil {
		return err
	}

	items, err := listArg(call, 1)
	if err != nil {
		return err
	}

	parts := make([]string, len(items))
	for idx, item := range items {
		parts[idx] = strconv.Quote(templating.Format(item))
	}

	return write(out, strings.Join(parts, sep))
}

func quote(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	return write(out, strconv.Quote(templating.Format(call.Args[0])))
}

func stringMap(fn func(string) string) templating.HelperFunc {
	return func(call *templating.Call, out io.Writer) error {
		if err := call.Expect(1); err != nil {
			return err
		}

		return write(out, fn(templating.Format(call.Args[0])))
	}
}

func toJSON(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	by, err := json.Marshal(call.Args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", call.Name, err)
	}

	return write(out, string(by))
}
