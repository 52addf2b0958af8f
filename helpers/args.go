package helpers

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/byte4ever/confgen/templating"
)

func argErr(call *templating.Call, idx int, want string) error {
	return fmt.Errorf(
		"%w: %s: argument %d must be %s, got %T",
		templating.ErrHelperArgs, call.Name, idx, want, call.Args[idx],
	)
}

func intArg(call *templating.Call, idx int) (int64, error) {
	switch tv := call.Args[idx].(type) {
	case int64:
		return tv, nil
	case int:
		return int64(tv), nil
	case float64:
		if tv != math.Trunc(tv) {
			return 0, argErr(call, idx, "an integer")
		}

		return int64(tv), nil
	case string:
		num, err := strconv.ParseInt(strings.TrimSpace(tv), 10, 64)
		if err != nil {
			return 0, argErr(call, idx, "an integer")
		}

		return num, nil
	default:
		return 0, argErr(call, idx, "an integer")
	}
}

func listArg(call *templating.Call, idx int) ([]any, error) {
	switch tv := call.Args[idx].(type) {
	case nil:
		return nil, nil
	case []any:
		return tv, nil
	case []string:
		out := make([]any, len(tv))
		for i, s := range tv {
			out[i] = s
		}

		return out, nil
	default:
		return nil, argErr(call, idx, "a list")
	}
}

func mapArg(call *templating.Call, idx int) (map[string]any, error) {
	switch tv := call.Args[idx].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return tv, nil
	default:
		return nil, argErr(call, idx, "a mapping")
	}
}

func write(out io.Writer, text string) error {
	_, err := io.WriteString(out, text)

	return err
}
