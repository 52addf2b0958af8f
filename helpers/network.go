package helpers

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/byte4ever/confgen/templating"
)

func networkSet() Set {
	return Set{
		"host":       host,
		"join_hosts": joinHosts,
	}
}

// host renders the host name of a URL:
// host("https://proxy.local:3128/") = "proxy.local".
// A bare "host:port" is accepted.
func host(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	raw, err := call.String(0)
	if err != nil {
		return err
	}

	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf(
			"%w: %s: no host in %q", templating.ErrHelperArgs, call.Name, raw,
		)
	}

	return write(out, parsed.Hostname())
}

// joinHosts renders a hosts-file body from entries shaped
// [ip, [alias, ...]], one line per entry.
func joinHosts(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	entries, err := listArg(call, 0)
	if err != nil {
		return err
	}

	var sb strings.Builder

	for idx, entry := range entries {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf(
				"%w: %s: entry %d must be [ip, [aliases]]",
				templating.ErrHelperArgs, call.Name, idx,
			)
		}

		aliases, ok := pair[1].([]any)
		if !ok {
			return fmt.Errorf(
				"%w: %s: entry %d aliases must be a list",
				templating.ErrHelperArgs, call.Name, idx,
			)
		}

		sb.WriteString(templating.Format(pair[0]))

		for _, alias := range aliases {
			sb.WriteByte(' ')
			sb.WriteString(templating.Format(alias))
		}

		sb.WriteByte('\n')
	}

	return write(out, sb.String())
}
