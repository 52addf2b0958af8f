package helpers

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/byte4ever/confgen/templating"
)

// Memory reserved for the kubelet: a fixed base plus a
// share per schedulable pod, in MiB.
const (
	kubeReserveBaseMiB   = 255
	kubeReservePerPodMiB = 11
)

func kubernetesSet() Set {
	return Set{
		"join_node_labels":    joinNodeLabels,
		"join_node_taints":    joinNodeTaints,
		"kube_reserve_memory": kubeReserveMemory,
	}
}

// joinNodeLabels renders {zone: a, tier: web} as
// "tier=web,zone=a".
func joinNodeLabels(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	labels, err := mapArg(call, 0)
	if err != nil {
		return err
	}

	pairs := make([]string, 0, len(labels))
	for _, key := range slices.Sorted(maps.Keys(labels)) {
		pairs = append(pairs, key+"="+templating.Format(labels[key]))
	}

	return write(out, strings.Join(pairs, ","))
}

// joinNodeTaints renders {dedicated: ["gpu:NoSchedule"]}
// as "dedicated=gpu:NoSchedule". A taint value may be a
// single string or a list.
func joinNodeTaints(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	taints, err := mapArg(call, 0)
	if err != nil {
		return err
	}

	var pairs []string

	for _, key := range slices.Sorted(maps.Keys(taints)) {
		switch tv := taints[key].(type) {
		case []any:
			for _, item := range tv {
				pairs = append(pairs, key+"="+templating.Format(item))
			}
		case string:
			pairs = append(pairs, key+"="+tv)
		default:
			return fmt.Errorf(
				"%w: %s: taint %q must be a string or a list, got %T",
				templating.ErrHelperArgs, call.Name, key, tv,
			)
		}
	}

	return write(out, strings.Join(pairs, ","))
}

// kubeReserveMemory renders the kubelet memory reservation
// for max_pods, unless an explicit reservation is given as
// second argument: kube_reserve_memory(110, null) = "1465Mi".
func kubeReserveMemory(call *templating.Call, out io.Writer) error {
	if len(call.Args) == 2 && call.Args[1] != nil {
		return write(out, templating.Format(call.Args[1]))
	}

	if len(call.Args) != 1 && len(call.Args) != 2 {
		return call.Expect(1)
	}

	pods, err := intArg(call, 0)
	if err != nil {
		return err
	}

	if pods < 0 {
		return argErr(call, 0, "a non-negative integer")
	}

	mib := kubeReservePerPodMiB*pods + kubeReserveBaseMiB

	return write(out, strconv.FormatInt(mib, 10)+"Mi")
}
