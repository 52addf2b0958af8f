package helpers

import (
	"fmt"
	"io"
	"strings"

	"github.com/byte4ever/confgen/templating"
)

// ECS agent metadata service throttling defaults.
const (
	ecsMetadataRPS   = 40
	ecsMetadataBurst = 60
)

const ecrAccount = "328549459982"

func ecsSet() Set {
	return Set{
		"ecs_metadata_service_limits": ecsMetadataServiceLimits,
	}
}

func awsSet() Set {
	return Set{
		"ecr_prefix": ecrPrefix,
	}
}

// ecsMetadataServiceLimits renders "rps,burst", using the
// agent defaults for null arguments.
func ecsMetadataServiceLimits(call *templating.Call, out io.Writer) error {
	if err := call.Expect(2); err != nil {
		return err
	}

	limits := [2]int64{ecsMetadataRPS, ecsMetadataBurst}

	for idx := range limits {
		if call.Args[idx] == nil {
			continue
		}

		val, err := intArg(call, idx)
		if err != nil {
			return err
		}

		limits[idx] = val
	}

	return write(out, fmt.Sprintf("%d,%d", limits[0], limits[1]))
}

// ecrPrefix renders the registry host for a region:
// ecr_prefix("eu-west-1") =
// "328549459982.dkr.ecr.eu-west-1.amazonaws.com".
func ecrPrefix(call *templating.Call, out io.Writer) error {
	if err := call.Expect(1); err != nil {
		return err
	}

	region, err := call.String(0)
	if err != nil {
		return err
	}

	region = strings.TrimSpace(region)
	if region == "" {
		return argErr(call, 0, "a region")
	}

	domain := "amazonaws.com"
	if strings.HasPrefix(region, "cn-") {
		domain = "amazonaws.com.cn"
	}

	return write(out, fmt.Sprintf("%s.dkr.ecr.%s.%s", ecrAccount, region, domain))
}
