//go:build !android
// +build !android

package hwcodec

import (
	"context"
)

func platformSpecificSanityChecks(ctx context.Context, desc Descriptor) {}
