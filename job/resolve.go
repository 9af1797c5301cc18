package job

import (
	"path/filepath"
	"strings"

	"webpconv/container"
	"webpconv/logger"
)

// ResolveOutput returns where a job writes and whether it takes the animated
// pipeline. An explicit output decides by its extension. Otherwise the input
// container is inspected: animated inputs become {dir}/{base}.gif, everything
// else {dir}/{base}.png. An unreadable container is treated as static.
func ResolveOutput(input, output string) (string, bool) {
	if output != "" {
		return output, strings.EqualFold(filepath.Ext(output), ".gif")
	}

	animated, err := container.IsAnimated(input)
	if err != nil {
		logger.Warnf("could not classify %s, assuming a still image: %v", input, err)
		animated = false
	}
	ext := ".png"
	if animated {
		ext = ".gif"
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+ext), animated
}
