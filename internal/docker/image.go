package docker

import "strings"

// NormalizeImage strips the @sha256:... digest suffix from a Docker image reference.
// Docker appends the resolved digest to image references after pulling, which can
// cause false mismatches when comparing desired vs actual images.
//
// Examples:
//   - "nginx:1.23@sha256:abc123..." → "nginx:1.23"
//   - "nginx@sha256:abc123..." → "nginx" (digest-only reference)
func NormalizeImage(image string) string {
	if idx := strings.Index(image, "@sha256:"); idx != -1 {
		return image[:idx]
	}
	return image
}

// ContainerName strips the leading slash Docker reports on container names.
func ContainerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
