package engine

import "strings"

// DefaultTag is used when an image reference carries no tag.
const DefaultTag = "latest"

// ParseImageReference splits an image reference into name and tag. A colon
// separates the tag only when it follows the last slash, so registry ports
// such as "registry:5000/app" stay part of the name. A pinned digest is not
// part of either, see ImageDigest.
func ParseImageReference(ref string) (name, tag string) {
	ref, _ = splitDigest(strings.TrimSpace(ref))

	lastColon := strings.LastIndex(ref, ":")
	lastSlash := strings.LastIndex(ref, "/")
	if lastColon == -1 || lastColon < lastSlash || strings.Contains(ref[lastColon+1:], "/") {
		return ref, DefaultTag
	}

	name, tag = ref[:lastColon], ref[lastColon+1:]
	if tag == "" {
		tag = DefaultTag
	}
	return name, tag
}

// ImageDigest returns the digest pinned by ref, such as "sha256:...", or "".
func ImageDigest(ref string) string {
	_, digest := splitDigest(strings.TrimSpace(ref))
	return digest
}

func splitDigest(ref string) (string, string) {
	if idx := strings.Index(ref, "@"); idx != -1 {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}

// pullReference returns the name and tag to pull for image. A pinned digest
// rides on the tag so the daemon resolves the exact content.
func pullReference(image string) (name, tag string) {
	name, tag = ParseImageReference(image)
	if digest := ImageDigest(image); digest != "" {
		tag += "@" + digest
	}
	return name, tag
}

// withVersion appends version as tag unless the image already names a tag or
// a digest.
func withVersion(image, version string) string {
	if version == "" || strings.Contains(image, "@") {
		return image
	}
	lastColon := strings.LastIndex(image, ":")
	if lastColon > strings.LastIndex(image, "/") {
		return image
	}
	return image + ":" + version
}
