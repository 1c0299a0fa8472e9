package types

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// basePostPattern matches the post_<n> prefix of a full post id or of a
// frame filename with the extension already stripped.
var basePostPattern = regexp.MustCompile(`^post_\d+`)

// BasePostID extracts the post_<n> prefix from a full post id such as
// "post_3_1718000000000". It is the key used throughout postlens for
// batching, uploading, subscribing, and result lookup.
func BasePostID(fullID string) (string, error) {
	base := basePostPattern.FindString(fullID)
	if base == "" {
		return "", fmt.Errorf("postid: %q does not match post_<n> convention", fullID)
	}
	return base, nil
}

// MakeFrameFilename builds the filename a captured frame is written
// under: <full-id>_frame<counter>_<epoch-ms>.jpg
func MakeFrameFilename(fullID string, counter int, epochMS int64) string {
	return fmt.Sprintf("%s_frame%d_%d.jpg", fullID, counter, epochMS)
}

// ParseBaseIDFromFilename extracts the base post id from any frame
// filename written by the capturer, regardless of directory. The rule is:
// strip the extension, then take the prefix matching post_\d+.
func ParseBaseIDFromFilename(filename string) (string, error) {
	name := filepath.Base(filename)
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	return BasePostID(stem)
}
