package types

// Education is the one-shot explanation payload returned for a base post
// id by the classifier's /educate/<base-id> endpoint (spec §4.9, §6).
type Education struct {
	Frames      [][]byte
	Explanation string
	Indicators  []string
	Summary     DetectionVerdict
}
