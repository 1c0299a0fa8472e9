package types

import "fmt"

// PostLocation is the sensor's view of a single post in screen
// coordinates. X/Y/W/H are CSS pixels, screen-relative, and already
// include the browser window's offset on the virtual screen.
type PostLocation struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Visibility float64 `json:"visibility"`
}

// LocationMessage is a single frame decoded from the sensor socket. Post
// is nil when the sensor has no active content in view.
type LocationMessage struct {
	Site          string        `json:"site"`
	DPR           float64       `json:"dpr"`
	WindowScreenX int           `json:"windowScreenX"`
	WindowScreenY int           `json:"windowScreenY"`
	Post          *PostLocation `json:"post"`
}

// Validate rejects location messages that cannot be acted on. It does not
// attempt to validate the post rectangle's geometry (negative/off-screen
// coordinates are permitted by contract; the capturer clamps).
func (m LocationMessage) Validate() error {
	if m.DPR <= 0 {
		return fmt.Errorf("location message: dpr must be positive, got %v", m.DPR)
	}
	if m.Post != nil {
		if m.Post.ID == "" {
			return fmt.Errorf("location message: post.id is required when post is present")
		}
		if m.Post.Visibility < 0 || m.Post.Visibility > 1 {
			return fmt.Errorf("location message: post.visibility out of [0,1]: %v", m.Post.Visibility)
		}
	}
	return nil
}
