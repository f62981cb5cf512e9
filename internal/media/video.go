// Package media provides video probing and still-frame sampling.
package media

import "context"

// Video is a handle to an uploaded video file together with its probed metadata.
type Video struct {
	// Path is the local file backing the video. It is owned by the session that loaded it.
	Path string `json:"-"`
	// Name is the original file name, for display only.
	Name string `json:"name"`
	// Duration is the playable length in seconds.
	Duration float64 `json:"duration"`
	// Width and Height are the native pixel dimensions of the first video stream.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Codec is the codec name of the first video stream.
	Codec string `json:"codec"`
	// FrameRate is the average frame rate in frames per second, 0 when unknown.
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Prober reads the metadata of a video file.
type Prober interface {
	// Probe inspects the file at path and returns a handle describing it.
	// It fails if the file has no decodable video stream.
	Probe(ctx context.Context, path string) (Video, error)
}

// Sampler captures still frames from a video.
type Sampler interface {
	// ExtractFrame seeks to at (seconds) and returns the displayed frame as a
	// PNG data URL with the video's native dimensions. Callers keep the
	// timestamp within [0, video.Duration]; the duration itself yields the last frame.
	ExtractFrame(ctx context.Context, video Video, at float64) (string, error)
}
