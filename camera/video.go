package camera

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"plantbot/logging"
)

// maxReadFailures consecutive failed reads end a live stream
const maxReadFailures = 30

// Video reads a capture device, file or network stream through OpenCV and
// re-encodes each frame as JPEG.
type Video struct {
	cap      *gocv.VideoCapture
	frame    gocv.Mat
	live     bool
	failures int
	log      *logging.Logger
}

// OpenVideo opens target: a device index such as "0", a file path or an
// rtsp:// URL.
func OpenVideo(target string) (*Video, error) {
	log := logging.Named("CAMERA")
	live := true
	if strings.HasPrefix(target, "rtsp://") {
		// low latency capture for network cameras
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|buffer_size;65536|stimeout;5000000")
	} else if _, err := os.Stat(target); err == nil {
		live = false
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", target, err)
	}
	if live {
		vc.Set(gocv.VideoCaptureBufferSize, 1)
	}
	log.Info().Str("target", target).Bool("live", live).Msg("video source opened")
	return &Video{cap: vc, frame: gocv.NewMat(), live: live, log: log}, nil
}

func (v *Video) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := v.cap.Read(&v.frame); !ok || v.frame.Empty() {
		if !v.live {
			return nil, ErrEndOfStream
		}
		v.failures++
		if v.failures >= maxReadFailures {
			return nil, fmt.Errorf("%w: %d consecutive failed reads", ErrEndOfStream, v.failures)
		}
		return nil, nil
	}
	v.failures = 0

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, v.frame)
	if err != nil {
		v.log.Warn().Err(err).Msg("jpeg encode failed")
		return nil, nil
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func (v *Video) Close() error {
	v.frame.Close()
	return v.cap.Close()
}
