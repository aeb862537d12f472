package ffmpeg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// ProbeInfo describes the first video stream of a media file
type ProbeInfo struct {
	Width    int
	Height   int
	FPS      float64
	Codec    string
	Duration time.Duration
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path
func Probe(path string) (ProbeInfo, error) {
	out, err := ffmpeggo.Probe(path)
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(data string) (ProbeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return ProbeInfo{}, fmt.Errorf("video stream has no size")
		}
		info := ProbeInfo{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
			FPS:    parseRate(s.AvgFrameRate),
		}
		if info.FPS == 0 {
			info.FPS = parseRate(s.RFrameRate)
		}
		if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
		return info, nil
	}
	return ProbeInfo{}, fmt.Errorf("no video stream")
}

// parseRate parses ffprobe rationals such as "30000/1001"
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
