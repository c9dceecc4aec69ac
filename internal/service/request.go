package service

import (
	"bytes"
	"encoding/base64"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/frames"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/voxel/rotate"
)

// FromConvert turns a CONVERT message into a submission, decoding the
// base64 images within lim. Animated GIFs contribute one frame per image
// frame; images past lim.MaxDepth frames are not decoded.
func FromConvert(msg protocol.ConvertMsg, source string, lim voxel.Limits) (Submission, error) {
	format, err := pipeline.ParseFormat(msg.Format)
	if err != nil {
		return Submission{}, err
	}
	axis, err := rotate.ParseAxis(msg.Axis)
	if err != nil {
		return Submission{}, err
	}
	if len(msg.Frames) == 0 {
		return Submission{}, blocks.InvalidInput("no frames")
	}
	var all []voxel.Frame
	for i, enc := range msg.Frames {
		rest, ok := frames.Remaining(lim, len(all))
		if !ok {
			break
		}
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return Submission{}, blocks.InvalidInput("frame %d: bad base64: %v", i, err)
		}
		fs, err := frames.Decode(bytes.NewReader(raw), rest)
		if err != nil {
			return Submission{}, err
		}
		all = append(all, fs...)
	}
	return Submission{
		Frames:  all,
		Palette: msg.Palette,
		Format:  format,
		Axis:    axis,
		Name:    msg.Name,
		Source:  source,
	}, nil
}
