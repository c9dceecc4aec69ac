// Package rotate reorients a flattened voxel layer.
//
// The three transforms are fixed index permutations kept bit-for-bit
// compatible with existing structure output. They are not rotations of one
// another and are deliberately implemented as separate functions.
package rotate

import (
	"strings"

	"pixelcraft.ai/internal/blocks"
)

type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return "?"
}

func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "":
		return X, nil
	case "y":
		return Y, nil
	case "z":
		return Z, nil
	}
	return X, blocks.InvalidInput("unknown axis %q", s)
}

// Apply dispatches to the transform for a.
func Apply(a Axis, size [3]int, layer []int32) ([3]int, []int32, error) {
	switch a {
	case X:
		return RotateX(size, layer)
	case Y:
		return RotateY(size, layer)
	case Z:
		return RotateZ(size, layer)
	}
	return size, nil, blocks.InvalidInput("unknown axis %d", int(a))
}

// RotateX is the native orientation: new size [d,h,w] with each row mirrored.
//
//	new[z*w*h + y*w + (w-x-1)] = old[z*w*h + y*w + x]
func RotateX(size [3]int, layer []int32) ([3]int, []int32, error) {
	w, h, d, err := dims(size, layer)
	if err != nil {
		return size, nil, err
	}
	out := make([]int32, len(layer))
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst := z*w*h + y*w + (w - x - 1)
				src := z*w*h + y*w + x
				if err := move(out, layer, dst, src); err != nil {
					return size, nil, err
				}
			}
		}
	}
	return [3]int{d, h, w}, out, nil
}

// RotateY lays the image down: new size [w,d,h], rows flipped and mirrored.
//
//	new[z*w*h + y*w + (w-x-1)] = old[z*w*h + (h-y-1)*w + x]
func RotateY(size [3]int, layer []int32) ([3]int, []int32, error) {
	w, h, d, err := dims(size, layer)
	if err != nil {
		return size, nil, err
	}
	out := make([]int32, len(layer))
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst := z*w*h + y*w + (w - x - 1)
				src := z*w*h + (h-y-1)*w + x
				if err := move(out, layer, dst, src); err != nil {
					return size, nil, err
				}
			}
		}
	}
	return [3]int{w, d, h}, out, nil
}

// RotateZ keeps the size and reverses the layer order, mirroring each row.
//
//	new[z*w*h + y*w + (w-x-1)] = old[(d-z-1)*w*h + y*w + x]
func RotateZ(size [3]int, layer []int32) ([3]int, []int32, error) {
	w, h, d, err := dims(size, layer)
	if err != nil {
		return size, nil, err
	}
	out := make([]int32, len(layer))
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst := z*w*h + y*w + (w - x - 1)
				src := (d-z-1)*w*h + y*w + x
				if err := move(out, layer, dst, src); err != nil {
					return size, nil, err
				}
			}
		}
	}
	return [3]int{w, h, d}, out, nil
}

func dims(size [3]int, layer []int32) (w, h, d int, err error) {
	w, h, d = size[0], size[1], size[2]
	if w <= 0 || h <= 0 || d <= 0 {
		return 0, 0, 0, blocks.InvalidInput("rotate: bad size %v", size)
	}
	if len(layer) != w*h*d {
		return 0, 0, 0, blocks.LengthMismatch("rotate: layer has %d voxels, size %v needs %d", len(layer), size, w*h*d)
	}
	return w, h, d, nil
}

func move(dst, src []int32, di, si int) error {
	if di < 0 || di >= len(dst) || si < 0 || si >= len(src) {
		return blocks.IndexOutOfRange("rotate: index %d <- %d outside [0,%d)", di, si, len(dst))
	}
	dst[di] = src[si]
	return nil
}
