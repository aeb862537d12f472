package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// ToImage exposes a raw frame as an image.Image. GRAY8, RGBA and YUV420P frames
// share memory with buf, so the result is only valid until buf is reused.
func ToImage(buf []byte, desc StreamDescriptor) (image.Image, error) {
	if err := checkBuffer(buf, desc); err != nil {
		return nil, err
	}

	w, h := desc.Width, desc.Height
	rect := image.Rect(0, 0, w, h)

	switch desc.Format {
	case FormatGray8:
		return &image.Gray{Pix: buf[:w*h], Stride: w, Rect: rect}, nil
	case FormatRGBA:
		return &image.RGBA{Pix: buf[:w*h*4], Stride: w * 4, Rect: rect}, nil
	case FormatRGB24, FormatBGR24:
		img := image.NewRGBA(rect)
		packedToRGBA(img, buf, desc)
		return img, nil
	case FormatYUV420P:
		cw, ch := (w+1)/2, (h+1)/2
		ySize, cSize := w*h, cw*ch
		return &image.YCbCr{
			Y:              buf[:ySize],
			Cb:             buf[ySize : ySize+cSize],
			Cr:             buf[ySize+cSize : ySize+2*cSize],
			YStride:        w,
			CStride:        cw,
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}, nil
	case FormatYUYV422:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		yuyvToYCbCr(img, buf, w, h)
		return img, nil
	}

	return nil, fmt.Errorf("cannot convert %s to image", desc.Format)
}

// ToRGBA converts a raw frame into dst, allocating dst when it is nil or sized
// differently. The returned image never aliases buf.
func ToRGBA(buf []byte, desc StreamDescriptor, dst *image.RGBA) (*image.RGBA, error) {
	if err := checkBuffer(buf, desc); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, desc.Width, desc.Height)
	if dst == nil || dst.Bounds() != rect {
		dst = image.NewRGBA(rect)
	}

	switch desc.Format {
	case FormatRGBA:
		copy(dst.Pix, buf[:desc.Width*desc.Height*4])
	case FormatRGB24, FormatBGR24:
		packedToRGBA(dst, buf, desc)
	default:
		src, err := ToImage(buf, desc)
		if err != nil {
			return nil, err
		}
		draw.Draw(dst, rect, src, image.Point{}, draw.Src)
	}
	return dst, nil
}

// FromImage writes img into dst using the layout described by desc
func FromImage(img image.Image, desc StreamDescriptor, dst []byte) error {
	if err := checkBuffer(dst, desc); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != desc.Width || b.Dy() != desc.Height {
		return fmt.Errorf("%w: image is %dx%d, stream is %dx%d",
			ErrFormatMismatch, b.Dx(), b.Dy(), desc.Width, desc.Height)
	}

	if g, ok := img.(*image.Gray); ok && desc.Format == FormatGray8 {
		for y := 0; y < desc.Height; y++ {
			copy(dst[y*desc.Width:(y+1)*desc.Width], g.Pix[y*g.Stride:y*g.Stride+desc.Width])
		}
		return nil
	}

	rgba := asRGBA(img)
	w, h := desc.Width, desc.Height

	switch desc.Format {
	case FormatRGBA:
		for y := 0; y < h; y++ {
			copy(dst[y*w*4:(y+1)*w*4], rgba.Pix[y*rgba.Stride:y*rgba.Stride+w*4])
		}
	case FormatRGB24, FormatBGR24:
		bgr := desc.Format == FormatBGR24
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s := y*rgba.Stride + x*4
				d := (y*w + x) * 3
				r, g, b := rgba.Pix[s], rgba.Pix[s+1], rgba.Pix[s+2]
				if bgr {
					r, b = b, r
				}
				dst[d], dst[d+1], dst[d+2] = r, g, b
			}
		}
	case FormatGray8:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s := y*rgba.Stride + x*4
				dst[y*w+x] = luma(rgba.Pix[s], rgba.Pix[s+1], rgba.Pix[s+2])
			}
		}
	case FormatYUV420P:
		rgbaToI420(rgba, dst, w, h)
	case FormatYUYV422:
		rgbaToYUYV(rgba, dst, w, h)
	default:
		return fmt.Errorf("cannot convert image to %s", desc.Format)
	}
	return nil
}

// Convert rewrites a frame from one pixel layout into another of the same size
func Convert(src []byte, srcDesc StreamDescriptor, dst []byte, dstDesc StreamDescriptor) error {
	if srcDesc.Width != dstDesc.Width || srcDesc.Height != dstDesc.Height {
		return fmt.Errorf("%w: cannot convert %s into %s", ErrFormatMismatch, srcDesc, dstDesc)
	}
	if srcDesc.Format == dstDesc.Format {
		if err := checkBuffer(src, srcDesc); err != nil {
			return err
		}
		if err := checkBuffer(dst, dstDesc); err != nil {
			return err
		}
		copy(dst[:dstDesc.SizeBytes], src[:srcDesc.SizeBytes])
		return nil
	}
	img, err := ToImage(src, srcDesc)
	if err != nil {
		return err
	}
	return FromImage(img, dstDesc, dst)
}

func checkBuffer(buf []byte, desc StreamDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if len(buf) < desc.SizeBytes {
		return fmt.Errorf("buffer holds %d bytes, %s frame needs %d", len(buf), desc, desc.SizeBytes)
	}
	return nil
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func packedToRGBA(dst *image.RGBA, buf []byte, desc StreamDescriptor) {
	bgr := desc.Format == FormatBGR24
	w, h := desc.Width, desc.Height
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			s := (y*w + x) * 3
			r, g, b := buf[s], buf[s+1], buf[s+2]
			if bgr {
				r, b = b, r
			}
			row[x*4] = r
			row[x*4+1] = g
			row[x*4+2] = b
			row[x*4+3] = 0xff
		}
	}
}

func yuyvToYCbCr(img *image.YCbCr, buf []byte, w, h int) {
	pairs := (w + 1) / 2
	for y := 0; y < h; y++ {
		row := buf[y*pairs*4:]
		for i := 0; i < pairs; i++ {
			x := i * 2
			img.Y[y*img.YStride+x] = row[i*4]
			if x+1 < w {
				img.Y[y*img.YStride+x+1] = row[i*4+2]
			}
			img.Cb[y*img.CStride+i] = row[i*4+1]
			img.Cr[y*img.CStride+i] = row[i*4+3]
		}
	}
}

func luma(r, g, b uint8) uint8 {
	y, _, _ := color.RGBToYCbCr(r, g, b)
	return y
}

// chroma averages up to four RGB samples before converting
func chroma(rgba *image.RGBA, x0, y0, x1, y1 int) (uint8, uint8) {
	var rs, gs, bs, n int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			s := y*rgba.Stride + x*4
			rs += int(rgba.Pix[s])
			gs += int(rgba.Pix[s+1])
			bs += int(rgba.Pix[s+2])
			n++
		}
	}
	_, cb, cr := color.RGBToYCbCr(uint8(rs/n), uint8(gs/n), uint8(bs/n))
	return cb, cr
}

func rgbaToI420(rgba *image.RGBA, dst []byte, w, h int) {
	cw, ch := (w+1)/2, (h+1)/2
	yPlane := dst[:w*h]
	cbPlane := dst[w*h : w*h+cw*ch]
	crPlane := dst[w*h+cw*ch : w*h+2*cw*ch]

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := y*rgba.Stride + x*4
			yPlane[y*w+x] = luma(rgba.Pix[s], rgba.Pix[s+1], rgba.Pix[s+2])
		}
	}
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			x0, y0 := cx*2, cy*2
			x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
			cb, cr := chroma(rgba, x0, y0, x1, y1)
			cbPlane[cy*cw+cx] = cb
			crPlane[cy*cw+cx] = cr
		}
	}
}

func rgbaToYUYV(rgba *image.RGBA, dst []byte, w, h int) {
	pairs := (w + 1) / 2
	for y := 0; y < h; y++ {
		row := dst[y*pairs*4:]
		for i := 0; i < pairs; i++ {
			x0 := i * 2
			x1 := min(x0+1, w-1)
			s0 := y*rgba.Stride + x0*4
			s1 := y*rgba.Stride + x1*4
			cb, cr := chroma(rgba, x0, y, x1, y)
			row[i*4] = luma(rgba.Pix[s0], rgba.Pix[s0+1], rgba.Pix[s0+2])
			row[i*4+1] = cb
			row[i*4+2] = luma(rgba.Pix[s1], rgba.Pix[s1+1], rgba.Pix[s1+2])
			row[i*4+3] = cr
		}
	}
}
