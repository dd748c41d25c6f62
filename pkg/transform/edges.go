package transform

// 5x5 binomial kernel, close to a gaussian with sigma 1.
var kernel = [5]int32{1, 4, 6, 4, 1}

const kernelSum = 16 * 16

// edges runs blur, sobel gradient and double threshold with hysteresis.
// The output is 0 or 255 per pixel.
func (p *Processor) edges(luma []byte, w, h int) []byte {
	n := w * h
	if cap(p.blur) < n {
		p.blur, p.mag = make([]int32, n), make([]int32, n)
	}
	blur, mag := p.blur[:n], p.mag[:n]
	gaussian(luma, blur, w, h)
	sobel(blur, mag, w, h)

	low, high := int32(p.LowThreshold), int32(p.HighThreshold)
	if low <= 0 {
		low = lowThreshold
	}
	if high <= low {
		high = low * 3
	}

	out := make([]byte, n)
	stack := make([]int, 0, 64)
	for i, m := range mag {
		if m >= high && out[i] == 0 {
			out[i] = 255
			stack = append(stack, i)
			for len(stack) > 0 {
				j := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				x, y := j%w, j/w
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						k := ny*w + nx
						if out[k] == 0 && mag[k] >= low {
							out[k] = 255
							stack = append(stack, k)
						}
					}
				}
			}
		}
	}
	return out
}

func gaussian(src []byte, dst []int32, w, h int) {
	tmp := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s int32
			for k := -2; k <= 2; k++ {
				s += kernel[k+2] * int32(src[y*w+clampi(x+k, w)])
			}
			tmp[y*w+x] = s
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s int32
			for k := -2; k <= 2; k++ {
				s += kernel[k+2] * tmp[clampi(y+k, h)*w+x]
			}
			dst[y*w+x] = s / kernelSum
		}
	}
}

func sobel(src, dst []int32, w, h int) {
	at := func(x, y int) int32 { return src[clampi(y, h)*w+clampi(x, w)] }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			dst[y*w+x] = abs(gx) + abs(gy)
		}
	}
}

func clampi(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
