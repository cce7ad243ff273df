package share

import (
	"strings"
	"unicode/utf16"
)

// uriAlphabet is the 64-symbol alphabet of LZ-String's EncodedURIComponent
// variant. Each output character carries six bits.
const uriAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"

var uriValues = func() map[byte]int {
	m := make(map[byte]int, len(uriAlphabet))
	for i := 0; i < len(uriAlphabet); i++ {
		m[uriAlphabet[i]] = i
	}
	return m
}()

// bitWriter packs codes LSB-first into 6-bit alphabet characters.
type bitWriter struct {
	out strings.Builder
	val int
	pos int
}

func (w *bitWriter) bit(b int) {
	w.val = (w.val << 1) | b
	if w.pos == 5 {
		w.pos = 0
		w.out.WriteByte(uriAlphabet[w.val])
		w.val = 0
		return
	}
	w.pos++
}

func (w *bitWriter) bits(value, n int) {
	for i := 0; i < n; i++ {
		w.bit(value & 1)
		value >>= 1
	}
}

func (w *bitWriter) flush() string {
	for {
		w.val <<= 1
		if w.pos == 5 {
			w.out.WriteByte(uriAlphabet[w.val])
			return w.out.String()
		}
		w.pos++
	}
}

// key turns a run of UTF-16 units into a map key.
func key(units []uint16) string {
	b := make([]byte, 0, 2*len(units))
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return string(b)
}

// compressURI is LZ-String's compressToEncodedURIComponent. It works on UTF-16
// code units so output matches the JavaScript library for any input.
func compressURI(input string) string {
	units := utf16.Encode([]rune(input))

	var (
		dict      = make(map[string]int)
		toCreate  = make(map[string]bool)
		enlargeIn = 2
		dictSize  = 3
		numBits   = 2
		w         []uint16
		wKey      string
		out       = &bitWriter{}
	)

	grow := func() {
		enlargeIn--
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}

	emit := func() {
		if toCreate[wKey] {
			if c := int(w[0]); c < 256 {
				out.bits(0, numBits)
				out.bits(c, 8)
			} else {
				out.bits(1, numBits)
				out.bits(c, 16)
			}
			grow()
			delete(toCreate, wKey)
		} else {
			out.bits(dict[wKey], numBits)
		}
		grow()
	}

	for i := range units {
		c := units[i : i+1]
		cKey := key(c)
		if _, ok := dict[cKey]; !ok {
			dict[cKey] = dictSize
			dictSize++
			toCreate[cKey] = true
		}

		wcKey := wKey + cKey
		if _, ok := dict[wcKey]; ok {
			w = append(w, c[0])
			wKey = wcKey
			continue
		}
		if len(w) > 0 {
			emit()
		}
		dict[wcKey] = dictSize
		dictSize++
		w = []uint16{c[0]}
		wKey = cKey
	}
	if len(w) > 0 {
		emit()
	}

	out.bits(2, numBits)
	return out.flush()
}

// bitReader reads 6-bit alphabet characters MSB-first. Reads past the end
// yield zero bits, as the JavaScript decoder does.
type bitReader struct {
	in    string
	val   int
	mask  int
	index int
}

func newBitReader(in string) (*bitReader, bool) {
	r := &bitReader{in: in, mask: 32, index: 1}
	v, ok := r.at(0)
	r.val = v
	return r, ok
}

func (r *bitReader) at(i int) (int, bool) {
	if i >= len(r.in) {
		return 0, true
	}
	v, ok := uriValues[r.in[i]]
	return v, ok
}

func (r *bitReader) read(n int) (int, bool) {
	bits := 0
	for power := 0; power < n; power++ {
		if r.val&r.mask != 0 {
			bits |= 1 << power
		}
		r.mask >>= 1
		if r.mask == 0 {
			r.mask = 32
			v, ok := r.at(r.index)
			if !ok {
				return 0, false
			}
			r.val = v
			r.index++
		}
	}
	return bits, true
}

// decompressURI is LZ-String's decompressFromEncodedURIComponent. The bool is
// false when the input is not a valid stream.
func decompressURI(input string) (string, bool) {
	if input == "" {
		return "", false
	}
	input = strings.ReplaceAll(input, " ", "+")

	r, ok := newBitReader(input)
	if !ok {
		return "", false
	}

	dict := [][]uint16{{0}, {1}, {2}}
	enlargeIn := 4
	numBits := 3

	next, ok := r.read(2)
	if !ok {
		return "", false
	}
	var c []uint16
	switch next {
	case 0, 1:
		width := 8
		if next == 1 {
			width = 16
		}
		v, ok := r.read(width)
		if !ok {
			return "", false
		}
		c = []uint16{uint16(v)}
	case 2:
		return "", true
	default:
		return "", false
	}
	dict = append(dict, c)
	w := c
	result := append([]uint16(nil), c...)

	for {
		if r.index > len(input) {
			return "", false
		}
		code, ok := r.read(numBits)
		if !ok {
			return "", false
		}

		switch code {
		case 0, 1:
			width := 8
			if code == 1 {
				width = 16
			}
			v, ok := r.read(width)
			if !ok {
				return "", false
			}
			dict = append(dict, []uint16{uint16(v)})
			code = len(dict) - 1
			enlargeIn--
		case 2:
			return string(utf16.Decode(result)), true
		}

		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}

		var entry []uint16
		switch {
		case code < len(dict):
			entry = dict[code]
		case code == len(dict):
			entry = append(append([]uint16(nil), w...), w[0])
		default:
			return "", false
		}
		result = append(result, entry...)

		dict = append(dict, append(append([]uint16(nil), w...), entry[0]))
		enlargeIn--
		w = entry

		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
}
