package attributes

// resizeGap replaces buf[offset:offset+oldSize] with a gap of newSize bytes
// keeping everything before and after it untouched. The gap content is
// undefined. buf is reused if its capacity allows.
func resizeGap(buf []byte, offset, oldSize, newSize int) []byte {
	delta := newSize - oldSize
	if delta == 0 {
		return buf
	}

	tail := buf[offset+oldSize:]

	if delta < 0 {
		copy(buf[offset+newSize:], tail)
		return buf[:len(buf)+delta]
	}

	var res []byte
	if cap(buf) >= len(buf)+delta {
		res = buf[:len(buf)+delta]
	} else {
		res = make([]byte, len(buf)+delta)
		copy(res, buf[:offset])
	}

	copy(res[offset+newSize:], tail)

	return res
}
