package codec

// Checksum returns the byte sum of every byte before the trailing checksum
// field, modulo 256.
func Checksum(frame []byte) uint8 {
	var sum uint8
	for _, b := range frame[:len(frame)-ChecksumLength] {
		sum += b
	}
	return sum
}

// PutChecksum writes the checksum of frame into its last three bytes as
// zero-padded ASCII decimal digits.
func PutChecksum(frame []byte) {
	sum := Checksum(frame)
	tail := frame[len(frame)-ChecksumLength:]
	tail[0] = '0' + sum/100
	tail[1] = '0' + sum/10%10
	tail[2] = '0' + sum%10
}

// ValidChecksum reports whether the trailing digits match the frame's byte sum.
func ValidChecksum(frame []byte) bool {
	if len(frame) <= ChecksumLength {
		return false
	}
	var declared int
	for _, c := range frame[len(frame)-ChecksumLength:] {
		if c < '0' || c > '9' {
			return false
		}
		declared = declared*10 + int(c-'0')
	}
	return declared == int(Checksum(frame))
}
