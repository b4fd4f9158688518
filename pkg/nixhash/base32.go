package nixhash

// alphabet is the nix-base32 digit set. It omits e, o, u and t.
const alphabet = "0123456789abcdfghijklmnpqrsvwxyz"

// EncodedLen returns the length of the nix-base32 encoding of n bytes.
func EncodedLen(n int) int {
	if n == 0 {
		return 0
	}
	return (n*8-1)/5 + 1
}

// EncodeToString returns the nix-base32 encoding of src.
//
// Nix emits the most significant 5-bit group first while reading the input
// as a little-endian bit string, so the output is not compatible with
// RFC 4648 base32.
func EncodeToString(src []byte) string {
	n := EncodedLen(len(src))
	out := make([]byte, 0, n)
	for i := n - 1; i >= 0; i-- {
		b := uint(i * 5)
		j, k := b/8, b%8
		c := uint(src[j]) >> k
		if int(j)+1 < len(src) {
			c |= uint(src[j+1]) << (8 - k)
		}
		out = append(out, alphabet[c&0x1f])
	}
	return string(out)
}
