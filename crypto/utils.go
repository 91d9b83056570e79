package crypto

// SecureZeroBytes securely zeros out a byte slice to prevent sensitive
// data from lingering in memory.
func SecureZeroBytes(slice []byte) {
	for i := range slice {
		slice[i] = 0
	}
}
