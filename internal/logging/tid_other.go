//go:build !linux

package logging

// threadID is only available on linux.
func threadID() int {
	return 0
}
