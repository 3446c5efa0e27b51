//go:build windows

package process

func statStartUnix(int) int64 { return 0 }
