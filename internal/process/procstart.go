package process

// startUnix returns when pid was started as Unix seconds, or 0 when unknown.
// gopsutil answers on every platform; statStartUnix covers systems where it
// cannot read the creation time.
func startUnix(pid int) int64 {
	p, ok := lookup(pid)
	if !ok {
		return 0
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		return ms / 1000
	}
	return statStartUnix(pid)
}
