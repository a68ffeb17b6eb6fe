//go:build unix && !linux

package ae

func newPoller(setSize int) (poller, error) {
	return newPollPoller(setSize)
}
