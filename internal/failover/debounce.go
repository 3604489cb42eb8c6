package failover

// debounce counts consecutive probe results. The monitor only changes state
// once a run of results reaches the configured threshold.
type debounce struct {
	failuresBeforeFailover uint8
	curFailures            uint8

	successBeforeRecovery uint8
	curSuccess            uint8
}

func newDebounce(failures, successes uint8) debounce {
	return debounce{
		failuresBeforeFailover: max(failures, 1),
		successBeforeRecovery:  max(successes, 1),
	}
}

// failure records a failed probe and reports whether the failover threshold
// is reached.
func (d *debounce) failure() bool {
	d.curSuccess = 0
	if d.curFailures < d.failuresBeforeFailover {
		d.curFailures++
	}
	return d.curFailures >= d.failuresBeforeFailover
}

// success records a successful probe and reports whether the recovery
// threshold is reached.
func (d *debounce) success() bool {
	d.curFailures = 0
	if d.curSuccess < d.successBeforeRecovery {
		d.curSuccess++
	}
	return d.curSuccess >= d.successBeforeRecovery
}

func (d *debounce) reset() {
	d.curFailures = 0
	d.curSuccess = 0
}
