// Package sysstat samples CPU and memory for the provider's periodic
// resource snapshot, preferring a container-aware cgroup v1/v2 quota
// reading and falling back to host-wide gopsutil sampling when no
// cgroup is detected (e.g. running directly on a dev machine).
package sysstat

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cgroupReader tracks CPU usage accounting against a container's quota.
type cgroupReader struct {
	mu             sync.Mutex
	version        int // 1 or 2
	path           string
	numCPUsAlloc   float64
	lastUsageUsec  uint64
	lastSampleTime time.Time
}

func newCgroupReader() (*cgroupReader, error) {
	path, version, err := detectCgroupPath()
	if err != nil {
		return nil, err
	}
	quota, period, err := readCPUQuota(path, version)
	if err != nil {
		return nil, err
	}
	numCPUs := float64(runtime.NumCPU())
	if quota > 0 && period > 0 {
		numCPUs = float64(quota) / float64(period)
	}
	usage, err := readCPUUsage(path, version)
	if err != nil {
		return nil, err
	}
	return &cgroupReader{
		version:        version,
		path:           path,
		numCPUsAlloc:   numCPUs,
		lastUsageUsec:  usage,
		lastSampleTime: time.Now(),
	}, nil
}

// percent returns CPU usage as a percentage of the container's
// allocated CPU share since the previous call.
func (c *cgroupReader) percent() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	deltaUsec := now.Sub(c.lastSampleTime).Microseconds()
	if deltaUsec <= 0 {
		return 0, fmt.Errorf("sysstat: sample interval too small")
	}
	usage, err := readCPUUsage(c.path, c.version)
	if err != nil {
		return 0, err
	}
	usageDelta := usage - c.lastUsageUsec
	c.lastUsageUsec = usage
	c.lastSampleTime = now

	raw := (float64(usageDelta) / float64(deltaUsec)) * 100.0
	if c.numCPUsAlloc <= 0 {
		return raw, nil
	}
	return raw / c.numCPUsAlloc, nil
}

func detectCgroupPath() (path string, version int, err error) {
	if _, statErr := os.Stat("/sys/fs/cgroup/cpu.max"); statErr == nil {
		return "/sys/fs/cgroup", 2, nil
	}
	if _, statErr := os.Stat("/sys/fs/cgroup/cpu/cpu.cfs_quota_us"); statErr == nil {
		return "/sys/fs/cgroup/cpu", 1, nil
	}
	return "", 0, fmt.Errorf("sysstat: no cgroup cpu controller found")
}

func readCPUQuota(path string, version int) (quota, period int64, err error) {
	if version == 2 {
		data, rerr := os.ReadFile(path + "/cpu.max")
		if rerr != nil {
			return 0, 0, rerr
		}
		fields := strings.Fields(strings.TrimSpace(string(data)))
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("sysstat: malformed cpu.max")
		}
		if fields[0] == "max" {
			return -1, 0, nil
		}
		q, _ := strconv.ParseInt(fields[0], 10, 64)
		p, _ := strconv.ParseInt(fields[1], 10, 64)
		return q, p, nil
	}
	q, err := readInt64File(path + "/cpu.cfs_quota_us")
	if err != nil {
		return 0, 0, err
	}
	p, err := readInt64File(path + "/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, err
	}
	return q, p, nil
}

func readCPUUsage(path string, version int) (uint64, error) {
	if version == 2 {
		f, err := os.Open(path + "/cpu.stat")
		if err != nil {
			return 0, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) == 2 && fields[0] == "usage_usec" {
				v, err := strconv.ParseUint(fields[1], 10, 64)
				return v, err
			}
		}
		return 0, fmt.Errorf("sysstat: usage_usec not found in cpu.stat")
	}
	nsec, err := readUint64File("/sys/fs/cgroup/cpuacct/cpuacct.usage")
	if err != nil {
		return 0, err
	}
	return nsec / 1000, nil // nanoseconds -> microseconds
}

func readInt64File(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readUint64File(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
