// Copyright 2025 The keytrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package processmetrics exports scheduling metrics of the own process. Only Linux is
// supported, on other platforms Register does nothing.
package processmetrics

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

var (
	runningTime = prometheus.NewDesc(
		"process_running_seconds_total",
		"CPU time the threads of the process spent running.",
		nil, nil,
	)
	runnableTime = prometheus.NewDesc(
		"process_runnable_seconds_total",
		"Time the threads of the process were runnable but waiting for a CPU.",
		nil, nil,
	)
	maxProcs = prometheus.NewDesc(
		"go_sched_maxprocs_threads",
		"The current GOMAXPROCS setting.",
		nil, nil,
	)
	threadRescans = prometheus.NewDesc(
		"process_metrics_thread_rescans_total",
		"Number of times the thread list of the process was read again.",
		nil, nil,
	)
)

// collector sums the schedstat values of all threads on every scrape.
type collector struct {
	mu       sync.Mutex
	pid      int
	taskDir  *os.File
	threads  procfs.Procs
	nThreads uint64
	rescans  int64
	running  uint64
	runnable uint64
}

// update reads the schedstat of every thread. The thread list is only read again if the link
// count of the task directory changed, which Go guarantees for new threads since it never
// terminates them.
func (c *collector) update() error {
	var st syscall.Stat_t
	if err := syscall.Fstat(int(c.taskDir.Fd()), &st); err != nil {
		return err
	}
	//nolint:unconvert // Nlink is uint32 on arm64.
	n := uint64(st.Nlink - 2)
	if n != c.nThreads {
		threads, err := procfs.AllThreads(c.pid)
		if err != nil {
			return err
		}
		c.threads = threads
		c.nThreads = n
		c.rescans++
	}
	var running, runnable uint64
	var errs serrors.List
	for _, t := range c.threads {
		s, err := t.Schedstat()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		running += s.RunningNanoseconds
		runnable += s.WaitingNanoseconds
	}
	c.running = running
	c.runnable = runnable
	return errs.ToError()
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.update()
	ch <- prometheus.MustNewConstMetric(runningTime, prometheus.CounterValue,
		float64(c.running)/1e9)
	ch <- prometheus.MustNewConstMetric(runnableTime, prometheus.CounterValue,
		float64(c.runnable)/1e9)
	ch <- prometheus.MustNewConstMetric(maxProcs, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
	ch <- prometheus.MustNewConstMetric(threadRescans, prometheus.CounterValue,
		float64(c.rescans))
}

// Register registers the collector of the own process with reg. Registering twice with the
// same registry fails.
func Register(reg prometheus.Registerer) error {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return serrors.Wrap("opening procfs", err)
	}
	if _, err := fs.Stat(); err != nil {
		return serrors.Wrap("reading kernel stats", err)
	}
	pid := os.Getpid()
	taskDir, err := os.Open("/proc/" + strconv.Itoa(pid) + "/task")
	if err != nil {
		return serrors.Wrap("opening task directory", err, "pid", pid)
	}
	c := &collector{pid: pid, taskDir: taskDir}
	if err := reg.Register(c); err != nil {
		taskDir.Close()
		return serrors.Wrap("registering process metrics", err)
	}
	return nil
}
