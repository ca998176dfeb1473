package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/golang/glog"
)

// dumpGoroutines writes the goroutine profile next to the state file.
// Triggered by SIGUSR1.
func dumpGoroutines() {
	name := fmt.Sprintf("goroutines-%s.dump", time.Now().Format("20060102_150405"))
	path := filepath.Join(filepath.Dir(*flagStateFile), name)

	f, err := os.Create(path)
	if err != nil {
		glog.Errorf("goroutine dump: %v", err)
		return
	}
	defer f.Close()

	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		glog.Errorf("goroutine dump: %v", err)
		return
	}
	glog.Infof("goroutine profile written to %s", path)
}
